package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucid-meet/backend/internal/analysis"
	"github.com/lucid-meet/backend/internal/models"
)

// Summarizer is the external summarization collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []models.TranscriptFragment) (summary string, actionItems []string, err error)
}

// Lifecycle bridges room membership transitions and analysis requests to
// session status changes in the store. Store failures are warnings: room
// signaling never depends on persistence succeeding.
type Lifecycle struct {
	store       Store
	transcripts *analysis.Aggregator
	summarizer  Summarizer
	logger      *zap.Logger
}

// NewLifecycle creates the session lifecycle bridge.
func NewLifecycle(store Store, transcripts *analysis.Aggregator, summarizer Summarizer, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{store: store, transcripts: transcripts, summarizer: summarizer, logger: logger}
}

// OnFirstJoin is called when a session's room gains its first member.
// A Scheduled session is moved to Live; any store failure is logged and
// room operation continues unaffected.
func (l *Lifecycle) OnFirstJoin(sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := l.store.GetByID(ctx, sessionID)
	if err != nil {
		l.logger.Warn("session lookup failed on first join",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	if sess.Status != models.StatusScheduled {
		return
	}
	if err := l.store.SetStatus(ctx, sessionID, models.StatusLive); err != nil {
		l.logger.Warn("session status update to Live failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	l.logger.Info("session is live", zap.String("session_id", sessionID.String()))
}

// GenerateAnalysis summarizes the session's transcript, stores the result
// and moves the session to Completed.
//
// With no transcript fragments it fails fast with models.ErrNoTranscript and
// mutates nothing. A summarizer failure leaves both the analysis record and
// the session status untouched. A status-update failure after the summary is
// stored is logged but does not fail the request.
func (l *Lifecycle) GenerateAnalysis(ctx context.Context, sessionID uuid.UUID) (*models.Analysis, error) {
	transcript, err := l.transcripts.OrderedTranscript(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if len(transcript) == 0 {
		return nil, models.ErrNoTranscript
	}

	summary, actionItems, err := l.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return nil, err
	}

	if err := l.transcripts.SetSummary(ctx, sessionID, summary, actionItems); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}

	if err := l.store.SetStatus(ctx, sessionID, models.StatusCompleted); err != nil {
		l.logger.Warn("session status update to Completed failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
	}

	now := time.Now()
	return &models.Analysis{
		SessionID:          sessionID,
		Transcript:         transcript,
		Summary:            summary,
		ActionItems:        actionItems,
		SummaryGeneratedAt: &now,
	}, nil
}
