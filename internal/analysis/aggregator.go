package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucid-meet/backend/internal/models"
)

// Store persists per-session analysis records and transcript fragments.
// AppendFragment must create the analysis record on first use without
// duplicating it under concurrent first-appends, and must keep fragments in
// arrival order.
type Store interface {
	AppendFragment(ctx context.Context, frag models.TranscriptFragment) error
	GetAnalysis(ctx context.Context, sessionID uuid.UUID) (*models.Analysis, error)
	SetSummary(ctx context.Context, sessionID uuid.UUID, summary string, actionItems []string) error
}

// Aggregator merges concurrently-arriving transcript fragments into one
// speaker-attributed record per session. It is purely additive: repeated
// speech is legitimate and never deduplicated. Fragments are stored in
// arrival order; OrderedTranscript sorts by produced-at time for consumers,
// which tolerates network jitter reordering fragments between speakers.
type Aggregator struct {
	store  Store
	logger *zap.Logger
}

// NewAggregator creates a transcript aggregator over the given store.
func NewAggregator(store Store, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger}
}

// Append records one fragment for a session, creating the session's analysis
// record on first call. Empty or whitespace-only text is discarded as a
// no-op.
func (a *Aggregator) Append(ctx context.Context, sessionID uuid.UUID, speaker, text string, producedAt time.Time) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	frag := models.TranscriptFragment{
		SessionID:  sessionID,
		Speaker:    speaker,
		Text:       text,
		ProducedAt: producedAt,
	}
	if err := a.store.AppendFragment(ctx, frag); err != nil {
		return fmt.Errorf("append fragment: %w", err)
	}
	a.logger.Debug("fragment appended",
		zap.String("session_id", sessionID.String()),
		zap.String("speaker", speaker),
		zap.Time("produced_at", producedAt),
	)
	return nil
}

// OrderedTranscript returns the session's fragments sorted by produced-at
// time (arrival-order ties keep arrival order). Returns an empty slice when
// the session has no analysis record yet.
func (a *Aggregator) OrderedTranscript(ctx context.Context, sessionID uuid.UUID) ([]models.TranscriptFragment, error) {
	rec, err := a.store.GetAnalysis(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	frags := make([]models.TranscriptFragment, len(rec.Transcript))
	copy(frags, rec.Transcript)
	sort.SliceStable(frags, func(i, j int) bool {
		return frags[i].ProducedAt.Before(frags[j].ProducedAt)
	})
	return frags, nil
}

// SetSummary stores the generated summary and action items on the session's
// analysis record.
func (a *Aggregator) SetSummary(ctx context.Context, sessionID uuid.UUID, summary string, actionItems []string) error {
	return a.store.SetSummary(ctx, sessionID, summary, actionItems)
}
