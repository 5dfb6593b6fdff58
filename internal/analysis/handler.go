package analysis

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucid-meet/backend/internal/middleware"
	"github.com/lucid-meet/backend/internal/models"
	"github.com/lucid-meet/backend/pkg/queue"
	"github.com/lucid-meet/backend/pkg/response"
	"github.com/lucid-meet/backend/pkg/storage"
)

// Generator produces the AI analysis for a session (see sessions.Lifecycle).
type Generator interface {
	GenerateAnalysis(ctx context.Context, sessionID uuid.UUID) (*models.Analysis, error)
}

// Transcriber converts an audio payload to plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Handler handles analysis HTTP endpoints: audio-chunk transcription,
// analysis generation and reads.
type Handler struct {
	agg         *Aggregator
	generator   Generator
	transcriber Transcriber
	s3          *storage.S3
	jobs        *queue.Queue
	logger      *zap.Logger
}

// NewHandler creates an analysis handler. s3 and jobs may be nil; the
// transcribe endpoint then runs synchronously instead of queueing.
func NewHandler(agg *Aggregator, generator Generator, transcriber Transcriber, s3 *storage.S3, jobs *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{agg: agg, generator: generator, transcriber: transcriber, s3: s3, jobs: jobs, logger: logger}
}

// GetBySession handles GET /sessions/:id/analysis. The transcript is
// returned ordered by produced-at time, never by storage order.
func (h *Handler) GetBySession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	rec, err := h.agg.store.GetAnalysis(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to load analysis")
		return
	}
	if rec == nil {
		response.NotFound(c, "no analysis for this session")
		return
	}
	ordered, err := h.agg.OrderedTranscript(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to load transcript")
		return
	}
	rec.Transcript = ordered
	response.OK(c, rec)
}

// Generate handles POST /sessions/:id/analysis/generate.
func (h *Handler) Generate(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	rec, err := h.generator.GenerateAnalysis(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoTranscript):
			response.NotFound(c, "no transcript found for this session")
		case errors.Is(err, models.ErrCollaboratorTimeout),
			errors.Is(err, models.ErrSummarizationFailed):
			h.logger.Warn("analysis generation failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.ServiceUnavailable(c, "summarization unavailable")
		default:
			h.logger.Error("analysis generation failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.Internal(c, "failed to generate analysis")
		}
		return
	}
	response.OK(c, rec)
}

// Transcribe handles POST /sessions/:id/transcribe: a multipart audio chunk
// recorded by the client. With S3 and the job queue configured the chunk is
// archived and transcribed asynchronously by the worker; otherwise the
// transcription collaborator is called inline.
func (h *Handler) Transcribe(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "no audio file uploaded")
		return
	}
	if fileHeader.Size > storage.MaxAudioChunkSize {
		response.BadRequest(c, "audio chunk too large")
		return
	}
	if !storage.ValidateAudioFileType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename) {
		response.BadRequest(c, "unsupported audio format")
		return
	}

	speaker := c.PostForm("speaker")
	if speaker == "" {
		speaker = c.MustGet(middleware.ContextUserName).(string)
	}
	producedAt := time.Now()
	if ms, err := strconv.ParseInt(c.PostForm("produced_at"), 10, 64); err == nil && ms > 0 {
		producedAt = time.UnixMilli(ms)
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Internal(c, "failed to read audio")
		return
	}
	defer file.Close()

	if h.s3 != nil && h.jobs != nil {
		key := storage.AudioChunkKey(sessionID.String(), uuid.New().String(), fileHeader.Filename)
		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = storage.ContentTypeForFilename(fileHeader.Filename)
		}
		if _, err := h.s3.Upload(c.Request.Context(), h.s3.AudioBucket(), key, contentType, file, fileHeader.Size); err != nil {
			h.logger.Error("audio chunk upload failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.Internal(c, "failed to archive audio chunk")
			return
		}
		err := h.jobs.EnqueueTranscription(c.Request.Context(), queue.TranscriptionPayload{
			SessionID:  sessionID,
			Speaker:    speaker,
			ObjectKey:  key,
			Filename:   fileHeader.Filename,
			ProducedAt: producedAt,
		})
		if err != nil {
			h.logger.Error("transcription enqueue failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.Internal(c, "failed to queue transcription")
			return
		}
		response.Accepted(c, gin.H{"queued": true})
		return
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCollaboratorTimeout),
			errors.Is(err, models.ErrTranscriptionFailed):
			h.logger.Warn("transcription failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.ServiceUnavailable(c, "transcription unavailable")
		default:
			response.Internal(c, "failed to transcribe audio")
		}
		return
	}
	if err := h.agg.Append(c.Request.Context(), sessionID, speaker, text, producedAt); err != nil {
		h.logger.Error("transcript append failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "failed to store transcript")
		return
	}
	response.OK(c, gin.H{"text": text})
}
