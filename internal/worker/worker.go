package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lucid-meet/backend/internal/analysis"
	"github.com/lucid-meet/backend/pkg/queue"
	"github.com/lucid-meet/backend/pkg/storage"
)

// Transcriber converts an audio payload to plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// TranscriptionProcessor processes transcription jobs: stream the archived
// audio chunk from S3, transcribe it, append the fragment, delete the chunk.
type TranscriptionProcessor struct {
	agg         *analysis.Aggregator
	transcriber Transcriber
	s3          *storage.S3
	queue       *queue.Queue
	logger      *zap.Logger
}

// NewTranscriptionProcessor creates an audio transcription processor.
func NewTranscriptionProcessor(agg *analysis.Aggregator, transcriber Transcriber, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *TranscriptionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptionProcessor{agg: agg, transcriber: transcriber, s3: s3, queue: q, logger: logger}
}

// Process executes one transcription job.
func (p *TranscriptionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscription {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TranscriptionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	body, _, err := p.s3.GetObjectStream(ctx, p.s3.AudioBucket(), payload.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch audio chunk: %w", err)
	}
	defer body.Close()

	text, err := p.transcriber.Transcribe(ctx, payload.Filename, body)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	if err := p.agg.Append(ctx, payload.SessionID, payload.Speaker, text, payload.ProducedAt); err != nil {
		return fmt.Errorf("append fragment: %w", err)
	}

	// Chunk is only needed until it has been transcribed.
	if err := p.s3.DeleteObject(ctx, p.s3.AudioBucket(), payload.ObjectKey); err != nil {
		p.logger.Warn("audio chunk cleanup failed", zap.String("object_key", payload.ObjectKey), zap.Error(err))
	}

	p.logger.Info("transcription completed",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("object_key", payload.ObjectKey),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *TranscriptionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
