// Package ai holds the HTTP clients for the external transcription and
// summarization collaborators. Both are treated as black-box text producers:
// failures and timeouts surface as sentinel errors and never touch room or
// transcript state.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lucid-meet/backend/config"
	"github.com/lucid-meet/backend/internal/models"
)

// Transcriber converts an audio payload to plain text via a
// Whisper-compatible transcription endpoint.
type Transcriber struct {
	url     string
	model   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewTranscriber creates a transcription client from AI config.
func NewTranscriber(cfg config.AIConfig) *Transcriber {
	return &Transcriber{
		url:     cfg.TranscriptionURL,
		model:   cfg.TranscriptionModel,
		apiKey:  cfg.TranscriptionKey,
		timeout: cfg.Timeout,
		client:  &http.Client{},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the audio as multipart form data and returns the trimmed
// transcript text. A deadline maps to models.ErrCollaboratorTimeout, any
// other failure to models.ErrTranscriptionFailed.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("transcription: %w", models.ErrCollaboratorTimeout)
		}
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// The deadline can also fire mid-body, after Do returned.
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("transcription: %w", models.ErrCollaboratorTimeout)
		}
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d: %s", models.ErrTranscriptionFailed, resp.StatusCode, respBody)
	}

	var out transcriptionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTranscriptionFailed, err)
	}
	return strings.TrimSpace(out.Text), nil
}
