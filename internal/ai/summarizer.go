package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucid-meet/backend/config"
	"github.com/lucid-meet/backend/internal/models"
)

const systemPrompt = "You are an expert meeting analyst."

const promptTemplate = `Based on the following transcript of a group discussion, provide:
1. A concise one-paragraph summary
2. Bulleted list of key decisions
3. A section titled "Action items" with a bulleted list of action items with owners

Transcript:
---
%s
---

Analysis:`

// Summarizer generates a meeting summary and action items from an ordered
// transcript via an OpenAI-compatible chat completions endpoint.
type Summarizer struct {
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewSummarizer creates a summarization client from AI config.
func NewSummarizer(cfg config.AIConfig) *Summarizer {
	return &Summarizer{
		baseURL: strings.TrimRight(cfg.SummaryBaseURL, "/"),
		model:   cfg.SummaryModel,
		apiKey:  cfg.SummaryKey,
		timeout: cfg.Timeout,
		client:  &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize formats the transcript as "speaker: text" lines and asks the
// model for an analysis. The caller must pass the transcript already ordered
// by produced-at time. A deadline maps to models.ErrCollaboratorTimeout, any
// other failure to models.ErrSummarizationFailed.
func (s *Summarizer) Summarize(ctx context.Context, transcript []models.TranscriptFragment) (summary string, actionItems []string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lines := make([]string, 0, len(transcript))
	for _, f := range transcript {
		lines = append(lines, f.Speaker+": "+f.Text)
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(lines, "\n"))

	reqBody, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("summarization: %w", models.ErrCollaboratorTimeout)
		}
		return "", nil, fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// The deadline can also fire mid-body, after Do returned.
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", nil, fmt.Errorf("summarization: %w", models.ErrCollaboratorTimeout)
		}
		return "", nil, fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("%w: HTTP %d: %s", models.ErrSummarizationFailed, resp.StatusCode, respBody)
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", nil, fmt.Errorf("%w: empty completion", models.ErrSummarizationFailed)
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	return content, extractActionItems(content), nil
}

// extractActionItems pulls the bulleted lines that follow an "action items"
// heading out of the model's analysis text.
func extractActionItems(content string) []string {
	var items []string
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "action item") && !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "*") {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			items = append(items, strings.TrimSpace(strings.TrimLeft(trimmed, "-* ")))
		} else {
			inSection = false
		}
	}
	return items
}
