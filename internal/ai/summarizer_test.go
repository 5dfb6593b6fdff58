package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-meet/backend/internal/models"
)

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestSummarizeFormatsTranscriptAsSpeakerLines(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply("The team met and agreed.")))
	}))
	defer srv.Close()

	s := NewSummarizer(testAIConfig(srv.URL))
	transcript := []models.TranscriptFragment{
		{Speaker: "alice", Text: "welcome all", ProducedAt: time.Now()},
		{Speaker: "bob", Text: "thanks", ProducedAt: time.Now()},
	}
	summary, items, err := s.Summarize(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, "The team met and agreed.", summary)
	assert.Empty(t, items)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "alice: welcome all\nbob: thanks")
}

func TestSummarizeExtractsActionItems(t *testing.T) {
	content := `The team agreed on the release plan.

Key decisions:
- Ship on Friday

Action items:
- alice: write the changelog
- bob: tag the release

That concludes the analysis.`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply(content)))
	}))
	defer srv.Close()

	s := NewSummarizer(testAIConfig(srv.URL))
	summary, items, err := s.Summarize(context.Background(), []models.TranscriptFragment{{Speaker: "alice", Text: "hi"}})
	require.NoError(t, err)
	assert.Contains(t, summary, "release plan")
	assert.Equal(t, []string{"alice: write the changelog", "bob: tag the release"}, items)
}

func TestSummarizeMapsDeadlineToCollaboratorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	s := NewSummarizer(cfg)

	_, _, err := s.Summarize(context.Background(), []models.TranscriptFragment{{Speaker: "alice", Text: "hi"}})
	assert.ErrorIs(t, err, models.ErrCollaboratorTimeout)
}

func TestSummarizeDeadlineDuringBodyReadIsCollaboratorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices": [`))
		w.(http.Flusher).Flush()
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	s := NewSummarizer(cfg)

	_, _, err := s.Summarize(context.Background(), []models.TranscriptFragment{{Speaker: "alice", Text: "hi"}})
	assert.ErrorIs(t, err, models.ErrCollaboratorTimeout)
}

func TestSummarizeEmptyCompletionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	s := NewSummarizer(testAIConfig(srv.URL))
	_, _, err := s.Summarize(context.Background(), []models.TranscriptFragment{{Speaker: "alice", Text: "hi"}})
	assert.ErrorIs(t, err, models.ErrSummarizationFailed)
}

func TestExtractActionItemsIgnoresUnrelatedBullets(t *testing.T) {
	content := `Summary paragraph.

Key decisions:
- not an action item

Action items
* carol: book the room`
	items := extractActionItems(content)
	assert.Equal(t, []string{"carol: book the room"}, items)
}
