package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucid-meet/backend/internal/models"
)

// MemoryStore is an in-memory analysis store for tests and single-node
// development without PostgreSQL.
type MemoryStore struct {
	records map[uuid.UUID]*models.Analysis
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory analysis store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*models.Analysis)}
}

// AppendFragment appends a fragment in arrival order, creating the record on
// first use. Serialized by the store mutex, so concurrent first-appends
// merge into one record.
func (s *MemoryStore) AppendFragment(ctx context.Context, frag models.TranscriptFragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[frag.SessionID]
	if !ok {
		now := time.Now()
		rec = &models.Analysis{SessionID: frag.SessionID, CreatedAt: now, UpdatedAt: now}
		s.records[frag.SessionID] = rec
	}
	frag.CreatedAt = time.Now()
	rec.Transcript = append(rec.Transcript, frag)
	rec.UpdatedAt = frag.CreatedAt
	return nil
}

// GetAnalysis returns a copy of the session's record, or nil when absent.
func (s *MemoryStore) GetAnalysis(ctx context.Context, sessionID uuid.UUID) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil, nil
	}
	out := *rec
	out.Transcript = make([]models.TranscriptFragment, len(rec.Transcript))
	copy(out.Transcript, rec.Transcript)
	out.ActionItems = append([]string(nil), rec.ActionItems...)
	return &out, nil
}

// SetSummary stores the summary and action items, creating the record if
// missing.
func (s *MemoryStore) SetSummary(ctx context.Context, sessionID uuid.UUID, summary string, actionItems []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		now := time.Now()
		rec = &models.Analysis{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
		s.records[sessionID] = rec
	}
	now := time.Now()
	rec.Summary = summary
	rec.ActionItems = append([]string(nil), actionItems...)
	rec.SummaryGeneratedAt = &now
	rec.UpdatedAt = now
	return nil
}
