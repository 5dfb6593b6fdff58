package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucid-meet/backend/internal/models"
)

// MemoryStore is an in-memory session store for tests and single-node
// development without PostgreSQL.
type MemoryStore struct {
	records map[uuid.UUID]models.Session
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]models.Session)}
}

// Create inserts a new session, assigning an ID when absent.
func (s *MemoryStore) Create(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.Status == "" {
		sess.Status = models.StatusScheduled
	}
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	s.records[sess.ID] = *sess
	return nil
}

// GetByID returns a session by ID, or models.ErrSessionNotFound.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.records[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	out := sess
	return &out, nil
}

// List returns all sessions.
func (s *MemoryStore) List(ctx context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Session, 0, len(s.records))
	for _, sess := range s.records {
		out = append(out, sess)
	}
	return out, nil
}

// SetStatus updates a session's lifecycle status.
func (s *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.records[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	sess.Status = status
	sess.UpdatedAt = time.Now()
	s.records[id] = sess
	return nil
}
