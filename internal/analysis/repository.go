package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucid-meet/backend/internal/models"
)

// Repository is the PostgreSQL-backed analysis store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analysis repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendFragment upserts the session's analysis record and appends the
// fragment. The ON CONFLICT clause makes concurrent first-appends converge
// on one record instead of failing or duplicating.
func (r *Repository) AppendFragment(ctx context.Context, frag models.TranscriptFragment) error {
	const upsert = `INSERT INTO analyses (session_id) VALUES ($1)
		ON CONFLICT (session_id) DO UPDATE SET updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, upsert, frag.SessionID); err != nil {
		return err
	}
	const insert = `INSERT INTO transcript_fragments (session_id, speaker, text, produced_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, insert, frag.SessionID, frag.Speaker, frag.Text, frag.ProducedAt)
	return err
}

// GetAnalysis returns the session's analysis record with its transcript in
// arrival order, or nil when no fragment has ever been appended.
func (r *Repository) GetAnalysis(ctx context.Context, sessionID uuid.UUID) (*models.Analysis, error) {
	const q = `SELECT session_id, summary, action_items, summary_generated_at, created_at, updated_at
		FROM analyses WHERE session_id = $1`
	var a models.Analysis
	err := r.pool.QueryRow(ctx, q, sessionID).
		Scan(&a.SessionID, &a.Summary, &a.ActionItems, &a.SummaryGeneratedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// id is the arrival sequence.
	const fq = `SELECT session_id, speaker, text, produced_at, created_at
		FROM transcript_fragments WHERE session_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, fq, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f models.TranscriptFragment
		if err := rows.Scan(&f.SessionID, &f.Speaker, &f.Text, &f.ProducedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		a.Transcript = append(a.Transcript, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetSummary stores the generated summary and action items, creating the
// record if it is somehow missing.
func (r *Repository) SetSummary(ctx context.Context, sessionID uuid.UUID, summary string, actionItems []string) error {
	const q = `INSERT INTO analyses (session_id, summary, action_items, summary_generated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET summary = EXCLUDED.summary, action_items = EXCLUDED.action_items,
		    summary_generated_at = NOW(), updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, sessionID, summary, actionItems)
	return err
}
