package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptFragment is one attributed, timestamped unit of transcribed
// speech. Immutable once appended. ProducedAt is the client-side capture
// timestamp; storage order is arrival order, so consumers must sort by
// ProducedAt before presenting the transcript.
type TranscriptFragment struct {
	SessionID  uuid.UUID `json:"session_id"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	ProducedAt time.Time `json:"produced_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Analysis holds the per-session transcript and the AI-generated summary.
// Created lazily on the first transcript fragment for a session.
type Analysis struct {
	SessionID          uuid.UUID            `json:"session_id"`
	Transcript         []TranscriptFragment `json:"transcript"`
	Summary            string               `json:"summary,omitempty"`
	ActionItems        []string             `json:"action_items,omitempty"`
	SummaryGeneratedAt *time.Time           `json:"summary_generated_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}
