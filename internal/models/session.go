package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a meeting session.
type SessionStatus string

const (
	// StatusScheduled means the session exists but no participant has joined yet.
	StatusScheduled SessionStatus = "Scheduled"
	// StatusLive means at least one participant has joined the room.
	StatusLive SessionStatus = "Live"
	// StatusCompleted means the session was closed or its analysis was generated.
	StatusCompleted SessionStatus = "Completed"
)

// Session represents a scheduled meeting session. Live room membership is
// tracked in memory by the room registry and is never persisted here.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	Title        string        `json:"title"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	Status       SessionStatus `json:"status"`
	CreatedBy    uuid.UUID     `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Participant is a peer currently connected to a session's room. It exists
// only for the duration of one room membership; the only durable trace it
// leaves is speaker attribution on transcript fragments.
type Participant struct {
	PeerID   string    `json:"peer_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}
