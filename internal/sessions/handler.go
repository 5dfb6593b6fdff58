package sessions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lucid-meet/backend/internal/middleware"
	"github.com/lucid-meet/backend/internal/models"
	"github.com/lucid-meet/backend/internal/realtime"
	"github.com/lucid-meet/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Title        string `json:"title" binding:"required"`
	ScheduledFor string `json:"scheduled_for" binding:"required"` // RFC3339
}

// Handler handles session HTTP endpoints.
type Handler struct {
	store    Store
	registry *realtime.Registry
}

// NewHandler creates a session handler.
func NewHandler(store Store, registry *realtime.Registry) *Handler {
	return &Handler{store: store, registry: registry}
}

// Create handles POST /sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_for")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	s := &models.Session{
		Title:        req.Title,
		ScheduledFor: scheduledFor,
		Status:       models.StatusScheduled,
		CreatedBy:    userID,
	}
	if err := h.store.Create(c.Request.Context(), s); err != nil {
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, s)
}

// List handles GET /sessions.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, s)
}

// Participants handles GET /sessions/:id/participants: the live room
// membership snapshot, not a persisted record.
func (h *Handler) Participants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, gin.H{
		"session_id":   id,
		"participants": h.registry.Participants(id),
	})
}
