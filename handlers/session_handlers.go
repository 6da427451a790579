package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ipassist/ipassist-core/internal/session"
	"github.com/ipassist/ipassist-core/internal/storage"
)

// SessionHandlers exposes CRUD over the durable conversation session
// record, plus read/clear access to the live Redis turn buffer.
type SessionHandlers struct {
	sessions *session.Store
	storage  *storage.Store
}

// NewSessionHandlers constructs the session handlers.
func NewSessionHandlers(s *session.Store, st *storage.Store) *SessionHandlers {
	return &SessionHandlers{sessions: s, storage: st}
}

type createSessionRequest struct {
	SessionID string     `json:"session_id" binding:"required"`
	UserID    *uuid.UUID `json:"user_id"`
}

type updateSessionRequest struct {
	LastClassification string `json:"last_classification" binding:"required"`
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	created, err := h.storage.CreateSession(c.Request.Context(), req.SessionID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListSessions handles GET /api/v1/sessions.
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	sessions, err := h.storage.ListSessions(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession handles GET /api/v1/sessions/:id, returning the durable
// session record (turn count, last classification, closed state).
func (h *SessionHandlers) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	found, err := h.storage.GetSession(c.Request.Context(), sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, found)
}

// UpdateSession handles PUT /api/v1/sessions/:id.
func (h *SessionHandlers) UpdateSession(c *gin.Context) {
	sessionID := c.Param("id")
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	updated, err := h.storage.UpdateSessionClassification(c.Request.Context(), sessionID, req.LastClassification)
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// CloseSession handles DELETE /api/v1/sessions/:id: marks the durable
// record closed and clears the live turn buffer, ending the conversation.
func (h *SessionHandlers) CloseSession(c *gin.Context) {
	sessionID := c.Param("id")
	closed, err := h.storage.CloseSession(c.Request.Context(), sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close session", "details": err.Error()})
		return
	}
	if err := h.sessions.Clear(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session buffer", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, closed)
}

// GetHistory handles GET /api/v1/sessions/:id/history, returning the live
// Redis turn buffer (distinct from the durable session record).
func (h *SessionHandlers) GetHistory(c *gin.Context) {
	sessionID := c.Param("id")
	history, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, history)
}

// ClearHistory handles DELETE /api/v1/sessions/:id/history: clears the
// live turn buffer only, leaving the durable session record intact.
func (h *SessionHandlers) ClearHistory(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.sessions.Clear(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusNoContent, nil)
}
