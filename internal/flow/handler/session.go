package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/middleware"
	"github.com/wbt-web-support/chatbot-flow/pkg/response"
)

// CreateSessionRequest starts a session, usually with the first exchange
// already in it.
type CreateSessionRequest struct {
	Title    string            `json:"title"`
	Messages model.MessageList `json:"messages"`
}

// CreateSession creates a session owned by the caller.
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	ident := middleware.GetIdentity(c)
	session, err := h.service.Sessions.Create(
		c.Request.Context(), ident.UserID, c.Param("id"), req.Title, req.Messages)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, session)
}

// ListSessions lists the caller's sessions for a chatbot.
func (h *Handler) ListSessions(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	sessions, err := h.service.Sessions.List(c.Request.Context(), c.Param("id"), ident.UserID)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, sessions)
}

// GetSession loads one of the caller's sessions.
func (h *Handler) GetSession(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	session, err := h.service.Sessions.Get(c.Request.Context(), c.Param("sessionId"), ident.UserID)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, session)
}

// UpdateSessionRequest is a partial session update.
type UpdateSessionRequest struct {
	Title    string            `json:"title"`
	Messages model.MessageList `json:"messages"`
}

// UpdateSession overwrites the session's title and/or transcript.
func (h *Handler) UpdateSession(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	ident := middleware.GetIdentity(c)
	session, err := h.service.Sessions.Update(
		c.Request.Context(), c.Param("sessionId"), ident.UserID, req.Title, req.Messages)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, session)
}

// DeleteSession removes one of the caller's sessions.
func (h *Handler) DeleteSession(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	if err := h.service.Sessions.Delete(c.Request.Context(), c.Param("sessionId"), ident.UserID); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, nil)
}
