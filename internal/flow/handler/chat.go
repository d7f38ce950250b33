package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/biz"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/middleware"
	"github.com/wbt-web-support/chatbot-flow/pkg/response"
)

// AdminChatRequest is the admin test-surface chat body. user_id and team_id
// impersonate an end user for data-access scoping.
type AdminChatRequest struct {
	ChatbotID       string          `json:"chatbot_id" binding:"required"`
	Message         string          `json:"message" binding:"required"`
	History         []model.Message `json:"history"`
	UserID          string          `json:"user_id"`
	TeamID          string          `json:"team_id"`
	UseWebSearch    bool            `json:"use_web_search"`
	IncludeThoughts bool            `json:"include_thoughts"`
}

// AdminChat runs a chat turn as an admin test caller.
func (h *Handler) AdminChat(c *gin.Context) {
	var req AdminChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	caller := biz.AdminTest{UserID: req.UserID, TeamID: req.TeamID}
	reply, err := h.service.Conversation.Converse(
		c.Request.Context(), caller, req.ChatbotID, req.Message, req.History, req.UseWebSearch)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	if !req.IncludeThoughts {
		reply.ThoughtSummary = ""
	}
	response.OK(c, reply)
}

// UserChatRequest is the end-user chat body.
type UserChatRequest struct {
	Message      string          `json:"message" binding:"required"`
	History      []model.Message `json:"history"`
	UseWebSearch bool            `json:"use_web_search"`
	SessionID    string          `json:"session_id"`
}

// UserChat runs a chat turn for the authenticated user against a published
// chatbot, optionally appending the turn to one of their sessions.
func (h *Handler) UserChat(c *gin.Context) {
	var req UserChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	ident := middleware.GetIdentity(c)
	chatbotID := c.Param("id")
	caller := biz.EndUser{SessionUserID: ident.UserID, TeamID: ident.TeamID}

	reply, err := h.service.Conversation.Converse(
		c.Request.Context(), caller, chatbotID, req.Message, req.History, req.UseWebSearch)
	if err != nil {
		response.FailWithError(c, err)
		return
	}

	if req.SessionID != "" {
		h.service.Sessions.AppendTurn(c.Request.Context(), req.SessionID, ident.UserID, req.Message, reply.Text)
	}
	response.OK(c, reply)
}
