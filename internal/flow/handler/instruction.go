package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/biz"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/pkg/response"
)

// ListInstructions pages through active instructions.
func (h *Handler) ListInstructions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	instructions, total, err := h.service.Instructions.List(c.Request.Context(), store.ListOptions{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.PageOK(c, instructions, total, page, pageSize)
}

// CreateInstruction stores a new instruction, embedding it synchronously.
func (h *Handler) CreateInstruction(c *gin.Context) {
	var req biz.CreateInstructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	instruction, err := h.service.Instructions.Create(c.Request.Context(), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, instruction)
}

// GetInstruction loads one instruction.
func (h *Handler) GetInstruction(c *gin.Context) {
	instruction, err := h.service.Instructions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, instruction)
}

// UpdateInstruction applies a partial update, re-embedding when the text
// changed.
func (h *Handler) UpdateInstruction(c *gin.Context) {
	var req biz.UpdateInstructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	instruction, err := h.service.Instructions.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, instruction)
}

// DeleteInstruction soft-deletes an instruction.
func (h *Handler) DeleteInstruction(c *gin.Context) {
	if err := h.service.Instructions.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, nil)
}

// SearchInstructionsRequest is the retrieval probe body.
type SearchInstructionsRequest struct {
	Query          string  `json:"query" binding:"required"`
	MatchCount     int     `json:"match_count"`
	MatchThreshold float32 `json:"match_threshold"`
}

// SearchInstructions runs a similarity search against the knowledge base.
func (h *Handler) SearchInstructions(c *gin.Context) {
	req := SearchInstructionsRequest{MatchThreshold: biz.DefaultMatchThreshold}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	matches, err := h.service.Instructions.Search(
		c.Request.Context(), req.Query, req.MatchCount, req.MatchThreshold)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, matches)
}

// RegenerateEmbeddings backfills instructions whose embedding is missing.
func (h *Handler) RegenerateEmbeddings(c *gin.Context) {
	regenerated, failed, err := h.service.Instructions.RegenerateMissing(c.Request.Context())
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, gin.H{"regenerated": regenerated, "failed": failed})
}
