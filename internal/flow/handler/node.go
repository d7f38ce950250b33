package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/response"
)

// NodeView is a stored node plus whether its settings currently parse.
type NodeView struct {
	*model.FlowNode
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// GetNodes returns a chatbot's flow configuration in order, flagging nodes
// the assembler would skip.
func (h *Handler) GetNodes(c *gin.Context) {
	chatbotID := c.Param("id")
	if _, err := h.service.Store.Chatbots().Get(c.Request.Context(), chatbotID); err != nil {
		response.FailWithError(c, err)
		return
	}

	nodes, err := h.service.Store.Nodes().ListByChatbot(c.Request.Context(), chatbotID)
	if err != nil {
		response.FailWithError(c, err)
		return
	}

	views := make([]NodeView, 0, len(nodes))
	for _, node := range nodes {
		view := NodeView{FlowNode: node, Valid: true}
		if _, err := model.ParseNodeSettings(node.NodeType, node.Settings); err != nil {
			view.Valid = false
			view.Error = err.Error()
		}
		views = append(views, view)
	}
	response.OK(c, views)
}

// PutNodesRequest replaces a chatbot's flow configuration.
type PutNodesRequest struct {
	Nodes []NodeSpec `json:"nodes" binding:"required"`
}

// NodeSpec is one node in a PutNodes body.
type NodeSpec struct {
	NodeType   string        `json:"node_type" binding:"required"`
	Settings   model.JSONMap `json:"settings"`
	OrderIndex int           `json:"order_index"`
}

// PutNodes validates and swaps the chatbot's node set atomically. Unlike
// the assembler's skip-and-warn behavior at chat time, writes reject any
// malformed node outright.
func (h *Handler) PutNodes(c *gin.Context) {
	chatbotID := c.Param("id")
	if _, err := h.service.Store.Chatbots().Get(c.Request.Context(), chatbotID); err != nil {
		response.FailWithError(c, err)
		return
	}

	var req PutNodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	nodes := make([]*model.FlowNode, 0, len(req.Nodes))
	for _, spec := range req.Nodes {
		if _, err := model.ParseNodeSettings(spec.NodeType, spec.Settings); err != nil {
			response.FailWithError(c, err)
			return
		}
		nodes = append(nodes, &model.FlowNode{
			NodeType:   spec.NodeType,
			Settings:   spec.Settings,
			OrderIndex: spec.OrderIndex,
		})
	}

	if err := h.service.Store.Nodes().ReplaceForChatbot(c.Request.Context(), chatbotID, nodes); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, nodes)
}
