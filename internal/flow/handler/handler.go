// Package handler provides the HTTP handlers for the chatbot-flow service.
package handler

import (
	"github.com/wbt-web-support/chatbot-flow/internal/flow/biz"
)

// Handler carries the domain service into the HTTP layer.
type Handler struct {
	service *biz.Service
}

// New creates a Handler.
func New(service *biz.Service) *Handler {
	return &Handler{service: service}
}
