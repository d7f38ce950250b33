package errors

import "net/http"

// Service codes.
const (
	// ServiceCommon is for errors shared by every module.
	ServiceCommon = 0

	// ServiceFlow is for the chatbot-flow service.
	ServiceFlow = 20
)

// Common errors.
var (
	ErrInvalidRequest = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1), http.StatusBadRequest, "Invalid request parameters"))
	ErrUnauthorized   = Register(New(MakeCode(ServiceCommon, CategoryAuth, 1), http.StatusUnauthorized, "Not authenticated"))
	ErrForbidden      = Register(New(MakeCode(ServiceCommon, CategoryAuthorization, 1), http.StatusForbidden, "Permission denied"))
	ErrNotFound       = Register(New(MakeCode(ServiceCommon, CategoryResource, 1), http.StatusNotFound, "Resource not found"))
	ErrInternal       = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1), http.StatusInternalServerError, "Internal server error"))
	ErrDatabase       = Register(New(MakeCode(ServiceCommon, CategoryInternal, 2), http.StatusInternalServerError, "Database operation failed"))
)

// Chatbot-flow errors.
var (
	// Resources (category 04)
	ErrChatbotNotFound     = Register(New(MakeCode(ServiceFlow, CategoryResource, 1), http.StatusNotFound, "Chatbot not found"))
	ErrSessionNotFound     = Register(New(MakeCode(ServiceFlow, CategoryResource, 2), http.StatusNotFound, "Session not found"))
	ErrInstructionNotFound = Register(New(MakeCode(ServiceFlow, CategoryResource, 3), http.StatusNotFound, "Instruction not found"))

	// Authorization (category 03)
	ErrChatbotInactive = Register(New(MakeCode(ServiceFlow, CategoryAuthorization, 1), http.StatusForbidden, "Chatbot is not available"))
	ErrNotSessionOwner = Register(New(MakeCode(ServiceFlow, CategoryAuthorization, 2), http.StatusForbidden, "Session belongs to another user"))

	// Configuration (category 12)
	ErrNodeConfig          = Register(New(MakeCode(ServiceFlow, CategoryConfig, 1), http.StatusBadRequest, "Malformed node settings"))
	ErrProviderCredentials = Register(New(MakeCode(ServiceFlow, CategoryConfig, 2), http.StatusBadGateway, "Model provider API key not configured"))

	// Upstream providers (categories 10/11)
	ErrEmbeddingProvider   = Register(New(MakeCode(ServiceFlow, CategoryNetwork, 1), http.StatusBadGateway, "Embedding provider request failed"))
	ErrUpstreamEmpty       = Register(New(MakeCode(ServiceFlow, CategoryNetwork, 2), http.StatusBadGateway, "No response from model"))
	ErrUpstreamUnreachable = Register(New(MakeCode(ServiceFlow, CategoryNetwork, 3), http.StatusBadGateway, "Could not reach model provider"))
	ErrUpstreamTimeout     = Register(New(MakeCode(ServiceFlow, CategoryTimeout, 1), http.StatusGatewayTimeout, "Model call timed out"))
)
