// Package router wires the HTTP routes for the chatbot-flow service.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/handler"
	"github.com/wbt-web-support/chatbot-flow/pkg/middleware"
)

// Register sets up middleware and routes on the engine. jwtSecret verifies
// the identity tokens; everything under /v1 requires one, /healthz does not.
func Register(engine *gin.Engine, h *handler.Handler, jwtSecret string) {
	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	v1.Use(middleware.Auth(jwtSecret))

	admin := v1.Group("", middleware.RequireRole(middleware.RoleSuperAdmin))
	{
		admin.POST("/chat", h.AdminChat)

		admin.GET("/instructions", h.ListInstructions)
		admin.POST("/instructions", h.CreateInstruction)
		admin.GET("/instructions/:id", h.GetInstruction)
		admin.PATCH("/instructions/:id", h.UpdateInstruction)
		admin.DELETE("/instructions/:id", h.DeleteInstruction)
		admin.POST("/instructions/search", h.SearchInstructions)
		admin.POST("/instructions/regenerate-embeddings", h.RegenerateEmbeddings)

		admin.GET("/chatbots/:id/nodes", h.GetNodes)
		admin.PUT("/chatbots/:id/nodes", h.PutNodes)

		admin.GET("/stats", h.Stats)
	}

	chatbots := v1.Group("/chatbots/:id")
	{
		chatbots.POST("/chat", h.UserChat)

		chatbots.POST("/sessions", h.CreateSession)
		chatbots.GET("/sessions", h.ListSessions)
		chatbots.GET("/sessions/:sessionId", h.GetSession)
		chatbots.PATCH("/sessions/:sessionId", h.UpdateSession)
		chatbots.DELETE("/sessions/:sessionId", h.DeleteSession)
	}
}
