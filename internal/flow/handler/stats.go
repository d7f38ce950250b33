package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/metrics"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/response"
)

// Stats reports service counters and data-source sizes.
func (h *Handler) Stats(c *gin.Context) {
	snapshot := metrics.Get().Snapshot()

	sources := map[string]int64{}
	for _, source := range model.RecognizedDataSources() {
		count, err := h.service.Store.Data().Count(c.Request.Context(), source)
		if err != nil {
			response.FailWithError(c, err)
			return
		}
		sources[source] = count
	}
	snapshot["data_sources"] = sources

	response.OK(c, snapshot)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
