package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func requestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/probe", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	return engine
}

func TestRequestIDGenerated(t *testing.T) {
	engine := requestIDRouter()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	id := w.Header().Get(HeaderXRequestID)
	assert.Len(t, id, 32)
	assert.Equal(t, id, w.Body.String())
}

func TestRequestIDHonorsClientHeader(t *testing.T) {
	engine := requestIDRouter()

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(HeaderXRequestID, "client-supplied-id")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "client-supplied-id", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "client-supplied-id", w.Body.String())
}
