// Package response provides the uniform JSON envelope for HTTP handlers.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
	"github.com/wbt-web-support/chatbot-flow/pkg/middleware"
)

// Response is the wire envelope for every endpoint. Code 0 means success;
// any other value is a registered errno.
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// PageData wraps list results with pagination info.
type PageData struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// OK sends a successful response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: middleware.GetRequestID(c),
	})
}

// PageOK sends a paginated list response.
func PageOK(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	OK(c, &PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}

// Fail sends an error response from an Errno.
func Fail(c *gin.Context, e *errors.Errno) {
	c.AbortWithStatusJSON(e.HTTP, &Response{
		Code:      e.Code,
		Message:   e.Message,
		RequestID: middleware.GetRequestID(c),
	})
}

// FailWithError converts any error and sends it. Errors that are not an
// Errno map to ErrInternal so upstream text never leaks to clients.
func FailWithError(c *gin.Context, err error) {
	Fail(c, errors.FromError(err))
}

// BindError sends a 400 for request binding failures, keeping the binding
// detail in the message.
func BindError(c *gin.Context, err error) {
	Fail(c, errors.ErrInvalidRequest.WithMessage("invalid request body: %s", err.Error()))
}
