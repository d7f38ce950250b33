// Package errors provides the structured error code system for the
// chatbot-flow service.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service/Module code
//	BB  (00-99): Category code
//	CCC (000-999): Sequence number within the category
//
// Category Codes (BB):
//
//	01: Request/Validation errors (400)
//	02: Authentication errors (401)
//	03: Authorization errors (403)
//	04: Resource not found errors (404)
//	07: Internal errors (500)
//	10: Network/Upstream errors (502)
//	11: Timeout errors (504)
//	12: Configuration errors (400)
//
// Usage:
//
//	// Using predefined errors
//	return errors.ErrInvalidRequest.WithMessage("message is required")
//
//	// Wrapping underlying errors
//	return errors.ErrEmbeddingProvider.WithCause(err)
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Category codes.
const (
	CategoryRequest       = 1
	CategoryAuth          = 2
	CategoryAuthorization = 3
	CategoryResource      = 4
	CategoryInternal      = 7
	CategoryNetwork       = 10
	CategoryTimeout       = 11
	CategoryConfig        = 12
)

// Errno represents a structured error with a code and an HTTP mapping.
type Errno struct {
	// Code is the unique error code.
	Code int `json:"code"`

	// HTTP is the HTTP status code to return.
	HTTP int `json:"-"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// cause is the underlying error.
	cause error
}

// MakeCode builds an AABBCCC error code.
func MakeCode(service, category, sequence int) int {
	if service < 0 || service > 99 || category < 0 || category > 99 || sequence < 0 || sequence > 999 {
		panic(fmt.Sprintf("errors: invalid code parts %d/%d/%d", service, category, sequence))
	}
	return service*100000 + category*1000 + sequence
}

// New creates an unregistered Errno.
func New(code, httpStatus int, message string) *Errno {
	if message == "" {
		panic("errors: message is required")
	}
	return &Errno{Code: code, HTTP: httpStatus, Message: message}
}

var (
	registryMu    sync.RWMutex
	errnoRegistry = make(map[int]*Errno)
)

// Register adds an Errno to the global registry. Panics on code collision so
// duplicate definitions surface at startup, not in production traffic.
func Register(e *Errno) *Errno {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := errnoRegistry[e.Code]; ok {
		panic(fmt.Sprintf("errno code %d already registered: %s", e.Code, existing.Message))
	}
	errnoRegistry[e.Code] = e
	return e
}

// Lookup returns the registered Errno for a code.
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := errnoRegistry[code]
	return e, ok
}

// Error implements the error interface.
func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Errno) Unwrap() error {
	return e.cause
}

// Is matches two Errno values by code, so wrapped and customized copies of a
// predeclared error still satisfy errors.Is against the original.
func (e *Errno) Is(target error) bool {
	var t *Errno
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the Errno carrying the given cause.
func (e *Errno) WithCause(cause error) *Errno {
	return &Errno{Code: e.Code, HTTP: e.HTTP, Message: e.Message, cause: cause}
}

// WithMessage returns a copy of the Errno with a custom message.
func (e *Errno) WithMessage(format string, args ...any) *Errno {
	return &Errno{Code: e.Code, HTTP: e.HTTP, Message: fmt.Sprintf(format, args...), cause: e.cause}
}

// FromError extracts an *Errno from err. Unknown errors map to ErrInternal
// so that raw upstream text never reaches a response body.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

// HTTPStatus returns the HTTP status for any error.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).HTTP
}
