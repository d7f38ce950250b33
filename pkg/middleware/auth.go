package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
)

const identityKey = "identity"

// RoleSuperAdmin is the role allowed on the admin surface.
const RoleSuperAdmin = "super_admin"

// Identity is the authenticated caller extracted from the JWT.
type Identity struct {
	UserID string
	TeamID string
	Role   string
}

// claims is the expected JWT payload. TeamID and Role are optional; scope
// resolution degrades gracefully when they are absent.
type claims struct {
	jwt.RegisteredClaims
	TeamID string `json:"team_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Auth verifies the Bearer token and stores the caller Identity in the gin
// context. HS256 only; any other signing method is rejected.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			abortWithErrno(c, errors.ErrUnauthorized.WithMessage("missing authentication token"))
			return
		}

		parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !parsed.Valid {
			abortWithErrno(c, errors.ErrUnauthorized.WithMessage("invalid or expired token"))
			return
		}

		cl, ok := parsed.Claims.(*claims)
		if !ok || cl.Subject == "" {
			abortWithErrno(c, errors.ErrUnauthorized.WithMessage("token has no subject"))
			return
		}

		c.Set(identityKey, &Identity{
			UserID: cl.Subject,
			TeamID: cl.TeamID,
			Role:   cl.Role,
		})
		c.Next()
	}
}

// RequireRole rejects callers whose role does not match.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := GetIdentity(c)
		if ident == nil {
			abortWithErrno(c, errors.ErrUnauthorized)
			return
		}
		if ident.Role != role {
			abortWithErrno(c, errors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// GetIdentity returns the authenticated Identity, or nil when the request
// did not pass Auth.
func GetIdentity(c *gin.Context) *Identity {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok := v.(*Identity); ok {
			return ident
		}
	}
	return nil
}

func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// abortWithErrno writes the envelope directly. The response package imports
// this one, so the middleware cannot use it.
func abortWithErrno(c *gin.Context, e *errors.Errno) {
	c.AbortWithStatusJSON(e.HTTP, gin.H{
		"code":       e.Code,
		"message":    e.Message,
		"request_id": GetRequestID(c),
	})
}
