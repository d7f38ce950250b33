package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, cl claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T, subject, teamID, role string) string {
	return signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TeamID: teamID,
		Role:   role,
	})
}

func authRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	chain := append([]gin.HandlerFunc{Auth(testSecret)}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		ident := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user_id": ident.UserID, "team_id": ident.TeamID, "role": ident.Role})
	})
	engine.GET("/probe", chain...)
	return engine
}

func doProbe(engine *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthValidToken(t *testing.T) {
	w := doProbe(authRouter(), userToken(t, "u-1", "t-1", "member"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u-1"`)
	assert.Contains(t, w.Body.String(), `"team_id":"t-1"`)
}

func TestAuthMissingToken(t *testing.T) {
	w := doProbe(authRouter(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthWrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	w := doProbe(authRouter(), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthExpiredToken(t *testing.T) {
	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	w := doProbe(authRouter(), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsNonHMAC(t *testing.T) {
	// alg=none must never pass, regardless of payload.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	w := doProbe(authRouter(), signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequiresSubject(t *testing.T) {
	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	w := doProbe(authRouter(), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	engine := authRouter(RequireRole(RoleSuperAdmin))

	w := doProbe(engine, userToken(t, "u-1", "", "member"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doProbe(engine, userToken(t, "u-1", "", RoleSuperAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetIdentityWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetIdentity(c))
}
