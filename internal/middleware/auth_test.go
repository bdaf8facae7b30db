package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefdesk/internal/pkg/jwt"
)

func init() { gin.SetMode(gin.TestMode) }

func protectedRouter(jwtService *jwt.Service, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuth(jwtService))
	handlers := append(extra, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetInt64("user_id"),
			"role":    c.GetString("role"),
		})
	})
	router.GET("/protected", handlers...)
	return router
}

func get(router http.Handler, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_ValidToken(t *testing.T) {
	jwtService := jwt.New("test-secret-123", time.Hour)
	token, err := jwtService.GenerateToken(42, "coordinator")
	require.NoError(t, err)

	w := get(protectedRouter(jwtService), "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":42,"role":"coordinator"}`, w.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
	jwtService := jwt.New("secret", time.Hour)
	router := protectedRouter(jwtService)

	cases := []struct {
		name string
		auth string
		code string
	}{
		{"missing header", "", "AUTH_HEADER_MISSING"},
		{"basic scheme", "Basic dGVzdA==", "INVALID_AUTH_FORMAT"},
		{"bearer without token", "Bearer ", "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer invalid-jwt-here", "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(router, tc.auth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestRequireAnyRole(t *testing.T) {
	jwtService := jwt.New("secret", time.Hour)
	router := protectedRouter(jwtService, RequireAnyRole("admin", "coordinator"))

	admin, _ := jwtService.GenerateToken(1, "admin")
	reporter, _ := jwtService.GenerateToken(2, "reporter")

	assert.Equal(t, http.StatusOK, get(router, "Bearer "+admin).Code)

	w := get(router, "Bearer "+reporter)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
}
