package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"reliefdesk/internal/pkg/response"
)

// RequireAnyRole lets the request through when the token role is one of roles.
func RequireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Role not found in token")
			return
		}
		if !slices.Contains(roles, role) {
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
			return
		}
		c.Next()
	}
}
