package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// TokenRoles maps a static bearer token to its granted roles.
type TokenRoles map[string][]string

// BearerAuth resolves the Authorization header against the configured token
// set and stores the granted roles on the request context.
func BearerAuth(tokens TokenRoles) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "missing bearer token",
				"error_code": "UNAUTHORIZED",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		roles, ok := tokens[token]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "invalid token",
				"error_code": "UNAUTHORIZED",
			})
			return
		}

		c.Set("roles", roles)
		c.Next()
	}
}

// RequireRole rejects requests whose token does not carry the given role.
// The operator role implies viewer access.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, _ := c.Get("roles")
		granted, _ := roles.([]string)
		for _, r := range granted {
			if r == role || (role == RoleViewer && r == RoleOperator) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":      "forbidden",
			"error_code": "FORBIDDEN",
		})
	}
}
