package auth

import (
	"net/http"
	"strings"

	"braindrived/config"

	"github.com/gin-gonic/gin"
)

// TokenAuthMiddleware guards the control API. Two forms are accepted:
// 1. Token:      Authorization: token <TOKEN>
// 2. Basic auth: Authorization: Basic base64(TOKEN:) or base64(:TOKEN)
// With no token configured all requests pass (local development).
func TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.APIToken == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "token ") {
			token := strings.TrimPrefix(authHeader, "token ")
			if token == config.APIToken {
				c.Next()
				return
			}
		}

		user, password, hasAuth := c.Request.BasicAuth()
		if hasAuth && (user == config.APIToken || password == config.APIToken) {
			c.Next()
			return
		}

		c.Header("WWW-Authenticate", `Basic realm="BrainDrive"`)
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}
