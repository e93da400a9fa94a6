package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrapeworker/models"
)

// Auth returns bearer-token authentication middleware. It accepts the
// token either as `Authorization: Bearer <token>` or bare in the same
// header. If token is empty, the middleware is a no-op (auth disabled),
// mirroring the teacher's open-access-when-unconfigured behavior.
func Auth(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if extractToken(c) != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorDetail{
				Error: "missing or invalid bearer token",
			})
			return
		}
		c.Next()
	}
}

// extractToken accepts both "Authorization: Bearer <token>" and a bare
// "Authorization: <token>".
func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return auth
}
