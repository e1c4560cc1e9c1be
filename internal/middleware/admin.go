package middleware

import (
	"net/http"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/gin-gonic/gin"
)

// RequireLevel lets through callers whose member level is at least minLevel
func RequireLevel(minLevel int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserLevel(c) < minLevel {
			common.ErrorResponse(c, http.StatusForbidden, "Insufficient member level", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the operator endpoints (webhook journal stats)
func RequireAdmin() gin.HandlerFunc {
	return RequireLevel(AdminLevel)
}
