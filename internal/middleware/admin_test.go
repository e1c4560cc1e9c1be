package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serveWithLevel(level interface{}, mw gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if level != nil {
			c.Set("level", level)
		}
		c.Next()
	})
	r.GET("/admin/webhooks/stats", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/webhooks/stats", nil))
	return w.Code
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name  string
		level interface{}
		want  int
	}{
		{"admin", AdminLevel, http.StatusOK},
		{"above admin", AdminLevel + 5, http.StatusOK},
		{"member", 5, http.StatusForbidden},
		{"no level", nil, http.StatusForbidden},
		{"wrong type", "10", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serveWithLevel(tt.level, RequireAdmin()))
		})
	}
}

func TestRequireLevel(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveWithLevel(3, RequireLevel(2)))
	assert.Equal(t, http.StatusForbidden, serveWithLevel(1, RequireLevel(2)))
}
