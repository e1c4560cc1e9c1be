package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/damoang/angple-billing/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedRouter(t *testing.T) (*gin.Engine, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(&bytes.Buffer{}) })

	r := gin.New()
	r.Use(SecurityHeaders(), RequestLogger())
	r.GET("/api/v1/subscriptions/:id", func(c *gin.Context) {
		logger.FromContext(c.Request.Context()).Info().Msg("inside handler")
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, &buf
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestRequestLogger_TagsRequest(t *testing.T) {
	r, buf := loggedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/sub_1", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(HeaderRequestID))
	assert.Contains(t, w.Body.String(), "req-abc")

	entries := logEntries(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "inside handler", entries[0]["message"])
	assert.Equal(t, "req-abc", entries[0]["request_id"])
	assert.Equal(t, "/api/v1/subscriptions/:id", entries[1]["route"])
	assert.EqualValues(t, http.StatusOK, entries[1]["status"])
}

func TestRequestLogger_GeneratesID(t *testing.T) {
	r, _ := loggedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/sub_1", nil))

	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestRequestLogger_QuietProbes(t *testing.T) {
	r, buf := loggedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, logEntries(t, buf))
}

func TestSecurityHeaders(t *testing.T) {
	r, _ := loggedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/sub_1", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
}
