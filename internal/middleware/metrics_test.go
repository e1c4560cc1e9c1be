package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSurfaceOf(t *testing.T) {
	assert.Equal(t, "webhook", surfaceOf("/webhooks/provider"))
	assert.Equal(t, "admin", surfaceOf("/api/v1/admin/webhooks/stats"))
	assert.Equal(t, "api", surfaceOf("/api/v1/subscriptions"))
	assert.Equal(t, "ws", surfaceOf("/ws/billing"))
	assert.Equal(t, "ops", surfaceOf("/health"))
}

func TestMetrics_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/entitlements/:creatorId", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := httpRequestsTotal.WithLabelValues("api", http.MethodGet, "/api/v1/entitlements/:creatorId", "200")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"c1", "c2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/entitlements/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(inflightRequests.WithLabelValues("api")))
}

func TestRegisterDBStats(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:metrics_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterDBStats(reg, sqlDB))

	n, err := testutil.GatherAndCount(reg, "billing_db_connections_open", "billing_db_connections_in_use", "billing_db_connections_idle")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// registering twice on the same registry is refused
	assert.Error(t, RegisterDBStats(reg, sqlDB))
}
