package middleware

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_http_requests_total",
			Help: "HTTP requests by surface, route and status",
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_http_request_duration_seconds",
			Help:    "HTTP request latency by surface",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"surface", "method"},
	)

	inflightRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_http_inflight_requests",
			Help: "Requests currently being served",
		},
		[]string{"surface"},
	)
)

// surfaceOf buckets a path into provider callbacks, the fan API, sockets or ops endpoints
func surfaceOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/webhooks/"):
		return "webhook"
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return "admin"
	case strings.HasPrefix(path, "/api/"):
		return "api"
	case strings.HasPrefix(path, "/ws/"):
		return "ws"
	default:
		return "ops"
	}
}

// Metrics records request counts and latency per surface
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		surface := surfaceOf(c.Request.URL.Path)
		inflight := inflightRequests.WithLabelValues(surface)
		start := time.Now()
		inflight.Inc()
		defer inflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(surface, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(surface, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// RegisterDBStats exposes connection pool usage of db on reg
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB) error {
	gauges := map[string]func(sql.DBStats) float64{
		"billing_db_connections_in_use": func(s sql.DBStats) float64 { return float64(s.InUse) },
		"billing_db_connections_idle":   func(s sql.DBStats) float64 { return float64(s.Idle) },
		"billing_db_connections_open":   func(s sql.DBStats) float64 { return float64(s.OpenConnections) },
	}
	for name, read := range gauges {
		read := read
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: "Database pool " + strings.TrimPrefix(name, "billing_db_connections_") + " connections",
		}, func() float64 { return read(db.Stats()) })
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
