package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// CodeRateLimited is the reason code of a 429 answer
const CodeRateLimited = "RATE_LIMITED"

var rateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	},
	[]string{"scope"},
)

// RateLimitConfig configures a fixed-window limiter
type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
	Scope     string
}

// DefaultRateLimitConfig is the per-IP limit for the whole API
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:     120,
		Window:    time.Minute,
		KeyPrefix: "billing:ratelimit:ip:",
		Scope:     "ip",
	}
}

// RateLimit limits requests per client IP
func RateLimit(redisClient *redis.Client, cfg RateLimitConfig) gin.HandlerFunc {
	return limiter(redisClient, cfg, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RateLimitPerUser limits checkout creation per authenticated fan
func RateLimitPerUser(redisClient *redis.Client, perMinute int) gin.HandlerFunc {
	cfg := RateLimitConfig{
		Limit:     perMinute,
		Window:    time.Minute,
		KeyPrefix: "billing:ratelimit:checkout:",
		Scope:     "checkout",
	}
	return limiter(redisClient, cfg, func(c *gin.Context) string {
		if userID := GetUserID(c); userID != "" {
			return userID
		}
		return "ip:" + c.ClientIP()
	})
}

func limiter(redisClient *redis.Client, cfg RateLimitConfig, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := cfg.KeyPrefix + keyFn(c)

		var incr *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := redisClient.Pipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, key)
			ttl = p.PTTL(ctx, key)
			return nil
		})
		if err != nil {
			// redis outage must not block payments
			logger.FromContext(ctx).Warn().Err(err).Str("scope", cfg.Scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		remaining := ttl.Val()
		if remaining < 0 {
			remaining = cfg.Window
			redisClient.PExpire(ctx, key, cfg.Window)
		}

		count := int(incr.Val())
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		if left := cfg.Limit - count; left > 0 {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(left))
		} else {
			c.Header("X-RateLimit-Remaining", "0")
		}

		if count > cfg.Limit {
			retryAfter := int(remaining.Round(time.Second) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rateLimitedTotal.WithLabelValues(cfg.Scope).Inc()
			common.ErrorResponseWithCode(c, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, try again shortly", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
