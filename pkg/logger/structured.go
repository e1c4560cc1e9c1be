package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "angple-billing"

var zlog = zerolog.New(os.Stdout).With().Timestamp().Logger()

// InitStructured configures the process logger for env. Local environments get console output,
// everything else JSON lines. LOG_LEVEL overrides the default info level.
func InitStructured(env string) {
	var w io.Writer = os.Stdout
	switch env {
	case "", "local", "dev", "development":
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	SetOutput(w)
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
}

// SetOutput redirects the process logger, mostly for tests
func SetOutput(w io.Writer) {
	zlog = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// GetLogger returns the process logger
func GetLogger() *zerolog.Logger {
	return &zlog
}

// WithRequestID returns a logger tagged with an HTTP request id
func WithRequestID(requestID string) *zerolog.Logger {
	l := zlog.With().Str("request_id", requestID).Logger()
	return &l
}

// WithEventID returns a logger scoped to a provider event
func WithEventID(eventID, eventType string) *zerolog.Logger {
	l := zlog.With().Str("event_id", eventID).Str("event_type", eventType).Logger()
	return &l
}

// IntoContext attaches l to ctx
func IntoContext(ctx context.Context, l *zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or the process logger
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &zlog
}
