package sentryx

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter forwards billing failures to Sentry. A disabled reporter drops everything.
type Reporter struct {
	hub *sentry.Hub
}

// Init configures the global Sentry client; an empty dsn returns a disabled reporter
func Init(dsn, environment string) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return &Reporter{}, err
	}
	return &Reporter{hub: sentry.CurrentHub()}, nil
}

// NewReporter wraps an existing hub
func NewReporter(hub *sentry.Hub) *Reporter {
	return &Reporter{hub: hub}
}

// Enabled reports whether events are sent anywhere
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError sends err tagged with the given fields
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// CaptureMessage sends an alert message tagged with the given fields
func (r *Reporter) CaptureMessage(msg string, tags map[string]string) {
	if !r.Enabled() {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTags(tags)
		r.hub.CaptureMessage(msg)
	})
}

// Flush waits for buffered events
func (r *Reporter) Flush(timeout time.Duration) {
	if r.Enabled() {
		r.hub.Flush(timeout)
	}
}
