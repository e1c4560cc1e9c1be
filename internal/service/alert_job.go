package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/repository"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

const (
	// StuckAttempts is the failed-delivery count after which an event needs a human
	StuckAttempts = 3

	stuckBatchSize = 100
)

// AlertJob schedules reconciliation alerts and gauge refreshes
type AlertJob struct {
	cron     *cron.Cron
	events   *repository.WebhookEventRepository
	subs     *repository.SubscriptionRepository
	reporter ErrorReporter
}

// NewAlertJob creates a new AlertJob
func NewAlertJob(events *repository.WebhookEventRepository, subs *repository.SubscriptionRepository, reporter ErrorReporter) *AlertJob {
	return &AlertJob{
		cron:     cron.New(),
		events:   events,
		subs:     subs,
		reporter: reporter,
	}
}

// Setup registers the scheduled functions
func (j *AlertJob) Setup() error {
	if _, err := j.cron.AddFunc("*/5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.AlertStuckEvents(ctx); err != nil {
			pkglogger.GetLogger().Error().Err(err).Msg("stuck webhook scan failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule stuck webhook scan: %w", err)
	}

	if _, err := j.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := j.RefreshGauges(ctx); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Msg("subscription gauge refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule gauge refresh: %w", err)
	}
	return nil
}

// Start starts the scheduler
func (j *AlertJob) Start() {
	pkglogger.Info("Starting billing alert scheduler")
	j.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (j *AlertJob) Stop() {
	<-j.cron.Stop().Done()
}

// AlertStuckEvents reports failed deliveries that exhausted their retries, once each
func (j *AlertJob) AlertStuckEvents(ctx context.Context) (int, error) {
	stuck, err := j.events.ListStuckFailures(ctx, StuckAttempts, stuckBatchSize)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(stuck))
	for _, ev := range stuck {
		pkglogger.WithEventID(ev.ID, ev.EventType).Error().
			Int("attempts", ev.Attempts).
			Str("last_error", ev.LastError).
			Msg("webhook event needs manual reconciliation")
		if j.reporter != nil {
			j.reporter.CaptureMessage("webhook event stuck after retries", map[string]string{
				"event_id":   ev.ID,
				"event_type": ev.EventType,
			})
		}
		ids = append(ids, ev.ID)
	}

	if err := j.events.MarkAlerted(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// RefreshGauges publishes active subscription counts per type
func (j *AlertJob) RefreshGauges(ctx context.Context) error {
	counts, err := j.subs.CountActiveByType(ctx)
	if err != nil {
		return err
	}
	for _, t := range []domain.SubscriptionType{domain.SubscriptionTypeContent, domain.SubscriptionTypeChat, domain.SubscriptionTypeBundle} {
		activeSubscriptions.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
	return nil
}
