package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/damoang/angple-billing/internal/domain"
)

// WebhookEventRepository journals provider deliveries
type WebhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new WebhookEventRepository
func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *WebhookEventRepository) WithTx(tx *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: tx}
}

// Claim inserts a pending journal row if the event id was never seen, then
// locks and returns the row so concurrent deliveries of the same id serialize.
func (r *WebhookEventRepository) Claim(ctx context.Context, eventID, eventType string) (*domain.WebhookEvent, error) {
	row := &domain.WebhookEvent{
		ID:        eventID,
		EventType: eventType,
		Status:    domain.WebhookEventPending,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}

	var locked domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", eventID).
		First(&locked).Error
	if err != nil {
		return nil, err
	}
	return &locked, nil
}

// Find retrieves a journal row by event id
func (r *WebhookEventRepository) Find(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	if err := r.db.WithContext(ctx).Where("id = ?", eventID).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// MarkFinal sets a terminal journal status (processed or rejected) for a claimed row
func (r *WebhookEventRepository) MarkFinal(ctx context.Context, eventID string, status domain.WebhookEventStatus, reason string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       status,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   reason,
			"processed_at": now,
			"updated_at":   now,
		}).Error
}

// RecordOutcome upserts a failed or rejected attempt outside the processing transaction
func (r *WebhookEventRepository) RecordOutcome(ctx context.Context, eventID, eventType string, status domain.WebhookEventStatus, payload []byte, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	row := &domain.WebhookEvent{
		ID:        eventID,
		EventType: eventType,
		Status:    status,
		Attempts:  1,
		LastError: reason,
		Payload:   payload,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     status,
			"attempts":   gorm.Expr("webhook_events.attempts + 1"),
			"last_error": reason,
			"payload":    payload,
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
}

// ListStuckFailures returns failed events with at least minAttempts that were not alerted yet
func (r *WebhookEventRepository) ListStuckFailures(ctx context.Context, minAttempts, limit int) ([]domain.WebhookEvent, error) {
	var events []domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempts >= ? AND alerted_at IS NULL", domain.WebhookEventFailed, minAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkAlerted stamps alerted_at so a stuck event is reported once
func (r *WebhookEventRepository) MarkAlerted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("id IN ?", ids).
		Update("alerted_at", at).Error
}

// CountByStatus returns journal row counts grouped by status
func (r *WebhookEventRepository) CountByStatus(ctx context.Context) (map[domain.WebhookEventStatus]int64, error) {
	var rows []struct {
		Status domain.WebhookEventStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.WebhookEventStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
