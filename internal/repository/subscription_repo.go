package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/damoang/angple-billing/internal/domain"
)

// ErrSlotTaken means the fan already holds an overlapping subscription to the creator
var ErrSlotTaken = errors.New("subscription slot already taken")

// List filters accepted by ListBySubscriber
const (
	FilterActive  = "active"
	FilterExpired = "expired"
	FilterAll     = "all"
)

// SubscriptionRepository handles subscription persistence
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindByExternalID retrieves a subscription by the provider's subscription id, locking it inside a transaction
func (r *SubscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_subscription_id = ?", externalID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ListForPair returns every subscription a fan has with a creator
func (r *SubscriptionRepository) ListForPair(ctx context.Context, subscriberID, creatorID string) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ?", subscriberID, creatorID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// ListBySubscriber returns a fan's subscriptions with creator and tier preloaded
func (r *SubscriptionRepository) ListBySubscriber(ctx context.Context, subscriberID, filter string) ([]domain.Subscription, error) {
	query := r.db.WithContext(ctx).
		Preload("Creator").
		Preload("Tier").
		Where("subscriber_id = ?", subscriberID)

	switch filter {
	case FilterActive:
		query = query.Where("status IN ?", []domain.SubscriptionStatus{domain.SubscriptionStatusActive, domain.SubscriptionStatusPastDue})
	case FilterExpired:
		query = query.Where("status IN ?", []domain.SubscriptionStatus{domain.SubscriptionStatusCancelled, domain.SubscriptionStatusExpired})
	}

	var subs []domain.Subscription
	err := query.Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// Insert creates sub unless a row with the same external id already exists.
// It reports ErrSlotTaken when the insert was refused by the slot uniqueness instead.
func (r *SubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sub)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	existing, err := r.FindByExternalID(ctx, sub.ExternalSubscriptionID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*sub = *existing
		return false, nil
	}
	return false, ErrSlotTaken
}

// UpdateState persists status, window, cancellation and slot columns of sub
func (r *SubscriptionRepository) UpdateState(ctx context.Context, sub *domain.Subscription) error {
	sub.AssignSlots()
	return r.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"status":               sub.Status,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancelled_at":         sub.CancelledAt,
			"content_slot":         sub.ContentSlot,
			"chat_slot":            sub.ChatSlot,
			"updated_at":           time.Now(),
		}).Error
}

// CountActiveByType returns active subscription counts grouped by type
func (r *SubscriptionRepository) CountActiveByType(ctx context.Context) (map[domain.SubscriptionType]int64, error) {
	var rows []struct {
		SubscriptionType domain.SubscriptionType
		Count            int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Select("subscription_type, COUNT(*) AS count").
		Where("status = ?", domain.SubscriptionStatusActive).
		Group("subscription_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.SubscriptionType]int64, len(rows))
	for _, row := range rows {
		out[row.SubscriptionType] = row.Count
	}
	return out, nil
}
