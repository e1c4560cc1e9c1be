package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/damoang/angple-billing/internal/domain"
)

// ErrInsufficientBalance is returned when a wallet debit would go negative
var ErrInsufficientBalance = errors.New("insufficient token balance")

// AccountRepository reads fans, creators and their price points
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *AccountRepository) WithTx(tx *gorm.DB) *AccountRepository {
	return &AccountRepository{db: tx}
}

func firstOrNil[T any](q *gorm.DB, out *T) (*T, error) {
	if err := q.First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// EnsureSubscriber creates the fan row on first sight
func (r *AccountRepository) EnsureSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sub).Error
}

// FindSubscriber retrieves a fan by ID
func (r *AccountRepository) FindSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	return firstOrNil(r.db.WithContext(ctx).Where("id = ?", id), &domain.Subscriber{})
}

// SetBillingCustomerIfEmpty stores the provider customer id unless one is already linked.
// It returns the id that is linked afterwards.
func (r *AccountRepository) SetBillingCustomerIfEmpty(ctx context.Context, subscriberID, customerID string) (string, error) {
	err := r.db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("id = ? AND billing_customer_id IS NULL", subscriberID).
		Update("billing_customer_id", customerID).Error
	if err != nil {
		return "", err
	}

	sub, err := r.FindSubscriber(ctx, subscriberID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.BillingCustomerID == nil {
		return customerID, nil
	}
	return *sub.BillingCustomerID, nil
}

// FindCreator retrieves a creator by ID
func (r *AccountRepository) FindCreator(ctx context.Context, id string) (*domain.Creator, error) {
	return firstOrNil(r.db.WithContext(ctx).Where("id = ?", id), &domain.Creator{})
}

// FindTier retrieves an active tier belonging to creatorID
func (r *AccountRepository) FindTier(ctx context.Context, creatorID, tierID string) (*domain.SubscriptionTier, error) {
	return firstOrNil(
		r.db.WithContext(ctx).Where("id = ? AND creator_id = ? AND is_active = ?", tierID, creatorID, true),
		&domain.SubscriptionTier{},
	)
}

// FindDefaultTier returns the cheapest active tier of a creator
func (r *AccountRepository) FindDefaultTier(ctx context.Context, creatorID string) (*domain.SubscriptionTier, error) {
	return firstOrNil(
		r.db.WithContext(ctx).
			Where("creator_id = ? AND is_active = ?", creatorID, true).
			Order("price_monthly ASC"),
		&domain.SubscriptionTier{},
	)
}

// FindModel retrieves a creator's AI persona, or the first one when modelID is empty
func (r *AccountRepository) FindModel(ctx context.Context, creatorID, modelID string) (*domain.CreatorModel, error) {
	q := r.db.WithContext(ctx).Where("creator_id = ?", creatorID)
	if modelID != "" {
		q = q.Where("id = ?", modelID)
	} else {
		q = q.Order("created_at ASC")
	}
	return firstOrNil(q, &domain.CreatorModel{})
}

// AdjustSubscriberCount adds delta to a creator's subscriber_count, never below zero
func (r *AccountRepository) AdjustSubscriberCount(ctx context.Context, creatorID string, delta int64) error {
	q := r.db.WithContext(ctx).Model(&domain.Creator{}).Where("id = ?", creatorID)
	if delta < 0 {
		q = q.Where("subscriber_count >= ?", -delta)
	}
	return q.Update("subscriber_count", gorm.Expr("subscriber_count + ?", delta)).Error
}

// DebitTokens atomically spends tokens from a fan's wallet and returns the new balance
func (r *AccountRepository) DebitTokens(ctx context.Context, subscriberID string, amount int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("id = ? AND token_balance >= ?", subscriberID, amount).
		Update("token_balance", gorm.Expr("token_balance - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrInsufficientBalance
	}

	sub, err := r.FindSubscriber(ctx, subscriberID)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		return 0, ErrInsufficientBalance
	}
	return sub.TokenBalance, nil
}
