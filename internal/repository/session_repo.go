package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/damoang/angple-billing/internal/domain"
)

// SessionRepository persists message packs and pay-per-view unlocks
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{db: tx}
}

// ListUsable returns a fan's unexpired sessions with messages left, soonest expiry first
func (r *SessionRepository) ListUsable(ctx context.Context, userID, creatorID string, now time.Time) ([]domain.MessageSession, error) {
	var sessions []domain.MessageSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND creator_id = ? AND messages_remaining > 0 AND expires_at > ?", userID, creatorID, now).
		Order("expires_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// Create inserts a new message session
func (r *SessionRepository) Create(ctx context.Context, s *domain.MessageSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// ConsumeOne decrements the soonest-expiring usable session. It returns nil when none is left.
func (r *SessionRepository) ConsumeOne(ctx context.Context, userID, creatorID string, now time.Time) (*domain.MessageSession, error) {
	var consumed *domain.MessageSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessions []domain.MessageSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND creator_id = ? AND messages_remaining > 0 AND expires_at > ?", userID, creatorID, now).
			Order("expires_at ASC").
			Limit(1).
			Find(&sessions).Error
		if err != nil || len(sessions) == 0 {
			return err
		}

		s := sessions[0]
		res := tx.Model(&domain.MessageSession{}).
			Where("id = ? AND messages_remaining > 0", s.ID).
			Update("messages_remaining", gorm.Expr("messages_remaining - 1"))
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		s.MessagesRemaining--
		consumed = &s
		return nil
	})
	return consumed, err
}

// CreateUnlock records a pay-per-view unlock; repeats for the same user and post are ignored
func (r *SessionRepository) CreateUnlock(ctx context.Context, u *domain.ContentUnlock) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u)
	return res.RowsAffected == 1, res.Error
}

// HasUnlock reports whether a fan bought the post
func (r *SessionRepository) HasUnlock(ctx context.Context, userID, postID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.ContentUnlock{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&n).Error
	return n > 0, err
}

// FindPostPrice returns the listed unlock price of a creator's post, nil when the post is not for sale
func (r *SessionRepository) FindPostPrice(ctx context.Context, creatorID, postID string) (*domain.PostPrice, error) {
	return firstOrNil(r.db.WithContext(ctx).Where("post_id = ? AND creator_id = ?", postID, creatorID), &domain.PostPrice{})
}
