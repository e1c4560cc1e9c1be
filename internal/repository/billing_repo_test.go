package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/damoang/angple-billing/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Subscriber{},
		&domain.Creator{},
		&domain.SubscriptionTier{},
		&domain.CreatorModel{},
		&domain.Subscription{},
		&domain.Transaction{},
		&domain.WebhookEvent{},
		&domain.MessageSession{},
		&domain.ContentUnlock{},
	))
	return db
}

func newSubscription(subscriberID, creatorID string, typ domain.SubscriptionType, externalID string) *domain.Subscription {
	now := time.Now()
	sub := &domain.Subscription{
		ID:                     uuid.NewString(),
		SubscriberID:           subscriberID,
		CreatorID:              creatorID,
		SubscriptionType:       typ,
		BillingPeriod:          domain.BillingPeriodMonthly,
		Status:                 domain.SubscriptionStatusActive,
		StartedAt:              now,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       now.AddDate(0, 0, 30),
		PricePaid:              999,
		Currency:               "GBP",
		ExternalSubscriptionID: externalID,
	}
	sub.AssignSlots()
	return sub
}

func TestSubscriptionRepository_InsertIdempotentByExternalID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	created, err := repo.Insert(ctx, newSubscription("fan1", "c1", domain.SubscriptionTypeContent, "sub_1"))
	require.NoError(t, err)
	assert.True(t, created)

	replay := newSubscription("fan1", "c1", domain.SubscriptionTypeContent, "sub_1")
	created, err = repo.Insert(ctx, replay)
	require.NoError(t, err)
	assert.False(t, created)

	var n int64
	db.Model(&domain.Subscription{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestSubscriptionRepository_InsertRejectsOverlappingSlot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newSubscription("fan1", "c1", domain.SubscriptionTypeContent, "sub_1"))
	require.NoError(t, err)

	// bundle needs the content slot that sub_1 already holds
	_, err = repo.Insert(ctx, newSubscription("fan1", "c1", domain.SubscriptionTypeBundle, "sub_2"))
	assert.True(t, errors.Is(err, ErrSlotTaken))

	// chat slot is free
	created, err := repo.Insert(ctx, newSubscription("fan1", "c1", domain.SubscriptionTypeChat, "sub_3"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSubscriptionRepository_UpdateStateReleasesSlot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	sub := newSubscription("fan1", "c1", domain.SubscriptionTypeContent, "sub_1")
	_, err := repo.Insert(ctx, sub)
	require.NoError(t, err)

	sub.Status = domain.SubscriptionStatusCancelled
	require.NoError(t, repo.UpdateState(ctx, sub))

	created, err := repo.Insert(ctx, newSubscription("fan1", "c1", domain.SubscriptionTypeContent, "sub_2"))
	require.NoError(t, err)
	assert.True(t, created)

	got, err := repo.FindByExternalID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SubscriptionStatusCancelled, got.Status)
	assert.Nil(t, got.ContentSlot)
}

func TestSubscriptionRepository_ListBySubscriberFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.Creator{ID: "c1", DisplayName: "Alice"}).Error)
	_, err := repo.Insert(ctx, newSubscription("fan1", "c1", domain.SubscriptionTypeContent, "sub_1"))
	require.NoError(t, err)
	expired := newSubscription("fan1", "c1", domain.SubscriptionTypeChat, "sub_2")
	expired.Status = domain.SubscriptionStatusExpired
	expired.AssignSlots()
	_, err = repo.Insert(ctx, expired)
	require.NoError(t, err)

	active, err := repo.ListBySubscriber(ctx, "fan1", FilterActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].Creator)
	assert.Equal(t, "Alice", active[0].Creator.DisplayName)

	old, err := repo.ListBySubscriber(ctx, "fan1", FilterExpired)
	require.NoError(t, err)
	assert.Len(t, old, 1)

	all, err := repo.ListBySubscriber(ctx, "fan1", FilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	counts, err := repo.CountActiveByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.SubscriptionTypeContent])
}

func TestTransactionRepository_InsertIfAbsentAndRefund(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	txn := &domain.Transaction{
		ID:                    uuid.NewString(),
		UserID:                "fan1",
		CreatorID:             "c1",
		TransactionType:       domain.TransactionTypeTip,
		Status:                domain.TransactionStatusCompleted,
		GrossAmount:           999,
		PlatformFee:           199,
		NetAmount:             800,
		Currency:              "GBP",
		ExternalTransactionID: "pi_1",
		CompletedAt:           time.Now(),
	}
	inserted, err := repo.InsertIfAbsent(ctx, txn)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *txn
	dup.ID = uuid.NewString()
	inserted, err = repo.InsertIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	totals, err := repo.TotalsByCreator(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerTotals{Gross: 999, Fee: 199, Net: 800}, totals)

	n, err := repo.MarkRefunded(ctx, []string{"in_x", "pi_1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByExternalID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.TransactionStatusRefunded, got.Status)
	assert.NotNil(t, got.RefundedAt)

	page, total, err := repo.ListByCreator(ctx, "c1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, page, 1)
}

func TestAccountRepository_WalletAndCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.EnsureSubscriber(ctx, &domain.Subscriber{ID: "fan1", TokenBalance: 150}))
	require.NoError(t, repo.EnsureSubscriber(ctx, &domain.Subscriber{ID: "fan1", TokenBalance: 0}))
	require.NoError(t, db.Create(&domain.Creator{ID: "c1"}).Error)

	balance, err := repo.DebitTokens(ctx, "fan1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	_, err = repo.DebitTokens(ctx, "fan1", 100)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, repo.AdjustSubscriberCount(ctx, "c1", 1))
	require.NoError(t, repo.AdjustSubscriberCount(ctx, "c1", -1))
	require.NoError(t, repo.AdjustSubscriberCount(ctx, "c1", -1))
	creator, err := repo.FindCreator(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), creator.SubscriberCount)

	linked, err := repo.SetBillingCustomerIfEmpty(ctx, "fan1", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", linked)
	linked, err = repo.SetBillingCustomerIfEmpty(ctx, "fan1", "cus_2")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", linked)

	missing, err := repo.FindCreator(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAccountRepository_TierLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.SubscriptionTier{ID: "t1", CreatorID: "c1", PriceMonthly: 1500, IsActive: true}).Error)
	require.NoError(t, db.Create(&domain.SubscriptionTier{ID: "t2", CreatorID: "c1", PriceMonthly: 500, IsActive: true}).Error)
	require.NoError(t, db.Model(&domain.SubscriptionTier{}).Where("id = ?", "t2").Update("is_active", false).Error)

	def, err := repo.FindDefaultTier(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "t1", def.ID)

	other, err := repo.FindTier(ctx, "c2", "t1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestWebhookEventRepository_ClaimAndFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	ev, err := repo.Claim(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventPending, ev.Status)

	require.NoError(t, repo.MarkFinal(ctx, "evt_1", domain.WebhookEventProcessed, ""))
	ev, err = repo.Claim(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventProcessed, ev.Status)
	assert.Equal(t, 1, ev.Attempts)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordOutcome(ctx, "evt_2", "invoice.paid", domain.WebhookEventFailed, []byte(`{}`), errors.New("db down")))
	}
	failed, err := repo.Find(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, "db down", failed.LastError)

	stuck, err := repo.ListStuckFailures(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	require.NoError(t, repo.MarkAlerted(ctx, []string{"evt_2"}, time.Now()))
	stuck, err = repo.ListStuckFailures(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.WebhookEventProcessed])
	assert.Equal(t, int64(1), counts[domain.WebhookEventFailed])
}

func TestSessionRepository_ConsumeSoonestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()
	now := time.Now()

	late := &domain.MessageSession{ID: "s-late", UserID: "fan1", CreatorID: "c1", MessagesTotal: 50, MessagesRemaining: 50, ExpiresAt: now.Add(2 * time.Hour)}
	soon := &domain.MessageSession{ID: "s-soon", UserID: "fan1", CreatorID: "c1", MessagesTotal: 50, MessagesRemaining: 1, ExpiresAt: now.Add(time.Hour)}
	gone := &domain.MessageSession{ID: "s-gone", UserID: "fan1", CreatorID: "c1", MessagesTotal: 50, MessagesRemaining: 10, ExpiresAt: now.Add(-time.Hour)}
	for _, s := range []*domain.MessageSession{late, soon, gone} {
		require.NoError(t, repo.Create(ctx, s))
	}

	usable, err := repo.ListUsable(ctx, "fan1", "c1", now)
	require.NoError(t, err)
	require.Len(t, usable, 2)
	assert.Equal(t, "s-soon", usable[0].ID)

	s, err := repo.ConsumeOne(ctx, "fan1", "c1", now)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "s-soon", s.ID)
	assert.Equal(t, 0, s.MessagesRemaining)

	s, err = repo.ConsumeOne(ctx, "fan1", "c1", now)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "s-late", s.ID)

	none, err := repo.ConsumeOne(ctx, "fan2", "c1", now)
	require.NoError(t, err)
	assert.Nil(t, none)

	created, err := repo.CreateUnlock(ctx, &domain.ContentUnlock{ID: "u1", UserID: "fan1", PostID: "p1", CreatorID: "c1"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateUnlock(ctx, &domain.ContentUnlock{ID: "u2", UserID: "fan1", PostID: "p1", CreatorID: "c1"})
	require.NoError(t, err)
	assert.False(t, created)
	has, err := repo.HasUnlock(ctx, "fan1", "p1")
	require.NoError(t, err)
	assert.True(t, has)
}
