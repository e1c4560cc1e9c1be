package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/gateway"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/internal/ws"
	"github.com/damoang/angple-billing/pkg/cache"
	"github.com/damoang/angple-billing/pkg/queue"
)

// MockGateway is a mock implementation of gateway.PaymentGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCustomer(ctx context.Context, subscriberID, email, idempotencyKey string) (string, error) {
	args := m.Called(ctx, subscriberID, email, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *MockGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *MockGateway) CancelNow(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *MockGateway) ParseEvent(payload []byte, signature string) (*domain.ProviderEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderEvent), args.Error(1)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type recordingPusher struct {
	mu     sync.Mutex
	events map[string][]string
}

func (p *recordingPusher) Push(userID string, event *ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]string)
	}
	p.events[userID] = append(p.events[userID], event.Type)
}

type recordingArchiver struct {
	ids []string
}

func (a *recordingArchiver) ArchiveWebhookPayload(_ context.Context, eventID, eventType string, _ []byte) (string, error) {
	a.ids = append(a.ids, eventID)
	return eventType + "/" + eventID, nil
}

type recordingReporter struct {
	mu       sync.Mutex
	errors   []error
	messages []string
}

func (r *recordingReporter) CaptureError(err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingReporter) CaptureMessage(msg string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
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
		&domain.PostPrice{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newTestPricer(t *testing.T) *billing.Pricer {
	t.Helper()
	p, err := billing.NewPricer("GBP", map[string]string{"EUR": "1.17"})
	require.NoError(t, err)
	return p
}

func newTestLedger(t *testing.T, db *gorm.DB) *LedgerService {
	t.Helper()
	fees, err := billing.NewFeeSchedule(nil)
	require.NoError(t, err)
	return NewLedgerService(repository.NewTransactionRepository(db), repository.NewAccountRepository(db), fees)
}

// webhookFixture wires a WebhookService to sqlite and recording collaborators
type webhookFixture struct {
	db        *gorm.DB
	svc       *WebhookService
	gw        *MockGateway
	publisher *recordingPublisher
	pusher    *recordingPusher
	archiver  *recordingArchiver
	reporter  *recordingReporter
	cache     cache.Service
	now       time.Time
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &webhookFixture{
		db:        db,
		gw:        new(MockGateway),
		publisher: &recordingPublisher{},
		pusher:    &recordingPusher{},
		archiver:  &recordingArchiver{},
		reporter:  &recordingReporter{},
		cache:     cache.NewService(setupTestRedis(t)),
		now:       time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	f.svc = NewWebhookService(WebhookDeps{
		DB:        db,
		Events:    repository.NewWebhookEventRepository(db),
		Subs:      repository.NewSubscriptionRepository(db),
		Accounts:  repository.NewAccountRepository(db),
		Sessions:  repository.NewSessionRepository(db),
		Ledger:    newTestLedger(t, db),
		Gateway:   f.gw,
		Publisher: f.publisher,
		Pusher:    f.pusher,
		Cache:     f.cache,
		Archiver:  f.archiver,
		Reporter:  f.reporter,
	})
	f.svc.now = func() time.Time { return f.now }
	require.NoError(t, db.Create(&domain.Creator{ID: "c1", DisplayName: "Alice"}).Error)
	require.NoError(t, db.Create(&domain.SubscriptionTier{ID: "t1", CreatorID: "c1", Name: "Gold", PriceMonthly: 999, IsActive: true}).Error)
	return f
}

func (f *webhookFixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *webhookFixture) subscription(t *testing.T, externalID string) *domain.Subscription {
	t.Helper()
	var sub domain.Subscription
	require.NoError(t, f.db.Where("external_subscription_id = ?", externalID).First(&sub).Error)
	return &sub
}

func (f *webhookFixture) creator(t *testing.T) *domain.Creator {
	t.Helper()
	var c domain.Creator
	require.NoError(t, f.db.Where("id = ?", "c1").First(&c).Error)
	return &c
}

func subscriptionCheckoutEvent(eventID, subID string, subType domain.SubscriptionType, amount int64) *domain.ProviderEvent {
	meta := domain.CheckoutMetadata{
		UserID:           "fan1",
		CreatorID:        "c1",
		TierID:           "t1",
		BillingPeriod:    domain.BillingPeriodMonthly,
		Type:             domain.TransactionTypeSubscription,
		SubscriptionType: subType,
	}
	return &domain.ProviderEvent{
		ID:   eventID,
		Type: domain.EventCheckoutCompleted,
		Raw:  []byte(`{"id":"` + eventID + `"}`),
		Checkout: &domain.CheckoutCompleted{
			SessionID:      "cs_" + subID,
			Mode:           domain.CheckoutModeSubscription,
			PaymentStatus:  "paid",
			SubscriptionID: subID,
			InvoiceID:      "in_first_" + subID,
			AmountTotal:    amount,
			Currency:       "GBP",
			Metadata:       meta.ToMap(),
		},
	}
}
