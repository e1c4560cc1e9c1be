package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/internal/ws"
	"github.com/damoang/angple-billing/pkg/cache"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

const anonymousViewer = "anonymous"

// EntitlementConfig holds message pack and cache settings
type EntitlementConfig struct {
	BaseCurrency     string
	ChatMonthlyPrice int64
	SessionTokenCost int64
	SessionMessages  int
	SessionValidity  time.Duration
	CacheTTL         time.Duration
}

// Viewer is the caller of an entitlement check; UserID is empty for anonymous callers
type Viewer struct {
	UserID  string
	IsAdmin bool
}

// EntitlementService answers access questions and sells message packs
type EntitlementService struct {
	db       *gorm.DB
	accounts *repository.AccountRepository
	subs     *repository.SubscriptionRepository
	sessions *repository.SessionRepository
	cache    cache.Service
	pusher   Pusher
	cfg      EntitlementConfig
	now      func() time.Time
}

// NewEntitlementService creates a new EntitlementService
func NewEntitlementService(
	db *gorm.DB,
	accounts *repository.AccountRepository,
	subs *repository.SubscriptionRepository,
	sessions *repository.SessionRepository,
	cacheService cache.Service,
	pusher Pusher,
	cfg EntitlementConfig,
) *EntitlementService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.TTLEntitlement
	}
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &EntitlementService{
		db:       db,
		accounts: accounts,
		subs:     subs,
		sessions: sessions,
		cache:    cacheService,
		pusher:   pusher,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Get returns the viewer's entitlement, served from a short-lived cache when possible
func (s *EntitlementService) Get(ctx context.Context, viewer Viewer, creatorID string, resource domain.ResourceType) (*domain.Entitlement, error) {
	if !resource.Valid() {
		return nil, common.NewValidationError("resource must be content or chat")
	}

	key := cacheViewer(viewer)
	var cached domain.Entitlement
	if err := s.cache.GetEntitlement(ctx, key, creatorID, string(resource), &cached); err == nil {
		return &cached, nil
	}

	ent, err := s.evaluate(ctx, viewer, creatorID, resource)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetEntitlement(ctx, key, creatorID, string(resource), ent, s.cfg.CacheTTL); err != nil {
		pkglogger.FromContext(ctx).Debug().Err(err).Msg("entitlement cache write skipped")
	}
	return ent, nil
}

// ConsumeMessage gates one chat message, spending a session message when that is what grants access
func (s *EntitlementService) ConsumeMessage(ctx context.Context, viewer Viewer, creatorID string) (*domain.Entitlement, error) {
	ent, err := s.evaluate(ctx, viewer, creatorID, domain.ResourceChat)
	if err != nil {
		return nil, err
	}
	if !ent.HasAccess || !ent.CanSendMessage {
		return nil, common.NewUnlockRequired(ent.UnlockOptions)
	}
	if ent.AccessType != domain.AccessSession {
		return ent, nil
	}

	session, err := s.sessions.ConsumeOne(ctx, viewer.UserID, creatorID, s.now())
	if err != nil {
		return nil, fmt.Errorf("consume message: %w", err)
	}
	if session == nil {
		// the last message was spent concurrently
		ent, err = s.evaluate(ctx, viewer, creatorID, domain.ResourceChat)
		if err != nil {
			return nil, err
		}
		return nil, common.NewUnlockRequired(ent.UnlockOptions)
	}

	remaining := *ent.MessagesRemaining - 1
	ent.MessagesRemaining = &remaining
	ent.IsLowMessages = remaining <= billing.LowMessagesThreshold
	ent.SessionID = session.ID
	s.invalidate(ctx, viewer.UserID, creatorID)
	return ent, nil
}

// BuySession spends wallet tokens on a message pack for one creator
func (s *EntitlementService) BuySession(ctx context.Context, userID, creatorID string) (*domain.BuySessionResponse, error) {
	if userID == creatorID {
		return nil, common.NewValidationError("cannot buy messages from yourself")
	}
	if s.cfg.SessionTokenCost <= 0 || s.cfg.SessionMessages <= 0 {
		return nil, common.NewPricingUnavailable("message packs are not configured")
	}

	creator, err := s.accounts.FindCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, fmt.Errorf("creator %s: %w", creatorID, common.ErrNotFound)
	}

	now := s.now()
	session := &domain.MessageSession{
		ID:                uuid.NewString(),
		UserID:            userID,
		CreatorID:         creatorID,
		MessagesTotal:     s.cfg.SessionMessages,
		MessagesRemaining: s.cfg.SessionMessages,
		TokenCost:         s.cfg.SessionTokenCost,
		ExpiresAt:         now.Add(s.cfg.SessionValidity),
	}

	var balance int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.accounts.WithTx(tx).DebitTokens(ctx, userID, s.cfg.SessionTokenCost)
		if err != nil {
			return err
		}
		balance = b
		return s.sessions.WithTx(tx).Create(ctx, session)
	})
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return nil, common.NewInsufficientTokens(fmt.Sprintf("a message pack costs %d tokens", s.cfg.SessionTokenCost))
	}
	if err != nil {
		return nil, fmt.Errorf("buy session: %w", err)
	}

	s.invalidate(ctx, userID, creatorID)
	s.pusher.Push(userID, &ws.Event{Type: ws.EventEntitlementChanged, Payload: map[string]interface{}{
		"creator_id":         creatorID,
		"messages_remaining": session.MessagesRemaining,
	}})
	return &domain.BuySessionResponse{Session: session, TokenBalance: balance}, nil
}

// Wallet returns the fan's token balance
func (s *EntitlementService) Wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	sub, err := s.accounts.FindSubscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	w := &domain.Wallet{UserID: userID}
	if sub != nil {
		w.TokenBalance = sub.TokenBalance
	}
	return w, nil
}

func (s *EntitlementService) evaluate(ctx context.Context, viewer Viewer, creatorID string, resource domain.ResourceType) (*domain.Entitlement, error) {
	st, err := s.load(ctx, viewer, creatorID, resource)
	if err != nil {
		return nil, err
	}
	ent := billing.Evaluate(*st)
	entitlementDecisionsTotal.WithLabelValues(string(resource), string(ent.AccessType)).Inc()
	return &ent, nil
}

// load gathers the read-only snapshot the gate needs
func (s *EntitlementService) load(ctx context.Context, viewer Viewer, creatorID string, resource domain.ResourceType) (*billing.EntitlementState, error) {
	now := s.now()
	st := &billing.EntitlementState{
		ViewerID:         viewer.UserID,
		IsAdmin:          viewer.IsAdmin,
		CreatorID:        creatorID,
		Resource:         resource,
		Now:              now,
		Currency:         s.cfg.BaseCurrency,
		SessionTokenCost: s.cfg.SessionTokenCost,
		SessionMessages:  s.cfg.SessionMessages,
	}

	price, err := s.subscribePrice(ctx, creatorID, resource)
	if err != nil {
		return nil, err
	}
	st.SubscribePrice = price

	if viewer.UserID == "" {
		return st, nil
	}

	if st.Subscriptions, err = s.subs.ListForPair(ctx, viewer.UserID, creatorID); err != nil {
		return nil, err
	}
	if resource == domain.ResourceChat {
		if st.Sessions, err = s.sessions.ListUsable(ctx, viewer.UserID, creatorID, now); err != nil {
			return nil, err
		}
	}
	sub, err := s.accounts.FindSubscriber(ctx, viewer.UserID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		st.TokenBalance = sub.TokenBalance
	}
	return st, nil
}

// subscribePrice is the monthly base shown on the subscribe option, nil when unknown
func (s *EntitlementService) subscribePrice(ctx context.Context, creatorID string, resource domain.ResourceType) (*int64, error) {
	if resource == domain.ResourceChat {
		if s.cfg.ChatMonthlyPrice <= 0 {
			return nil, nil
		}
		p := s.cfg.ChatMonthlyPrice
		return &p, nil
	}

	tier, err := s.accounts.FindDefaultTier(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if tier != nil {
		p := tier.PriceMonthly
		return &p, nil
	}
	model, err := s.accounts.FindModel(ctx, creatorID, "")
	if err != nil {
		return nil, err
	}
	if model != nil && model.SubscriptionPrice != nil {
		p := *model.SubscriptionPrice
		return &p, nil
	}
	return nil, nil
}

func (s *EntitlementService) invalidate(ctx context.Context, userID, creatorID string) {
	if err := s.cache.InvalidateEntitlements(ctx, userID, creatorID); err != nil {
		pkglogger.FromContext(ctx).Warn().Err(err).Msg("entitlement cache invalidation failed")
	}
}

func cacheViewer(v Viewer) string {
	switch {
	case v.UserID == "":
		return anonymousViewer
	case v.IsAdmin:
		return v.UserID + ":admin"
	}
	return v.UserID
}
