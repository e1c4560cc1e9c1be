package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/gateway"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/pkg/cache"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
	pkgredis "github.com/damoang/angple-billing/pkg/redis"
)

// CheckoutConfig holds checkout URLs, platform prices and limits
type CheckoutConfig struct {
	SuccessURL       string
	CancelURL        string
	ChatMonthlyPrice int64
	TipMin           int64
	TipMax           int64
	LockTTL          time.Duration
}

// CheckoutService builds provider-hosted checkout intents
type CheckoutService struct {
	accounts *repository.AccountRepository
	subs     *repository.SubscriptionRepository
	pricer   *billing.Pricer
	posts    PostPriceLookup
	gateway  gateway.PaymentGateway
	locker   *pkgredis.Locker
	cache    cache.Service
	cfg      CheckoutConfig
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(
	accounts *repository.AccountRepository,
	subs *repository.SubscriptionRepository,
	pricer *billing.Pricer,
	posts PostPriceLookup,
	gw gateway.PaymentGateway,
	locker *pkgredis.Locker,
	cacheService cache.Service,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &CheckoutService{
		accounts: accounts,
		subs:     subs,
		pricer:   pricer,
		posts:    posts,
		gateway:  gw,
		locker:   locker,
		cache:    cacheService,
		cfg:      cfg,
	}
}

// pendingCheckout is the open checkout of a fan for one creator.
// Attempt is fresh per provider session so a new attempt never replays a finished one.
type pendingCheckout struct {
	Fingerprint string                  `json:"fingerprint"`
	Attempt     string                  `json:"attempt"`
	Response    domain.CheckoutResponse `json:"response"`
}

// PostPriceLookup resolves the unlock price of a pay-per-view post
type PostPriceLookup interface {
	FindPostPrice(ctx context.Context, creatorID, postID string) (*domain.PostPrice, error)
}

// priceSource is the resolved content base and the tier token echoed in metadata
type priceSource struct {
	contentBase int64
	override    *int64
	tierToken   string
	tierID      *string
	label       string
}

// CreateSubscriptionCheckout validates, prices and opens a recurring checkout for a fan
func (s *CheckoutService) CreateSubscriptionCheckout(ctx context.Context, userID string, req *domain.CreateSubscriptionRequest) (*domain.CheckoutResponse, error) {
	subType := domain.SubscriptionType(req.SubscriptionType)
	period := domain.BillingPeriod(req.BillingPeriod)
	if !subType.Valid() {
		return nil, common.NewValidationError("unknown subscription type")
	}
	if !period.Valid() {
		return nil, common.NewValidationError("unknown billing period")
	}
	if req.CreatorID == userID {
		return nil, common.NewValidationError("cannot subscribe to yourself")
	}

	creator, err := s.accounts.FindCreator(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, fmt.Errorf("creator %s: %w", req.CreatorID, common.ErrNotFound)
	}

	release, err := s.locker.Acquire(ctx, userID+":"+req.CreatorID, s.cfg.LockTTL)
	switch {
	case errors.Is(err, pkgredis.ErrLockHeld):
		checkoutTotal.WithLabelValues("subscription", "in_progress").Inc()
		return nil, common.NewConflictError(common.CodeCheckoutInProgress, "a checkout for this creator is already in progress")
	case err != nil:
		// the slot columns still guarantee uniqueness without the lock
		pkglogger.FromContext(ctx).Warn().Err(err).Str("user_id", userID).Msg("checkout lock unavailable")
		release = func() {}
	}
	defer release()

	existing, err := s.subs.ListForPair(ctx, userID, req.CreatorID)
	if err != nil {
		return nil, err
	}
	if err := billing.ResolveConflict(existing, subType).Err(); err != nil {
		checkoutTotal.WithLabelValues("subscription", "conflict").Inc()
		return nil, err
	}

	pendingKey := cache.CheckoutKey(userID, req.CreatorID)
	fingerprint := checkoutFingerprint(userID, req)
	var pending pendingCheckout
	if err := s.cache.Get(ctx, pendingKey, &pending); err == nil && pending.Fingerprint == fingerprint && pending.Response.SessionID != "" {
		return &pending.Response, nil
	}
	attempt := uuid.NewString()

	src, err := s.resolvePrice(ctx, req.CreatorID, subType, period, req.TierID, req.ModelID)
	if err != nil {
		checkoutTotal.WithLabelValues("subscription", "no_price").Inc()
		return nil, err
	}

	quote, err := s.pricer.Quote(billing.QuoteInput{
		SubscriptionType:   subType,
		BillingPeriod:      period,
		ContentMonthlyBase: src.contentBase,
		ChatMonthlyBase:    s.cfg.ChatMonthlyPrice,
		PeriodOverride:     src.override,
		Locale:             req.Locale,
	})
	if err != nil {
		return nil, common.NewPricingUnavailable(err.Error())
	}

	subscriber, err := s.ensureSubscriber(ctx, userID, req.Locale)
	if err != nil {
		return nil, err
	}
	customerID, err := s.billingCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	meta := domain.CheckoutMetadata{
		UserID:           userID,
		CreatorID:        req.CreatorID,
		TierID:           src.tierToken,
		BillingPeriod:    period,
		Type:             domain.TransactionTypeSubscription,
		SubscriptionType: subType,
	}
	rec := quote.Recurrence
	session, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		CustomerID:     customerID,
		IdempotencyKey: "checkout-" + fingerprint + "-" + attempt,
		Mode:           domain.CheckoutModeSubscription,
		ProductName:    productName(creator, subType, src.label),
		Amount:         quote.Amount,
		Currency:       quote.Currency,
		Recurrence:     &rec,
		Metadata:       meta.ToMap(),
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
	})
	if err != nil {
		checkoutTotal.WithLabelValues("subscription", "provider_error").Inc()
		return nil, common.NewProviderUnavailable(err)
	}

	resp := &domain.CheckoutResponse{
		PaymentRequired: true,
		CheckoutURL:     session.URL,
		SessionID:       session.ID,
		Amount:          quote.Amount,
		Currency:        quote.Currency,
	}
	pending = pendingCheckout{Fingerprint: fingerprint, Attempt: attempt, Response: *resp}
	if err := s.cache.Set(ctx, pendingKey, &pending, cache.TTLCheckout); err != nil {
		pkglogger.FromContext(ctx).Warn().Err(err).Msg("checkout cache write failed")
	}
	checkoutTotal.WithLabelValues("subscription", "created").Inc()
	return resp, nil
}

// CreateTipCheckout opens a one-time payment checkout for a tip
func (s *CheckoutService) CreateTipCheckout(ctx context.Context, userID string, req *domain.TipRequest) (*domain.CheckoutResponse, error) {
	if req.CreatorID == userID {
		return nil, common.NewValidationError("cannot tip yourself")
	}
	if s.cfg.TipMin > 0 && req.Amount < s.cfg.TipMin {
		return nil, common.NewValidationError(fmt.Sprintf("tip must be at least %d", s.cfg.TipMin))
	}
	if s.cfg.TipMax > 0 && req.Amount > s.cfg.TipMax {
		return nil, common.NewValidationError(fmt.Sprintf("tip must be at most %d", s.cfg.TipMax))
	}

	meta := domain.CheckoutMetadata{
		UserID:    userID,
		CreatorID: req.CreatorID,
		Type:      domain.TransactionTypeTip,
	}
	return s.oneTimeCheckout(ctx, userID, req.CreatorID, req.Amount, req.Currency, "Tip", meta)
}

// CreatePPVCheckout opens a one-time payment checkout unlocking a single post at its listed price
func (s *CheckoutService) CreatePPVCheckout(ctx context.Context, userID string, req *domain.PPVRequest) (*domain.CheckoutResponse, error) {
	if req.CreatorID == userID {
		return nil, common.NewValidationError("cannot buy your own post")
	}

	price, err := s.posts.FindPostPrice(ctx, req.CreatorID, req.PostID)
	if err != nil {
		return nil, err
	}
	if price == nil || price.Price <= 0 {
		checkoutTotal.WithLabelValues(string(domain.TransactionTypePPV), "no_price").Inc()
		return nil, common.NewPricingUnavailable("post is not for sale")
	}

	meta := domain.CheckoutMetadata{
		UserID:    userID,
		CreatorID: req.CreatorID,
		Type:      domain.TransactionTypePPV,
		PostID:    req.PostID,
	}
	return s.oneTimeCheckout(ctx, userID, req.CreatorID, price.Price, price.Currency, "Post unlock", meta)
}

func (s *CheckoutService) oneTimeCheckout(ctx context.Context, userID, creatorID string, amount int64, currencyCode, label string, meta domain.CheckoutMetadata) (*domain.CheckoutResponse, error) {
	kind := string(meta.Type)

	creator, err := s.accounts.FindCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, fmt.Errorf("creator %s: %w", creatorID, common.ErrNotFound)
	}

	currencyCode = strings.ToUpper(currencyCode)
	if currencyCode == "" {
		currencyCode = s.pricer.BaseCurrency()
	}

	subscriber, err := s.ensureSubscriber(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	customerID, err := s.billingCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		CustomerID:  customerID,
		Mode:        domain.CheckoutModePayment,
		ProductName: label + " for " + displayName(creator),
		Amount:      amount,
		Currency:    currencyCode,
		Metadata:    meta.ToMap(),
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		checkoutTotal.WithLabelValues(kind, "provider_error").Inc()
		return nil, common.NewProviderUnavailable(err)
	}

	checkoutTotal.WithLabelValues(kind, "created").Inc()
	return &domain.CheckoutResponse{
		PaymentRequired: true,
		CheckoutURL:     session.URL,
		SessionID:       session.ID,
		Amount:          amount,
		Currency:        currencyCode,
	}, nil
}

// resolvePrice picks the content base from a tier, else a persona flat price.
// Chat-only purchases need no content base.
func (s *CheckoutService) resolvePrice(ctx context.Context, creatorID string, subType domain.SubscriptionType, period domain.BillingPeriod, tierID, modelID string) (*priceSource, error) {
	if s.cfg.ChatMonthlyPrice <= 0 && subType.GrantsChat() {
		return nil, common.NewPricingUnavailable("chat price is not configured")
	}
	if !subType.GrantsContent() {
		return &priceSource{label: "AI chat"}, nil
	}

	if modelID == "" || tierID != "" {
		var tier *domain.SubscriptionTier
		var err error
		if tierID != "" {
			tier, err = s.accounts.FindTier(ctx, creatorID, tierID)
		} else {
			tier, err = s.accounts.FindDefaultTier(ctx, creatorID)
		}
		if err != nil {
			return nil, err
		}
		if tier != nil && tier.PriceMonthly > 0 {
			id := tier.ID
			return &priceSource{
				contentBase: tier.PriceMonthly,
				override:    tier.OverrideFor(period),
				tierToken:   tier.ID,
				tierID:      &id,
				label:       tier.Name,
			}, nil
		}
		if tierID != "" {
			return nil, common.NewPricingUnavailable("tier is not available")
		}
	}

	model, err := s.accounts.FindModel(ctx, creatorID, modelID)
	if err != nil {
		return nil, err
	}
	if model != nil && model.SubscriptionPrice != nil && *model.SubscriptionPrice > 0 {
		return &priceSource{
			contentBase: *model.SubscriptionPrice,
			tierToken:   domain.ModelTierPrefix + model.ID,
			label:       model.Name,
		}, nil
	}
	return nil, common.NewPricingUnavailable("creator has no active price")
}

func (s *CheckoutService) ensureSubscriber(ctx context.Context, userID, locale string) (*domain.Subscriber, error) {
	if err := s.accounts.EnsureSubscriber(ctx, &domain.Subscriber{ID: userID, Locale: locale}); err != nil {
		return nil, fmt.Errorf("ensure subscriber: %w", err)
	}
	sub, err := s.accounts.FindSubscriber(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscriber %s: %w", userID, common.ErrNotFound)
	}
	return sub, nil
}

// billingCustomer returns the linked provider customer, creating it on first use.
// The provider idempotency key and the conditional update make concurrent first checkouts converge on one id.
func (s *CheckoutService) billingCustomer(ctx context.Context, sub *domain.Subscriber) (string, error) {
	if sub.BillingCustomerID != nil && *sub.BillingCustomerID != "" {
		return *sub.BillingCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, sub.ID, sub.Email, "customer-"+sub.ID)
	if err != nil {
		return "", common.NewProviderUnavailable(err)
	}

	linked, err := s.accounts.SetBillingCustomerIfEmpty(ctx, sub.ID, customerID)
	if err != nil {
		return "", fmt.Errorf("link billing customer: %w", err)
	}
	return linked, nil
}

func checkoutFingerprint(userID string, req *domain.CreateSubscriptionRequest) string {
	h := sha256.New()
	for _, part := range []string{userID, req.CreatorID, req.SubscriptionType, req.BillingPeriod, req.TierID, req.ModelID, req.Locale} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func productName(creator *domain.Creator, subType domain.SubscriptionType, label string) string {
	name := displayName(creator) + " " + string(subType) + " subscription"
	if label != "" {
		name += " (" + label + ")"
	}
	return name
}

func displayName(creator *domain.Creator) string {
	if creator.DisplayName != "" {
		return creator.DisplayName
	}
	return creator.ID
}
