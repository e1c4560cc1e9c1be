package service

import (
	"context"
	"fmt"
	"time"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/gateway"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/internal/ws"
	"github.com/damoang/angple-billing/pkg/cache"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

// SubscriptionService lists and cancels a fan's subscriptions
type SubscriptionService struct {
	subs    *repository.SubscriptionRepository
	gateway gateway.PaymentGateway
	cache   cache.Service
	pusher  Pusher
	now     func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(subs *repository.SubscriptionRepository, gw gateway.PaymentGateway, cacheService cache.Service, pusher Pusher) *SubscriptionService {
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &SubscriptionService{subs: subs, gateway: gw, cache: cacheService, pusher: pusher, now: time.Now}
}

// List returns the fan's subscriptions filtered by active, expired or all
func (s *SubscriptionService) List(ctx context.Context, userID, filter string) ([]domain.SubscriptionSummary, error) {
	switch filter {
	case "":
		filter = repository.FilterAll
	case repository.FilterActive, repository.FilterExpired, repository.FilterAll:
	default:
		return nil, common.NewValidationError("type must be active, expired or all")
	}

	subs, err := s.subs.ListBySubscriber(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubscriptionSummary, 0, len(subs))
	for i := range subs {
		out = append(out, domain.NewSubscriptionSummary(&subs[i]))
	}
	return out, nil
}

// Cancel stops renewal upstream and marks the row cancelled now.
// Access continues until the paid period ends; the provider's deleted event expires the row.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, id string) (*domain.SubscriptionSummary, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.SubscriberID != userID {
		return nil, fmt.Errorf("subscription %s: %w", id, common.ErrNotFound)
	}
	if sub.Status.Terminal() {
		summary := domain.NewSubscriptionSummary(sub)
		return &summary, nil
	}

	if err := s.gateway.CancelAtPeriodEnd(ctx, sub.ExternalSubscriptionID); err != nil {
		return nil, common.NewProviderUnavailable(err)
	}

	now := s.now()
	sub.Status = domain.SubscriptionStatusCancelled
	if sub.CancelledAt == nil {
		sub.CancelledAt = &now
	}
	if err := s.subs.UpdateState(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	if err := s.cache.InvalidateEntitlements(ctx, sub.SubscriberID, sub.CreatorID); err != nil {
		pkglogger.FromContext(ctx).Warn().Err(err).Msg("entitlement cache invalidation failed")
	}
	if err := s.cache.Delete(ctx, cache.CheckoutKey(sub.SubscriberID, sub.CreatorID)); err != nil {
		pkglogger.FromContext(ctx).Warn().Err(err).Msg("pending checkout invalidation failed")
	}
	summary := domain.NewSubscriptionSummary(sub)
	s.pusher.Push(userID, &ws.Event{Type: ws.EventSubscriptionChanged, Payload: summary})
	return &summary, nil
}
