package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/internal/ws"
	"github.com/damoang/angple-billing/pkg/cache"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
	"github.com/damoang/angple-billing/pkg/queue"
)

// OpsRecipient receives operator notifications such as duplicate subscriptions
const OpsRecipient = "ops"

func (s *WebhookService) onCheckoutCompleted(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, fx *effects) error {
	c := ev.Checkout
	if c == nil {
		return fmt.Errorf("%w: checkout payload missing", domain.ErrInvalidMetadata)
	}
	if c.PaymentStatus == "unpaid" {
		pkglogger.WithEventID(ev.ID, string(ev.Type)).Info().Str("session_id", c.SessionID).Msg("checkout completed without payment, skipped")
		return nil
	}

	meta, err := domain.ParseCheckoutMetadata(c.Metadata)
	if err != nil {
		return err
	}
	accounts := s.Accounts.WithTx(tx)
	creator, err := accounts.FindCreator(ctx, meta.CreatorID)
	if err != nil {
		return fmt.Errorf("find creator: %w", err)
	}
	if creator == nil {
		return fmt.Errorf("%w: creator %s", ErrLedgerUnmatched, meta.CreatorID)
	}
	if err := accounts.EnsureSubscriber(ctx, &domain.Subscriber{ID: meta.UserID}); err != nil {
		return fmt.Errorf("ensure subscriber: %w", err)
	}

	switch meta.Type {
	case domain.TransactionTypeSubscription:
		return s.applySubscriptionCheckout(ctx, tx, ev, c, meta, fx)
	case domain.TransactionTypeTip:
		return s.applyTip(ctx, tx, ev, c, meta, fx)
	case domain.TransactionTypePPV:
		return s.applyPPV(ctx, tx, ev, c, meta, fx)
	}
	return fmt.Errorf("%w: type %q", domain.ErrInvalidMetadata, meta.Type)
}

func (s *WebhookService) applySubscriptionCheckout(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, c *domain.CheckoutCompleted, meta domain.CheckoutMetadata, fx *effects) error {
	if c.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription checkout without subscription id", domain.ErrInvalidMetadata)
	}

	now := s.now()
	sub := &domain.Subscription{
		ID:                     uuid.NewString(),
		SubscriberID:           meta.UserID,
		CreatorID:              meta.CreatorID,
		SubscriptionType:       meta.SubscriptionType,
		BillingPeriod:          meta.BillingPeriod,
		Status:                 domain.SubscriptionStatusActive,
		StartedAt:              now,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       now.Add(billing.PeriodLength(meta.BillingPeriod)),
		PricePaid:              c.AmountTotal,
		Currency:               c.Currency,
		ExternalSubscriptionID: c.SubscriptionID,
	}
	if id, ok := meta.RealTierID(); ok {
		sub.TierID = &id
	}
	if id, ok := meta.ModelID(); ok {
		sub.ModelID = &id
	}
	sub.AssignSlots()

	subs := s.Subs.WithTx(tx)
	created, err := subs.Insert(ctx, sub)
	collision := false
	if errors.Is(err, repository.ErrSlotTaken) {
		// another active subscription already covers this pair; keep the paid row for reconciliation
		collision = true
		sub.Status = domain.SubscriptionStatusExpired
		sub.CancelledAt = &now
		sub.AssignSlots()
		created, err = subs.Insert(ctx, sub)
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	if c.AmountTotal > 0 {
		subID := sub.ID
		_, _, err := s.recordLedger(ctx, tx, fx, LedgerEntry{
			UserID:         meta.UserID,
			CreatorID:      meta.CreatorID,
			Type:           domain.TransactionTypeSubscription,
			Gross:          c.AmountTotal,
			Currency:       c.Currency,
			ExternalID:     c.PaymentReference(),
			SubscriptionID: &subID,
			Metadata: map[string]interface{}{
				"checkout_session_id": c.SessionID,
				"subscription_type":   string(meta.SubscriptionType),
				"billing_period":      string(meta.BillingPeriod),
			},
			CompletedAt: now,
		})
		if err != nil {
			return err
		}
	}

	if !created {
		return nil
	}
	s.queueCheckoutCleared(sub.SubscriberID, sub.CreatorID, fx)

	if collision {
		s.queueConflict(ev, sub, fx)
		return nil
	}

	if sub.SubscriptionType.CountsTowardSubscribers() {
		if err := s.Accounts.WithTx(tx).AdjustSubscriberCount(ctx, sub.CreatorID, 1); err != nil {
			return fmt.Errorf("increment subscriber count: %w", err)
		}
	}

	s.queueAccessChanged(sub.SubscriberID, sub.CreatorID, sub, fx)
	s.queueNotify(ev, queue.Message{
		Kind:        queue.RouteNewSubscriber,
		RecipientID: sub.CreatorID,
		Priority:    5,
		Data: map[string]interface{}{
			"subscriber_id":     sub.SubscriberID,
			"subscription_id":   sub.ID,
			"subscription_type": string(sub.SubscriptionType),
			"billing_period":    string(sub.BillingPeriod),
		},
	}, fx)
	return nil
}

// recordLedger writes a ledger row in the delivery transaction and counts it once the delivery commits
func (s *WebhookService) recordLedger(ctx context.Context, tx *gorm.DB, fx *effects, e LedgerEntry) (*domain.Transaction, bool, error) {
	txn, created, err := s.Ledger.Record(ctx, tx, e)
	if err != nil || !created {
		return txn, created, err
	}
	kind, currency, gross := string(txn.TransactionType), txn.Currency, float64(txn.GrossAmount)
	fx.add("ledger_metric", func(context.Context) error {
		ledgerGrossTotal.WithLabelValues(kind, currency).Add(gross)
		return nil
	})
	return txn, created, nil
}

func (s *WebhookService) applyTip(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, c *domain.CheckoutCompleted, meta domain.CheckoutMetadata, fx *effects) error {
	txn, created, err := s.recordLedger(ctx, tx, fx, LedgerEntry{
		UserID:      meta.UserID,
		CreatorID:   meta.CreatorID,
		Type:        domain.TransactionTypeTip,
		Gross:       c.AmountTotal,
		Currency:    c.Currency,
		ExternalID:  c.PaymentReference(),
		Metadata:    map[string]interface{}{"checkout_session_id": c.SessionID},
		CompletedAt: s.now(),
	})
	if err != nil || !created {
		return err
	}

	s.queueNotify(ev, queue.Message{
		Kind:        queue.RouteTipReceived,
		RecipientID: meta.CreatorID,
		Priority:    3,
		Data: map[string]interface{}{
			"from_user_id":   meta.UserID,
			"amount":         txn.GrossAmount,
			"currency":       txn.Currency,
			"transaction_id": txn.ID,
		},
	}, fx)
	s.queuePush(meta.CreatorID, ws.EventPaymentReceived, txn, fx)
	return nil
}

func (s *WebhookService) applyPPV(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, c *domain.CheckoutCompleted, meta domain.CheckoutMetadata, fx *effects) error {
	postID := meta.PostID
	txn, created, err := s.recordLedger(ctx, tx, fx, LedgerEntry{
		UserID:      meta.UserID,
		CreatorID:   meta.CreatorID,
		Type:        domain.TransactionTypePPV,
		Gross:       c.AmountTotal,
		Currency:    c.Currency,
		ExternalID:  c.PaymentReference(),
		PostID:      &postID,
		Metadata:    map[string]interface{}{"checkout_session_id": c.SessionID},
		CompletedAt: s.now(),
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	unlocked, err := s.Sessions.WithTx(tx).CreateUnlock(ctx, &domain.ContentUnlock{
		ID:            uuid.NewString(),
		UserID:        meta.UserID,
		PostID:        postID,
		CreatorID:     meta.CreatorID,
		TransactionID: txn.ID,
	})
	if err != nil {
		return fmt.Errorf("create unlock: %w", err)
	}
	if !unlocked {
		return nil
	}

	s.queueNotify(ev, queue.Message{
		Kind:        queue.RoutePPVUnlocked,
		RecipientID: meta.CreatorID,
		Priority:    3,
		Data: map[string]interface{}{
			"from_user_id": meta.UserID,
			"post_id":      postID,
			"amount":       txn.GrossAmount,
			"currency":     txn.Currency,
		},
	}, fx)
	s.queueAccessChanged(meta.UserID, meta.CreatorID, nil, fx)
	return nil
}

func (s *WebhookService) onInvoicePaid(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, fx *effects) error {
	inv := ev.Invoice
	if inv == nil || inv.SubscriptionID == "" {
		return nil
	}

	subs := s.Subs.WithTx(tx)
	sub, err := subs.FindByExternalID(ctx, inv.SubscriptionID)
	if err != nil {
		return fmt.Errorf("find subscription: %w", err)
	}
	if sub == nil {
		// checkout.session.completed has not been applied yet; it creates the row with a fresh window
		return nil
	}

	if inv.PeriodEnd.After(sub.CurrentPeriodEnd) {
		sub.CurrentPeriodStart = inv.PeriodStart
		sub.CurrentPeriodEnd = inv.PeriodEnd
	}
	if !sub.Status.Terminal() {
		sub.Status = domain.SubscriptionStatusActive
	}
	if err := subs.UpdateState(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	if !inv.FirstInvoice() && inv.AmountPaid > 0 {
		subID := sub.ID
		_, _, err := s.recordLedger(ctx, tx, fx, LedgerEntry{
			UserID:         sub.SubscriberID,
			CreatorID:      sub.CreatorID,
			Type:           domain.TransactionTypeSubscription,
			Gross:          inv.AmountPaid,
			Currency:       inv.Currency,
			ExternalID:     inv.InvoiceID,
			SubscriptionID: &subID,
			Metadata:       map[string]interface{}{"billing_reason": inv.BillingReason},
			CompletedAt:    s.now(),
		})
		if err != nil {
			return err
		}
	}

	s.queueAccessChanged(sub.SubscriberID, sub.CreatorID, sub, fx)
	return nil
}

func (s *WebhookService) onInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, fx *effects) error {
	inv := ev.Invoice
	if inv == nil || inv.SubscriptionID == "" {
		return nil
	}

	subs := s.Subs.WithTx(tx)
	sub, err := subs.FindByExternalID(ctx, inv.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}
	if sub.Status != domain.SubscriptionStatusActive {
		return nil
	}

	sub.Status = domain.SubscriptionStatusPastDue
	if err := subs.UpdateState(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	s.queueAccessChanged(sub.SubscriberID, sub.CreatorID, sub, fx)
	return nil
}

// mapProviderStatus folds provider subscription states onto the local lifecycle.
// Unknown states fail closed to past_due.
func mapProviderStatus(ev *domain.SubscriptionEvent) domain.SubscriptionStatus {
	switch ev.Status {
	case "active", "trialing":
		if ev.CancelAtPeriodEnd {
			return domain.SubscriptionStatusCancelled
		}
		return domain.SubscriptionStatusActive
	case "canceled":
		return domain.SubscriptionStatusCancelled
	default:
		return domain.SubscriptionStatusPastDue
	}
}

func (s *WebhookService) onSubscriptionUpdated(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, fx *effects) error {
	up := ev.Subscription
	if up == nil {
		return nil
	}

	subs := s.Subs.WithTx(tx)
	sub, err := subs.FindByExternalID(ctx, up.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}

	if up.CurrentPeriodEnd.After(sub.CurrentPeriodEnd) {
		sub.CurrentPeriodStart = up.CurrentPeriodStart
		sub.CurrentPeriodEnd = up.CurrentPeriodEnd
	}
	if !sub.Status.Terminal() {
		sub.Status = mapProviderStatus(up)
		if sub.Status == domain.SubscriptionStatusCancelled && sub.CancelledAt == nil {
			now := s.now()
			sub.CancelledAt = &now
		}
	}

	if err := subs.UpdateState(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	s.queueAccessChanged(sub.SubscriberID, sub.CreatorID, sub, fx)
	return nil
}

func (s *WebhookService) onSubscriptionDeleted(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, fx *effects) error {
	del := ev.Subscription
	if del == nil {
		return nil
	}

	subs := s.Subs.WithTx(tx)
	sub, err := subs.FindByExternalID(ctx, del.SubscriptionID)
	if err != nil || sub == nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusExpired {
		return nil
	}

	sub.Status = domain.SubscriptionStatusExpired
	if sub.CancelledAt == nil {
		now := s.now()
		sub.CancelledAt = &now
	}
	if err := subs.UpdateState(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	if sub.SubscriptionType.CountsTowardSubscribers() {
		if err := s.Accounts.WithTx(tx).AdjustSubscriberCount(ctx, sub.CreatorID, -1); err != nil {
			return fmt.Errorf("decrement subscriber count: %w", err)
		}
	}
	s.queueAccessChanged(sub.SubscriberID, sub.CreatorID, sub, fx)
	return nil
}

func (s *WebhookService) onChargeRefunded(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, _ *effects) error {
	ch := ev.Charge
	if ch == nil {
		return nil
	}
	log := pkglogger.WithEventID(ev.ID, string(ev.Type))
	if !ch.Refunded {
		log.Info().Str("charge_id", ch.ChargeID).Int64("amount_refunded", ch.AmountRefunded).Msg("partial refund ignored")
		return nil
	}

	n, err := s.Ledger.MarkRefunded(ctx, tx, ch.References()...)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Warn().Strs("refs", ch.References()).Msg("refund matched no ledger row")
	}
	return nil
}

func (s *WebhookService) queueAccessChanged(userID, creatorID string, sub *domain.Subscription, fx *effects) {
	if s.Cache != nil {
		fx.add("invalidate_entitlements", func(ctx context.Context) error {
			return s.Cache.InvalidateEntitlements(ctx, userID, creatorID)
		})
	}
	if sub != nil {
		summary := domain.NewSubscriptionSummary(sub)
		s.queuePush(userID, ws.EventSubscriptionChanged, summary, fx)
		return
	}
	s.queuePush(userID, ws.EventEntitlementChanged, map[string]string{"creator_id": creatorID}, fx)
}

// queueCheckoutCleared drops the pending checkout of the pair so the next attempt opens a new session
func (s *WebhookService) queueCheckoutCleared(userID, creatorID string, fx *effects) {
	if s.Cache == nil {
		return
	}
	fx.add("clear_pending_checkout", func(ctx context.Context) error {
		return s.Cache.Delete(ctx, cache.CheckoutKey(userID, creatorID))
	})
}

func (s *WebhookService) queuePush(userID, kind string, payload interface{}, fx *effects) {
	fx.add("ws_push", func(context.Context) error {
		s.Pusher.Push(userID, &ws.Event{Type: kind, Payload: payload})
		return nil
	})
}

func (s *WebhookService) queueNotify(ev *domain.ProviderEvent, msg queue.Message, fx *effects) {
	msg.EventID = ev.ID
	fx.add("notify_"+msg.Kind, func(ctx context.Context) error {
		return s.Publisher.Publish(ctx, msg)
	})
}

func (s *WebhookService) queueConflict(ev *domain.ProviderEvent, sub *domain.Subscription, fx *effects) {
	pkglogger.WithEventID(ev.ID, string(ev.Type)).Error().
		Str("subscription_id", sub.ExternalSubscriptionID).
		Str("subscriber_id", sub.SubscriberID).
		Str("creator_id", sub.CreatorID).
		Msg("duplicate subscription for an already covered pair")

	s.queueNotify(ev, queue.Message{
		Kind:        queue.RouteBillingConflict,
		RecipientID: OpsRecipient,
		Priority:    9,
		Data: map[string]interface{}{
			"external_subscription_id": sub.ExternalSubscriptionID,
			"subscriber_id":            sub.SubscriberID,
			"creator_id":               sub.CreatorID,
			"subscription_type":        string(sub.SubscriptionType),
		},
	}, fx)
	if s.Reporter != nil {
		fx.add("report_conflict", func(context.Context) error {
			s.Reporter.CaptureMessage("duplicate subscription cancelled upstream", map[string]string{
				"event_id":        ev.ID,
				"subscription_id": sub.ExternalSubscriptionID,
			})
			return nil
		})
	}
	externalID := sub.ExternalSubscriptionID
	fx.add("cancel_duplicate", func(ctx context.Context) error {
		return s.Gateway.CancelNow(ctx, externalID)
	})
}
