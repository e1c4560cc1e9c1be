package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/gateway"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/pkg/cache"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

const effectTimeout = 5 * time.Second

// EventHandler applies one provider event inside the delivery transaction.
// Side effects outside the database must be queued on fx.
type EventHandler func(ctx context.Context, tx *gorm.DB, ev *domain.ProviderEvent, fx *effects) error

// PayloadArchiver keeps raw payloads of failed deliveries for reconciliation
type PayloadArchiver interface {
	ArchiveWebhookPayload(ctx context.Context, eventID, eventType string, payload []byte) (string, error)
}

// ErrorReporter forwards failures to error tracking
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
	CaptureMessage(msg string, tags map[string]string)
}

// WebhookResult tells the receiver how a delivery ended
type WebhookResult struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Outcome   string `json:"outcome"`
}

// effects are post-commit actions; they never run when the transaction rolls back
type effects struct {
	items []func(ctx context.Context) error
	names []string
}

func (fx *effects) add(name string, f func(ctx context.Context) error) {
	fx.names = append(fx.names, name)
	fx.items = append(fx.items, f)
}

// WebhookDeps groups the collaborators of WebhookService
type WebhookDeps struct {
	DB        *gorm.DB
	Events    *repository.WebhookEventRepository
	Subs      *repository.SubscriptionRepository
	Accounts  *repository.AccountRepository
	Sessions  *repository.SessionRepository
	Ledger    *LedgerService
	Gateway   gateway.PaymentGateway
	Publisher Publisher
	Pusher    Pusher
	Cache     cache.Service
	Archiver  PayloadArchiver
	Reporter  ErrorReporter
}

// WebhookService verifies, journals and applies provider events
type WebhookService struct {
	WebhookDeps
	handlers map[domain.EventType]EventHandler
	now      func() time.Time
}

// NewWebhookService creates a WebhookService with its dispatch registry
func NewWebhookService(deps WebhookDeps) *WebhookService {
	if deps.Publisher == nil {
		deps.Publisher = NewLogPublisher()
	}
	if deps.Pusher == nil {
		deps.Pusher = noopPusher{}
	}
	s := &WebhookService{WebhookDeps: deps, now: time.Now}
	s.handlers = map[domain.EventType]EventHandler{
		domain.EventCheckoutCompleted:    s.onCheckoutCompleted,
		domain.EventInvoicePaid:          s.onInvoicePaid,
		domain.EventInvoicePaymentFailed: s.onInvoicePaymentFailed,
		domain.EventSubscriptionUpdated:  s.onSubscriptionUpdated,
		domain.EventSubscriptionDeleted:  s.onSubscriptionDeleted,
		domain.EventChargeRefunded:       s.onChargeRefunded,
	}
	return s
}

// Handle verifies the signature of a raw delivery and processes it
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ev, err := s.Gateway.ParseEvent(payload, signature)
	if err != nil {
		webhookEventsTotal.WithLabelValues("unknown", "signature_invalid").Inc()
		if errors.Is(err, gateway.ErrSignature) {
			return nil, common.NewSignatureInvalid(err)
		}
		return nil, common.NewValidationError(err.Error())
	}
	return s.Process(ctx, ev)
}

// Process applies a verified event exactly once per provider event id.
// A returned error means the provider must retry.
func (s *WebhookService) Process(ctx context.Context, ev *domain.ProviderEvent) (*WebhookResult, error) {
	log := pkglogger.WithEventID(ev.ID, string(ev.Type))
	result := &WebhookResult{EventID: ev.ID, EventType: string(ev.Type)}
	fx := &effects{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events := s.Events.WithTx(tx)
		row, err := events.Claim(ctx, ev.ID, string(ev.Type))
		if err != nil {
			return fmt.Errorf("claim event: %w", err)
		}
		if row.Status == domain.WebhookEventProcessed || row.Status == domain.WebhookEventRejected {
			return common.ErrDuplicateEvent
		}

		handler, ok := s.handlers[ev.Type]
		if !ok {
			result.Outcome = outcomeIgnored
			return events.MarkFinal(ctx, ev.ID, domain.WebhookEventProcessed, "")
		}
		if err := handler(ctx, tx, ev, fx); err != nil {
			return err
		}
		result.Outcome = outcomeProcessed
		return events.MarkFinal(ctx, ev.ID, domain.WebhookEventProcessed, "")
	})

	switch {
	case err == nil:
	case errors.Is(err, common.ErrDuplicateEvent):
		result.Outcome = outcomeDuplicate
	case permanent(err):
		return s.reject(ctx, ev, result, err)
	default:
		return nil, s.fail(ctx, ev, err)
	}

	webhookEventsTotal.WithLabelValues(string(ev.Type), result.Outcome).Inc()
	if result.Outcome == outcomeDuplicate {
		log.Info().Msg("duplicate webhook event")
		return result, nil
	}
	log.Info().Str("outcome", result.Outcome).Msg("webhook event applied")
	s.runEffects(ev, fx)
	return result, nil
}

// permanent reports errors that no retry can fix, such as a zero-amount one-time checkout
func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidMetadata) ||
		errors.Is(err, ErrLedgerUnmatched) ||
		errors.Is(err, common.ErrValidation)
}

func (s *WebhookService) reject(ctx context.Context, ev *domain.ProviderEvent, result *WebhookResult, cause error) (*WebhookResult, error) {
	log := pkglogger.WithEventID(ev.ID, string(ev.Type))
	if err := s.Events.RecordOutcome(ctx, ev.ID, string(ev.Type), domain.WebhookEventRejected, ev.Raw, cause); err != nil {
		return nil, s.fail(ctx, ev, fmt.Errorf("journal rejection: %w", err))
	}

	webhookEventsTotal.WithLabelValues(string(ev.Type), outcomeRejected).Inc()
	log.Error().Err(cause).Msg("webhook event rejected")
	if s.Reporter != nil {
		s.Reporter.CaptureMessage("webhook event rejected: "+cause.Error(), map[string]string{
			"event_id":   ev.ID,
			"event_type": string(ev.Type),
		})
	}
	result.Outcome = outcomeRejected
	return result, nil
}

func (s *WebhookService) fail(ctx context.Context, ev *domain.ProviderEvent, cause error) error {
	log := pkglogger.WithEventID(ev.ID, string(ev.Type))
	webhookEventsTotal.WithLabelValues(string(ev.Type), outcomeFailed).Inc()

	if err := s.Events.RecordOutcome(ctx, ev.ID, string(ev.Type), domain.WebhookEventFailed, ev.Raw, cause); err != nil {
		log.Error().Err(err).Msg("failed to journal webhook failure")
	}
	if s.Archiver != nil {
		if key, err := s.Archiver.ArchiveWebhookPayload(ctx, ev.ID, string(ev.Type), ev.Raw); err != nil {
			log.Warn().Err(err).Msg("failed to archive webhook payload")
		} else {
			log.Info().Str("archive_key", key).Msg("webhook payload archived")
		}
	}
	if s.Reporter != nil {
		s.Reporter.CaptureError(cause, map[string]string{
			"event_id":   ev.ID,
			"event_type": string(ev.Type),
		})
	}
	log.Error().Err(cause).Msg("webhook event failed, provider will retry")
	return common.NewPersistenceFailure(cause)
}

func (s *WebhookService) runEffects(ev *domain.ProviderEvent, fx *effects) {
	log := pkglogger.WithEventID(ev.ID, string(ev.Type))
	for i, f := range fx.items {
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		if err := f(ctx); err != nil {
			log.Warn().Err(err).Str("effect", fx.names[i]).Msg("post-commit effect failed")
		}
		cancel()
	}
}

// JournalStats returns journal row counts by status
func (s *WebhookService) JournalStats(ctx context.Context) (map[domain.WebhookEventStatus]int64, error) {
	return s.Events.CountByStatus(ctx)
}
