package domain

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEventStatus is the journal state of a provider delivery
type WebhookEventStatus string

const (
	WebhookEventProcessed WebhookEventStatus = "processed"
	WebhookEventFailed    WebhookEventStatus = "failed"
	WebhookEventRejected  WebhookEventStatus = "rejected"
	WebhookEventPending   WebhookEventStatus = "pending"
)

// WebhookEvent journals every provider event id that reached the processor
type WebhookEvent struct {
	ID          string             `gorm:"column:id;primaryKey;size:255" json:"id"`
	EventType   string             `gorm:"column:event_type;size:64;index" json:"event_type"`
	Status      WebhookEventStatus `gorm:"column:status;size:16;index" json:"status"`
	Attempts    int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   string             `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	Payload     datatypes.JSON     `gorm:"column:payload" json:"-"`
	ProcessedAt *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	AlertedAt   *time.Time         `gorm:"column:alerted_at" json:"alerted_at,omitempty"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// EventType is the provider event tag
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.session.completed"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventSubscriptionUpdated  EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
	EventChargeRefunded       EventType = "charge.refunded"
)

// ProviderEvent is a verified provider callback reduced to the fields billing uses.
// Exactly one of the payload pointers is set for the event types handled.
type ProviderEvent struct {
	ID      string
	Type    EventType
	Created time.Time
	Raw     []byte

	Checkout     *CheckoutCompleted
	Invoice      *InvoiceEvent
	Subscription *SubscriptionEvent
	Charge       *ChargeEvent
}

// CheckoutMode mirrors the provider checkout mode
type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// CheckoutCompleted is a completed hosted checkout
type CheckoutCompleted struct {
	SessionID       string
	Mode            CheckoutMode
	PaymentStatus   string
	SubscriptionID  string
	InvoiceID       string
	PaymentIntentID string
	CustomerID      string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// PaymentReference is the ledger idempotency key for the checkout's charge
func (c *CheckoutCompleted) PaymentReference() string {
	switch {
	case c.Mode == CheckoutModeSubscription && c.InvoiceID != "":
		return c.InvoiceID
	case c.Mode == CheckoutModePayment && c.PaymentIntentID != "":
		return c.PaymentIntentID
	}
	return c.SessionID
}

// InvoiceEvent is a paid or failed recurring invoice
type InvoiceEvent struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	ChargeID        string
	BillingReason   string
	AmountPaid      int64
	Currency        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

// FirstInvoice reports whether this invoice was created with the subscription
func (i *InvoiceEvent) FirstInvoice() bool {
	return i.BillingReason == "subscription_create"
}

// SubscriptionEvent is a provider recurring-billing object update
type SubscriptionEvent struct {
	SubscriptionID     string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// ChargeEvent is a refunded charge
type ChargeEvent struct {
	ChargeID        string
	PaymentIntentID string
	InvoiceID       string
	Amount          int64
	AmountRefunded  int64
	Refunded        bool
}

// References lists the ledger keys this charge may have been recorded under
func (c *ChargeEvent) References() []string {
	var refs []string
	for _, r := range []string{c.InvoiceID, c.PaymentIntentID, c.ChargeID} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}
