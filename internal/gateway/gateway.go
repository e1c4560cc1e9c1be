package gateway

import (
	"context"
	"errors"

	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/domain"
)

// ErrSignature is returned when a callback fails signature verification
var ErrSignature = errors.New("webhook signature verification failed")

// CheckoutRequest describes a hosted checkout with inline pricing
type CheckoutRequest struct {
	CustomerID     string
	IdempotencyKey string
	Mode           domain.CheckoutMode
	ProductName    string
	Amount         int64
	Currency       string
	// Recurrence is required in subscription mode and ignored otherwise
	Recurrence *billing.Recurrence
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's answer to a checkout request
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentGateway is the payment provider as billing sees it
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, subscriberID, email, idempotencyKey string) (string, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
	CancelNow(ctx context.Context, subscriptionID string) error
	ParseEvent(payload []byte, signature string) (*domain.ProviderEvent, error)
}
