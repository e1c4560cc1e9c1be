package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/damoang/angple-billing/internal/domain"
)

// StripeGateway implements PaymentGateway on the Stripe API
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a gateway with its own API client
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// CreateCustomer creates a provider customer for a fan
func (g *StripeGateway) CreateCustomer(ctx context.Context, subscriberID, email, idempotencyKey string) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{domain.MetaUserID: subscriberID},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckout opens a hosted checkout session with inline price data
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(req.Currency)),
		UnitAmount: stripe.Int64(req.Amount),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.ProductName),
		},
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(req.Mode)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{PriceData: priceData, Quantity: stripe.Int64(1)},
		},
		Metadata: req.Metadata,
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}

	switch req.Mode {
	case domain.CheckoutModeSubscription:
		if req.Recurrence == nil {
			return nil, fmt.Errorf("subscription checkout without recurrence")
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String(req.Recurrence.Interval),
			IntervalCount: stripe.Int64(req.Recurrence.IntervalCount),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		}
	case domain.CheckoutModePayment:
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		}
	}

	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CancelAtPeriodEnd stops renewal while keeping the paid period
func (g *StripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// CancelNow terminates a subscription immediately
func (g *StripeGateway) CancelNow(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("failed to cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// ParseEvent verifies the signature header and decodes the payload for handled types
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*domain.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return decodeEvent(event, payload)
}

func decodeEvent(event stripe.Event, payload []byte) (*domain.ProviderEvent, error) {
	out := &domain.ProviderEvent{
		ID:      event.ID,
		Type:    domain.EventType(event.Type),
		Created: time.Unix(event.Created, 0),
		Raw:     payload,
	}
	if event.Data == nil {
		return out, nil
	}
	raw := event.Data.Raw

	switch out.Type {
	case domain.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		out.Checkout = checkoutFrom(&sess)

	case domain.EventInvoicePaid, domain.EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
		}
		out.Invoice = invoiceFrom(&inv)

	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		out.Subscription = &domain.SubscriptionEvent{
			SubscriptionID:     sub.ID,
			Status:             string(sub.Status),
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
			CurrentPeriodStart: unixOrZero(sub.CurrentPeriodStart),
			CurrentPeriodEnd:   unixOrZero(sub.CurrentPeriodEnd),
		}

	case domain.EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal charge: %w", err)
		}
		out.Charge = &domain.ChargeEvent{
			ChargeID:       ch.ID,
			Amount:         ch.Amount,
			AmountRefunded: ch.AmountRefunded,
			Refunded:       ch.Refunded,
		}
		if ch.PaymentIntent != nil {
			out.Charge.PaymentIntentID = ch.PaymentIntent.ID
		}
		if ch.Invoice != nil {
			out.Charge.InvoiceID = ch.Invoice.ID
		}
	}
	return out, nil
}

func checkoutFrom(sess *stripe.CheckoutSession) *domain.CheckoutCompleted {
	c := &domain.CheckoutCompleted{
		SessionID:     sess.ID,
		Mode:          domain.CheckoutMode(sess.Mode),
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      strings.ToUpper(string(sess.Currency)),
		Metadata:      sess.Metadata,
	}
	if sess.Subscription != nil {
		c.SubscriptionID = sess.Subscription.ID
	}
	if sess.Invoice != nil {
		c.InvoiceID = sess.Invoice.ID
	}
	if sess.PaymentIntent != nil {
		c.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.Customer != nil {
		c.CustomerID = sess.Customer.ID
	}
	return c
}

func invoiceFrom(inv *stripe.Invoice) *domain.InvoiceEvent {
	out := &domain.InvoiceEvent{
		InvoiceID:     inv.ID,
		BillingReason: string(inv.BillingReason),
		AmountPaid:    inv.AmountPaid,
		Currency:      strings.ToUpper(string(inv.Currency)),
		PeriodStart:   unixOrZero(inv.PeriodStart),
		PeriodEnd:     unixOrZero(inv.PeriodEnd),
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
	}
	if inv.Charge != nil {
		out.ChargeID = inv.Charge.ID
	}
	// line item periods describe the service window being paid for
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		out.PeriodStart = unixOrZero(inv.Lines.Data[0].Period.Start)
		out.PeriodEnd = unixOrZero(inv.Lines.Data[0].Period.End)
	}
	return out
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
