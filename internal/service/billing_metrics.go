package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Provider webhook deliveries by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ledgerGrossTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_ledger_gross_minor_total",
			Help: "Gross amount recorded in the ledger, in minor units",
		},
		[]string{"type", "currency"},
	)

	checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkout_total",
			Help: "Checkout intents by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	entitlementDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_entitlement_decisions_total",
			Help: "Entitlement gate answers by resource and access type",
		},
		[]string{"resource", "access"},
	)

	activeSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_active_subscriptions",
			Help: "Active subscriptions by type",
		},
		[]string{"type"},
	)
)

// Webhook outcome labels
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
	outcomeIgnored   = "ignored"
)
