package domain

// SubscriptionType is the product a subscription grants
type SubscriptionType string

const (
	SubscriptionTypeContent SubscriptionType = "content"
	SubscriptionTypeChat    SubscriptionType = "chat"
	SubscriptionTypeBundle  SubscriptionType = "bundle"
)

// Valid reports whether t is a known subscription type
func (t SubscriptionType) Valid() bool {
	switch t {
	case SubscriptionTypeContent, SubscriptionTypeChat, SubscriptionTypeBundle:
		return true
	}
	return false
}

// GrantsContent reports whether the type unlocks creator content
func (t SubscriptionType) GrantsContent() bool {
	return t == SubscriptionTypeContent || t == SubscriptionTypeBundle
}

// GrantsChat reports whether the type unlocks AI chat
func (t SubscriptionType) GrantsChat() bool {
	return t == SubscriptionTypeChat || t == SubscriptionTypeBundle
}

// CountsTowardSubscribers reports whether the type is reflected in creator subscriber_count
func (t SubscriptionType) CountsTowardSubscribers() bool {
	return t.GrantsContent()
}

// BillingPeriod is the recurrence of a subscription charge
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriod3Month  BillingPeriod = "3_month"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Valid reports whether p is a known billing period
func (p BillingPeriod) Valid() bool {
	switch p {
	case BillingPeriodMonthly, BillingPeriod3Month, BillingPeriodYearly:
		return true
	}
	return false
}

// SubscriptionStatus is the local lifecycle state
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Holding reports whether the status still occupies the fan/creator slot
func (s SubscriptionStatus) Holding() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPastDue
}

// Terminal reports whether webhook transitions may no longer revive the row
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeTip          TransactionType = "tip"
	TransactionTypePPV          TransactionType = "ppv"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeSubscription, TransactionTypeTip, TransactionTypePPV:
		return true
	}
	return false
}

// TransactionStatus is the ledger row state
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// ResourceType is what an entitlement check guards
type ResourceType string

const (
	ResourceContent ResourceType = "content"
	ResourceChat    ResourceType = "chat"
)

// Valid reports whether r is a known resource
func (r ResourceType) Valid() bool {
	return r == ResourceContent || r == ResourceChat
}
