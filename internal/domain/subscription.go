package domain

import "time"

// Subscription is a fan's recurring purchase from a creator.
// Rows are created only from a confirmed checkout and mutated only by provider events
// (plus the user-initiated cancel); they are never deleted.
type Subscription struct {
	ID                     string             `gorm:"column:id;primaryKey;size:36" json:"id"`
	SubscriberID           string             `gorm:"column:subscriber_id;size:36;index:idx_sub_pair" json:"subscriber_id"`
	CreatorID              string             `gorm:"column:creator_id;size:36;index:idx_sub_pair" json:"creator_id"`
	SubscriptionType       SubscriptionType   `gorm:"column:subscription_type;size:16" json:"subscription_type"`
	TierID                 *string            `gorm:"column:tier_id;size:36" json:"tier_id,omitempty"`
	ModelID                *string            `gorm:"column:model_id;size:36" json:"model_id,omitempty"`
	BillingPeriod          BillingPeriod      `gorm:"column:billing_period;size:16" json:"billing_period"`
	Status                 SubscriptionStatus `gorm:"column:status;size:16;index" json:"status"`
	StartedAt              time.Time          `gorm:"column:started_at" json:"started_at"`
	CurrentPeriodStart     time.Time          `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `gorm:"column:current_period_end" json:"current_period_end"`
	CancelledAt            *time.Time         `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	PricePaid              int64              `gorm:"column:price_paid" json:"price_paid"`
	Currency               string             `gorm:"column:currency;size:3" json:"currency"`
	ExternalSubscriptionID string             `gorm:"column:external_subscription_id;size:64;uniqueIndex" json:"external_subscription_id"`

	// Non-null only while the row holds the (subscriber, creator) content or chat slot.
	ContentSlot *string `gorm:"column:content_slot;size:80;uniqueIndex" json:"-"`
	ChatSlot    *string `gorm:"column:chat_slot;size:80;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Creator *Creator          `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Tier    *SubscriptionTier `gorm:"foreignKey:TierID" json:"tier,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// SlotKey is the value stored in the slot columns for a fan/creator pair
func SlotKey(subscriberID, creatorID string) string {
	return subscriberID + ":" + creatorID
}

// AssignSlots sets or clears the uniqueness slots for the current type and status
func (s *Subscription) AssignSlots() {
	s.ContentSlot, s.ChatSlot = nil, nil
	if !s.Status.Holding() {
		return
	}
	key := SlotKey(s.SubscriberID, s.CreatorID)
	if s.SubscriptionType.GrantsContent() {
		s.ContentSlot = &key
	}
	if s.SubscriptionType.GrantsChat() {
		k := key
		s.ChatSlot = &k
	}
}

// GrantsAccessAt reports whether the row still entitles the fan at t.
// Cancelled rows keep access until the paid period ends.
func (s *Subscription) GrantsAccessAt(t time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusPastDue:
		return true
	case SubscriptionStatusCancelled:
		return s.CurrentPeriodEnd.After(t)
	}
	return false
}

// CreateSubscriptionRequest is the body of POST /subscriptions
type CreateSubscriptionRequest struct {
	CreatorID        string `json:"creatorId" binding:"required,max=36"`
	TierID           string `json:"tierId" binding:"omitempty,max=42"`
	ModelID          string `json:"modelId" binding:"omitempty,max=36"`
	BillingPeriod    string `json:"billingPeriod" binding:"required,billing_period"`
	SubscriptionType string `json:"subscriptionType" binding:"required,subscription_type"`
	Locale           string `json:"locale" binding:"omitempty,max=16"`
}

// CheckoutResponse is returned when a checkout intent was created
type CheckoutResponse struct {
	PaymentRequired bool   `json:"paymentRequired"`
	CheckoutURL     string `json:"checkoutUrl"`
	SessionID       string `json:"sessionId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// SubscriptionSummary is a list item with joined creator and tier data
type SubscriptionSummary struct {
	ID                 string             `json:"id"`
	CreatorID          string             `json:"creator_id"`
	CreatorName        string             `json:"creator_name"`
	TierID             *string            `json:"tier_id,omitempty"`
	TierName           string             `json:"tier_name,omitempty"`
	SubscriptionType   SubscriptionType   `json:"subscription_type"`
	BillingPeriod      BillingPeriod      `json:"billing_period"`
	Status             SubscriptionStatus `json:"status"`
	PricePaid          int64              `json:"price_paid"`
	Currency           string             `json:"currency"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
}

// NewSubscriptionSummary flattens a subscription with its preloaded relations
func NewSubscriptionSummary(s *Subscription) SubscriptionSummary {
	out := SubscriptionSummary{
		ID:                 s.ID,
		CreatorID:          s.CreatorID,
		TierID:             s.TierID,
		SubscriptionType:   s.SubscriptionType,
		BillingPeriod:      s.BillingPeriod,
		Status:             s.Status,
		PricePaid:          s.PricePaid,
		Currency:           s.Currency,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelledAt:        s.CancelledAt,
	}
	if s.Creator != nil {
		out.CreatorName = s.Creator.DisplayName
	}
	if s.Tier != nil {
		out.TierName = s.Tier.Name
	}
	return out
}
