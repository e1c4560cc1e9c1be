package domain

import "time"

// Subscriber is a fan account with a token wallet
type Subscriber struct {
	ID                string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Email             string    `gorm:"column:email;size:255" json:"email"`
	Locale            string    `gorm:"column:locale;size:16" json:"locale"`
	TokenBalance      int64     `gorm:"column:token_balance;not null;default:0" json:"token_balance"`
	BillingCustomerID *string   `gorm:"column:billing_customer_id;size:64" json:"-"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// Creator is a monetizing account
type Creator struct {
	ID              string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	DisplayName     string    `gorm:"column:display_name;size:100" json:"display_name"`
	SubscriberCount int64     `gorm:"column:subscriber_count;not null;default:0" json:"subscriber_count"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Creator) TableName() string {
	return "creators"
}

// SubscriptionTier is a creator-defined content price point (minor units of the base currency)
type SubscriptionTier struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	CreatorID    string    `gorm:"column:creator_id;size:36;index" json:"creator_id"`
	Name         string    `gorm:"column:name;size:100" json:"name"`
	PriceMonthly int64     `gorm:"column:price_monthly" json:"price_monthly"`
	Price3Month  *int64    `gorm:"column:price_3_month" json:"price_3_month,omitempty"`
	PriceYearly  *int64    `gorm:"column:price_yearly" json:"price_yearly,omitempty"`
	IsActive     bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (SubscriptionTier) TableName() string {
	return "subscription_tiers"
}

// OverrideFor returns the explicit price for a non-monthly period, if set
func (t *SubscriptionTier) OverrideFor(period BillingPeriod) *int64 {
	switch period {
	case BillingPeriod3Month:
		return t.Price3Month
	case BillingPeriodYearly:
		return t.PriceYearly
	}
	return nil
}

// CreatorModel is an AI persona with an optional flat subscription price
type CreatorModel struct {
	ID                string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	CreatorID         string    `gorm:"column:creator_id;size:36;index" json:"creator_id"`
	Name              string    `gorm:"column:name;size:100" json:"name"`
	SubscriptionPrice *int64    `gorm:"column:subscription_price" json:"subscription_price,omitempty"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CreatorModel) TableName() string {
	return "creator_models"
}
