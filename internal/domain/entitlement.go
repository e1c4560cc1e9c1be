package domain

import "time"

// MessageSession is a token-purchased pack of chat messages
type MessageSession struct {
	ID                string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID            string    `gorm:"column:user_id;size:36;index:idx_session_pair" json:"user_id"`
	CreatorID         string    `gorm:"column:creator_id;size:36;index:idx_session_pair" json:"creator_id"`
	MessagesTotal     int       `gorm:"column:messages_total" json:"messages_total"`
	MessagesRemaining int       `gorm:"column:messages_remaining" json:"messages_remaining"`
	TokenCost         int64     `gorm:"column:token_cost" json:"token_cost"`
	ExpiresAt         time.Time `gorm:"column:expires_at;index" json:"expires_at"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (MessageSession) TableName() string {
	return "message_sessions"
}

// Usable reports whether the session can still pay for a message at t
func (s *MessageSession) Usable(t time.Time) bool {
	return s.MessagesRemaining > 0 && s.ExpiresAt.After(t)
}

// ContentUnlock records a pay-per-view purchase
type ContentUnlock struct {
	ID            string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"column:user_id;size:36;uniqueIndex:idx_unlock_user_post" json:"user_id"`
	PostID        string    `gorm:"column:post_id;size:36;uniqueIndex:idx_unlock_user_post" json:"post_id"`
	CreatorID     string    `gorm:"column:creator_id;size:36;index" json:"creator_id"`
	TransactionID string    `gorm:"column:transaction_id;size:36" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ContentUnlock) TableName() string {
	return "content_unlocks"
}

// PostPrice is the unlock price of a pay-per-view post, kept in sync by the content service
type PostPrice struct {
	PostID    string    `gorm:"column:post_id;primaryKey;size:36" json:"post_id"`
	CreatorID string    `gorm:"column:creator_id;size:36;index" json:"creator_id"`
	Price     int64     `gorm:"column:price;not null" json:"price"`
	Currency  string    `gorm:"column:currency;size:3;not null" json:"currency"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PostPrice) TableName() string {
	return "post_prices"
}

// AccessType explains why access was granted
type AccessType string

const (
	AccessNone         AccessType = "none"
	AccessOwner        AccessType = "owner"
	AccessAdmin        AccessType = "admin"
	AccessSubscription AccessType = "subscription"
	AccessSession      AccessType = "message_session"
)

// UnlockAction is one way to gain access
type UnlockAction string

const (
	UnlockLogin      UnlockAction = "login"
	UnlockSubscribe  UnlockAction = "subscribe"
	UnlockBuySession UnlockAction = "buy_session"
)

// UnlockOption is an entry of the ordered unlock menu
type UnlockOption struct {
	Action           UnlockAction     `json:"action"`
	SubscriptionType SubscriptionType `json:"subscriptionType,omitempty"`
	Price            *int64           `json:"price,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	TokenCost        *int64           `json:"tokenCost,omitempty"`
	Messages         int              `json:"messages,omitempty"`
	Affordable       *bool            `json:"affordable,omitempty"`
}

// Entitlement is the derived access answer for one viewer and creator resource
type Entitlement struct {
	HasAccess         bool           `json:"hasAccess"`
	AccessType        AccessType     `json:"accessType"`
	CanSendMessage    bool           `json:"canSendMessage"`
	MessagesRemaining *int           `json:"messagesRemaining"`
	IsLowMessages     bool           `json:"isLowMessages"`
	RequiresUnlock    bool           `json:"requiresUnlock"`
	UnlockOptions     []UnlockOption `json:"unlockOptions"`
	SessionID         string         `json:"sessionId,omitempty"`
	SubscriptionID    string         `json:"subscriptionId,omitempty"`
}

// BuySessionResponse is returned after a message pack purchase
type BuySessionResponse struct {
	Session      *MessageSession `json:"session"`
	TokenBalance int64           `json:"tokenBalance"`
}

// Wallet is the fan's token balance view
type Wallet struct {
	UserID       string `json:"userId"`
	TokenBalance int64  `json:"tokenBalance"`
}
