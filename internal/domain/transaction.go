package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Transaction is an append-only ledger entry. Only Status/RefundedAt change after insert.
type Transaction struct {
	ID                    string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID                string            `gorm:"column:user_id;size:36;index" json:"user_id"`
	CreatorID             string            `gorm:"column:creator_id;size:36;index" json:"creator_id"`
	TransactionType       TransactionType   `gorm:"column:transaction_type;size:16" json:"transaction_type"`
	Status                TransactionStatus `gorm:"column:status;size:16" json:"status"`
	GrossAmount           int64             `gorm:"column:gross_amount" json:"gross_amount"`
	PlatformFee           int64             `gorm:"column:platform_fee" json:"platform_fee"`
	NetAmount             int64             `gorm:"column:net_amount" json:"net_amount"`
	Currency              string            `gorm:"column:currency;size:3" json:"currency"`
	ExternalTransactionID string            `gorm:"column:external_transaction_id;size:255;uniqueIndex" json:"external_transaction_id"`
	SubscriptionID        *string           `gorm:"column:subscription_id;size:36;index" json:"subscription_id,omitempty"`
	PostID                *string           `gorm:"column:post_id;size:36" json:"post_id,omitempty"`
	Metadata              datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CompletedAt           time.Time         `gorm:"column:completed_at" json:"completed_at"`
	RefundedAt            *time.Time        `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// LedgerTotals aggregates a creator's completed ledger rows
type LedgerTotals struct {
	Gross int64 `json:"gross"`
	Fee   int64 `json:"fee"`
	Net   int64 `json:"net"`
}
