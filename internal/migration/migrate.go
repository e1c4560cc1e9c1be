package migration

import (
	"fmt"

	"github.com/damoang/angple-billing/internal/domain"
	"gorm.io/gorm"
)

// Models lists every billing table in creation order
func Models() []interface{} {
	return []interface{}{
		// accounts
		&domain.Subscriber{},
		&domain.Creator{},
		&domain.SubscriptionTier{},
		&domain.CreatorModel{},

		// billing state
		&domain.Subscription{},
		&domain.Transaction{},
		&domain.WebhookEvent{},

		// chat packs and pay-per-view
		&domain.MessageSession{},
		&domain.ContentUnlock{},
		&domain.PostPrice{},
	}
}

// Run executes AutoMigrate for the billing tables. Safe to run repeatedly.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Tables returns the table name of every billing model
func Tables(db *gorm.DB) ([]string, error) {
	models := Models()
	names := make([]string, 0, len(models))
	for _, m := range models {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("parse model: %w", err)
		}
		names = append(names, stmt.Schema.Table)
	}
	return names, nil
}
