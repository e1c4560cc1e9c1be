package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/damoang/angple-billing/internal/domain"
)

// TransactionRepository persists ledger rows
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// InsertIfAbsent writes the row unless its external id was already recorded
func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, txn *domain.Transaction) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByExternalID retrieves a ledger row by its provider reference
func (r *TransactionRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	var txns []domain.Transaction
	if err := r.db.WithContext(ctx).Where("external_transaction_id = ?", externalID).Limit(1).Find(&txns).Error; err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return &txns[0], nil
}

// MarkRefunded flips completed rows matching any reference to refunded
func (r *TransactionRepository) MarkRefunded(ctx context.Context, refs []string, at time.Time) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("external_transaction_id IN ? AND status = ?", refs, domain.TransactionStatusCompleted).
		Updates(map[string]interface{}{
			"status":      domain.TransactionStatusRefunded,
			"refunded_at": at,
		})
	return res.RowsAffected, res.Error
}

// ListByCreator returns a page of a creator's ledger
func (r *TransactionRepository) ListByCreator(ctx context.Context, creatorID string, limit, offset int) ([]domain.Transaction, int64, error) {
	var txns []domain.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("creator_id = ?", creatorID).Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("completed_at DESC").Limit(limit).Offset(offset).Find(&txns).Error
	return txns, total, err
}

// TotalsByCreator sums a creator's completed ledger rows
func (r *TransactionRepository) TotalsByCreator(ctx context.Context, creatorID string) (domain.LedgerTotals, error) {
	var totals domain.LedgerTotals
	err := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("COALESCE(SUM(gross_amount), 0) AS gross, COALESCE(SUM(platform_fee), 0) AS fee, COALESCE(SUM(net_amount), 0) AS net").
		Where("creator_id = ? AND status = ?", creatorID, domain.TransactionStatusCompleted).
		Scan(&totals).Error
	return totals, err
}
