package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/repository"
)

// ErrLedgerUnmatched rejects a ledger write whose payee cannot be resolved
var ErrLedgerUnmatched = errors.New("ledger entry does not match a creator")

// LedgerEntry is a completed charge about to be recorded
type LedgerEntry struct {
	UserID         string
	CreatorID      string
	Type           domain.TransactionType
	Gross          int64
	Currency       string
	ExternalID     string
	SubscriptionID *string
	PostID         *string
	Metadata       map[string]interface{}
	CompletedAt    time.Time
}

// LedgerPage is one page of a creator's ledger with overall totals
type LedgerPage struct {
	Items  []domain.Transaction `json:"items"`
	Totals domain.LedgerTotals  `json:"totals"`
	Total  int64                `json:"total"`
}

// LedgerService writes and reads ledger rows
type LedgerService struct {
	txRepo   *repository.TransactionRepository
	accounts *repository.AccountRepository
	fees     *billing.FeeSchedule
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(txRepo *repository.TransactionRepository, accounts *repository.AccountRepository, fees *billing.FeeSchedule) *LedgerService {
	return &LedgerService{txRepo: txRepo, accounts: accounts, fees: fees}
}

// Record writes one ledger row inside tx. A repeated external id is a no-op and returns created=false.
// Metrics are left to the caller, which knows when tx commits.
func (s *LedgerService) Record(ctx context.Context, tx *gorm.DB, e LedgerEntry) (*domain.Transaction, bool, error) {
	if e.ExternalID == "" {
		return nil, false, fmt.Errorf("%w: missing external id", ErrLedgerUnmatched)
	}
	if e.Gross <= 0 {
		return nil, false, fmt.Errorf("%w: non-positive gross %d", common.ErrValidation, e.Gross)
	}

	creator, err := s.accounts.WithTx(tx).FindCreator(ctx, e.CreatorID)
	if err != nil {
		return nil, false, fmt.Errorf("find creator: %w", err)
	}
	if creator == nil {
		return nil, false, fmt.Errorf("%w: creator %s", ErrLedgerUnmatched, e.CreatorID)
	}

	split, err := s.fees.Split(e.Type, e.Gross)
	if err != nil {
		return nil, false, err
	}

	completed := e.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	txn := &domain.Transaction{
		ID:                    uuid.NewString(),
		UserID:                e.UserID,
		CreatorID:             e.CreatorID,
		TransactionType:       e.Type,
		Status:                domain.TransactionStatusCompleted,
		GrossAmount:           split.Gross,
		PlatformFee:           split.Fee,
		NetAmount:             split.Net,
		Currency:              e.Currency,
		ExternalTransactionID: e.ExternalID,
		SubscriptionID:        e.SubscriptionID,
		PostID:                e.PostID,
		Metadata:              e.Metadata,
		CompletedAt:           completed,
	}

	created, err := s.txRepo.WithTx(tx).InsertIfAbsent(ctx, txn)
	if err != nil {
		return nil, false, fmt.Errorf("insert ledger row: %w", err)
	}
	return txn, created, nil
}

// MarkRefunded flips the ledger row recorded under any of refs to refunded
func (s *LedgerService) MarkRefunded(ctx context.Context, tx *gorm.DB, refs ...string) (int64, error) {
	n, err := s.txRepo.WithTx(tx).MarkRefunded(ctx, refs, time.Now())
	if err != nil {
		return 0, fmt.Errorf("mark refunded: %w", err)
	}
	return n, nil
}

// List returns a page of a creator's ledger
func (s *LedgerService) List(ctx context.Context, creatorID string, page, perPage int) (*LedgerPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	items, total, err := s.txRepo.ListByCreator(ctx, creatorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	totals, err := s.txRepo.TotalsByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return &LedgerPage{Items: items, Totals: totals, Total: total}, nil
}
