package billing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/damoang/angple-billing/internal/domain"
)

// DefaultFeeRate is the platform share when a type has no configured rate
const DefaultFeeRate = "0.20"

// FeeSchedule is the one place platform fee percentages are looked up
type FeeSchedule struct {
	rates map[domain.TransactionType]*big.Rat
}

// Split is a gross charge divided between platform and creator
type Split struct {
	Gross int64
	Fee   int64
	Net   int64
}

// NewFeeSchedule parses per-type decimal rates; missing types use DefaultFeeRate
func NewFeeSchedule(rates map[string]string) (*FeeSchedule, error) {
	fs := &FeeSchedule{rates: make(map[domain.TransactionType]*big.Rat)}
	for _, t := range []domain.TransactionType{domain.TransactionTypeSubscription, domain.TransactionTypeTip, domain.TransactionTypePPV} {
		raw, ok := rates[string(t)]
		if !ok || strings.TrimSpace(raw) == "" {
			raw = DefaultFeeRate
		}
		r, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
		if !ok || r.Sign() < 0 || r.Cmp(big.NewRat(1, 1)) >= 0 {
			return nil, fmt.Errorf("invalid fee rate %q for %s", raw, t)
		}
		fs.rates[t] = r
	}
	for k := range rates {
		if !domain.TransactionType(k).Valid() {
			return nil, fmt.Errorf("fee rate for unknown transaction type %q", k)
		}
	}
	return fs, nil
}

// Split computes fee = floor(gross × rate) and net = gross − fee, so gross = fee + net always holds
func (fs *FeeSchedule) Split(t domain.TransactionType, gross int64) (Split, error) {
	rate, ok := fs.rates[t]
	if !ok {
		return Split{}, fmt.Errorf("no fee rate for transaction type %q", t)
	}
	if gross < 0 {
		return Split{}, fmt.Errorf("negative gross %d", gross)
	}
	v := new(big.Rat).Mul(new(big.Rat).SetInt64(gross), rate)
	fee := new(big.Int).Quo(v.Num(), v.Denom()).Int64()
	return Split{Gross: gross, Fee: fee, Net: gross - fee}, nil
}
