// Package billing holds the pure rules of the billing engine: pricing, fee splits,
// subscription conflicts and entitlement precedence. Nothing here performs I/O.
package billing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/damoang/angple-billing/internal/domain"
)

var (
	ErrUnknownSubscriptionType = errors.New("unknown subscription type")
	ErrUnknownBillingPeriod    = errors.New("unknown billing period")
	ErrNonPositiveBase         = errors.New("base price must be positive")
	ErrUnknownCurrency         = errors.New("unknown currency")
)

var (
	bundleFactor   = big.NewRat(85, 100)
	threeMonthRate = big.NewRat(3*90, 100)
	yearlyRate     = big.NewRat(12*75, 100)
)

// Recurrence is the provider-facing billing interval
type Recurrence struct {
	Interval      string `json:"interval"`
	IntervalCount int64  `json:"intervalCount"`
}

// QuoteInput is everything a price depends on
type QuoteInput struct {
	SubscriptionType   domain.SubscriptionType
	BillingPeriod      domain.BillingPeriod
	ContentMonthlyBase int64
	ChatMonthlyBase    int64
	// PeriodOverride replaces the computed content price for 3_month/yearly when a tier sets one
	PeriodOverride *int64
	Currency       string
	Locale         string
}

// Quote is a priced, rounded charge in the presentment currency
type Quote struct {
	Amount      int64      `json:"amount"`
	MonthlyBase int64      `json:"monthlyBase"`
	Currency    string     `json:"currency"`
	Scale       int        `json:"scale"`
	Recurrence  Recurrence `json:"recurrence"`
}

// Pricer quotes against an immutable rate snapshot. Rates are "1 base unit = rate target units".
type Pricer struct {
	base  currency.Unit
	rates map[string]*big.Rat
}

// NewPricer builds a pricer for the base currency and a rate table of decimal strings
func NewPricer(baseCurrency string, rates map[string]string) (*Pricer, error) {
	base, err := currency.ParseISO(baseCurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, baseCurrency)
	}
	p := &Pricer{base: base, rates: map[string]*big.Rat{base.String(): big.NewRat(1, 1)}}
	for code, v := range rates {
		unit, err := currency.ParseISO(code)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
		}
		r, ok := new(big.Rat).SetString(strings.TrimSpace(v))
		if !ok || r.Sign() <= 0 {
			return nil, fmt.Errorf("invalid rate %q for %s", v, code)
		}
		p.rates[unit.String()] = r
	}
	return p, nil
}

// BaseCurrency returns the ISO code prices are configured in
func (p *Pricer) BaseCurrency() string {
	return p.base.String()
}

// Quote prices a subscription. It is deterministic for a given input and pricer.
func (p *Pricer) Quote(in QuoteInput) (Quote, error) {
	if !in.SubscriptionType.Valid() {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownSubscriptionType, in.SubscriptionType)
	}
	rec, err := RecurrenceFor(in.BillingPeriod)
	if err != nil {
		return Quote{}, err
	}

	monthly, err := monthlyBase(in)
	if err != nil {
		return Quote{}, err
	}

	var periodAmount *big.Rat
	if in.PeriodOverride != nil && in.SubscriptionType == domain.SubscriptionTypeContent && in.BillingPeriod != domain.BillingPeriodMonthly {
		if *in.PeriodOverride <= 0 {
			return Quote{}, ErrNonPositiveBase
		}
		periodAmount = new(big.Rat).SetInt64(*in.PeriodOverride)
	} else {
		periodAmount = applyPeriod(monthly, in.BillingPeriod)
	}

	target, rate := p.presentment(in.Currency, in.Locale)
	scale := minorScale(target)

	return Quote{
		Amount:      p.convert(periodAmount, rate, scale),
		MonthlyBase: p.convert(monthly, rate, scale),
		Currency:    target.String(),
		Scale:       scale,
		Recurrence:  rec,
	}, nil
}

// Convert moves a base-currency minor amount into the presentment currency for locale
func (p *Pricer) Convert(amount int64, currencyCode, locale string) (int64, string) {
	target, rate := p.presentment(currencyCode, locale)
	return p.convert(new(big.Rat).SetInt64(amount), rate, minorScale(target)), target.String()
}

func monthlyBase(in QuoteInput) (*big.Rat, error) {
	switch in.SubscriptionType {
	case domain.SubscriptionTypeContent:
		if in.ContentMonthlyBase <= 0 {
			return nil, ErrNonPositiveBase
		}
		return new(big.Rat).SetInt64(in.ContentMonthlyBase), nil
	case domain.SubscriptionTypeChat:
		if in.ChatMonthlyBase <= 0 {
			return nil, ErrNonPositiveBase
		}
		return new(big.Rat).SetInt64(in.ChatMonthlyBase), nil
	default:
		if in.ContentMonthlyBase <= 0 || in.ChatMonthlyBase <= 0 {
			return nil, ErrNonPositiveBase
		}
		sum := new(big.Rat).SetInt64(in.ContentMonthlyBase + in.ChatMonthlyBase)
		return sum.Mul(sum, bundleFactor), nil
	}
}

func applyPeriod(monthly *big.Rat, period domain.BillingPeriod) *big.Rat {
	out := new(big.Rat).Set(monthly)
	switch period {
	case domain.BillingPeriod3Month:
		out.Mul(out, threeMonthRate)
	case domain.BillingPeriodYearly:
		out.Mul(out, yearlyRate)
	}
	return out
}

// RecurrenceFor maps a billing period to the provider interval
func RecurrenceFor(period domain.BillingPeriod) (Recurrence, error) {
	switch period {
	case domain.BillingPeriodMonthly:
		return Recurrence{Interval: "month", IntervalCount: 1}, nil
	case domain.BillingPeriod3Month:
		return Recurrence{Interval: "month", IntervalCount: 3}, nil
	case domain.BillingPeriodYearly:
		return Recurrence{Interval: "year", IntervalCount: 1}, nil
	}
	return Recurrence{}, fmt.Errorf("%w: %q", ErrUnknownBillingPeriod, period)
}

// PeriodLength is the provisional local window used until the provider reports one
func PeriodLength(period domain.BillingPeriod) time.Duration {
	const day = 24 * time.Hour
	switch period {
	case domain.BillingPeriod3Month:
		return 90 * day
	case domain.BillingPeriodYearly:
		return 365 * day
	}
	return 30 * day
}

// presentment picks the explicit currency, else the locale region's currency,
// falling back to the base currency when no rate is configured.
func (p *Pricer) presentment(code, locale string) (currency.Unit, *big.Rat) {
	if code != "" {
		if unit, err := currency.ParseISO(code); err == nil {
			if r, ok := p.rates[unit.String()]; ok {
				return unit, r
			}
		}
	}
	if locale != "" {
		if tag, err := language.Parse(locale); err == nil {
			region, _ := tag.Region()
			if unit, ok := currency.FromRegion(region); ok {
				if r, ok := p.rates[unit.String()]; ok {
					return unit, r
				}
			}
		}
	}
	return p.base, p.rates[p.base.String()]
}

// convert scales a base-minor rational into target minor units with one half-up rounding
func (p *Pricer) convert(amount, rate *big.Rat, targetScale int) int64 {
	v := new(big.Rat).Mul(amount, rate)
	baseScale := minorScale(p.base)
	v.Mul(v, new(big.Rat).SetFrac(pow10(targetScale), pow10(baseScale)))
	return roundHalfUp(v)
}

func minorScale(u currency.Unit) int {
	scale, _ := currency.Standard.Rounding(u)
	return scale
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// roundHalfUp rounds a non-negative rational to the nearest integer, ties away from zero
func roundHalfUp(v *big.Rat) int64 {
	num := new(big.Int).Mul(v.Num(), big.NewInt(2))
	num.Add(num, v.Denom())
	den := new(big.Int).Mul(v.Denom(), big.NewInt(2))
	return new(big.Int).Quo(num, den).Int64()
}
