package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Checkout metadata keys echoed back by the provider
const (
	MetaUserID           = "user_id"
	MetaCreatorID        = "creator_id"
	MetaTierID           = "tier_id"
	MetaBillingPeriod    = "billing_period"
	MetaType             = "type"
	MetaSubscriptionType = "subscription_type"
	MetaPostID           = "post_id"

	// ModelTierPrefix marks a price taken from a persona's flat price instead of a tier
	ModelTierPrefix = "model-"
)

// ErrInvalidMetadata is returned when echoed checkout metadata fails validation
var ErrInvalidMetadata = errors.New("invalid checkout metadata")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,36}$`)

// CheckoutMetadata is the self-describing purchase intent carried through the provider
type CheckoutMetadata struct {
	UserID           string
	CreatorID        string
	TierID           string
	BillingPeriod    BillingPeriod
	Type             TransactionType
	SubscriptionType SubscriptionType
	PostID           string
}

// ToMap encodes the metadata for the provider
func (m CheckoutMetadata) ToMap() map[string]string {
	out := map[string]string{
		MetaUserID:           m.UserID,
		MetaCreatorID:        m.CreatorID,
		MetaTierID:           m.TierID,
		MetaBillingPeriod:    string(m.BillingPeriod),
		MetaType:             string(m.Type),
		MetaSubscriptionType: string(m.SubscriptionType),
	}
	if m.PostID != "" {
		out[MetaPostID] = m.PostID
	}
	return out
}

// ModelID returns the persona id when the tier token is a model sentinel
func (m CheckoutMetadata) ModelID() (string, bool) {
	if strings.HasPrefix(m.TierID, ModelTierPrefix) {
		return strings.TrimPrefix(m.TierID, ModelTierPrefix), true
	}
	return "", false
}

// RealTierID returns the tier id when pricing came from a tier
func (m CheckoutMetadata) RealTierID() (string, bool) {
	if m.TierID == "" || strings.HasPrefix(m.TierID, ModelTierPrefix) {
		return "", false
	}
	return m.TierID, true
}

// ParseCheckoutMetadata validates provider-echoed metadata. The values are attacker
// observable, so every field is checked for shape before it reaches the database.
func ParseCheckoutMetadata(raw map[string]string) (CheckoutMetadata, error) {
	m := CheckoutMetadata{
		UserID:           raw[MetaUserID],
		CreatorID:        raw[MetaCreatorID],
		TierID:           raw[MetaTierID],
		BillingPeriod:    BillingPeriod(raw[MetaBillingPeriod]),
		Type:             TransactionType(raw[MetaType]),
		SubscriptionType: SubscriptionType(raw[MetaSubscriptionType]),
		PostID:           raw[MetaPostID],
	}

	if !idPattern.MatchString(m.UserID) {
		return m, fmt.Errorf("%w: user_id", ErrInvalidMetadata)
	}
	if !idPattern.MatchString(m.CreatorID) {
		return m, fmt.Errorf("%w: creator_id", ErrInvalidMetadata)
	}
	if !m.Type.Valid() {
		return m, fmt.Errorf("%w: type %q", ErrInvalidMetadata, raw[MetaType])
	}

	switch m.Type {
	case TransactionTypeSubscription:
		if !m.SubscriptionType.Valid() {
			return m, fmt.Errorf("%w: subscription_type %q", ErrInvalidMetadata, raw[MetaSubscriptionType])
		}
		if !m.BillingPeriod.Valid() {
			return m, fmt.Errorf("%w: billing_period %q", ErrInvalidMetadata, raw[MetaBillingPeriod])
		}
		if m.TierID != "" && !idPattern.MatchString(strings.TrimPrefix(m.TierID, ModelTierPrefix)) {
			return m, fmt.Errorf("%w: tier_id", ErrInvalidMetadata)
		}
	case TransactionTypePPV:
		if !idPattern.MatchString(m.PostID) {
			return m, fmt.Errorf("%w: post_id", ErrInvalidMetadata)
		}
	}
	return m, nil
}

// TipRequest is the body of POST /tips
type TipRequest struct {
	CreatorID string `json:"creatorId" binding:"required,max=36"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Currency  string `json:"currency" binding:"omitempty,len=3"`
	Message   string `json:"message" binding:"omitempty,max=280"`
}

// PPVRequest is the body of POST /ppv
type PPVRequest struct {
	CreatorID string `json:"creatorId" binding:"required,max=36"`
	PostID    string `json:"postId" binding:"required,max=36"`
}

// FormatMinor renders a minor-unit amount with the given decimal scale, e.g. 999,2 → "9.99"
func FormatMinor(amount int64, scale int) string {
	if scale <= 0 {
		return strconv.FormatInt(amount, 10)
	}
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	s := strconv.FormatInt(amount, 10)
	for len(s) <= scale {
		s = "0" + s
	}
	return sign + s[:len(s)-scale] + "." + s[len(s)-scale:]
}
