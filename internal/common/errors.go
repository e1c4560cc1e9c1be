package common

import (
	"errors"
	"fmt"
)

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Billing taxonomy
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("subscription conflict")
	ErrPricingUnavailable  = errors.New("no price available")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrSignatureInvalid    = errors.New("webhook signature invalid")
	ErrDuplicateEvent      = errors.New("duplicate event")
	ErrPersistence         = errors.New("persistence failure")
	ErrInsufficientTokens  = errors.New("insufficient tokens")
	ErrUnlockRequired      = errors.New("unlock required")
)

// Reason codes surfaced to API callers
const (
	CodeAlreadySubscribedContent = "ALREADY_SUBSCRIBED_CONTENT"
	CodeAlreadySubscribedChat    = "ALREADY_SUBSCRIBED_CHAT"
	CodeAlreadySubscribedBundle  = "ALREADY_SUBSCRIBED_BUNDLE"
	CodeCheckoutInProgress       = "CHECKOUT_IN_PROGRESS"
	CodeNoPriceAvailable         = "NO_PRICE_AVAILABLE"
	CodeProviderUnavailable      = "PROVIDER_UNAVAILABLE"
	CodeValidation               = "VALIDATION_ERROR"
	CodeSignatureInvalid         = "SIGNATURE_INVALID"
	CodeInsufficientTokens       = "INSUFFICIENT_TOKENS"
	CodeUnlockRequired           = "UNLOCK_REQUIRED"
)

// BillingError carries a taxonomy sentinel plus the reason code shown to callers
type BillingError struct {
	Kind    error
	Code    string
	Message string
	Err     error
	// Details is rendered as error.details, e.g. unlock options on a 402
	Details interface{}
}

func (e *BillingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is
func (e *BillingError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewValidationError builds a 400 validation error
func NewValidationError(message string) *BillingError {
	return &BillingError{Kind: ErrValidation, Code: CodeValidation, Message: message}
}

// NewConflictError builds a conflict rejection with its reason code
func NewConflictError(code, message string) *BillingError {
	return &BillingError{Kind: ErrConflict, Code: code, Message: message}
}

// NewPricingUnavailable builds a NO_PRICE_AVAILABLE error
func NewPricingUnavailable(message string) *BillingError {
	return &BillingError{Kind: ErrPricingUnavailable, Code: CodeNoPriceAvailable, Message: message}
}

// NewProviderUnavailable wraps a provider API failure
func NewProviderUnavailable(err error) *BillingError {
	return &BillingError{Kind: ErrProviderUnavailable, Code: CodeProviderUnavailable, Message: "payment provider request failed", Err: err}
}

// NewSignatureInvalid rejects a webhook whose signature does not verify
func NewSignatureInvalid(err error) *BillingError {
	return &BillingError{Kind: ErrSignatureInvalid, Code: CodeSignatureInvalid, Message: "webhook signature invalid", Err: err}
}

// NewPersistenceFailure wraps a failed durable write
func NewPersistenceFailure(err error) *BillingError {
	return &BillingError{Kind: ErrPersistence, Code: "PERSISTENCE_FAILURE", Message: "could not persist billing state", Err: err}
}

// NewInsufficientTokens builds a 402 wallet error
func NewInsufficientTokens(message string) *BillingError {
	return &BillingError{Kind: ErrInsufficientTokens, Code: CodeInsufficientTokens, Message: message}
}

// NewUnlockRequired builds a 402 carrying the ways to gain access
func NewUnlockRequired(details interface{}) *BillingError {
	return &BillingError{Kind: ErrUnlockRequired, Code: CodeUnlockRequired, Message: "unlock required", Details: details}
}
