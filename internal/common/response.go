package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    *Meta       `json:"meta,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// Meta pagination and additional metadata
type Meta struct {
	Page  int   `json:"page,omitempty"`
	Limit int   `json:"limit,omitempty"`
	Total int64 `json:"total,omitempty"`
}

// ErrorInfo error details
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse returns a successful JSON response
func SuccessResponse(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// ErrorResponse returns an error JSON response
func ErrorResponse(c *gin.Context, status int, message string, err error) {
	ErrorResponseWithCode(c, status, getErrorCode(status), message, nil)
}

// ErrorResponseWithCode returns an error JSON response with an explicit reason code
func ErrorResponseWithCode(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, gin.H{
		"error": &ErrorInfo{Code: code, Message: message, Details: details},
	})
}

// WriteError maps the billing error taxonomy onto HTTP responses
func WriteError(c *gin.Context, err error) {
	var be *BillingError
	if errors.As(err, &be) {
		ErrorResponseWithCode(c, StatusFor(err), be.Code, be.Message, be.Details)
		return
	}
	status := StatusFor(err)
	msg := "internal error"
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	ErrorResponse(c, status, msg, err)
}

// StatusFor returns the HTTP status for an error in the taxonomy
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrPricingUnavailable),
		errors.Is(err, ErrSignatureInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientTokens), errors.Is(err, ErrUnlockRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// getErrorCode generates error code from HTTP status
func getErrorCode(status int) string {
	switch status {
	case 400:
		return "BAD_REQUEST"
	case 401:
		return "UNAUTHORIZED"
	case 402:
		return "PAYMENT_REQUIRED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "CONFLICT"
	case 502:
		return "BAD_GATEWAY"
	case 500:
		return "INTERNAL_SERVER_ERROR"
	default:
		return "ERROR"
	}
}
