package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/damoang/angple-billing/internal/domain"
)

// RegisterValidators adds the billing enums to gin's binding validator
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		return domain.BillingPeriod(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("subscription_type", func(fl validator.FieldLevel) bool {
		return domain.SubscriptionType(fl.Field().String()).Valid()
	})
}
