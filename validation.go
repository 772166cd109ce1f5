package apiclient

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

// defaultValidator returns the shared validator instance.
// validator.Validate caches struct metadata and is safe for concurrent use.
func defaultValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidatePayload checks v against its `validate` struct tags.
// Violations are reported as *ValidationError; nothing is sent over the network.
func ValidatePayload(v any) error {
	if v == nil {
		return nil
	}
	if err := defaultValidator().Struct(v); err != nil {
		return newValidationError(err)
	}
	return nil
}
