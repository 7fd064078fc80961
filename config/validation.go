package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator collects validation errors across fields.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not blank
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.add(field, "value must be positive, got %d", value)
	}
	return v
}

// ValidateRange validates that an integer field is within [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, "value must be one of %v, got %q", allowed, value)
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns the joined validation errors or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	errs := make([]error, 0, len(v.errors))
	for _, e := range v.errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}
