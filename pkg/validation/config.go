package validation

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ConfigValidator provides a fluent interface for validating configuration values.
// It collects all validation errors rather than failing on the first one.
type ConfigValidator struct {
	errors []error
	name   string // config struct name for error messages
}

// NewConfigValidator creates a new config validator with the given config name.
func NewConfigValidator(configName string) *ConfigValidator {
	return &ConfigValidator{
		name:   configName,
		errors: make([]error, 0),
	}
}

func (cv *ConfigValidator) addf(field, format string, args ...any) {
	cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %s", cv.name, field, fmt.Sprintf(format, args...)))
}

// Required validates that a string field is not empty.
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		cv.addf(field, "required field is empty")
	}
	return cv
}

// RequiredID validates that an identifier is non-zero.
func (cv *ConfigValidator) RequiredID(field string, value uint64) *ConfigValidator {
	if value == 0 {
		cv.addf(field, "must be a non-zero id")
	}
	return cv
}

// RequiredDuration validates that a duration is positive.
func (cv *ConfigValidator) RequiredDuration(field string, value time.Duration) *ConfigValidator {
	if value <= 0 {
		cv.addf(field, "must be positive, got %v", value)
	}
	return cv
}

// MinDuration validates that a duration is at least min.
func (cv *ConfigValidator) MinDuration(field string, value, min time.Duration) *ConfigValidator {
	if value < min {
		cv.addf(field, "must be at least %v, got %v", min, value)
	}
	return cv
}

// GreaterDuration validates that value is strictly greater than other.
func (cv *ConfigValidator) GreaterDuration(field string, value time.Duration, otherField string, other time.Duration) *ConfigValidator {
	if value <= other {
		cv.addf(field, "must be greater than %s (%v), got %v", otherField, other, value)
	}
	return cv
}

// Positive validates that an int is greater than zero.
func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		cv.addf(field, "must be positive, got %d", value)
	}
	return cv
}

// OneOf validates that a string is one of the allowed values.
func (cv *ConfigValidator) OneOf(field, value string, allowed []string) *ConfigValidator {
	for _, a := range allowed {
		if value == a {
			return cv
		}
	}
	cv.addf(field, "must be one of %v, got %q", allowed, value)
	return cv
}

// HostPort validates a host:port address. An empty host is allowed
// (listen on all interfaces); the port must be numeric.
func (cv *ConfigValidator) HostPort(field, value string) *ConfigValidator {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		cv.addf(field, "invalid address %q: %v", value, err)
		return cv
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		cv.addf(field, "invalid port in %q", value)
	}
	return cv
}

// Custom runs a custom validation function.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.addf(field, "%v", err)
	}
	return cv
}

// When runs validations only if condition is true.
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// Validate returns a combined error if any validations failed.
// The result wraps ErrInvalidConfig.
func (cv *ConfigValidator) Validate() error {
	switch len(cv.errors) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, cv.errors[0])
	default:
		return fmt.Errorf("%w: %s has %d errors: %w", ErrInvalidConfig, cv.name, len(cv.errors), errors.Join(cv.errors...))
	}
}

// DefaultOr returns the value if it's non-zero, otherwise returns the default.
func DefaultOr[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}

// DefaultOrDuration returns the value if it's positive, otherwise returns the default.
func DefaultOrDuration(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	return value
}
