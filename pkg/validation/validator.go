package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validation errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidValue  = errors.New("validation failed")
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// Struct validates v against its `validate` struct tags.
// The first failing field is reported in a readable form wrapping ErrInvalidValue.
func Struct(v any) error {
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrInvalidValue)
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Var validates a single value against a tag expression such as "hostname_port".
func Var(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s: %s", ErrInvalidValue, field, describe(verrs[0]))
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	// Return the first validation error in a user-friendly format
	e := validationErrs[0]
	return fmt.Errorf("%w: %s: %s", ErrInvalidValue, e.Field(), describe(e))
}

func describe(e validator.FieldError) string {
	param := e.Param()
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must not exceed " + param
	case "oneof":
		return "must be one of " + param
	case "hostname_port":
		return "must be host:port"
	case "unique":
		return "values must be unique"
	case "dive":
		return "invalid element in array"
	default:
		return fmt.Sprintf("validation failed (%s)", e.Tag())
	}
}
