package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldMessages overrides the generated message for a "field.tag" pair,
// e.g. "quantity.min".
type FieldMessages map[string]string

func FormatValidationError(err error, overrides FieldMessages) map[string]string {
	result := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result["body"] = err.Error()
		return result
	}

	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field())

		if msg, ok := overrides[field+"."+fieldErr.Tag()]; ok {
			result[field] = msg
			continue
		}

		switch fieldErr.Tag() {
		case "required":
			result[field] = fmt.Sprintf("%s is required", field)
		case "min":
			result[field] = fmt.Sprintf("%s must be at least %s", field, fieldErr.Param())
		case "max":
			result[field] = fmt.Sprintf("%s must be at most %s", field, fieldErr.Param())
		case "gt":
			result[field] = fmt.Sprintf("%s must be greater than %s", field, fieldErr.Param())
		case "gte":
			result[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, fieldErr.Param())
		case "numeric":
			result[field] = fmt.Sprintf("%s must contain only digits", field)
		case "len":
			result[field] = fmt.Sprintf("%s must be %s characters long", field, fieldErr.Param())
		case "url":
			result[field] = fmt.Sprintf("%s must be a valid URL", field)
		default:
			result[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return result
}
