package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Isbn     string `validate:"required"`
	Quantity int    `validate:"min=1"`
}

func TestFormatValidationError(t *testing.T) {
	err := validator.New().Struct(sample{Quantity: 0})
	require.Error(t, err)

	msgs := FormatValidationError(err, FieldMessages{"isbn.required": "The book ISBN must be defined."})

	require.Equal(t, map[string]string{
		"isbn":     "The book ISBN must be defined.",
		"quantity": "quantity must be at least 1",
	}, msgs)
}

func TestFormatValidationError_NonValidationError(t *testing.T) {
	msgs := FormatValidationError(errors.New("bad json"), nil)

	require.Equal(t, map[string]string{"body": "bad json"}, msgs)
}
