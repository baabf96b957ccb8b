package domain

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

var isbnPattern = regexp.MustCompile(`^([0-9]{10}|[0-9]{13})$`)

type Book struct {
	ID               int64     `json:"id" db:"id"`
	Isbn             string    `json:"isbn" db:"isbn" validate:"required,isbn_digits"`
	Title            string    `json:"title" db:"title" validate:"required"`
	Author           string    `json:"author" db:"author" validate:"required"`
	Price            float64   `json:"price" db:"price" validate:"required,gt=0"`
	Publisher        *string   `json:"publisher" db:"publisher"`
	CreatedDate      time.Time `json:"createdDate" db:"created_date"`
	LastModifiedDate time.Time `json:"lastModifiedDate" db:"last_modified_date"`
	Version          int       `json:"version" db:"version"`
}

// NewValidator returns a validator that knows the isbn_digits tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("isbn_digits", func(fl validator.FieldLevel) bool {
		return isbnPattern.MatchString(fl.Field().String())
	})

	return v
}
