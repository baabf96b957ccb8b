package repository

import "errors"

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrBookAlreadyExists = errors.New("book already exists")
	ErrVersionConflict   = errors.New("book was modified concurrently")
)
