package repository

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrVersionConflict = errors.New("order was modified concurrently")
)
