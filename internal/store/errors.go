package store

import "errors"

var (
	ErrNotFound    = errors.New("store: resource not found")
	ErrInvalidName = errors.New("store: invalid blob name")
)
