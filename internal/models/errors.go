package models

import (
	"errors"
)

var (
	ErrValidation = errors.New("validation error")

	ErrProcessing   = errors.New("file processing failed")
	ErrNotification = errors.New("notification delivery failed")
)
