package service

import (
	"github.com/Laisky/disaster-alert/internal/library/classifier"

	"github.com/Laisky/errors/v2"
)

var (
	// ErrInvalidInput matches every *InputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoDisaster means the classifier gave no usable verdict.
	ErrNoDisaster = errors.New("no clear disaster detected")
	// ErrQuotaExceeded means the classifier refused the call.
	ErrQuotaExceeded = classifier.ErrQuotaExceeded
	// ErrAlertNotFound is returned when deleting an absent alert.
	ErrAlertNotFound = errors.New("alert not found")
)

// InputError is a client mistake with a message safe to show.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrInvalidInput) hold.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func inputErr(msg string) error {
	return &InputError{Message: msg}
}
