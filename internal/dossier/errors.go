package dossier

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no dossier matches the id (or it belongs to
	// another owner).
	ErrNotFound = errors.New("dossier not found")
	// ErrOwnerRequired is returned when a client dossier is created without an
	// authenticated owner.
	ErrOwnerRequired = errors.New("dossier owner is required")
	// ErrInvalidTransition is returned when a status write is not allowed by
	// the workflow.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrConflict is returned when the dossier changed between read and write.
	ErrConflict = errors.New("dossier was modified concurrently")
	// ErrLocked is returned when answers are edited after staff took over.
	ErrLocked = errors.New("dossier answers can no longer be edited")
	// ErrPaymentRequired is returned when a client submits before the deposit
	// is confirmed.
	ErrPaymentRequired = errors.New("deposit payment has not been confirmed")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
