package main

import (
	"errors"
	"fmt"
)

var (
	errUnauthenticated    = errors.New("unauthenticated")
	errStorageUnavailable = errors.New("storage unavailable")
	errDegenerateTarget   = errors.New("calorie target is not positive")
	errTargetsNotSet      = errors.New("nutrition targets not set")
	errProfileNotSet      = errors.New("profile not set")
)

// validationError is returned for bad user input: biometrics, entries, dates.
// It is reported back to the caller as-is and never logged as a fault.
type validationError struct {
	Field   string
	Message string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &validationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// storageErr tags a store failure so callers can tell it apart from bad input.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", errStorageUnavailable, op, err)
}
