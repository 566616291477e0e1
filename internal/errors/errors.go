package errors

import (
	"errors"
	"fmt"
)

// Common error types for the client wiring
var (
	// Configuration errors
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrMissingSetting     = errors.New("missing setting")

	// Session errors
	ErrNoLiveSession = errors.New("no live session")

	// Input errors
	ErrInvalidField = errors.New("invalid field")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
