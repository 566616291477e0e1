package identity

import (
	"errors"
	"fmt"
)

// Code is the closed set of failures the identity provider can report.
type Code string

const (
	CodeInvalidCredential   Code = "invalid-credential"
	CodeUserNotFound        Code = "user-not-found"
	CodeInvalidEmail        Code = "invalid-email"
	CodeEmailInUse          Code = "email-already-in-use"
	CodeWeakPassword        Code = "weak-password"
	CodeUserDisabled        Code = "user-disabled"
	CodeTooManyRequests     Code = "too-many-requests"
	CodeRequiresRecentLogin Code = "requires-recent-login"
	CodeInvalidIdpResponse  Code = "invalid-idp-response"
	CodeNoCurrentUser       Code = "no-current-user"
	CodeNetwork             Code = "network-request-failed"
	CodeUnknown             Code = "unknown"
)

// Error is returned by every Provider call that fails. Message keeps the provider's
// raw text for display.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a provider error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the provider code from err, CodeUnknown when err is not a provider error.
func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return CodeUnknown
}

// MessageOf returns the raw provider message, falling back to err.Error().
func MessageOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) && ie.Message != "" {
		return ie.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
