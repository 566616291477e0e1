package credential

import (
	"fmt"

	"github.com/jrsteele09/go-auth-client/identity"
)

// Code is the closed set of failures the gateway reports.
type Code string

const (
	CodeInvalidCredential      Code = "InvalidCredential"
	CodeUserNotFound           Code = "UserNotFound"
	CodeInvalidEmail           Code = "InvalidEmail"
	CodeEmailInUse             Code = "EmailInUse"
	CodeWeakPassword           Code = "WeakPassword"
	CodeUserCancelled          Code = "UserCancelled"
	CodeExternalAuthFailure    Code = "ExternalAuthFailure"
	CodeReauthenticationFailed Code = "ReauthenticationFailed"
	CodeProfileUpdateFailed    Code = "ProfileUpdateFailed"
	CodeUnknown                Code = "Unknown"
)

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrInvalidCredential      = &Error{Code: CodeInvalidCredential}
	ErrUserNotFound           = &Error{Code: CodeUserNotFound}
	ErrInvalidEmail           = &Error{Code: CodeInvalidEmail}
	ErrEmailInUse             = &Error{Code: CodeEmailInUse}
	ErrWeakPassword           = &Error{Code: CodeWeakPassword}
	ErrUserCancelled          = &Error{Code: CodeUserCancelled}
	ErrExternalAuthFailure    = &Error{Code: CodeExternalAuthFailure}
	ErrReauthenticationFailed = &Error{Code: CodeReauthenticationFailed}
	ErrProfileUpdateFailed    = &Error{Code: CodeProfileUpdateFailed}
	ErrUnknown                = &Error{Code: CodeUnknown}
)

var defaultMessages = map[Code]string{
	CodeInvalidCredential:      "Incorrect password.",
	CodeUserNotFound:           "This email is not registered.",
	CodeInvalidEmail:           "Invalid email.",
	CodeEmailInUse:             "Email is already in use.",
	CodeWeakPassword:           "Password must be at least 6 characters.",
	CodeUserCancelled:          "Sign-in was cancelled.",
	CodeExternalAuthFailure:    "External sign-in failed.",
	CodeReauthenticationFailed: "Current password could not be verified.",
	CodeProfileUpdateFailed:    "Account created but the display name could not be saved.",
	CodeUnknown:                "Something went wrong. Please try again later.",
}

// Error is a classified gateway failure. Message is fit for display.
type Error struct {
	Op      string
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Op, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Code == e.Code
}

func newError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Message: defaultMessages[code], Err: err}
}

// classify maps a provider failure onto the operation's allowed codes. Anything
// outside allowed becomes Unknown carrying the provider's raw message.
func classify(op string, err error, allowed ...Code) *Error {
	code := CodeUnknown
	switch identity.CodeOf(err) {
	case identity.CodeInvalidCredential:
		code = CodeInvalidCredential
	case identity.CodeUserNotFound:
		code = CodeUserNotFound
	case identity.CodeInvalidEmail:
		code = CodeInvalidEmail
	case identity.CodeEmailInUse:
		code = CodeEmailInUse
	case identity.CodeWeakPassword:
		code = CodeWeakPassword
	}
	for _, a := range allowed {
		if a == code {
			return newError(op, code, err)
		}
	}
	e := newError(op, CodeUnknown, err)
	if msg := identity.MessageOf(err); msg != "" {
		e.Message = msg
	}
	return e
}
