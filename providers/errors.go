package providers

import "errors"

var (
	// ErrCancelled means the user abandoned the external authorization.
	ErrCancelled = errors.New("authorization cancelled")

	ErrUnknownProvider = errors.New("unknown provider")
	ErrStateMismatch   = errors.New("authorization state mismatch")
	ErrNonceMismatch   = errors.New("id token nonce mismatch")
	ErrMissingIDToken  = errors.New("no id token in token response")
	ErrMissingCode     = errors.New("authorization response missing code")
)
