package providers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Result is what the redirect endpoint received.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Redirector sends the user to authURL and waits for exactly one result.
type Redirector interface {
	Redirect(ctx context.Context, authURL string) (Result, error)
}

// Flow runs the authorization-code + PKCE round trip for the registered providers.
type Flow struct {
	redirector Redirector
	providers  map[ID]Provider
}

func NewFlow(redirector Redirector, providers ...Provider) (*Flow, error) {
	if redirector == nil {
		return nil, errors.New("[NewFlow] Redirector is required")
	}
	f := &Flow{
		redirector: redirector,
		providers:  make(map[ID]Provider, len(providers)),
	}
	for _, p := range providers {
		f.providers[p.ID()] = p
	}
	return f, nil
}

// Providers lists the registered provider ids.
func (f *Flow) Providers() []ID {
	ids := make([]ID, 0, len(f.providers))
	for _, id := range []ID{ProviderA, ProviderB} {
		if _, ok := f.providers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Authorize returns ErrCancelled when the user denies access or ctx ends first.
func (f *Flow) Authorize(ctx context.Context, id ID) (identity.ProviderCredential, error) {
	provider, ok := f.providers[id]
	if !ok {
		return identity.ProviderCredential{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}

	req := Request{
		State:    generateRandomString(32),
		Verifier: oauth2.GenerateVerifier(),
		Nonce:    generateRandomString(16),
	}
	result, err := f.redirector.Redirect(ctx, provider.AuthCodeURL(req))
	if ctx.Err() != nil {
		return identity.ProviderCredential{}, ErrCancelled
	}
	if err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[Flow.Authorize] Redirect")
	}
	if result.Error != "" {
		if result.Error == "access_denied" {
			return identity.ProviderCredential{}, ErrCancelled
		}
		return identity.ProviderCredential{}, fmt.Errorf("authorization failed: %s %s", result.Error, result.ErrorDescription)
	}
	if result.State != req.State {
		log.Warn().Str("provider", string(id)).Msg("authorization state mismatch")
		return identity.ProviderCredential{}, ErrStateMismatch
	}
	if result.Code == "" {
		return identity.ProviderCredential{}, ErrMissingCode
	}
	return provider.Exchange(ctx, result.Code, req)
}

func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
