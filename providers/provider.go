// Package providers implements the redirect-based external authorization flows
// (provider A: OpenID Connect, provider B: GitHub OAuth2). The browser round trip
// itself is delegated to a Redirector.
package providers

import (
	"context"

	"github.com/jrsteele09/go-auth-client/identity"
)

// ID selects an external provider.
type ID string

const (
	// ProviderA is the OpenID Connect provider (Google by default).
	ProviderA ID = "google"
	// ProviderB is the plain OAuth2 provider (GitHub).
	ProviderB ID = "github"
)

// Request carries the per-flow values generated before the redirect.
type Request struct {
	State    string
	Verifier string
	Nonce    string
}

// Provider builds the authorization URL and exchanges the returned code for a
// credential the identity provider accepts.
type Provider interface {
	ID() ID
	AuthCodeURL(req Request) string
	Exchange(ctx context.Context, code string, req Request) (identity.ProviderCredential, error)
}

// Config describes one registered external OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Issuer is the OIDC discovery base (provider A).
	Issuer string
	// AuthURL/TokenURL override the endpoints (tests, enterprise hosts).
	AuthURL  string
	TokenURL string
	// UserInfoURL is the profile endpoint (provider B).
	UserInfoURL string
}
