package providers

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var _ Provider = (*OIDCProvider)(nil)

// OIDCProvider is provider A. The ID token is verified locally before it is handed
// to the identity provider.
type OIDCProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer's endpoints and signing keys.
func NewOIDCProvider(ctx context.Context, cfg Config) (*OIDCProvider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[NewOIDCProvider] ClientID is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("[NewOIDCProvider] Issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCProvider] oidc.NewProvider")
	}
	endpoint := provider.Endpoint()
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewOIDCProviderWithVerifier(cfg, endpoint, verifier), nil
}

// NewOIDCProviderWithVerifier skips discovery; endpoint overrides from cfg still apply.
func NewOIDCProviderWithVerifier(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	return &OIDCProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier: verifier,
	}
}

func (p *OIDCProvider) ID() ID {
	return ProviderA
}

func (p *OIDCProvider) AuthCodeURL(req Request) string {
	return p.oauth2Config.AuthCodeURL(req.State,
		oauth2.S256ChallengeOption(req.Verifier),
		oidc.Nonce(req.Nonce),
	)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string, req Request) (identity.ProviderCredential, error) {
	token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(req.Verifier))
	if err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[OIDCProvider.Exchange] token exchange")
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return identity.ProviderCredential{}, ErrMissingIDToken
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[OIDCProvider.Exchange] verify id token")
	}
	if idToken.Nonce != req.Nonce {
		return identity.ProviderCredential{}, ErrNonceMismatch
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[OIDCProvider.Exchange] claims")
	}
	return identity.ProviderCredential{
		ProviderID:  identity.GoogleProviderID,
		IDToken:     rawIDToken,
		AccessToken: token.AccessToken,
		Subject:     idToken.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
	}, nil
}
