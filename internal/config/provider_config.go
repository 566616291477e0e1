package config

import "strings"

type ProviderConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleIssuer() string
	GetGitHubClientID() string
	GetGitHubClientSecret() string
	GetRedirectAddr() string
	GetRedirectURL() string
}

type Providers struct{}

var _ ProviderConfig = Providers{}

func (Providers) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Providers) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

func (Providers) GetGoogleIssuer() string {
	return GetEnv("GOOGLE_ISSUER", "https://accounts.google.com")
}

func (Providers) GetGitHubClientID() string {
	return GetEnv("GITHUB_CLIENT_ID", "")
}

func (Providers) GetGitHubClientSecret() string {
	return GetEnv("GITHUB_CLIENT_SECRET", "")
}

// GetRedirectAddr is the loopback listener address for provider callbacks.
func (Providers) GetRedirectAddr() string {
	return GetEnv("REDIRECT_ADDR", "127.0.0.1:8765")
}

func (p Providers) GetRedirectURL() string {
	return GetEnv("REDIRECT_URL", "http://"+strings.TrimPrefix(p.GetRedirectAddr(), "http://")+"/callback")
}
