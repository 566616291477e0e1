package config

import "path/filepath"

const (
	IdentityBackendInMemory = "inmemory"
	IdentityBackendToolkit  = "toolkit"
)

type IdentityConfig interface {
	GetIdentityBackend() string
	GetAPIKey() string
	GetIdentityBaseURL() string
	GetSecureTokenURL() string
	// GetSessionStorePath is the sqlite file holding the persisted session. Empty
	// keeps the session in memory only.
	GetSessionStorePath() string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdentityBackend() string {
	return GetEnv("IDENTITY_BACKEND", IdentityBackendInMemory)
}

func (Identity) GetAPIKey() string {
	return GetEnv("IDENTITY_API_KEY", "")
}

func (Identity) GetIdentityBaseURL() string {
	return GetEnv("IDENTITY_BASE_URL", "")
}

func (Identity) GetSecureTokenURL() string {
	return GetEnv("SECURE_TOKEN_URL", "")
}

func (Identity) GetSessionStorePath() string {
	return GetEnv("SESSION_STORE", filepath.Join(EnvVars{}.GetDataFolder(), "session.db"))
}
