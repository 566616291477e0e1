package identity

import "time"

// User is the identity handle returned by the identity provider. Only the fields
// the session layer needs are surfaced; tokens stay inside the provider adapters.
type User struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	ProviderID  string    `json:"providerId,omitempty"` // "password", "google.com", "github.com"
	SignedInAt  time.Time `json:"signedInAt"`
}

// Clone returns a copy of the user, nil safe.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// EmailCredential is used for step-up re-authentication.
type EmailCredential struct {
	Email    string
	Password string
}

// ProviderCredential is the result of a redirect-based authorization flow, ready to
// be exchanged for a session with the identity provider.
type ProviderCredential struct {
	ProviderID  string // "google.com" or "github.com"
	IDToken     string
	AccessToken string
	Email       string
	Subject     string
	Name        string
}

// Profile holds the mutable profile attributes.
type Profile struct {
	DisplayName string
}

// Well known provider identifiers.
const (
	PasswordProviderID = "password"
	GoogleProviderID   = "google.com"
	GitHubProviderID   = "github.com"
)
