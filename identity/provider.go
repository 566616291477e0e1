// Package identity defines the contract consumed from the remote identity provider
// and the ordered notification plumbing shared by its adapters.
package identity

import "context"

// Provider is the identity provider contract. Implementations own the current user
// and the session persistence slot; callers only see *User handles.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*User, error)
	CreateAccount(ctx context.Context, email, password string) (*User, error)
	SendPasswordReset(ctx context.Context, email string) error
	Reauthenticate(ctx context.Context, credential EmailCredential) error
	UpdatePassword(ctx context.Context, newPassword string) error
	UpdateProfile(ctx context.Context, profile Profile) (*User, error)
	SignInWithCredential(ctx context.Context, credential ProviderCredential) (*User, error)

	// SignOut always clears the local user, even when it returns an error.
	SignOut(ctx context.Context) error

	CurrentUser() *User

	// Subscribe attaches the single auth-state subscriber. The current user (possibly
	// nil) is delivered first, then every change, in order.
	Subscribe(fn func(*User)) Subscription
}

// Subscription detaches an auth-state subscriber.
type Subscription interface {
	Cancel()
}
