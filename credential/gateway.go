// Package credential turns user-supplied credentials into sessions and classifies
// every identity-provider failure into a closed set of codes.
package credential

import (
	"context"
	"net/mail"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/providers"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const MinPasswordLength = 6

// Tracker is the session owner the gateway reports sign-in attempts to.
type Tracker interface {
	BeginAuthentication() (session.Completion, error)
	Current() (session.Session, bool)
	SignOut(ctx context.Context) error
}

// ProviderFlow runs an external authorization and yields the provider credential.
type ProviderFlow interface {
	Authorize(ctx context.Context, id providers.ID) (identity.ProviderCredential, error)
}

type Option func(g *Gateway)

func WithProviderFlow(flow ProviderFlow) Option {
	return func(g *Gateway) {
		g.flow = flow
	}
}

var _ Tracker = (*session.Monitor)(nil)
var _ ProviderFlow = (*providers.Flow)(nil)

type Gateway struct {
	provider identity.Provider
	tracker  Tracker
	flow     ProviderFlow
}

func NewGateway(provider identity.Provider, tracker Tracker, options ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, errors.New("[NewGateway] Provider is required")
	}
	if tracker == nil {
		return nil, errors.New("[NewGateway] Tracker is required")
	}
	g := &Gateway{provider: provider, tracker: tracker}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) SignInWithPassword(ctx context.Context, email, password string) (session.Session, error) {
	const op = "SignInWithPassword"
	if err := validateEmail(email); err != nil {
		return session.Session{}, newError(op, CodeInvalidEmail, err)
	}

	complete, err := g.tracker.BeginAuthentication()
	if err != nil {
		return session.Session{}, newError(op, CodeUnknown, err)
	}
	user, err := g.provider.SignInWithPassword(ctx, email, password)
	s, err := complete(user, err)
	if err != nil {
		return session.Session{}, classify(op, err, CodeInvalidCredential, CodeUserNotFound, CodeInvalidEmail)
	}
	return s, nil
}

func (g *Gateway) SignInWithProvider(ctx context.Context, id providers.ID) (session.Session, error) {
	const op = "SignInWithProvider"
	if g.flow == nil {
		e := newError(op, CodeExternalAuthFailure, nil)
		e.Message = "external sign-in is not configured"
		return session.Session{}, e
	}

	complete, err := g.tracker.BeginAuthentication()
	if err != nil {
		return session.Session{}, newError(op, CodeUnknown, err)
	}
	credential, err := g.flow.Authorize(ctx, id)
	if err != nil {
		_, _ = complete(nil, err)
		if errors.Is(err, providers.ErrCancelled) {
			return session.Session{}, newError(op, CodeUserCancelled, err)
		}
		log.Err(err).Str("provider", string(id)).Msg("external authorization failed")
		return externalFailure(op, err)
	}

	user, err := g.provider.SignInWithCredential(ctx, credential)
	s, err := complete(user, err)
	if err != nil {
		return externalFailure(op, err)
	}
	return s, nil
}

func externalFailure(op string, err error) (session.Session, error) {
	e := newError(op, CodeExternalAuthFailure, err)
	e.Message = identity.MessageOf(err)
	return session.Session{}, e
}

// SignUp creates the account and signs it in. When only the display-name update
// fails, the live session is returned together with a ProfileUpdateFailed error.
func (g *Gateway) SignUp(ctx context.Context, email, password, displayName string) (session.Session, error) {
	const op = "SignUp"
	if err := validateEmail(email); err != nil {
		return session.Session{}, newError(op, CodeInvalidEmail, err)
	}
	if len(password) < MinPasswordLength {
		return session.Session{}, newError(op, CodeWeakPassword, nil)
	}

	complete, err := g.tracker.BeginAuthentication()
	if err != nil {
		return session.Session{}, newError(op, CodeUnknown, err)
	}
	user, err := g.provider.CreateAccount(ctx, email, password)
	if err != nil {
		_, _ = complete(nil, err)
		return session.Session{}, classify(op, err, CodeEmailInUse, CodeWeakPassword, CodeInvalidEmail)
	}

	var profileErr error
	if displayName != "" {
		updated, err := g.provider.UpdateProfile(ctx, identity.Profile{DisplayName: displayName})
		if err != nil {
			log.Err(err).Str("uid", user.UID).Msg("display name update failed after sign-up")
			profileErr = err
		} else {
			user = updated
		}
	}

	s, err := complete(user, nil)
	if err != nil {
		return session.Session{}, newError(op, CodeUnknown, err)
	}
	if profileErr != nil {
		return s, newError(op, CodeProfileUpdateFailed, profileErr)
	}
	return s, nil
}

func (g *Gateway) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "RequestPasswordReset"
	if err := validateEmail(email); err != nil {
		return newError(op, CodeInvalidEmail, err)
	}
	if err := g.provider.SendPasswordReset(ctx, email); err != nil {
		return classify(op, err, CodeInvalidEmail, CodeUserNotFound)
	}
	return nil
}

// ChangePassword re-authenticates with currentPassword before any update, so a
// wrong current password leaves the stored password untouched.
func (g *Gateway) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	const op = "ChangePassword"
	current, ok := g.tracker.Current()
	if !ok || current.Email == "" {
		e := newError(op, CodeReauthenticationFailed, nil)
		e.Message = "no live session"
		return e
	}
	if len(newPassword) < MinPasswordLength {
		return newError(op, CodeWeakPassword, nil)
	}

	err := g.provider.Reauthenticate(ctx, identity.EmailCredential{Email: current.Email, Password: currentPassword})
	if err != nil {
		e := newError(op, CodeReauthenticationFailed, err)
		if identity.CodeOf(err) != identity.CodeInvalidCredential {
			e.Message = identity.MessageOf(err)
		}
		return e
	}

	if err := g.provider.UpdatePassword(ctx, newPassword); err != nil {
		if identity.CodeOf(err) == identity.CodeRequiresRecentLogin {
			return newError(op, CodeReauthenticationFailed, err)
		}
		return classify(op, err, CodeWeakPassword)
	}
	log.Info().Str("uid", current.Identity).Msg("password changed")
	return nil
}

// SignOut never fails from the caller's point of view.
func (g *Gateway) SignOut(ctx context.Context) error {
	_ = g.tracker.SignOut(ctx)
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	if addr.Address != email {
		return errors.Errorf("%q is not a bare address", email)
	}
	return nil
}
