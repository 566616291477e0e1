// Package inmemory is an in-process identity provider. It backs the tests and the
// CLI demo mode and follows the same contract as the REST adapter.
package inmemory

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/persist"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultMinPasswordLength = 6
	defaultTokenExpiry       = time.Hour
	issuer                   = "inmemory-identity"
)

// Op names a provider call for failure injection.
type Op string

const (
	OpSignInWithPassword   Op = "signInWithPassword"
	OpCreateAccount        Op = "createAccount"
	OpSendPasswordReset    Op = "sendPasswordReset"
	OpReauthenticate       Op = "reauthenticate"
	OpUpdatePassword       Op = "updatePassword"
	OpUpdateProfile        Op = "updateProfile"
	OpSignInWithCredential Op = "signInWithCredential"
	OpSignOut              Op = "signOut"
)

type account struct {
	UID          string
	Email        string
	PasswordHash string
	DisplayName  string
	Disabled     bool
}

type persistedSession struct {
	IDToken    string `json:"idToken"`
	ProviderID string `json:"providerId"`
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var (
	_ identity.Provider = (*Provider)(nil)
	_ identity.Restorer = (*Provider)(nil)
)

// Provider keeps accounts in memory and issues HMAC signed id tokens.
type Provider struct {
	mu          sync.Mutex
	accounts    map[string]*account // email -> account
	federated   map[string]string   // providerID|subject -> uid
	current     *identity.User
	resetsSent  map[string]int
	failures    map[Op]error
	signingKey  []byte
	slot        persist.Slot
	nowTime     func() time.Time
	minPassword int
	dispatcher  *identity.Dispatcher
}

// Option configures the Provider.
type Option func(*Provider)

// WithSlot persists the signed-in user so Restore can bring it back.
func WithSlot(slot persist.Slot) Option {
	return func(p *Provider) {
		p.slot = slot
	}
}

// WithSigningKey fixes the HMAC key, so persisted tokens survive a restart.
func WithSigningKey(key []byte) Option {
	return func(p *Provider) {
		p.signingKey = key
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// WithMinPasswordLength overrides the weak-password threshold.
func WithMinPasswordLength(n int) Option {
	return func(p *Provider) {
		p.minPassword = n
	}
}

// New creates an empty provider.
func New(options ...Option) *Provider {
	p := &Provider{
		accounts:    make(map[string]*account),
		federated:   make(map[string]string),
		resetsSent:  make(map[string]int),
		failures:    make(map[Op]error),
		nowTime:     time.Now,
		minPassword: defaultMinPasswordLength,
		dispatcher:  identity.NewDispatcher(),
	}
	for _, opt := range options {
		opt(p)
	}
	if len(p.signingKey) == 0 {
		p.signingKey = make([]byte, 32)
		_, _ = rand.Read(p.signingKey)
	}
	return p
}

// Close stops notification delivery.
func (p *Provider) Close() {
	p.dispatcher.Close()
}

// FailNext makes the next call of op fail with err.
func (p *Provider) FailNext(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = err
}

// ResetsSent reports how many password reset mails were dispatched for email.
func (p *Provider) ResetsSent(email string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetsSent[normalizeEmail(email)]
}

// DisableAccount blocks future sign-ins for email.
func (p *Provider) DisableAccount(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		return identity.NewError(identity.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	acc.Disabled = true
	return nil
}

// ExpireCurrentUser simulates a sign-out performed elsewhere (token revoked on
// another device). Subscribers receive a nil user.
func (p *Provider) ExpireCurrentUser(ctx context.Context) {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.clearSlot(ctx)
	p.dispatcher.Publish(nil)
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.User, error) {
	if err := p.takeFailure(ctx, OpSignInWithPassword); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acc, ok := p.accounts[email]
	var disabled bool
	var hash string
	if ok {
		disabled, hash = acc.Disabled, acc.PasswordHash
	}
	p.mu.Unlock()
	if !ok {
		return nil, identity.NewError(identity.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	if disabled {
		return nil, identity.NewError(identity.CodeUserDisabled, "USER_DISABLED")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, identity.NewError(identity.CodeInvalidCredential, "INVALID_PASSWORD")
	}
	return p.establish(ctx, acc, identity.PasswordProviderID)
}

func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*identity.User, error) {
	if err := p.takeFailure(ctx, OpCreateAccount); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(password) < p.minPassword {
		return nil, identity.NewError(identity.CodeWeakPassword, "WEAK_PASSWORD : Password should be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[inmemory.CreateAccount] bcrypt")
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, identity.NewError(identity.CodeEmailInUse, "EMAIL_EXISTS")
	}
	acc := &account{UID: uuid.New().String(), Email: email, PasswordHash: string(hash)}
	p.accounts[email] = acc
	p.mu.Unlock()

	return p.establish(ctx, acc, identity.PasswordProviderID)
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	if err := p.takeFailure(ctx, OpSendPasswordReset); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[email]; !ok {
		return identity.NewError(identity.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	p.resetsSent[email]++
	return nil
}

func (p *Provider) Reauthenticate(ctx context.Context, credential identity.EmailCredential) error {
	if err := p.takeFailure(ctx, OpReauthenticate); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return identity.NewError(identity.CodeNoCurrentUser, "no user is signed in")
	}
	email := normalizeEmail(credential.Email)
	acc, ok := p.accounts[email]
	if !ok || acc.UID != p.current.UID {
		return identity.NewError(identity.CodeUserNotFound, "USER_MISMATCH")
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(credential.Password)) != nil {
		return identity.NewError(identity.CodeInvalidCredential, "INVALID_PASSWORD")
	}
	return nil
}

func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := p.takeFailure(ctx, OpUpdatePassword); err != nil {
		return err
	}
	if len(newPassword) < p.minPassword {
		return identity.NewError(identity.CodeWeakPassword, "WEAK_PASSWORD : Password should be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "[inmemory.UpdatePassword] bcrypt")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, err := p.currentAccountLocked()
	if err != nil {
		return err
	}
	acc.PasswordHash = string(hash)
	return nil
}

func (p *Provider) UpdateProfile(ctx context.Context, profile identity.Profile) (*identity.User, error) {
	if err := p.takeFailure(ctx, OpUpdateProfile); err != nil {
		return nil, err
	}
	p.mu.Lock()
	acc, err := p.currentAccountLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	acc.DisplayName = profile.DisplayName
	p.current.DisplayName = profile.DisplayName
	user := p.current.Clone()
	p.mu.Unlock()

	p.persist(ctx, user)
	return user, nil
}

func (p *Provider) SignInWithCredential(ctx context.Context, credential identity.ProviderCredential) (*identity.User, error) {
	if err := p.takeFailure(ctx, OpSignInWithCredential); err != nil {
		return nil, err
	}
	switch credential.ProviderID {
	case identity.GoogleProviderID, identity.GitHubProviderID:
	default:
		return nil, identity.NewError(identity.CodeInvalidIdpResponse, "INVALID_PROVIDER_ID : "+credential.ProviderID)
	}
	if credential.IDToken == "" && credential.AccessToken == "" {
		return nil, identity.NewError(identity.CodeInvalidIdpResponse, "INVALID_IDP_RESPONSE : missing token")
	}
	subject := credential.Subject
	if subject == "" {
		subject = credential.Email
	}
	if subject == "" {
		return nil, identity.NewError(identity.CodeInvalidIdpResponse, "INVALID_IDP_RESPONSE : missing subject")
	}

	key := credential.ProviderID + "|" + subject
	p.mu.Lock()
	var acc *account
	if uid, ok := p.federated[key]; ok {
		for _, a := range p.accounts {
			if a.UID == uid {
				acc = a
				break
			}
		}
	}
	if acc == nil {
		email := normalizeEmail(credential.Email)
		if existing, ok := p.accounts[email]; ok && email != "" {
			acc = existing
		} else {
			acc = &account{UID: uuid.New().String(), Email: email, DisplayName: credential.Name}
			p.accounts[federatedAccountKey(acc)] = acc
		}
		p.federated[key] = acc.UID
	}
	p.mu.Unlock()

	return p.establish(ctx, acc, credential.ProviderID)
}

func (p *Provider) SignOut(ctx context.Context) error {
	failure := p.takeFailure(ctx, OpSignOut)

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.clearSlot(ctx)
	p.dispatcher.Publish(nil)
	return failure
}

func (p *Provider) CurrentUser() *identity.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Clone()
}

func (p *Provider) Subscribe(fn func(*identity.User)) identity.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatcher.Subscribe(fn, p.current)
}

// Restore reloads the persisted user when its token is still valid. An invalid or
// expired token empties the slot.
func (p *Provider) Restore(ctx context.Context) error {
	if p.slot == nil {
		return nil
	}
	payload, err := p.slot.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "[inmemory.Restore] slot.Load")
	}
	if payload == nil {
		return nil
	}
	var stored persistedSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		p.clearSlot(ctx)
		return nil
	}
	claims := &tokenClaims{}
	_, err = jwt.ParseWithClaims(stored.IDToken, claims, func(t *jwt.Token) (any, error) {
		return p.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.nowTime), jwt.WithIssuer(issuer))
	if err != nil {
		log.Debug().Err(err).Msg("discarding persisted session")
		p.clearSlot(ctx)
		return nil
	}

	user := &identity.User{
		UID:         claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		ProviderID:  stored.ProviderID,
	}
	if claims.IssuedAt != nil {
		user.SignedInAt = claims.IssuedAt.Time
	}
	p.mu.Lock()
	p.current = user
	p.mu.Unlock()
	return nil
}

func (p *Provider) establish(ctx context.Context, acc *account, providerID string) (*identity.User, error) {
	p.mu.Lock()
	p.current = &identity.User{
		UID:         acc.UID,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		ProviderID:  providerID,
		SignedInAt:  p.nowTime(),
	}
	user := p.current.Clone()
	p.mu.Unlock()

	p.persist(ctx, user)
	p.dispatcher.Publish(user)
	return user.Clone(), nil
}

func (p *Provider) persist(ctx context.Context, user *identity.User) {
	if p.slot == nil {
		return
	}
	token, err := p.signToken(user)
	if err != nil {
		log.Err(err).Msg("inmemory: failed to sign session token")
		return
	}
	payload, err := json.Marshal(persistedSession{IDToken: token, ProviderID: user.ProviderID})
	if err != nil {
		log.Err(err).Msg("inmemory: failed to encode session")
		return
	}
	if err := p.slot.Save(ctx, payload); err != nil {
		log.Err(err).Msg("inmemory: failed to persist session")
	}
}

func (p *Provider) clearSlot(ctx context.Context) {
	if p.slot == nil {
		return
	}
	if err := p.slot.Clear(ctx); err != nil {
		log.Err(err).Msg("inmemory: failed to clear persisted session")
	}
}

func (p *Provider) signToken(user *identity.User) (string, error) {
	now := p.nowTime()
	claims := tokenClaims{
		Email: user.Email,
		Name:  user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(defaultTokenExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
}

func (p *Provider) currentAccountLocked() (*account, error) {
	if p.current == nil {
		return nil, identity.NewError(identity.CodeNoCurrentUser, "no user is signed in")
	}
	for _, acc := range p.accounts {
		if acc.UID == p.current.UID {
			return acc, nil
		}
	}
	return nil, identity.NewError(identity.CodeUserNotFound, "USER_NOT_FOUND")
}

func (p *Provider) takeFailure(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return identity.NewError(identity.CodeNetwork, err.Error())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err, ok := p.failures[op]
	if !ok {
		return nil
	}
	delete(p.failures, op)
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return identity.NewError(identity.CodeInvalidEmail, "MISSING_EMAIL")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return identity.NewError(identity.CodeInvalidEmail, "INVALID_EMAIL")
	}
	return nil
}

// federated accounts without an email are keyed by uid so they never collide
// with password accounts.
func federatedAccountKey(acc *account) string {
	if acc.Email != "" {
		return acc.Email
	}
	return "uid:" + acc.UID
}
