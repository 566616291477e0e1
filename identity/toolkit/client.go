// Package toolkit is the REST adapter for an Identity Toolkit compatible identity
// provider (the accounts:* API). It keeps the current user and its tokens, and
// persists them in the session slot.
package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/persist"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL        = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL = "https://securetoken.googleapis.com/v1/token"

	// requestURI is required by signInWithIdp even when the credential was obtained elsewhere.
	requestURI = "http://localhost"
)

var (
	_ identity.Provider = (*Client)(nil)
	_ identity.Restorer = (*Client)(nil)
)

// storedSession is the opaque slot payload.
type storedSession struct {
	User         identity.User `json:"user"`
	IDToken      string        `json:"idToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

// Client talks to the identity provider over HTTPS.
type Client struct {
	apiKey         string
	baseURL        string
	secureTokenURL string
	httpClient     *http.Client
	slot           persist.Slot
	nowTime        func() time.Time

	mu         sync.Mutex
	current    *storedSession
	dispatcher *identity.Dispatcher
}

// Option configures the Client.
type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithSecureTokenURL(tokenURL string) Option {
	return func(c *Client) {
		c.secureTokenURL = tokenURL
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithSlot persists the signed-in user and tokens.
func WithSlot(slot persist.Slot) Option {
	return func(c *Client) {
		c.slot = slot
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a client for the project identified by apiKey.
func New(apiKey string, options ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("[toolkit.New] apiKey is required")
	}
	c := &Client{
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		secureTokenURL: DefaultSecureTokenURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		nowTime:        time.Now,
		dispatcher:     identity.NewDispatcher(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Close stops notification delivery.
func (c *Client) Close() {
	c.dispatcher.Close()
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.User, error) {
	var resp authResponse
	err := c.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, resp, identity.PasswordProviderID)
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (*identity.User, error) {
	var resp authResponse
	err := c.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, resp, identity.PasswordProviderID)
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.call(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// Reauthenticate verifies the credential belongs to the current user and refreshes
// its tokens, which the provider requires before a password change.
func (c *Client) Reauthenticate(ctx context.Context, credential identity.EmailCredential) error {
	current := c.snapshot()
	if current == nil {
		return identity.NewError(identity.CodeNoCurrentUser, "no user is signed in")
	}
	var resp authResponse
	err := c.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             credential.Email,
		"password":          credential.Password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.LocalID != current.User.UID {
		return identity.NewError(identity.CodeUserNotFound, "USER_MISMATCH")
	}
	c.updateTokens(ctx, resp)
	return nil
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	current := c.snapshot()
	if current == nil {
		return identity.NewError(identity.CodeNoCurrentUser, "no user is signed in")
	}
	var resp authResponse
	err := c.call(ctx, "accounts:update", map[string]any{
		"idToken":           current.IDToken,
		"password":          newPassword,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return err
	}
	c.updateTokens(ctx, resp)
	return nil
}

func (c *Client) UpdateProfile(ctx context.Context, profile identity.Profile) (*identity.User, error) {
	current := c.snapshot()
	if current == nil {
		return nil, identity.NewError(identity.CodeNoCurrentUser, "no user is signed in")
	}
	var resp authResponse
	err := c.call(ctx, "accounts:update", map[string]any{
		"idToken":           current.IDToken,
		"displayName":       profile.DisplayName,
		"returnSecureToken": false,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.current == nil || c.current.User.UID != current.User.UID {
		c.mu.Unlock()
		return nil, identity.NewError(identity.CodeNoCurrentUser, "user signed out during profile update")
	}
	c.current.User.DisplayName = profile.DisplayName
	updated := *c.current
	c.mu.Unlock()

	c.save(ctx, &updated)
	return updated.User.Clone(), nil
}

func (c *Client) SignInWithCredential(ctx context.Context, credential identity.ProviderCredential) (*identity.User, error) {
	postBody := url.Values{}
	postBody.Set("providerId", credential.ProviderID)
	if credential.IDToken != "" {
		postBody.Set("id_token", credential.IDToken)
	}
	if credential.AccessToken != "" {
		postBody.Set("access_token", credential.AccessToken)
	}
	var resp authResponse
	err := c.call(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          requestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, resp, credential.ProviderID)
}

// SignOut forgets the user locally. The REST API keeps no server side session, so
// the only fallible step is clearing the persistence slot.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.dispatcher.Publish(nil)

	if c.slot == nil {
		return nil
	}
	if err := c.slot.Clear(ctx); err != nil {
		return errors.Wrap(err, "[toolkit.SignOut] slot.Clear")
	}
	return nil
}

func (c *Client) CurrentUser() *identity.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.User.Clone()
}

func (c *Client) Subscribe(fn func(*identity.User)) identity.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	var initial *identity.User
	if c.current != nil {
		initial = &c.current.User
	}
	return c.dispatcher.Subscribe(fn, initial)
}

// Restore reloads the persisted session. An expired id token is refreshed through
// the secure token endpoint; a rejected refresh empties the slot.
func (c *Client) Restore(ctx context.Context) error {
	if c.slot == nil {
		return nil
	}
	payload, err := c.slot.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "[toolkit.Restore] slot.Load")
	}
	if payload == nil {
		return nil
	}
	var stored storedSession
	if err := json.Unmarshal(payload, &stored); err != nil || stored.User.UID == "" {
		log.Warn().Msg("toolkit: discarding unreadable persisted session")
		_ = c.slot.Clear(ctx)
		return nil
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = tokenExpiry(stored.IDToken)
	}

	if !c.nowTime().Before(stored.ExpiresAt) {
		if err := c.refresh(ctx, &stored); err != nil {
			if identity.CodeOf(err) == identity.CodeRequiresRecentLogin {
				log.Info().Str("uid", stored.User.UID).Msg("toolkit: persisted session revoked")
				_ = c.slot.Clear(ctx)
				return nil
			}
			return err
		}
		c.save(ctx, &stored)
	}

	c.mu.Lock()
	c.current = &stored
	c.mu.Unlock()
	return nil
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (c *Client) refresh(ctx context.Context, stored *storedSession) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", stored.RefreshToken)

	endpoint := c.secureTokenURL + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[toolkit.refresh] NewRequest")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}
	stored.IDToken = resp.IDToken
	stored.RefreshToken = resp.RefreshToken
	stored.ExpiresAt = c.expiresAt(resp.ExpiresIn, resp.IDToken)
	return nil
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "[toolkit.call] json.Marshal")
	}
	endpoint := fmt.Sprintf("%s/%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return errors.Wrap(err, "[toolkit.call] NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &identity.Error{Code: identity.CodeNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &identity.Error{Code: identity.CodeNetwork, Message: err.Error(), Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorBody
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error.Message == "" {
			return identity.NewError(identity.CodeUnknown, fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
		return toIdentityError(apiErr.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &identity.Error{Code: identity.CodeUnknown, Message: "malformed provider response", Err: err}
	}
	return nil
}

func (c *Client) establish(ctx context.Context, resp authResponse, providerID string) (*identity.User, error) {
	if resp.LocalID == "" {
		return nil, identity.NewError(identity.CodeUnknown, "provider response missing localId")
	}
	stored := &storedSession{
		User: identity.User{
			UID:         resp.LocalID,
			Email:       resp.Email,
			DisplayName: resp.DisplayName,
			ProviderID:  providerID,
			SignedInAt:  c.nowTime(),
		},
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    c.expiresAt(resp.ExpiresIn, resp.IDToken),
	}

	user := stored.User.Clone()
	snapshot := *stored

	c.mu.Lock()
	c.current = stored
	c.mu.Unlock()

	c.save(ctx, &snapshot)
	c.dispatcher.Publish(user)
	return user.Clone(), nil
}

func (c *Client) updateTokens(ctx context.Context, resp authResponse) {
	if resp.IDToken == "" {
		return
	}
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	c.current.IDToken = resp.IDToken
	if resp.RefreshToken != "" {
		c.current.RefreshToken = resp.RefreshToken
	}
	c.current.ExpiresAt = c.expiresAt(resp.ExpiresIn, resp.IDToken)
	updated := *c.current
	c.mu.Unlock()

	c.save(ctx, &updated)
}

func (c *Client) save(ctx context.Context, stored *storedSession) {
	if c.slot == nil {
		return
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		log.Err(err).Msg("toolkit: failed to encode session")
		return
	}
	if err := c.slot.Save(ctx, payload); err != nil {
		log.Err(err).Msg("toolkit: failed to persist session")
	}
}

func (c *Client) snapshot() *storedSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	s := *c.current
	return &s
}

func (c *Client) expiresAt(expiresIn, idToken string) time.Time {
	if seconds, err := strconv.Atoi(expiresIn); err == nil && seconds > 0 {
		return c.nowTime().Add(time.Duration(seconds) * time.Second)
	}
	return tokenExpiry(idToken)
}

// tokenExpiry reads the exp claim without verifying the signature; the token is
// only ever verified by the provider that issued it.
func tokenExpiry(idToken string) time.Time {
	if idToken == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
