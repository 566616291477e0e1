// Package client assembles the identity provider, session monitor, credential
// gateway and record store from configuration.
package client

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/docstore"
	docinmemory "github.com/jrsteele09/go-auth-client/docstore/inmemory"
	"github.com/jrsteele09/go-auth-client/docstore/mongostore"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/identity/inmemory"
	"github.com/jrsteele09/go-auth-client/identity/toolkit"
	"github.com/jrsteele09/go-auth-client/internal/config"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/persist"
	"github.com/jrsteele09/go-auth-client/providers"
	"github.com/jrsteele09/go-auth-client/records"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Option func(o *options)

type options struct {
	onExpiry func(session.Notice)
	openURL  func(authURL string) error
	clock    clockwork.Clock
	slot     persist.Slot
	docs     docstore.Store
	identity identity.Provider
}

// WithExpiryHandler receives the notice raised by an idle sign-out.
func WithExpiryHandler(fn func(session.Notice)) Option {
	return func(o *options) {
		o.onExpiry = fn
	}
}

// WithURLOpener presents provider authorization URLs to the user.
func WithURLOpener(fn func(authURL string) error) Option {
	return func(o *options) {
		o.openURL = fn
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithSlot overrides the configured session persistence.
func WithSlot(slot persist.Slot) Option {
	return func(o *options) {
		o.slot = slot
	}
}

// WithDocstore overrides the configured document store.
func WithDocstore(docs docstore.Store) Option {
	return func(o *options) {
		o.docs = docs
	}
}

// WithIdentityProvider overrides the configured identity backend.
func WithIdentityProvider(provider identity.Provider) Option {
	return func(o *options) {
		o.identity = provider
	}
}

// Client is the surface the screens drive.
type Client struct {
	Provider identity.Provider
	Monitor  *session.Monitor
	Gateway  *credential.Gateway
	Records  *records.Store

	closers []func()
}

// New builds every component, restores any persisted session and starts
// monitoring it. Call Close when done.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *Client, returnError error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{}
	defer func() {
		if returnError != nil {
			c.Close()
		}
	}()

	slot := o.slot
	if slot == nil {
		s, err := openSlot(cfg.GetSessionStorePath())
		if err != nil {
			return nil, err
		}
		slot = s
		if closer, ok := s.(*persist.SQLiteSlot); ok {
			c.closers = append(c.closers, func() { _ = closer.Close() })
		}
	}

	provider := o.identity
	if provider == nil {
		p, err := newIdentityProvider(cfg, slot)
		if err != nil {
			return nil, err
		}
		provider = p
		if closer, ok := p.(interface{ Close() }); ok {
			c.closers = append(c.closers, closer.Close)
		}
	}
	c.Provider = provider

	if restorer, ok := provider.(identity.Restorer); ok {
		if err := restorer.Restore(ctx); err != nil {
			log.Err(err).Msg("restoring persisted session failed, starting signed out")
		}
	}

	monitorOpts := []session.Option{session.WithIdleTimeout(cfg.GetIdleTimeout())}
	if o.clock != nil {
		monitorOpts = append(monitorOpts, session.WithClock(o.clock))
	}
	if o.onExpiry != nil {
		monitorOpts = append(monitorOpts, session.WithExpiryHandler(o.onExpiry))
	}
	monitor, err := session.NewMonitor(provider, monitorOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] session.NewMonitor")
	}
	c.Monitor = monitor

	var gatewayOpts []credential.Option
	flow, err := newProviderFlow(ctx, cfg, o.openURL)
	if err != nil {
		return nil, err
	}
	if flow != nil {
		gatewayOpts = append(gatewayOpts, credential.WithProviderFlow(flow))
	}
	gateway, err := credential.NewGateway(provider, monitor, gatewayOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] credential.NewGateway")
	}
	c.Gateway = gateway

	docs := o.docs
	if docs == nil {
		d, closer, err := openDocstore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		docs = d
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
	}
	store, err := records.NewStore(docs, records.WithCollection(cfg.GetRecordsCollection()))
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] records.NewStore")
	}
	c.Records = store

	if err := monitor.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "[client.New] monitor.Start")
	}
	c.closers = append(c.closers, monitor.Stop)
	return c, nil
}

// RequireSession returns the live session or ErrNoLiveSession.
func (c *Client) RequireSession() (session.Session, error) {
	s, ok := c.Monitor.Current()
	if !ok {
		return session.Session{}, apperrors.ErrNoLiveSession
	}
	return s, nil
}

// Close releases components in reverse construction order.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func openSlot(path string) (persist.Slot, error) {
	if path == "" || path == persist.MemoryPath {
		return persist.NewMemorySlot(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[client.openSlot] MkdirAll")
	}
	slot, err := persist.OpenSQLiteSlot(path)
	if err != nil {
		return nil, errors.Wrap(err, "[client.openSlot] OpenSQLiteSlot")
	}
	return slot, nil
}

func newIdentityProvider(cfg config.IdentityConfig, slot persist.Slot) (identity.Provider, error) {
	switch backend := cfg.GetIdentityBackend(); backend {
	case config.IdentityBackendInMemory:
		return inmemory.New(inmemory.WithSlot(slot)), nil
	case config.IdentityBackendToolkit:
		opts := []toolkit.Option{toolkit.WithSlot(slot)}
		if u := cfg.GetIdentityBaseURL(); u != "" {
			opts = append(opts, toolkit.WithBaseURL(u))
		}
		if u := cfg.GetSecureTokenURL(); u != "" {
			opts = append(opts, toolkit.WithSecureTokenURL(u))
		}
		if cfg.GetAPIKey() == "" {
			return nil, apperrors.Wrapf(apperrors.ErrMissingSetting, "IDENTITY_API_KEY")
		}
		client, err := toolkit.New(cfg.GetAPIKey(), opts...)
		if err != nil {
			return nil, errors.Wrap(err, "[client.newIdentityProvider] toolkit.New")
		}
		return client, nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnsupportedBackend, "identity backend %q", backend)
	}
}

// newProviderFlow returns nil when no external provider is configured.
func newProviderFlow(ctx context.Context, cfg config.ProviderConfig, openURL func(string) error) (*providers.Flow, error) {
	var registered []providers.Provider
	if id := cfg.GetGoogleClientID(); id != "" {
		p, err := providers.NewOIDCProvider(ctx, providers.Config{
			ClientID:     id,
			ClientSecret: cfg.GetGoogleClientSecret(),
			RedirectURL:  cfg.GetRedirectURL(),
			Issuer:       cfg.GetGoogleIssuer(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "[client.newProviderFlow] NewOIDCProvider")
		}
		registered = append(registered, p)
	}
	if id := cfg.GetGitHubClientID(); id != "" {
		p, err := providers.NewGitHubProvider(providers.Config{
			ClientID:     id,
			ClientSecret: cfg.GetGitHubClientSecret(),
			RedirectURL:  cfg.GetRedirectURL(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "[client.newProviderFlow] NewGitHubProvider")
		}
		registered = append(registered, p)
	}
	if len(registered) == 0 {
		return nil, nil
	}
	redirector := providers.NewLoopbackRedirector(cfg.GetRedirectAddr())
	redirector.Open = openURL
	return providers.NewFlow(redirector, registered...)
}

func openDocstore(ctx context.Context, cfg config.StoreConfig) (docstore.Store, func(), error) {
	switch backend := cfg.GetStoreBackend(); backend {
	case config.StoreBackendInMemory:
		return docinmemory.New(), nil, nil
	case config.StoreBackendMongo:
		store, mongoClient, err := mongostore.Connect(ctx, cfg.GetMongoURI(), cfg.GetMongoDatabase())
		if err != nil {
			return nil, nil, errors.Wrap(err, "[client.openDocstore] mongostore.Connect")
		}
		return store, func() { _ = mongoClient.Disconnect(context.Background()) }, nil
	default:
		return nil, nil, apperrors.Wrapf(apperrors.ErrUnsupportedBackend, "store backend %q", backend)
	}
}
