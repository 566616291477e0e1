// Package session owns the single live session: its lifecycle state, the idle
// clock that expires it, and the notice raised when it is forcibly ended.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultIdleTimeout = 30 * time.Second

// Completion finishes a sign-in started by BeginAuthentication. It must be called
// exactly once; later calls return the first outcome's error.
type Completion func(user *identity.User, err error) (Session, error)

type Option func(m *Monitor)

func WithIdleTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithExpiryHandler is called once per forced sign-out, after the session is gone.
func WithExpiryHandler(fn func(Notice)) Option {
	return func(m *Monitor) {
		m.onExpiry = fn
	}
}

// Monitor tracks the session lifecycle. It is safe for concurrent use; provider
// notifications and idle expiry arrive on their own goroutines.
type Monitor struct {
	provider    identity.Provider
	clock       clockwork.Clock
	idleTimeout time.Duration
	onExpiry    func(Notice)
	idle        *IdleClock

	mu       sync.Mutex
	ctx      context.Context
	state    State
	current  Session
	inFlight bool
	authPrev State
	pending  *Notice
	sub      identity.Subscription
	started  bool
}

func NewMonitor(provider identity.Provider, options ...Option) (*Monitor, error) {
	if provider == nil {
		return nil, errors.New("[NewMonitor] Provider is required")
	}
	m := &Monitor{
		provider:    provider,
		clock:       clockwork.NewRealClock(),
		idleTimeout: DefaultIdleTimeout,
		state:       Anonymous,
		ctx:         context.Background(),
	}
	for _, opt := range options {
		opt(m)
	}
	m.idle = NewIdleClock(m.clock, m.expire)
	return m, nil
}

// Start attaches to the provider's auth-state stream. A restored user is delivered
// first and makes the session live without a sign-in.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("[Monitor.Start] already started")
	}
	m.started = true
	m.ctx = ctx
	m.mu.Unlock()

	sub := m.provider.Subscribe(m.onAuthState)

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.started = false
	m.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	m.idle.Disarm()
}

func (m *Monitor) BeginAuthentication() (Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight || m.state == Expiring {
		return nil, ErrAuthenticationInProgress
	}
	m.inFlight = true
	m.authPrev = m.state
	m.state = Authenticating

	var once sync.Once
	var outcome error
	return func(user *identity.User, err error) (Session, error) {
		first := false
		once.Do(func() {
			first = true
			if err == nil && user == nil {
				err = ErrNoUser
			}
			outcome = err
		})
		if !first {
			return Session{}, outcome
		}
		return m.complete(user, outcome)
	}, nil
}

func (m *Monitor) complete(user *identity.User, err error) (Session, error) {
	m.mu.Lock()
	m.inFlight = false

	if err == nil {
		s := m.goLiveLocked(user)
		m.mu.Unlock()
		return s, nil
	}

	lapsed := false
	if m.state == Authenticating {
		m.state = m.authPrev
		// The idle deadline keeps running through the attempt. A deadline that
		// passed meanwhile expires the restored session now.
		lapsed = m.state == Live && !m.idle.Armed()
	}
	m.mu.Unlock()

	if lapsed {
		m.expire()
	}
	return Session{}, err
}

// goLiveLocked is idempotent for the identity that is already live.
func (m *Monitor) goLiveLocked(user *identity.User) Session {
	if m.state == Live && m.current.Identity == user.UID {
		m.current.Email = user.Email
		m.current.DisplayName = user.DisplayName
		return m.current
	}
	m.idle.Disarm()
	m.current = Session{
		Identity:    user.UID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		ProviderID:  user.ProviderID,
		IsLive:      true,
		StartedAt:   m.clock.Now(),
	}
	m.state = Live
	m.idle.Arm(m.idleTimeout)
	log.Info().Str("uid", user.UID).Str("provider", user.ProviderID).Msg("session started")
	return m.current
}

func (m *Monitor) onAuthState(user *identity.User) {
	// A notification the provider has already moved past is dropped; the newer
	// change is queued behind it.
	current := m.provider.CurrentUser()
	if isStale(user, current) {
		return
	}
	if current != nil {
		// The provider's view carries profile changes made after this was queued.
		user = current
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case user != nil && (m.state == Anonymous || m.state == Authenticating || m.state == Live):
		m.goLiveLocked(user)
	case user == nil && m.state == Live:
		log.Info().Str("uid", m.current.Identity).Msg("session ended by identity provider")
		m.endLocked()
	}
}

func isStale(notified, current *identity.User) bool {
	if notified == nil {
		return current != nil
	}
	return current == nil || current.UID != notified.UID
}

// Touch records user interaction and postpones idle expiry by a full window.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Live {
		m.idle.Reset()
	}
}

// SignOut ends the session locally before returning. Remote failures are logged.
func (m *Monitor) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Live || m.state == Authenticating {
		m.endLocked()
	}
	m.mu.Unlock()

	m.remoteSignOut(ctx)
	return nil
}

func (m *Monitor) endLocked() {
	m.idle.Disarm()
	m.current = Session{}
	m.state = Anonymous
	m.authPrev = Anonymous
}

func (m *Monitor) remoteSignOut(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		log.Err(err).Msg("identity provider sign-out failed, local session cleared")
	}
}

func (m *Monitor) expire() {
	m.mu.Lock()
	if m.state != Live {
		m.mu.Unlock()
		return
	}
	m.state = Expiring
	identityID := m.current.Identity
	ctx := m.ctx
	m.mu.Unlock()

	log.Info().Str("uid", identityID).Msg("idle timeout, signing out")
	m.remoteSignOut(ctx)

	m.mu.Lock()
	m.endLocked()
	notice := Notice{Identity: identityID, Reason: ReasonIdleTimeout, At: m.clock.Now()}
	m.pending = &notice
	handler := m.onExpiry
	m.mu.Unlock()

	if handler != nil {
		handler(notice)
	}
}

func (m *Monitor) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Live {
		return Session{}, false
	}
	return m.current, true
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Deadline() (time.Time, bool) {
	return m.idle.Deadline()
}

func (m *Monitor) PendingNotice() (Notice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Notice{}, false
	}
	return *m.pending, true
}

func (m *Monitor) AcknowledgeNotice() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}
