package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/identity/inmemory"
	"github.com/jrsteele09/go-auth-client/persist"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane.doe@example.com"
	testPassword = "password123"
	window       = 30 * time.Second
	waitFor      = time.Second
	tick         = 5 * time.Millisecond
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []session.Notice
}

func (r *noticeRecorder) record(n session.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type fixture struct {
	monitor  *session.Monitor
	provider *inmemory.Provider
	clock    fakeClock
	notices  *noticeRecorder
}

func newFixture(t *testing.T, providerOptions ...inmemory.Option) *fixture {
	t.Helper()
	provider := inmemory.New(providerOptions...)
	t.Cleanup(provider.Close)

	ctx := context.Background()
	_, err := provider.CreateAccount(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx))

	clock := clockwork.NewFakeClock()
	notices := &noticeRecorder{}
	monitor, err := session.NewMonitor(provider,
		session.WithIdleTimeout(window),
		session.WithClock(clock),
		session.WithExpiryHandler(notices.record),
	)
	require.NoError(t, err)
	require.NoError(t, monitor.Start(ctx))
	t.Cleanup(monitor.Stop)

	return &fixture{monitor: monitor, provider: provider, clock: clock, notices: notices}
}

// signInViaProvider signs in directly and waits for the notification to go live.
func (f *fixture) signInViaProvider(t *testing.T) *identity.User {
	t.Helper()
	user, err := f.provider.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.monitor.State() == session.Live }, waitFor, tick)
	return user
}

func TestNewMonitor_RequiresProvider(t *testing.T) {
	_, err := session.NewMonitor(nil)
	require.Error(t, err)
}

func TestMonitor_StartsAnonymous(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, session.Anonymous, f.monitor.State())
	_, ok := f.monitor.Current()
	require.False(t, ok)
	_, armed := f.monitor.Deadline()
	require.False(t, armed)
}

func TestMonitor_StartTwiceFails(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.monitor.Start(context.Background()))
}

func TestMonitor_CompletionGoesLive(t *testing.T) {
	f := newFixture(t)

	complete, err := f.monitor.BeginAuthentication()
	require.NoError(t, err)
	require.Equal(t, session.Authenticating, f.monitor.State())

	user, err := f.provider.SignInWithPassword(context.Background(), testEmail, testPassword)
	s, err := complete(user, err)
	require.NoError(t, err)
	require.True(t, s.IsLive)
	require.Equal(t, user.UID, s.Identity)
	require.Equal(t, testEmail, s.Email)
	require.Equal(t, identity.PasswordProviderID, s.ProviderID)
	require.Equal(t, f.clock.Now(), s.StartedAt)

	require.Equal(t, session.Live, f.monitor.State())
	deadline, armed := f.monitor.Deadline()
	require.True(t, armed)
	require.Equal(t, f.clock.Now().Add(window), deadline)

	current, ok := f.monitor.Current()
	require.True(t, ok)
	require.Equal(t, s.Identity, current.Identity)

	// The provider notification for the same identity does not restart the session.
	require.Never(t, func() bool {
		c, _ := f.monitor.Current()
		return c.StartedAt != s.StartedAt
	}, 50*time.Millisecond, tick)
}

func TestMonitor_SecondBeginIsRejected(t *testing.T) {
	f := newFixture(t)

	complete, err := f.monitor.BeginAuthentication()
	require.NoError(t, err)

	_, err = f.monitor.BeginAuthentication()
	require.ErrorIs(t, err, session.ErrAuthenticationInProgress)

	_, err = complete(nil, errors.New("boom"))
	require.Error(t, err)

	_, err = f.monitor.BeginAuthentication()
	require.NoError(t, err)
}

func TestMonitor_FailedAuthenticationFromAnonymous(t *testing.T) {
	f := newFixture(t)

	complete, err := f.monitor.BeginAuthentication()
	require.NoError(t, err)
	user, err := f.provider.SignInWithPassword(context.Background(), testEmail, "wrong-password")
	require.Error(t, err)

	_, err = complete(user, err)
	require.Equal(t, identity.CodeInvalidCredential, identity.CodeOf(err))
	require.Equal(t, session.Anonymous, f.monitor.State())
	_, armed := f.monitor.Deadline()
	require.False(t, armed)
}

func TestMonitor_FailedAuthenticationFromLiveKeepsSession(t *testing.T) {
	f := newFixture(t)
	user := f.signInViaProvider(t)
	deadline, armed := f.monitor.Deadline()
	require.True(t, armed)

	complete, err := f.monitor.BeginAuthentication()
	require.NoError(t, err)
	_, err = complete(nil, identity.NewError(identity.CodeInvalidCredential, "INVALID_PASSWORD"))
	require.Error(t, err)

	require.Equal(t, session.Live, f.monitor.State())
	current, ok := f.monitor.Current()
	require.True(t, ok)
	require.Equal(t, user.UID, current.Identity)

	// The failed attempt does not extend the idle window.
	after, armed := f.monitor.Deadline()
	require.True(t, armed)
	require.Equal(t, deadline, after)
}

func TestMonitor_FailedAuthenticationAfterIdleDeadlineExpires(t *testing.T) {
	f := newFixture(t)
	user := f.signInViaProvider(t)

	complete, err := f.monitor.BeginAuthentication()
	require.NoError(t, err)

	f.clock.Advance(window + time.Second)
	require.Eventually(t, func() bool {
		_, armed := f.monitor.Deadline()
		return !armed
	}, waitFor, tick)
	require.Equal(t, session.Authenticating, f.monitor.State())
	require.Zero(t, f.notices.count())

	_, err = complete(nil, identity.NewError(identity.CodeInvalidCredential, "INVALID_PASSWORD"))
	require.Error(t, err)

	require.Equal(t, session.Anonymous, f.monitor.State())
	require.Equal(t, 1, f.notices.count())
	notice, ok := f.monitor.PendingNotice()
	require.True(t, ok)
	require.Equal(t, user.UID, notice.Identity)
	require.Equal(t, session.ReasonIdleTimeout, notice.Reason)
	require.Nil(t, f.provider.CurrentUser())
}

func TestMonitor_CompletionWithoutUserFails(t *testing.T) {
	f := newFixture(t)

	complete, err := f.monitor.BeginAuthentication()
	require.NoError(t, err)
	_, err = complete(nil, nil)
	require.ErrorIs(t, err, session.ErrNoUser)
	require.Equal(t, session.Anonymous, f.monitor.State())

	// Completions are single use.
	_, err = complete(&identity.User{UID: "late"}, nil)
	require.ErrorIs(t, err, session.ErrNoUser)
	require.Equal(t, session.Anonymous, f.monitor.State())
}

func TestMonitor_IdleExpiryForcesExactlyOneSignOut(t *testing.T) {
	f := newFixture(t)
	user := f.signInViaProvider(t)

	f.clock.Advance(31 * time.Second)

	require.Eventually(t, func() bool { return f.notices.count() == 1 }, waitFor, tick)
	require.Equal(t, session.Anonymous, f.monitor.State())
	require.Nil(t, f.provider.CurrentUser())
	_, ok := f.monitor.Current()
	require.False(t, ok)

	notice, ok := f.monitor.PendingNotice()
	require.True(t, ok)
	require.Equal(t, user.UID, notice.Identity)
	require.Equal(t, session.ReasonIdleTimeout, notice.Reason)

	f.clock.Advance(time.Minute)
	require.Never(t, func() bool { return f.notices.count() != 1 }, 50*time.Millisecond, tick)

	f.monitor.AcknowledgeNotice()
	_, ok = f.monitor.PendingNotice()
	require.False(t, ok)
}

func TestMonitor_TouchPostponesExpiryByWindow(t *testing.T) {
	f := newFixture(t)
	f.signInViaProvider(t)

	f.clock.Advance(20 * time.Second)
	f.monitor.Touch()

	deadline, armed := f.monitor.Deadline()
	require.True(t, armed)
	require.Equal(t, f.clock.Now().Add(window), deadline)

	f.clock.Advance(29 * time.Second)
	require.Never(t, func() bool { return f.monitor.State() != session.Live }, 50*time.Millisecond, tick)

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.monitor.State() == session.Anonymous }, waitFor, tick)
	require.Eventually(t, func() bool { return f.notices.count() == 1 }, waitFor, tick)
}

func TestMonitor_TouchWhileAnonymousIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.monitor.Touch()
	_, armed := f.monitor.Deadline()
	require.False(t, armed)
	require.Equal(t, session.Anonymous, f.monitor.State())
}

func TestMonitor_ExternalSignOutIsImmediateWithoutNotice(t *testing.T) {
	f := newFixture(t)
	f.signInViaProvider(t)

	f.provider.ExpireCurrentUser(context.Background())

	require.Eventually(t, func() bool { return f.monitor.State() == session.Anonymous }, waitFor, tick)
	_, armed := f.monitor.Deadline()
	require.False(t, armed)
	_, pending := f.monitor.PendingNotice()
	require.False(t, pending)
	require.Zero(t, f.notices.count())

	f.clock.Advance(time.Minute)
	require.Never(t, func() bool { return f.notices.count() != 0 }, 50*time.Millisecond, tick)
}

func TestMonitor_ExplicitSignOutClearsSynchronously(t *testing.T) {
	f := newFixture(t)
	f.signInViaProvider(t)

	require.NoError(t, f.monitor.SignOut(context.Background()))

	require.Equal(t, session.Anonymous, f.monitor.State())
	_, armed := f.monitor.Deadline()
	require.False(t, armed)
	require.Nil(t, f.provider.CurrentUser())

	f.clock.Advance(time.Minute)
	require.Never(t, func() bool { return f.notices.count() != 0 }, 50*time.Millisecond, tick)
}

func TestMonitor_SignOutSwallowsRemoteFailure(t *testing.T) {
	f := newFixture(t)
	f.signInViaProvider(t)
	f.provider.FailNext(inmemory.OpSignOut, identity.NewError(identity.CodeNetwork, "network unreachable"))

	require.NoError(t, f.monitor.SignOut(context.Background()))
	require.Equal(t, session.Anonymous, f.monitor.State())
	require.Nil(t, f.provider.CurrentUser())
}

func TestMonitor_RestoredUserIsLiveOnStart(t *testing.T) {
	ctx := context.Background()
	slot := persist.NewMemorySlot()
	key := []byte("0123456789abcdef0123456789abcdef")

	first := inmemory.New(inmemory.WithSlot(slot), inmemory.WithSigningKey(key))
	t.Cleanup(first.Close)
	created, err := first.CreateAccount(ctx, testEmail, testPassword)
	require.NoError(t, err)

	restarted := inmemory.New(inmemory.WithSlot(slot), inmemory.WithSigningKey(key))
	t.Cleanup(restarted.Close)
	require.NoError(t, restarted.Restore(ctx))

	monitor, err := session.NewMonitor(restarted, session.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	require.NoError(t, monitor.Start(ctx))
	t.Cleanup(monitor.Stop)

	require.Eventually(t, func() bool { return monitor.State() == session.Live }, waitFor, tick)
	current, ok := monitor.Current()
	require.True(t, ok)
	require.Equal(t, created.UID, current.Identity)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "Anonymous", session.Anonymous.String())
	require.Equal(t, "Authenticating", session.Authenticating.String())
	require.Equal(t, "Live", session.Live.String())
	require.Equal(t, "Expiring", session.Expiring.String())
}
