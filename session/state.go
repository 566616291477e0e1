package session

import (
	"errors"
	"time"
)

// ReasonIdleTimeout is the notice reason for inactivity expiry.
const ReasonIdleTimeout = "idle timeout"

// ErrAuthenticationInProgress rejects a sign-in while another one is outstanding
// or while a forced sign-out is running.
var ErrAuthenticationInProgress = errors.New("authentication already in progress")

// ErrNoUser is returned by a Completion that succeeded without a user.
var ErrNoUser = errors.New("authentication returned no user")

type State int

const (
	Anonymous State = iota
	Authenticating
	Live
	Expiring
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "Anonymous"
	case Authenticating:
		return "Authenticating"
	case Live:
		return "Live"
	case Expiring:
		return "Expiring"
	default:
		return "Unknown"
	}
}

// Session is the authenticated period of one identity.
type Session struct {
	Identity    string
	Email       string
	DisplayName string
	ProviderID  string
	IsLive      bool
	StartedAt   time.Time
}

// Notice tells the user why they were signed out.
type Notice struct {
	Identity string
	Reason   string
	At       time.Time
}
