package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// IdleClock is a resettable one-shot timer. onExpiry runs at most once per Arm,
// never after Disarm has returned, and never for a superseded deadline.
type IdleClock struct {
	clock    clockwork.Clock
	onExpiry func()

	mu         sync.Mutex
	window     time.Duration
	deadline   time.Time
	armed      bool
	timer      clockwork.Timer
	generation uint64
}

func NewIdleClock(clock clockwork.Clock, onExpiry func()) *IdleClock {
	return &IdleClock{clock: clock, onExpiry: onExpiry}
}

// Arm starts (or restarts) the countdown with the given window.
func (c *IdleClock) Arm(window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = window
	c.armed = true
	c.scheduleLocked()
}

// Reset pushes the deadline to now+window. No-op while disarmed.
func (c *IdleClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return
	}
	c.scheduleLocked()
}

func (c *IdleClock) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *IdleClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func (c *IdleClock) Deadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline, c.armed
}

func (c *IdleClock) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.deadline = c.clock.Now().Add(c.window)
	c.timer = c.clock.AfterFunc(c.window, func() { c.fire(gen) })
}

func (c *IdleClock) fire(gen uint64) {
	c.mu.Lock()
	if !c.armed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.armed = false
	c.timer = nil
	c.mu.Unlock()

	if c.onExpiry != nil {
		c.onExpiry()
	}
}
