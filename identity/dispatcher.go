package identity

import (
	"sync"
	"sync/atomic"
)

type subscription struct {
	fn        func(*User)
	cancelled atomic.Bool
	delivery  sync.Mutex
}

// Cancel stops delivery. A callback already running finishes before Cancel
// returns, so Cancel must not be called from inside the callback.
func (s *subscription) Cancel() {
	s.cancelled.Store(true)
	s.delivery.Lock()
	s.delivery.Unlock()
}

func (s *subscription) deliver(user *User) {
	s.delivery.Lock()
	defer s.delivery.Unlock()
	if s.cancelled.Load() {
		return
	}
	s.fn(user)
}

type event struct {
	sub  *subscription
	user *User
}

// Dispatcher delivers auth-state changes to a single subscriber from one goroutine,
// so notifications are never handled concurrently and arrive in publish order.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []event
	sub    *subscription
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the delivery goroutine. Call Close to stop it.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Subscribe replaces the current subscriber. The previous one is cancelled and
// receives nothing further. initial is queued for the new subscriber only.
func (d *Dispatcher) Subscribe(fn func(*User), initial *User) Subscription {
	sub := &subscription{fn: fn}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		d.sub.cancelled.Store(true)
	}
	d.sub = sub
	if !d.closed {
		d.queue = append(d.queue, event{sub: sub, user: initial.Clone()})
		d.cond.Signal()
	}
	return sub
}

// Publish queues a change for the current subscriber, if any.
func (d *Dispatcher) Publish(user *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.sub == nil || d.sub.cancelled.Load() {
		return
	}
	d.queue = append(d.queue, event{sub: d.sub, user: user.Clone()})
	d.cond.Signal()
}

// Close stops delivery once the queue has drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		ev.sub.deliver(ev.user)
	}
}
