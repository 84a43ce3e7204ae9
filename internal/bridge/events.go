package bridge

import (
	"sync"
	"sync/atomic"
)

// EventHandler receives events from an EventChannel. Handlers run on the
// emitting goroutine and must not block.
type EventHandler struct {
	OnEvent func(ev Event)
	OnDone  func()
}

// Subscription is an active listener.
type Subscription struct {
	channel  *EventChannel
	handler  EventHandler
	canceled atomic.Bool
}

// Cancel stops delivery to this subscription.
func (s *Subscription) Cancel() {
	if s.canceled.CompareAndSwap(false, true) {
		s.channel.remove(s)
	}
}

// IsCanceled reports whether Cancel was called or the channel closed.
func (s *Subscription) IsCanceled() bool {
	return s.canceled.Load()
}

// EventChannel fans events out to subscribers. Every subscriber sees every
// event at most once, in emission order.
type EventChannel struct {
	name string

	// emitMu serializes Emit so sequence numbers and delivery order agree.
	emitMu sync.Mutex
	mu     sync.Mutex
	subs   []*Subscription
	seq    uint64
	closed bool
}

// NewEventChannel creates an event channel.
func NewEventChannel(name string) *EventChannel {
	return &EventChannel{name: name}
}

// Name returns the channel name.
func (c *EventChannel) Name() string {
	return c.name
}

// Listen subscribes handler. Listening on a closed channel calls OnDone
// immediately.
func (c *EventChannel) Listen(handler EventHandler) *Subscription {
	sub := &Subscription{channel: c, handler: handler}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.canceled.Store(true)
		if handler.OnDone != nil {
			handler.OnDone()
		}
		return sub
	}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *EventChannel) remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// Listeners returns the number of active subscriptions.
func (c *EventChannel) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Emit sends one event to every subscriber. It returns ErrClosed after Close.
func (c *EventChannel) Emit(name string, payload any) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	ev := Event{Seq: c.seq, Name: name, Payload: payload}
	subs := make([]*Subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		if !sub.IsCanceled() && sub.handler.OnEvent != nil {
			sub.handler.OnEvent(ev)
		}
	}
	return nil
}

// Close ends the stream; every subscriber gets OnDone once.
func (c *EventChannel) Close() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		if sub.canceled.CompareAndSwap(false, true) && sub.handler.OnDone != nil {
			sub.handler.OnDone()
		}
	}
}
