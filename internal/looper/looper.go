// Package looper runs callbacks on a single home goroutine in arrival order.
//
// Every state-owning component of the scan lifecycle is driven from one
// Looper: public entry points, OS callbacks and timer ticks are all posted
// here, so no two callbacks ever run concurrently and the owned state needs
// no locks.
package looper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/groutine"
)

// ErrStopped is returned when work is posted to a looper that is not running.
var ErrStopped = errors.New("looper stopped")

const (
	stateNotStarted uint32 = iota
	stateRunning
	stateStopped
)

// Looper is a cooperative single-goroutine dispatcher.
type Looper struct {
	name   string
	clock  clockwork.Clock
	logger *logrus.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	quit  chan struct{}
	done  chan struct{}
	state atomic.Uint32

	processed atomic.Int64
	panics    atomic.Int64
}

// New creates a stopped looper. A nil clock means the real clock.
func New(name string, clock clockwork.Clock, logger *logrus.Logger) *Looper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Looper{
		name:   name,
		clock:  clock,
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Clock returns the clock timers are armed on.
func (l *Looper) Clock() clockwork.Clock {
	return l.clock
}

// Start launches the home goroutine. It may be called once.
func (l *Looper) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(stateNotStarted, stateRunning) {
		return fmt.Errorf("looper %s already started", l.name)
	}
	groutine.Go(ctx, l.name, l.loop)
	return nil
}

func (l *Looper) loop(ctx context.Context) {
	defer close(l.done)

	l.logger.WithField("looper", l.name).Debug("Looper started")
	for {
		select {
		case <-l.quit:
			l.logger.WithField("looper", l.name).Debug("Looper stopped")
			return
		case <-ctx.Done():
			l.state.Store(stateStopped)
			l.logger.WithField("looper", l.name).Debug("Looper context done")
			return
		case <-l.wake:
		}

		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.run(fn)

			// quit wins over a long queue
			select {
			case <-l.quit:
				return
			default:
			}
		}
	}
}

func (l *Looper) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// run executes fn; a panicking callback is logged and dropped.
func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.WithFields(logrus.Fields{
				"looper": l.name,
				"panic":  fmt.Sprint(r),
			}).Error("Callback panicked")
		}
	}()
	fn()
	l.processed.Add(1)
}

// Post enqueues fn. It returns false if the looper is stopped or fn is nil.
// Post never runs fn inline, even when called from the home goroutine.
func (l *Looper) Post(fn func()) bool {
	if fn == nil || l.state.Load() == stateStopped {
		return false
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Timer is a pending delayed callback.
type Timer struct {
	t        clockwork.Timer
	canceled atomic.Bool
}

// Cancel prevents the callback from running. A fire that was already queued
// on the home goroutine is dropped there.
func (t *Timer) Cancel() {
	if t == nil {
		return
	}
	t.canceled.Store(true)
	if t.t != nil {
		t.t.Stop()
	}
}

// Canceled reports whether Cancel was called.
func (t *Timer) Canceled() bool {
	return t != nil && t.canceled.Load()
}

// PostDelayed runs fn on the home goroutine after d.
func (l *Looper) PostDelayed(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if timer.canceled.Load() {
				return
			}
			fn()
		})
	})
	return timer
}

// Invoke runs fn on the home goroutine and waits for it to return.
// It must not be called from the home goroutine.
func (l *Looper) Invoke(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// the loop may have exited with fn still queued
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the home goroutine after the callback in progress and
// discards anything still queued. It is idempotent.
func (l *Looper) Stop() {
	prev := l.state.Swap(stateStopped)
	switch prev {
	case stateNotStarted:
		return
	case stateRunning:
		close(l.quit)
	}
	<-l.done

	l.mu.Lock()
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.WithFields(logrus.Fields{
			"looper":  l.name,
			"dropped": dropped,
		}).Debug("Discarded queued callbacks on stop")
	}
}

// Done is closed once the home goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Stats is a snapshot of looper counters.
type Stats struct {
	Processed int64
	Panics    int64
	Pending   int
}

// GetStats returns the current counters.
func (l *Looper) GetStats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Processed: l.processed.Load(),
		Panics:    l.panics.Load(),
		Pending:   pending,
	}
}
