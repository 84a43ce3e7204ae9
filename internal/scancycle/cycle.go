// Package scancycle owns the native LE scan registration and restarts it on a
// fixed period so that chipsets which throttle long-running scans keep
// reporting results.
package scancycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/adapter"
	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/looper"
	"github.com/srg/tracktag/internal/permission"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/ringchan"
)

// DefaultPeriod is the scan window length between restarts.
const DefaultPeriod = 8 * time.Second

// DefaultResultBuffer is the result channel capacity.
const DefaultResultBuffer = 256

// State of the cycle.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Options configures a Cycle.
type Options struct {
	Period       time.Duration
	ResultBuffer int
	// Background adds the background-only permissions to the start checks.
	Background bool
	// OnHalt is called on the home goroutine when a periodic restart fails,
	// or a live registration reports a failure, and the cycle falls back to
	// Idle.
	OnHalt func(err error)
}

// DefaultOptions returns the reference cadence.
func DefaultOptions() Options {
	return Options{
		Period:       DefaultPeriod,
		ResultBuffer: DefaultResultBuffer,
	}
}

// Stats are lifetime counters.
type Stats struct {
	Starts   int
	Stops    int
	Ticks    int
	Results  int
	Stale    int
	Failures int
}

// Cycle is the scan session state machine. It holds at most one native scan
// handle at any time. All methods except Results must be called on the
// looper's home goroutine.
type Cycle struct {
	opts    Options
	scanner platform.LeScanner
	adapter *adapter.Controller
	gate    *permission.Gate
	looper  *looper.Looper
	logger  *logrus.Logger
	results *ringchan.RingChannel[platform.ScanResult]

	state      State
	handle     platform.ScanHandle
	timer      *looper.Timer
	generation uint64
	stats      Stats
}

// New creates an idle cycle.
func New(opts Options, scanner platform.LeScanner, ac *adapter.Controller, gate *permission.Gate, lp *looper.Looper, logger *logrus.Logger) *Cycle {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = DefaultResultBuffer
	}
	return &Cycle{
		opts:    opts,
		scanner: scanner,
		adapter: ac,
		gate:    gate,
		looper:  lp,
		logger:  logger,
		results: ringchan.New[platform.ScanResult](opts.ResultBuffer),
	}
}

// Settings are the registration settings used for every native scan: the
// most aggressive duty cycle, no batching and no filters.
func Settings() platform.ScanSettings {
	return platform.ScanSettings{
		Mode:        platform.ScanModeLowLatency,
		ReportDelay: 0,
	}
}

// State returns the current state.
func (c *Cycle) State() State {
	return c.state
}

// Period returns the restart period.
func (c *Cycle) Period() time.Duration {
	return c.opts.Period
}

// Stats returns the lifetime counters.
func (c *Cycle) Stats() Stats {
	return c.stats
}

// Results returns every match in discovery order, duplicates included. When
// the consumer falls behind the oldest results are overwritten.
func (c *Cycle) Results() <-chan platform.ScanResult {
	return c.results.C()
}

// Dropped returns how many results were overwritten before being read.
func (c *Cycle) Dropped() int64 {
	return c.results.GetMetrics().Overwritten
}

// Preconditions checks, right now, that scanning is allowed.
func (c *Cycle) Preconditions() error {
	st, err := c.adapter.State()
	if err != nil {
		return err
	}
	switch st {
	case adapter.StateAbsent:
		return platform.ErrAdapterAbsent
	case adapter.StateDisabled:
		return platform.ErrAdapterDisabled
	}

	if missing := c.gate.Missing(c.gate.RequiredPermissions(c.opts.Background)); len(missing) > 0 {
		return &platform.MissingPermissionsError{Missing: missing.Strings()}
	}
	return nil
}

// Start registers a scan and arms the restart timer. When already running the
// current registration is stopped first, so Start always costs exactly one
// native stop and one native start. A refused start has no side effects.
func (c *Cycle) Start() error {
	if err := c.Preconditions(); err != nil {
		c.logger.WithError(err).Warn("Scan start refused")
		return err
	}

	if c.state == Running {
		c.logger.Debug("Scan already running, restarting")
		c.disarm()
		c.release()
	}

	if err := c.register(); err != nil {
		c.state = Idle
		return err
	}
	c.state = Running
	c.arm()

	c.logger.WithField("period", c.opts.Period).Info("Scan cycle started")
	return nil
}

// Stop cancels the restart timer and unregisters the scan. It is a no-op when
// idle.
func (c *Cycle) Stop() {
	if c.state == Idle {
		return
	}
	c.disarm()
	c.release()
	c.generation++
	c.state = Idle

	c.logger.Info("Scan cycle stopped")
}

// Close stops the cycle and closes the result channel.
func (c *Cycle) Close() {
	c.Stop()
	c.results.Close()
}

func (c *Cycle) register() error {
	c.generation++
	gen := c.generation

	h, err := c.scanner.StartScan(Settings(), func(r platform.ScanResult) {
		c.looper.Post(func() { c.deliver(gen, r) })
	})
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", platform.NormalizeError(err))
	}
	c.handle = h
	c.stats.Starts++
	if fh, ok := h.(platform.FailingScanHandle); ok {
		c.watch(gen, fh)
	}

	c.logger.WithField("generation", gen).Debug("Native scan registered")
	return nil
}

// watch forwards a late registration failure to the home goroutine.
func (c *Cycle) watch(gen uint64, h platform.FailingScanHandle) {
	groutine.Go(context.Background(), fmt.Sprintf("scan-watch-%d", gen), func(context.Context) {
		if err, ok := <-h.Failed(); ok {
			c.looper.Post(func() { c.fail(gen, err) })
		}
	})
}

func (c *Cycle) fail(gen uint64, err error) {
	if c.state != Running || gen != c.generation {
		return
	}
	c.stats.Failures++
	c.disarm()
	c.release()
	c.halt(fmt.Errorf("scan failed: %w", platform.NormalizeError(err)))
}

func (c *Cycle) release() {
	if c.handle == nil {
		return
	}
	if err := c.handle.Stop(); err != nil {
		c.logger.WithError(err).Warn("Native scan stop failed")
	}
	c.handle = nil
	c.stats.Stops++
}

func (c *Cycle) arm() {
	gen := c.generation
	c.timer = c.looper.PostDelayed(c.opts.Period, func() { c.tick(gen) })
}

func (c *Cycle) disarm() {
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
}

func (c *Cycle) tick(gen uint64) {
	if c.state != Running || gen != c.generation {
		return
	}
	c.stats.Ticks++
	c.timer = nil
	c.release()

	err := c.Preconditions()
	if err == nil {
		err = c.register()
	}
	if err != nil {
		c.halt(err)
		return
	}
	c.arm()
}

func (c *Cycle) halt(err error) {
	c.generation++
	c.state = Idle
	if IsRefusal(err) {
		c.logger.WithError(err).Info("Scan preconditions lapsed, cycle halted")
	} else {
		c.logger.WithError(err).Warn("Scan restart failed, cycle halted")
	}
	if c.opts.OnHalt != nil {
		c.opts.OnHalt(err)
	}
}

func (c *Cycle) deliver(gen uint64, r platform.ScanResult) {
	if c.state != Running || gen != c.generation {
		c.stats.Stale++
		return
	}
	c.stats.Results++
	c.results.Send(r)
}

// IsRefusal reports whether err is a precondition refusal rather than a
// backend failure.
func IsRefusal(err error) bool {
	return errors.Is(err, platform.ErrAdapterAbsent) ||
		errors.Is(err, platform.ErrAdapterDisabled) ||
		errors.Is(err, platform.ErrPermissionMissing)
}
