// Package foreground keeps the process in the foreground-privileged state
// while a scan cycle runs.
package foreground

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

// ErrStartDeadline is returned when the host took longer than the policy's
// foreground start deadline to promote the process.
var ErrStartDeadline = errors.New("foreground start deadline exceeded")

// Config is the persistent notification shown while privileged.
type Config struct {
	NotificationID int    `yaml:"notification_id" default:"1"`
	ChannelID      string `yaml:"channel_id" default:"BLE_SCAN_CHANNEL"`
	ChannelName    string `yaml:"channel_name" default:"BLE Scan Service"`
	Title          string `yaml:"title" default:"Scanning for BLE Devices"`
	Text           string `yaml:"text" default:"BLE scan running in the background"`
}

// DefaultConfig returns the stock notification.
func DefaultConfig() Config {
	var c Config
	defaults.SetDefaults(&c)
	return c
}

// Runner hands out the foreground lease. It is safe for concurrent use.
type Runner struct {
	cfg    Config
	policy policy.Policy
	host   platform.ForegroundHost
	clock  clockwork.Clock
	logger *logrus.Logger

	mu     sync.Mutex
	active *Lease
}

// New creates a runner. Zero fields of cfg take their defaults.
func New(cfg Config, p policy.Policy, host platform.ForegroundHost, clock clockwork.Clock, logger *logrus.Logger) *Runner {
	defaults.SetDefaults(&cfg)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		cfg:    cfg,
		policy: p,
		host:   host,
		clock:  clock,
		logger: logger,
	}
}

// Config returns the effective notification config.
func (r *Runner) Config() Config {
	return r.cfg
}

// Channel is the notification channel the runner posts to.
func (r *Runner) Channel() platform.NotificationChannel {
	return platform.NotificationChannel{
		ID:         r.cfg.ChannelID,
		Name:       r.cfg.ChannelName,
		Importance: platform.ImportanceLow,
	}
}

// EnsureChannel creates the notification channel on versions that have
// channels. Recreating an existing channel is harmless.
func (r *Runner) EnsureChannel() error {
	if !r.policy.NotificationChannels {
		return nil
	}
	if err := r.host.CreateNotificationChannel(r.Channel()); err != nil {
		return fmt.Errorf("failed to create notification channel %s: %w", r.cfg.ChannelID, err)
	}
	return nil
}

// Acquire promotes the process and returns the lease. While a lease is held
// Acquire returns it again instead of promoting twice.
func (r *Runner) Acquire() (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return r.active, nil
	}

	if err := r.EnsureChannel(); err != nil {
		return nil, err
	}

	n := platform.Notification{
		ChannelID: r.cfg.ChannelID,
		Title:     r.cfg.Title,
		Text:      r.cfg.Text,
	}

	began := r.clock.Now()
	if err := r.host.StartForeground(r.cfg.NotificationID, n); err != nil {
		return nil, fmt.Errorf("failed to enter foreground: %w", err)
	}

	if deadline := r.policy.ForegroundStartDeadline; deadline > 0 {
		if took := r.clock.Since(began); took > deadline {
			if err := r.host.StopForeground(r.cfg.NotificationID); err != nil {
				r.logger.WithError(err).Warn("Failed to leave foreground after missed deadline")
			}
			return nil, fmt.Errorf("%w: took %s, limit %s", ErrStartDeadline, took, deadline)
		}
	}

	lease := &Lease{runner: r}
	r.active = lease

	r.logger.WithFields(logrus.Fields{
		"notification_id": r.cfg.NotificationID,
		"channel":         r.cfg.ChannelID,
	}).Info("Entered foreground")
	return lease, nil
}

// Active reports whether a lease is held.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Runner) release(l *Lease) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != l {
		return nil
	}
	r.active = nil

	if err := r.host.StopForeground(r.cfg.NotificationID); err != nil {
		return fmt.Errorf("failed to leave foreground: %w", err)
	}
	r.logger.WithField("notification_id", r.cfg.NotificationID).Info("Left foreground")
	return nil
}

// Lease is the scoped foreground privilege.
type Lease struct {
	runner *Runner
	once   sync.Once
	err    error
}

// Release drops the privilege. Only the first call has an effect; later calls
// return the first call's error.
func (l *Lease) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() { l.err = l.runner.release(l) })
	return l.err
}
