// Package lifecycle chains permission resolution, adapter enablement, the
// scan cycle and the foreground lease into the host-facing commands.
//
// Ordering: permissions are resolved first, then the adapter is enabled, then
// the scan cycle starts, and only then is the foreground lease taken. The
// lease is released whenever the cycle stops, for any reason.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/adapter"
	"github.com/srg/tracktag/internal/discovery"
	"github.com/srg/tracktag/internal/foreground"
	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/looper"
	"github.com/srg/tracktag/internal/permission"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
	"github.com/srg/tracktag/internal/scancycle"
)

// Event names sent to the host.
const (
	EventBluetoothEnabled   = "onBluetoothEnabled"
	EventBluetoothDenied    = "onBluetoothDenied"
	EventPermissionsGranted = "onPermissionsGranted"
	EventPermissionsDenied  = "onPermissionsDenied"
	EventDeviceDiscovered   = "onDeviceDiscovered"
	EventScanStopped        = "onScanStopped"
)

// DefaultHistorySize is the number of raw results kept for polling consumers.
const DefaultHistorySize uint32 = 1024

// EnableStatus is the immediate answer to RequestEnableBluetooth.
type EnableStatus string

const (
	// StatusEnabled means the adapter is on and the scan cycle is running.
	StatusEnabled EnableStatus = "enabled"
	// StatusPermissionsRequested means a permission dialog is showing; the
	// chain continues when it is answered.
	StatusPermissionsRequested EnableStatus = "permissions_requested"
	// StatusEnableRequested means the interactive enable prompt is showing.
	StatusEnableRequested EnableStatus = "enable_requested"
)

// errCycleLost marks a restart that failed after the running scan was already
// torn down. The stop has been reported by the time it is returned.
var errCycleLost = errors.New("running scan lost")

// Emitter delivers events to the host.
type Emitter interface {
	Emit(name string, payload any) error
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, any) error { return nil }

// Options configures a Manager.
type Options struct {
	// Background runs the cycle under the foreground lease and requires the
	// background-only permissions.
	Background  bool
	Scan        scancycle.Options
	Foreground  foreground.Config
	HistorySize uint32
	Clock       clockwork.Clock
}

// DiscoveredDevice is the payload of EventDeviceDiscovered.
type DiscoveredDevice struct {
	platform.ScanResult
	New bool `json:"new"`
}

// ScanStopped is the payload of EventScanStopped.
type ScanStopped struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Manager owns every lifecycle component and the home goroutine they run on.
// Its exported methods are safe for concurrent use.
type Manager struct {
	opts     Options
	platform platform.Platform
	policy   policy.Policy
	logger   *logrus.Logger
	emitter  Emitter

	looper   *looper.Looper
	gate     *permission.Gate
	adapter  *adapter.Controller
	cycle    *scancycle.Cycle
	runner   *foreground.Runner
	registry *discovery.Registry
	history  *discovery.History

	// owned by the home goroutine
	attempt uint64
	lease   *foreground.Lease

	started   atomic.Bool
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// New wires a manager for p. Call Start before any command.
func New(opts Options, p platform.Platform, emitter Emitter, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if opts.HistorySize == 0 {
		opts.HistorySize = DefaultHistorySize
	}

	history, err := discovery.NewHistory(opts.HistorySize)
	if err != nil {
		return nil, err
	}

	pol := policy.For(p.Version())
	lp := looper.New("lifecycle", opts.Clock, logger)

	m := &Manager{
		platform: p,
		policy:   pol,
		logger:   logger,
		emitter:  emitter,
		looper:   lp,
		registry: discovery.NewRegistry(),
		history:  history,
		pumpDone: make(chan struct{}),
	}

	opts.Scan.Background = opts.Background
	opts.Scan.OnHalt = m.onHalt
	m.opts = opts

	m.gate = permission.NewGate(pol, p.Permissions(), lp, logger)
	m.adapter = adapter.NewController(pol, p.Adapter(), lp, logger)
	m.cycle = scancycle.New(opts.Scan, p.Scanner(), m.adapter, m.gate, lp, logger)
	m.runner = foreground.New(opts.Foreground, pol, p.Foreground(), lp.Clock(), logger)

	return m, nil
}

// Start launches the home goroutine and the result pump. When running in
// background mode the notification channel is created right away.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.looper.Start(ctx); err != nil {
		return err
	}
	m.started.Store(true)

	if m.opts.Background {
		if err := m.runner.EnsureChannel(); err != nil {
			m.logger.WithError(err).Warn("Notification channel setup failed")
		}
	}

	groutine.GoSafe(ctx, "scan-results", m.logger, m.pump, nil)

	m.logger.WithFields(logrus.Fields{
		"platform":    m.platform.Name(),
		"version":     int(m.policy.Version),
		"permissions": m.policy.Permissions.String(),
		"enable":      m.policy.Enable.String(),
		"background":  m.opts.Background,
	}).Info("Lifecycle manager started")
	return nil
}

func (m *Manager) pump(_ context.Context) {
	defer close(m.pumpDone)

	for r := range m.cycle.Results() {
		isNew := m.registry.Observe(r)
		if err := m.history.Push(r); err != nil {
			m.logger.WithError(err).Warn("Failed to record scan result")
		}
		if isNew {
			m.logger.WithFields(logrus.Fields{
				"address": r.Address,
				"name":    r.Name,
				"rssi":    r.RSSI,
			}).Info("Discovered new device")
		}
		m.emit(EventDeviceDiscovered, DiscoveredDevice{ScanResult: r, New: isNew})
	}
}

func (m *Manager) emit(name string, payload any) {
	if err := m.emitter.Emit(name, payload); err != nil {
		m.logger.WithError(err).WithField("event", name).Debug("Event not delivered")
	}
}

// Policy returns the version-derived policy in effect.
func (m *Manager) Policy() policy.Policy {
	return m.policy
}

// Registry returns the discovered-device registry.
func (m *Manager) Registry() *discovery.Registry {
	return m.registry
}

// History returns the raw result history.
func (m *Manager) History() *discovery.History {
	return m.history
}

// onHome runs fn on the home goroutine and waits for it.
func (m *Manager) onHome(ctx context.Context, fn func()) error {
	return m.looper.Invoke(ctx, fn)
}

// RequestEnableBluetooth resolves permissions, enables the adapter and starts
// scanning. It answers as soon as the chain either completes or has to wait
// for the user; later progress is reported through events.
func (m *Manager) RequestEnableBluetooth(ctx context.Context) (EnableStatus, error) {
	var (
		status EnableStatus
		err    error
	)
	if ierr := m.onHome(ctx, func() { status, err = m.requestEnable() }); ierr != nil {
		return "", ierr
	}
	return status, err
}

func (m *Manager) requestEnable() (EnableStatus, error) {
	m.attempt++
	attempt := m.attempt

	if m.adapter.Presence() == adapter.Absent {
		return "", platform.ErrAdapterAbsent
	}

	missing := m.gate.Missing(m.gate.RequiredPermissions(m.opts.Background))
	if len(missing) > 0 {
		err := m.gate.RequestMissing(missing, func(o permission.Outcome) { m.onPermissions(attempt, o) })
		if err != nil {
			return "", err
		}
		return StatusPermissionsRequested, nil
	}
	return m.enableAndScan(attempt)
}

func (m *Manager) onPermissions(attempt uint64, o permission.Outcome) {
	if !o.Granted() {
		m.emit(EventPermissionsDenied, nil)
		return
	}
	m.emit(EventPermissionsGranted, nil)

	if attempt != m.attempt {
		m.logger.WithField("attempt", attempt).Debug("Permission answer outlived its attempt")
		return
	}
	if _, err := m.enableAndScan(attempt); err != nil && !errors.Is(err, errCycleLost) {
		m.reportStopped(err)
	}
}

func (m *Manager) enableAndScan(attempt uint64) (EnableStatus, error) {
	res, err := m.adapter.Enable(func(ok bool) { m.onEnableAnswer(attempt, ok) })
	if err != nil {
		return "", err
	}
	if res == adapter.EnableSubmitted {
		return StatusEnableRequested, nil
	}
	if err := m.startScan(); err != nil {
		return "", err
	}
	return StatusEnabled, nil
}

func (m *Manager) onEnableAnswer(attempt uint64, confirmed bool) {
	if !confirmed {
		m.emit(EventBluetoothDenied, nil)
		return
	}
	m.emit(EventBluetoothEnabled, nil)

	if attempt != m.attempt {
		m.logger.WithField("attempt", attempt).Debug("Enable answer outlived its attempt")
		return
	}
	if err := m.startScan(); err != nil && !errors.Is(err, errCycleLost) {
		m.reportStopped(err)
	}
}

func (m *Manager) startScan() error {
	wasRunning := m.cycle.State() == scancycle.Running
	if err := m.cycle.Start(); err != nil {
		if !wasRunning || m.cycle.State() != scancycle.Idle {
			return err
		}
		m.onHalt(err)
		return fmt.Errorf("%w: %w", errCycleLost, err)
	}
	if !m.opts.Background || m.lease != nil {
		return nil
	}

	lease, err := m.runner.Acquire()
	if err != nil {
		m.cycle.Stop()
		return fmt.Errorf("background execution unavailable: %w", err)
	}
	m.lease = lease
	return nil
}

func (m *Manager) releaseLease() {
	if m.lease == nil {
		return
	}
	if err := m.lease.Release(); err != nil {
		m.logger.WithError(err).Warn("Foreground release failed")
	}
	m.lease = nil
}

func (m *Manager) onHalt(err error) {
	m.releaseLease()
	m.reportStopped(err)
}

func (m *Manager) reportStopped(err error) {
	ce := ChannelError(err)
	m.logger.WithError(err).Warn("Scan stopped")
	m.emit(EventScanStopped, ScanStopped{Code: ce.Code, Reason: ce.Message})
}

// StartScan starts (or restarts) the scan cycle without running the
// permission or enable steps. It fails if either precondition is unmet.
func (m *Manager) StartScan(ctx context.Context) error {
	var err error
	if ierr := m.onHome(ctx, func() {
		m.attempt++
		err = m.startScan()
	}); ierr != nil {
		return ierr
	}
	return err
}

// StopScan stops the cycle and releases the foreground lease. Pending dialog
// answers still produce their events but no longer start a scan.
func (m *Manager) StopScan(ctx context.Context) error {
	return m.onHome(ctx, func() {
		m.attempt++
		m.cycle.Stop()
		m.releaseLease()
	})
}

// CheckLocationServices reports whether the OS location service is on.
func (m *Manager) CheckLocationServices(_ context.Context) (bool, error) {
	on, err := m.platform.Location().LocationEnabled()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errLocationQuery, err)
	}
	return on, nil
}

// Snapshot is a point-in-time view of the lifecycle.
type Snapshot struct {
	Platform           string          `json:"platform"`
	Version            int             `json:"platform_version"`
	PermissionModel    string          `json:"permission_model"`
	EnableMode         string          `json:"enable_mode"`
	Adapter            string          `json:"adapter"`
	Scan               string          `json:"scan"`
	Period             string          `json:"period"`
	Background         bool            `json:"background"`
	Foreground         bool            `json:"foreground"`
	Required           []string        `json:"required_permissions"`
	Missing            []string        `json:"missing_permissions"`
	PermissionsPending bool            `json:"permissions_pending"`
	EnablePending      bool            `json:"enable_pending"`
	Devices            int             `json:"devices"`
	Cycle              scancycle.Stats `json:"cycle"`
}

// State returns a snapshot.
func (m *Manager) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := m.onHome(ctx, func() {
		adapterState, aerr := m.adapter.State()
		adapterName := adapterState.String()
		if aerr != nil {
			adapterName = "unknown"
		}
		required := m.gate.RequiredPermissions(m.opts.Background)

		snap = Snapshot{
			Platform:           m.platform.Name(),
			Version:            int(m.policy.Version),
			PermissionModel:    m.policy.Permissions.String(),
			EnableMode:         m.policy.Enable.String(),
			Adapter:            adapterName,
			Scan:               m.cycle.State().String(),
			Period:             m.cycle.Period().String(),
			Background:         m.opts.Background,
			Foreground:         m.runner.Active(),
			Required:           required.Strings(),
			Missing:            m.gate.Missing(required).Strings(),
			PermissionsPending: m.gate.InFlight(),
			EnablePending:      m.adapter.Awaiting(),
			Devices:            m.registry.Len(),
			Cycle:              m.cycle.Stats(),
		}
	})
	return snap, err
}

// Close stops scanning, drops pending dialog answers, releases the foreground
// lease and stops the home goroutine. It is idempotent.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		shutdown := func() {
			m.attempt++
			m.gate.Abandon()
			m.adapter.Abandon()
			m.cycle.Close()
			m.releaseLease()
		}

		if !m.started.Load() {
			shutdown()
			close(m.pumpDone)
			return
		}

		if ierr := m.onHome(ctx, shutdown); ierr != nil {
			// once the looper is stopped nothing else touches the owned state
			m.looper.Stop()
			shutdown()
		} else {
			m.looper.Stop()
		}

		select {
		case <-m.pumpDone:
		case <-ctx.Done():
			err = ctx.Err()
		}
		m.logger.Info("Lifecycle manager closed")
	})
	return err
}
