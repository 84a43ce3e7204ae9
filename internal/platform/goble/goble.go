// Package goble is the macOS backend: CoreBluetooth through go-ble. The
// permission and location tables come from the desktop package.
package goble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/desktop"
	"github.com/srg/tracktag/internal/policy"
)

// scanDevice is the part of ble.Device the backend uses.
type scanDevice interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Stop() error
}

// DeviceFactory creates the go-ble device (can be overridden in tests).
var DeviceFactory = func() (scanDevice, error) {
	return newDevice()
}

// Config configures the macOS backend.
type Config struct {
	Version     policy.Version
	Permissions *desktop.Permissions
	Location    *desktop.Location
	Prompt      desktop.Confirmer
	// Status receives the foreground status line; nil means stderr.
	Status io.Writer
}

// Platform implements platform.Platform on go-ble.
type Platform struct {
	version     policy.Version
	permissions *desktop.Permissions
	adapter     *Adapter
	scanner     *Scanner
	location    *desktop.Location
	foreground  *desktop.ConsoleForeground
}

var (
	_ platform.Platform          = (*Platform)(nil)
	_ platform.FailingScanHandle = (*scanHandle)(nil)
)

// New creates the backend. The CoreBluetooth manager is created lazily, on
// the first adapter query.
func New(cfg Config, logger *logrus.Logger) *Platform {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Status == nil {
		cfg.Status = os.Stderr
	}
	perms := cfg.Permissions
	if perms == nil {
		perms = desktop.NewPermissions(nil, cfg.Prompt, logger)
	}
	loc := cfg.Location
	if loc == nil {
		loc, _ = desktop.NewLocation("")
	}

	a := &Adapter{prompt: desktop.NewEnablePrompt(cfg.Prompt, logger), logger: logger}
	return &Platform{
		version:     cfg.Version,
		permissions: perms,
		adapter:     a,
		scanner:     &Scanner{adapter: a, logger: logger},
		location:    loc,
		foreground:  desktop.NewConsoleForeground(cfg.Status, logger),
	}
}

func (p *Platform) Name() string            { return "goble" }
func (p *Platform) Version() policy.Version { return p.version }

func (p *Platform) Permissions() platform.PermissionTable { return p.permissions }
func (p *Platform) Adapter() platform.Adapter             { return p.adapter }
func (p *Platform) Scanner() platform.LeScanner           { return p.scanner }
func (p *Platform) Location() platform.LocationSettings   { return p.location }
func (p *Platform) Foreground() platform.ForegroundHost   { return p.foreground }

// Close stops the CoreBluetooth manager, if one was created.
func (p *Platform) Close() error {
	return p.adapter.close()
}

// Adapter probes the radio by creating the go-ble device: creation fails
// while Bluetooth is off or unsupported. Once created the device is reused
// and the radio is assumed on until a scan says otherwise.
type Adapter struct {
	prompt *desktop.EnablePrompt
	logger *logrus.Logger

	mu      sync.Mutex
	dev     scanDevice
	lastErr error
}

func (a *Adapter) probe() (scanDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		a.lastErr = platform.NormalizeError(err)
		return nil, a.lastErr
	}
	a.dev = dev
	a.lastErr = nil
	return dev, nil
}

// invalidate drops the cached device after the radio went away.
func (a *Adapter) invalidate(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		_ = a.dev.Stop()
	}
	a.dev = nil
	a.lastErr = err
}

func (a *Adapter) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return nil
	}
	err := a.dev.Stop()
	a.dev = nil
	return err
}

// Present implements platform.Adapter. A radio that is merely off is present.
func (a *Adapter) Present() bool {
	_, err := a.probe()
	return err == nil || !errors.Is(err, platform.ErrAdapterAbsent)
}

// Enabled implements platform.Adapter.
func (a *Adapter) Enabled() (bool, error) {
	_, err := a.probe()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, platform.ErrAdapterDisabled):
		return false, nil
	default:
		return false, err
	}
}

// EnableNow implements platform.Adapter. macOS does not let processes power
// the radio.
func (a *Adapter) EnableNow() error {
	return fmt.Errorf("%w: macOS cannot power Bluetooth programmatically", platform.ErrUnsupported)
}

// RequestEnable implements platform.Adapter: the user turns Bluetooth on in
// system settings and confirms, then the radio is probed again.
func (a *Adapter) RequestEnable(onResult func(confirmed bool)) error {
	return a.prompt.Ask(func() error {
		_, err := a.probe()
		return err
	}, onResult)
}

// Scanner runs go-ble scans.
type Scanner struct {
	adapter *Adapter
	logger  *logrus.Logger
}

type scanHandle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	failed   chan error
	stopOnce sync.Once
}

// StartScan implements platform.LeScanner. Duplicates are allowed so every
// advertisement is reported, matching an unbatched OS scan.
func (s *Scanner) StartScan(_ platform.ScanSettings, onResult func(platform.ScanResult)) (platform.ScanHandle, error) {
	dev, err := s.adapter.probe()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &scanHandle{cancel: cancel, done: make(chan struct{}), failed: make(chan error, 1)}

	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		defer close(h.done)
		defer close(h.failed)
		err := dev.Scan(ctx, true, func(adv ble.Advertisement) {
			onResult(platform.ScanResult{
				Address:   adv.Addr().String(),
				Name:      adv.LocalName(),
				RSSI:      adv.RSSI(),
				Timestamp: time.Now(),
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			err = platform.NormalizeError(err)
			s.logger.WithError(err).Warn("go-ble scan ended")
			if errors.Is(err, platform.ErrAdapterDisabled) {
				s.adapter.invalidate(err)
			}
			h.failed <- err
		}
	})
	return h, nil
}

// Failed implements platform.FailingScanHandle.
func (h *scanHandle) Failed() <-chan error {
	return h.failed
}

// Stop implements platform.ScanHandle.
func (h *scanHandle) Stop() error {
	h.stopOnce.Do(func() {
		h.cancel()
		<-h.done
	})
	return nil
}
