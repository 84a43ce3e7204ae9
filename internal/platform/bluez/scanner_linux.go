//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/platform"
)

var errScanActive = errors.New("a scan is already registered")

// Scanner runs LE discovery through tinygo bluetooth. The stack supports one
// scan at a time.
type Scanner struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger

	mu      sync.Mutex
	enabled bool
	active  *scanHandle
}

func newScanner(adapter *bluetooth.Adapter, logger *logrus.Logger) *Scanner {
	return &Scanner{adapter: adapter, logger: logger}
}

type scanHandle struct {
	scanner  *Scanner
	done     chan struct{}
	failed   chan error
	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// StartScan implements platform.LeScanner. Settings are ignored: BlueZ has no
// duty-cycle or batching knobs and the scan is always unfiltered.
//
// tinygo's Scan blocks for the life of the scan, so it runs on its own
// goroutine and StartScan returns at once. A scan that BlueZ rejects or ends
// on its own is reported through Failed.
func (s *Scanner) StartScan(_ platform.ScanSettings, onResult func(platform.ScanResult)) (platform.ScanHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, errScanActive
	}
	if !s.enabled {
		if err := s.adapter.Enable(); err != nil {
			return nil, platform.NormalizeError(fmt.Errorf("enable BLE stack: %w", err))
		}
		s.enabled = true
	}

	h := &scanHandle{scanner: s, done: make(chan struct{}), failed: make(chan error, 1)}
	s.active = h

	groutine.Go(context.Background(), "bluez-scan", func(context.Context) {
		defer close(h.done)
		defer close(h.failed)

		err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			onResult(platform.ScanResult{
				Address:   r.Address.String(),
				Name:      r.LocalName(),
				RSSI:      int(r.RSSI),
				Timestamp: time.Now(),
			})
		})
		if h.stopping.Load() {
			return
		}
		if err == nil {
			err = errors.New("scan ended unexpectedly")
		}
		err = platform.NormalizeError(fmt.Errorf("scan: %w", err))
		s.logger.WithError(err).Warn("BlueZ discovery failed")
		h.failed <- err
	})

	s.logger.Debug("BlueZ discovery started")
	return h, nil
}

// Failed implements platform.FailingScanHandle.
func (h *scanHandle) Failed() <-chan error {
	return h.failed
}

// Stop implements platform.ScanHandle and waits for the scan to wind down.
func (h *scanHandle) Stop() error {
	h.stopOnce.Do(func() {
		s := h.scanner
		h.stopping.Store(true)

		select {
		case <-h.done:
		default:
			if err := s.adapter.StopScan(); err != nil {
				h.stopErr = fmt.Errorf("stop scan: %w", err)
			} else {
				<-h.done
			}
		}

		s.mu.Lock()
		if s.active == h {
			s.active = nil
		}
		s.mu.Unlock()
		s.logger.Debug("BlueZ discovery stopped")
	})
	return h.stopErr
}

var _ platform.FailingScanHandle = (*scanHandle)(nil)
