package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/platform"
)

// Scanner is the simulated LE scanner. It records every registration so tests
// can assert that handles never overlap.
type Scanner struct {
	clock  clockwork.Clock
	logger *logrus.Logger
	feed   []platform.ScanResult

	mu        sync.Mutex
	nextID    int
	active    map[int]*scanHandle
	starts    int
	stops     int
	maxActive int
	last      platform.ScanSettings
	startErr  error
	cursor    int
	interval  func() clockwork.Ticker
}

type scanHandle struct {
	id       int
	s        *Scanner
	onResult func(platform.ScanResult)
	cancel   context.CancelFunc
	once     sync.Once

	failMu  sync.Mutex
	failed  chan error
	stopped bool
}

func newScanner(cfg Config, clock clockwork.Clock, logger *logrus.Logger) *Scanner {
	s := &Scanner{
		clock:  clock,
		logger: logger,
		feed:   append([]platform.ScanResult(nil), cfg.Feed...),
		active: make(map[int]*scanHandle),
	}
	if len(s.feed) > 0 && cfg.FeedInterval > 0 {
		interval := cfg.FeedInterval
		s.interval = func() clockwork.Ticker { return clock.NewTicker(interval) }
	}
	return s
}

// StartScan implements platform.LeScanner.
func (s *Scanner) StartScan(settings platform.ScanSettings, onResult func(platform.ScanResult)) (platform.ScanHandle, error) {
	s.mu.Lock()
	if s.startErr != nil {
		err := s.startErr
		s.mu.Unlock()
		return nil, err
	}

	s.nextID++
	h := &scanHandle{id: s.nextID, s: s, onResult: onResult, failed: make(chan error, 1)}
	s.active[h.id] = h
	s.starts++
	s.last = settings
	if len(s.active) > s.maxActive {
		s.maxActive = len(s.active)
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"handle": h.id,
		"mode":   settings.Mode.String(),
	}).Debug("Simulated scan registered")

	if s.interval != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		groutine.Go(ctx, fmt.Sprintf("sim-feed-%d", h.id), h.runFeed)
	}
	return h, nil
}

func (h *scanHandle) runFeed(ctx context.Context) {
	ticker := h.s.interval()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if r, ok := h.s.nextFeed(); ok {
				h.onResult(r)
			}
		}
	}
}

func (s *Scanner) nextFeed() (platform.ScanResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.feed) == 0 {
		return platform.ScanResult{}, false
	}
	r := s.feed[s.cursor%len(s.feed)]
	s.cursor++
	r.Timestamp = s.clock.Now()
	return r, true
}

// Failed implements platform.FailingScanHandle.
func (h *scanHandle) Failed() <-chan error {
	return h.failed
}

func (h *scanHandle) fail(err error) {
	h.failMu.Lock()
	defer h.failMu.Unlock()
	if h.stopped {
		return
	}
	select {
	case h.failed <- err:
	default:
	}
}

// Stop implements platform.ScanHandle. Stopping twice is harmless.
func (h *scanHandle) Stop() error {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		h.failMu.Lock()
		h.stopped = true
		close(h.failed)
		h.failMu.Unlock()
		h.s.mu.Lock()
		delete(h.s.active, h.id)
		h.s.stops++
		h.s.mu.Unlock()
	})
	return nil
}

// Emit delivers r to every active registration, as the radio would.
// It reports how many registrations received it.
func (s *Scanner) Emit(r platform.ScanResult) int {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clock.Now()
	}

	s.mu.Lock()
	handles := make([]*scanHandle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.onResult(r)
	}
	return len(handles)
}

// FailActive makes every live registration report err, as a stack that drops
// a scan it had accepted. The handles stay registered until stopped.
// It reports how many registrations were failed.
func (s *Scanner) FailActive(err error) int {
	s.mu.Lock()
	handles := make([]*scanHandle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.fail(err)
	}
	return len(handles)
}

// FailStarts makes StartScan return err. nil clears it.
func (s *Scanner) FailStarts(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

// ScannerStats is a snapshot of registration counters.
type ScannerStats struct {
	Active    int
	Starts    int
	Stops     int
	MaxActive int
	Last      platform.ScanSettings
}

// Stats returns the registration counters.
func (s *Scanner) Stats() ScannerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScannerStats{
		Active:    len(s.active),
		Starts:    s.starts,
		Stops:     s.stops,
		MaxActive: s.maxActive,
		Last:      s.last,
	}
}

var (
	_ platform.LeScanner         = (*Scanner)(nil)
	_ platform.FailingScanHandle = (*scanHandle)(nil)
)
