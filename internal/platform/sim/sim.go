// Package sim is a deterministic in-memory platform.
//
// Dialogs stay pending until a test resolves them (ResolvePermissions,
// ResolveEnable) or, when AutoResponse is enabled, until the configured delay
// elapses on the simulator clock. Result callbacks are never invoked from the
// registering call.
package sim

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

// AutoResponse answers dialogs without a test driving them.
type AutoResponse struct {
	Enabled          bool
	GrantPermissions bool
	ConfirmEnable    bool
	Delay            time.Duration
}

// Config seeds the simulated OS state.
type Config struct {
	Version         policy.Version
	AdapterPresent  bool
	AdapterEnabled  bool
	LocationEnabled bool
	LocationErr     error
	Granted         []policy.PermissionID
	Denied          []policy.PermissionID

	// Feed is advertised round-robin, one result per FeedInterval, while a
	// scan handle is active. An empty feed means results only come from Emit.
	Feed         []platform.ScanResult
	FeedInterval time.Duration

	AutoResponse AutoResponse
}

// DefaultConfig is a modern device with the radio on and nothing granted.
func DefaultConfig() Config {
	return Config{
		Version:         34,
		AdapterPresent:  true,
		AdapterEnabled:  true,
		LocationEnabled: true,
		FeedInterval:    500 * time.Millisecond,
	}
}

// Platform is the simulated OS.
type Platform struct {
	version policy.Version

	permissions *Permissions
	adapter     *Adapter
	scanner     *Scanner
	location    *Location
	foreground  *Foreground
}

// New builds a simulated platform. A nil clock means the real clock.
func New(cfg Config, clock clockwork.Clock, logger *logrus.Logger) *Platform {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Platform{
		version:     cfg.Version,
		permissions: newPermissions(cfg, clock, logger),
		adapter:     newAdapter(cfg, clock, logger),
		scanner:     newScanner(cfg, clock, logger),
		location:    &Location{enabled: cfg.LocationEnabled, err: cfg.LocationErr},
		foreground:  newForeground(logger),
	}
}

func (p *Platform) Name() string            { return "sim" }
func (p *Platform) Version() policy.Version { return p.version }

func (p *Platform) Permissions() platform.PermissionTable { return p.permissions }
func (p *Platform) Adapter() platform.Adapter             { return p.adapter }
func (p *Platform) Scanner() platform.LeScanner           { return p.scanner }
func (p *Platform) Location() platform.LocationSettings   { return p.location }
func (p *Platform) Foreground() platform.ForegroundHost   { return p.foreground }

// The typed accessors below expose the simulator controls.

func (p *Platform) SimPermissions() *Permissions { return p.permissions }
func (p *Platform) SimAdapter() *Adapter         { return p.adapter }
func (p *Platform) SimScanner() *Scanner         { return p.scanner }
func (p *Platform) SimLocation() *Location       { return p.location }
func (p *Platform) SimForeground() *Foreground   { return p.foreground }

var _ platform.Platform = (*Platform)(nil)
