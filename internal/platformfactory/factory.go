// Package platformfactory builds the platform backend named in the
// configuration.
package platformfactory

import (
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/desktop"
	"github.com/srg/tracktag/internal/platform/sim"
	"github.com/srg/tracktag/pkg/config"
)

// Options are the runtime inputs that do not live in the config file.
type Options struct {
	// Prompt answers desktop dialogs; nil denies every dialog.
	Prompt desktop.Confirmer
	// Status receives console foreground lines.
	Status io.Writer
	Clock  clockwork.Clock
}

// PlatformFactory creates the backend selected by cfg.Backend.
// This is a variable so that it can be overridden in tests.
var PlatformFactory = func(cfg *config.Config, opts Options, logger *logrus.Logger) (platform.Platform, error) {
	switch cfg.Backend {
	case config.BackendSim:
		p, err := NewSim(cfg, opts.Clock, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BackendNative, "":
		return newNative(cfg, opts, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// New creates the configured backend.
func New(cfg *config.Config, opts Options, logger *logrus.Logger) (platform.Platform, error) {
	if logger == nil {
		logger = logrus.New()
	}
	p, err := PlatformFactory(cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"backend":  p.Name(),
		"version":  int(p.Version()),
		"platform": cfg.Backend,
	}).Debug("Platform backend ready")
	return p, nil
}

// Close releases backend resources when the backend holds any.
func Close(p platform.Platform) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewSim builds the simulated platform from the sim section.
func NewSim(cfg *config.Config, clock clockwork.Clock, logger *logrus.Logger) (*sim.Platform, error) {
	granted, err := config.ParsePermissions(cfg.Sim.GrantedPermissions)
	if err != nil {
		return nil, fmt.Errorf("sim.granted_permissions: %w", err)
	}

	sc := sim.DefaultConfig()
	sc.Version = cfg.Version()
	sc.AdapterPresent = cfg.Sim.AdapterPresent
	sc.AdapterEnabled = cfg.Sim.AdapterEnabled
	sc.LocationEnabled = cfg.Sim.LocationEnabled
	sc.Granted = granted
	sc.Feed = SyntheticFeed(cfg.Sim.Devices)
	if cfg.Sim.FeedInterval > 0 {
		sc.FeedInterval = cfg.Sim.FeedInterval
	}
	sc.AutoResponse = sim.AutoResponse{
		Enabled:          cfg.Sim.AutoRespond,
		GrantPermissions: cfg.Sim.GrantPermissions,
		ConfirmEnable:    cfg.Sim.ConfirmEnable,
		Delay:            cfg.Sim.ResponseDelay,
	}
	return sim.New(sc, clock, logger), nil
}

// SyntheticFeed returns n simulated tags with stable addresses.
func SyntheticFeed(n int) []platform.ScanResult {
	feed := make([]platform.ScanResult, 0, n)
	for i := 0; i < n; i++ {
		feed = append(feed, platform.ScanResult{
			Address: fmt.Sprintf("0A:51:4D:00:00:%02X", i+1),
			Name:    fmt.Sprintf("SimTag-%d", i+1),
			RSSI:    -40 - (i*7)%50,
		})
	}
	return feed
}

func desktopTables(cfg *config.Config, opts Options, logger *logrus.Logger) (*desktop.Permissions, *desktop.Location, error) {
	granted, err := config.ParsePermissions(cfg.Desktop.GrantedPermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("desktop.granted_permissions: %w", err)
	}
	loc, err := desktop.NewLocation(cfg.Desktop.LocationServices)
	if err != nil {
		return nil, nil, err
	}
	return desktop.NewPermissions(granted, opts.Prompt, logger), loc, nil
}
