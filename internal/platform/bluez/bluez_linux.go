//go:build linux

package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/desktop"
	"github.com/srg/tracktag/internal/policy"
)

// Config configures the Linux backend.
type Config struct {
	// Version selects the permission and enable policy to emulate.
	Version policy.Version
	// AdapterPath pins an adapter such as /org/bluez/hci1; empty picks the first.
	AdapterPath string
	AppName     string
	Permissions *desktop.Permissions
	Location    *desktop.Location
	Prompt      desktop.Confirmer
}

// Platform implements platform.Platform on BlueZ.
type Platform struct {
	version     policy.Version
	system      *dbus.Conn
	session     *dbus.Conn
	permissions *desktop.Permissions
	adapter     *Adapter
	scanner     *Scanner
	location    *desktop.Location
	foreground  *Foreground
}

var _ platform.Platform = (*Platform)(nil)

// New connects to the system bus and, when available, the session bus.
func New(cfg Config, logger *logrus.Logger) (*Platform, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AppName == "" {
		cfg.AppName = "tracktag"
	}

	system, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.WithError(err).Warn("No session bus, background notifications disabled")
		session = nil
	}

	perms := cfg.Permissions
	if perms == nil {
		perms = desktop.NewPermissions(nil, cfg.Prompt, logger)
	}
	loc := cfg.Location
	if loc == nil {
		loc, _ = desktop.NewLocation("")
	}

	return &Platform{
		version:     cfg.Version,
		system:      system,
		session:     session,
		permissions: perms,
		adapter:     newAdapter(system, dbus.ObjectPath(cfg.AdapterPath), desktop.NewEnablePrompt(cfg.Prompt, logger), logger),
		scanner:     newScanner(bluetooth.DefaultAdapter, logger),
		location:    loc,
		foreground:  newForeground(system, session, cfg.AppName, logger),
	}, nil
}

func (p *Platform) Name() string            { return "bluez" }
func (p *Platform) Version() policy.Version { return p.version }

func (p *Platform) Permissions() platform.PermissionTable { return p.permissions }
func (p *Platform) Adapter() platform.Adapter             { return p.adapter }
func (p *Platform) Scanner() platform.LeScanner           { return p.scanner }
func (p *Platform) Location() platform.LocationSettings   { return p.location }
func (p *Platform) Foreground() platform.ForegroundHost   { return p.foreground }

// Close releases the bus connections.
func (p *Platform) Close() error {
	if p.session != nil {
		_ = p.session.Close()
	}
	return p.system.Close()
}
