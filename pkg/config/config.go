package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/tracktag/internal/discovery"
	"github.com/srg/tracktag/internal/foreground"
	"github.com/srg/tracktag/internal/policy"
)

// Backend names.
const (
	BackendNative = "native"
	BackendSim    = "sim"
)

// Config holds application configuration
type Config struct {
	LogLevel        string           `yaml:"log_level" default:"info"`
	Backend         string           `yaml:"backend" default:"native"`
	PlatformVersion int              `yaml:"platform_version" default:"34"`
	Scan            ScanConfig       `yaml:"scan"`
	Background      BackgroundConfig `yaml:"background"`
	Bridge          BridgeConfig     `yaml:"bridge"`
	Desktop         DesktopConfig    `yaml:"desktop"`
	Sim             SimConfig        `yaml:"sim"`
}

// ScanConfig tunes the scan cycle.
type ScanConfig struct {
	Period       time.Duration `yaml:"period" default:"8s"`
	ResultBuffer int           `yaml:"result_buffer" default:"256"`
	HistorySize  uint32        `yaml:"history_size" default:"1024"`
}

// BackgroundConfig enables the foreground lease and describes its notification.
type BackgroundConfig struct {
	Enabled           bool `yaml:"enabled"`
	foreground.Config `yaml:",inline"`
}

// BridgeConfig configures the host bridge server.
type BridgeConfig struct {
	Listen    string `yaml:"listen" default:"127.0.0.1:8765"`
	Channel   string `yaml:"channel" default:"flutter_bluetooth"`
	QueueSize int    `yaml:"queue_size" default:"256"`
}

// DesktopConfig seeds the desktop permission and location tables.
type DesktopConfig struct {
	GrantedPermissions []string `yaml:"granted_permissions"`
	// LocationServices is "on", "off" or empty for unknown.
	LocationServices string `yaml:"location_services"`
	// AdapterPath pins a BlueZ adapter, e.g. /org/bluez/hci1.
	AdapterPath string `yaml:"adapter_path"`
}

// SimConfig drives the simulated platform.
type SimConfig struct {
	AdapterPresent     bool          `yaml:"adapter_present" default:"true"`
	AdapterEnabled     bool          `yaml:"adapter_enabled" default:"true"`
	LocationEnabled    bool          `yaml:"location_enabled" default:"true"`
	GrantedPermissions []string      `yaml:"granted_permissions"`
	AutoRespond        bool          `yaml:"auto_respond" default:"true"`
	GrantPermissions   bool          `yaml:"grant_permissions" default:"true"`
	ConfirmEnable      bool          `yaml:"confirm_enable" default:"true"`
	ResponseDelay      time.Duration `yaml:"response_delay" default:"500ms"`
	Devices            int           `yaml:"devices" default:"5"`
	FeedInterval       time.Duration `yaml:"feed_interval" default:"500ms"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Backend {
	case BackendNative, BackendSim:
	default:
		errs = append(errs, fmt.Errorf("backend: %q is not one of %s, %s", c.Backend, BackendNative, BackendSim))
	}
	if c.PlatformVersion <= 0 {
		errs = append(errs, fmt.Errorf("platform_version: must be > 0"))
	}
	if c.Scan.Period <= 0 {
		errs = append(errs, fmt.Errorf("scan.period: must be > 0"))
	}
	if c.Scan.ResultBuffer <= 0 {
		errs = append(errs, fmt.Errorf("scan.result_buffer: must be > 0"))
	}
	if c.Scan.HistorySize == 0 || c.Scan.HistorySize > discovery.MaxHistorySize {
		errs = append(errs, fmt.Errorf("scan.history_size: must be in 1..%d", discovery.MaxHistorySize))
	}
	if c.Background.NotificationID <= 0 {
		errs = append(errs, fmt.Errorf("background.notification_id: must be > 0"))
	}
	if _, err := ParsePermissions(c.Desktop.GrantedPermissions); err != nil {
		errs = append(errs, fmt.Errorf("desktop.granted_permissions: %w", err))
	}
	switch strings.ToLower(c.Desktop.LocationServices) {
	case "", "on", "off":
	default:
		errs = append(errs, fmt.Errorf("desktop.location_services: %q is not on, off or empty", c.Desktop.LocationServices))
	}
	if _, err := ParsePermissions(c.Sim.GrantedPermissions); err != nil {
		errs = append(errs, fmt.Errorf("sim.granted_permissions: %w", err))
	}
	if c.Sim.Devices < 0 {
		errs = append(errs, fmt.Errorf("sim.devices: must be >= 0"))
	}
	return errors.Join(errs...)
}

// Version returns the platform version as a policy input.
func (c *Config) Version() policy.Version {
	return policy.Version(c.PlatformVersion)
}

// Level returns the parsed log level, info when unparsable.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ParsePermissions parses short or fully qualified permission names.
func ParsePermissions(names []string) ([]policy.PermissionID, error) {
	out := make([]policy.PermissionID, 0, len(names))
	for _, n := range names {
		id, err := policy.ParsePermission(n)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
