//go:build linux

package platformfactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/bluez"
	"github.com/srg/tracktag/pkg/config"
)

func newNative(cfg *config.Config, opts Options, logger *logrus.Logger) (platform.Platform, error) {
	perms, loc, err := desktopTables(cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	p, err := bluez.New(bluez.Config{
		Version:     cfg.Version(),
		AdapterPath: cfg.Desktop.AdapterPath,
		AppName:     "tracktag",
		Permissions: perms,
		Location:    loc,
		Prompt:      opts.Prompt,
	}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
