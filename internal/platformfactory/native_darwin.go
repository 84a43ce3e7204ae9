//go:build darwin

package platformfactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/goble"
	"github.com/srg/tracktag/pkg/config"
)

func newNative(cfg *config.Config, opts Options, logger *logrus.Logger) (platform.Platform, error) {
	perms, loc, err := desktopTables(cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	return goble.New(goble.Config{
		Version:     cfg.Version(),
		Permissions: perms,
		Location:    loc,
		Prompt:      opts.Prompt,
		Status:      opts.Status,
	}, logger), nil
}
