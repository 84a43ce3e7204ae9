//go:build !linux && !darwin

package platformfactory

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/pkg/config"
)

func newNative(*config.Config, Options, *logrus.Logger) (platform.Platform, error) {
	return nil, fmt.Errorf("%w: no native Bluetooth backend for %s, use the sim backend", platform.ErrUnsupported, runtime.GOOS)
}
