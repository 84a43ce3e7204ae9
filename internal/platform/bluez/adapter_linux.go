//go:build linux

package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/platform/desktop"
)

// Adapter is the BlueZ adapter object.
type Adapter struct {
	conn   *dbus.Conn
	want   dbus.ObjectPath
	prompt *desktop.EnablePrompt
	logger *logrus.Logger
}

func newAdapter(conn *dbus.Conn, want dbus.ObjectPath, prompt *desktop.EnablePrompt, logger *logrus.Logger) *Adapter {
	return &Adapter{conn: conn, want: want, prompt: prompt, logger: logger}
}

// path resolves the adapter on every call; adapters come and go with USB
// dongles.
func (a *Adapter) path() (dbus.ObjectPath, error) {
	var objects managedObjects
	if err := a.conn.Object(bluezDest, "/").Call(objectManager, 0).Store(&objects); err != nil {
		return "", fmt.Errorf("GetManagedObjects: %w", err)
	}
	path, ok := adapterPath(objects, a.want)
	if !ok {
		return "", fmt.Errorf("%w: no BlueZ adapter", platform.ErrAdapterAbsent)
	}
	return path, nil
}

// Present implements platform.Adapter.
func (a *Adapter) Present() bool {
	_, err := a.path()
	if err != nil {
		a.logger.WithError(err).Debug("BlueZ adapter lookup failed")
		return false
	}
	return true
}

// Enabled implements platform.Adapter.
func (a *Adapter) Enabled() (bool, error) {
	path, err := a.path()
	if err != nil {
		return false, err
	}
	v, err := a.conn.Object(bluezDest, path).GetProperty(poweredProp)
	if err != nil {
		return false, platform.NormalizeError(fmt.Errorf("read Powered: %w", err))
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected Powered value %v", v.Value())
	}
	return on, nil
}

// EnableNow implements platform.Adapter by setting Powered.
func (a *Adapter) EnableNow() error {
	path, err := a.path()
	if err != nil {
		return err
	}
	if err := a.conn.Object(bluezDest, path).SetProperty(poweredProp, dbus.MakeVariant(true)); err != nil {
		return platform.NormalizeError(fmt.Errorf("set Powered: %w", err))
	}
	a.logger.WithField("adapter", path).Info("Adapter powered on")
	return nil
}

// RequestEnable implements platform.Adapter with a terminal prompt.
func (a *Adapter) RequestEnable(onResult func(confirmed bool)) error {
	return a.prompt.Ask(a.EnableNow, onResult)
}
