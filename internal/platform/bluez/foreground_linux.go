//go:build linux

package bluez

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/srg/tracktag/internal/platform"
)

type foregroundEntry struct {
	notificationID uint32
	inhibitFD      int
}

// Foreground keeps the machine awake with a logind inhibitor and shows a
// resident desktop notification while scanning in the background.
type Foreground struct {
	system  *dbus.Conn
	session *dbus.Conn // nil when no desktop session is available
	appName string
	logger  *logrus.Logger

	mu       sync.Mutex
	channels map[string]platform.NotificationChannel
	active   map[int]foregroundEntry
}

func newForeground(system, session *dbus.Conn, appName string, logger *logrus.Logger) *Foreground {
	return &Foreground{
		system:   system,
		session:  session,
		appName:  appName,
		logger:   logger,
		channels: make(map[string]platform.NotificationChannel),
		active:   make(map[int]foregroundEntry),
	}
}

// CreateNotificationChannel implements platform.ForegroundHost. Freedesktop
// has no channels; the importance is remembered and applied as urgency.
func (f *Foreground) CreateNotificationChannel(ch platform.NotificationChannel) error {
	f.mu.Lock()
	f.channels[ch.ID] = ch
	f.mu.Unlock()
	return nil
}

// StartForeground implements platform.ForegroundHost.
func (f *Foreground) StartForeground(id int, n platform.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.active[id]; ok {
		return nil
	}

	var fd dbus.UnixFD
	err := f.system.Object(logindDest, logindPath).
		Call(inhibit, 0, "sleep:idle", f.appName, n.Title, "block").
		Store(&fd)
	if err != nil {
		return fmt.Errorf("logind inhibit: %w", err)
	}
	entry := foregroundEntry{inhibitFD: int(fd)}

	if f.session != nil {
		imp := platform.ImportanceLow
		if ch, ok := f.channels[n.ChannelID]; ok {
			imp = ch.Importance
		}
		err := f.session.Object(notifyDest, notifyPath).Call(notifyCall, 0,
			f.appName, uint32(0), "bluetooth", n.Title, n.Text,
			[]string{}, notificationHints(imp), int32(0),
		).Store(&entry.notificationID)
		if err != nil {
			f.logger.WithError(err).Warn("Desktop notification failed, continuing without it")
		}
	}

	f.active[id] = entry
	f.logger.WithFields(logrus.Fields{"id": id, "title": n.Title}).Info("Foreground started")
	return nil
}

// StopForeground implements platform.ForegroundHost.
func (f *Foreground) StopForeground(id int) error {
	f.mu.Lock()
	entry, ok := f.active[id]
	delete(f.active, id)
	f.mu.Unlock()

	if !ok {
		return nil
	}

	if f.session != nil && entry.notificationID != 0 {
		if err := f.session.Object(notifyDest, notifyPath).Call(notifyClose, 0, entry.notificationID).Err; err != nil {
			f.logger.WithError(err).Debug("Closing desktop notification failed")
		}
	}
	if err := unix.Close(entry.inhibitFD); err != nil {
		return fmt.Errorf("release inhibitor: %w", err)
	}
	f.logger.WithField("id", id).Info("Foreground stopped")
	return nil
}
