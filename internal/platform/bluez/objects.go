// Package bluez is the Linux backend: BlueZ over D-Bus for the adapter,
// tinygo bluetooth for LE scanning, a desktop notification plus a logind
// sleep inhibitor as the foreground privilege.
package bluez

import (
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/srg/tracktag/internal/platform"
)

const (
	bluezDest     = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	poweredProp   = adapterIface + ".Powered"
	objectManager = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"

	logindDest = "org.freedesktop.login1"
	logindPath = dbus.ObjectPath("/org/freedesktop/login1")
	inhibit    = "org.freedesktop.login1.Manager.Inhibit"

	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall  = "org.freedesktop.Notifications.Notify"
	notifyClose = "org.freedesktop.Notifications.CloseNotification"
)

// managedObjects is the reply shape of GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// adapterPath picks the first object, by path, exposing Adapter1. want, when
// non-empty, selects a specific adapter such as /org/bluez/hci1.
func adapterPath(objects managedObjects, want dbus.ObjectPath) (dbus.ObjectPath, bool) {
	var paths []string
	for path, ifaces := range objects {
		if _, ok := ifaces[adapterIface]; !ok {
			continue
		}
		if want != "" && path == want {
			return path, true
		}
		paths = append(paths, string(path))
	}
	if want != "" || len(paths) == 0 {
		return "", false
	}
	sort.Strings(paths)
	return dbus.ObjectPath(paths[0]), true
}

// urgency maps a channel importance to the freedesktop urgency hint.
func urgency(imp platform.Importance) byte {
	switch imp {
	case platform.ImportanceMin, platform.ImportanceLow:
		return 0
	case platform.ImportanceHigh:
		return 2
	default:
		return 1
	}
}

// notificationHints builds the Notify hints for a persistent notification.
func notificationHints(imp platform.Importance) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(urgency(imp)),
		"resident": dbus.MakeVariant(true),
	}
}
