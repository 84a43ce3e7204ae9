// Package policy maps a platform version (an Android API level) to the small
// set of version-dependent behaviors the scan lifecycle relies on.
//
// All platform-specific knowledge lives here so that the rest of the code
// branches on Policy fields, never on raw version numbers.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Version is a platform API level.
type Version int

const (
	// VersionO introduced notification channels and foreground-service start deadlines.
	VersionO Version = 26
	// VersionR is the last version that allows enabling the adapter programmatically.
	VersionR Version = 30
	// VersionS introduced the scoped Bluetooth runtime permissions.
	VersionS Version = 31
	// VersionU introduced the typed foreground-service permissions.
	VersionU Version = 34
)

// DefaultForegroundStartDeadline is how long a foreground-privileged component
// has to promote itself after creation on versions that enforce it.
const DefaultForegroundStartDeadline = 5 * time.Second

// PermissionID identifies a runtime permission.
type PermissionID string

const (
	BluetoothScan             PermissionID = "android.permission.BLUETOOTH_SCAN"
	BluetoothConnect          PermissionID = "android.permission.BLUETOOTH_CONNECT"
	AccessFineLocation        PermissionID = "android.permission.ACCESS_FINE_LOCATION"
	ForegroundServiceLocation PermissionID = "android.permission.FOREGROUND_SERVICE_LOCATION"
)

// ShortName returns the permission name without the platform namespace.
func (p PermissionID) ShortName() string {
	s := string(p)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ParsePermission accepts either a fully qualified permission or its short name.
func ParsePermission(s string) (PermissionID, error) {
	s = strings.TrimSpace(s)
	for _, p := range []PermissionID{BluetoothScan, BluetoothConnect, AccessFineLocation, ForegroundServiceLocation} {
		if s == string(p) || strings.EqualFold(s, p.ShortName()) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// PermissionModel selects which runtime permissions gate scanning.
type PermissionModel int

const (
	// LocationGated platforms infer location from radio scans, so scanning needs location access.
	LocationGated PermissionModel = iota
	// ScopedBluetooth platforms have dedicated scan/connect permissions.
	ScopedBluetooth
)

func (m PermissionModel) String() string {
	switch m {
	case LocationGated:
		return "location-gated"
	case ScopedBluetooth:
		return "scoped-bluetooth"
	default:
		return fmt.Sprintf("PermissionModel(%d)", int(m))
	}
}

// EnableMode selects how a disabled adapter gets turned on.
type EnableMode int

const (
	// ProgrammaticEnable turns the adapter on in-process without a prompt.
	ProgrammaticEnable EnableMode = iota
	// InteractiveEnable asks the user through a system prompt; the answer arrives later.
	InteractiveEnable
)

func (m EnableMode) String() string {
	switch m {
	case ProgrammaticEnable:
		return "programmatic"
	case InteractiveEnable:
		return "interactive"
	default:
		return fmt.Sprintf("EnableMode(%d)", int(m))
	}
}

// Policy is the version-derived behavior set.
type Policy struct {
	Version                 Version
	Permissions             PermissionModel
	Enable                  EnableMode
	NotificationChannels    bool
	ForegroundStartDeadline time.Duration // zero means not enforced
}

// For returns the policy of the given platform version. It is a pure function.
func For(v Version) Policy {
	p := Policy{
		Version:     v,
		Permissions: LocationGated,
		Enable:      ProgrammaticEnable,
	}
	if v >= VersionS {
		p.Permissions = ScopedBluetooth
	}
	if v > VersionR {
		p.Enable = InteractiveEnable
	}
	if v >= VersionO {
		p.NotificationChannels = true
		p.ForegroundStartDeadline = DefaultForegroundStartDeadline
	}
	return p
}

// RequiredPermissions returns the permissions scanning needs. background adds the
// foreground-service-location permission from VersionU on; it never replaces
// the base set.
func (p Policy) RequiredPermissions(background bool) PermissionSet {
	switch p.Permissions {
	case ScopedBluetooth:
		set := NewPermissionSet(BluetoothScan, BluetoothConnect)
		if background && p.Version >= VersionU {
			set = NewPermissionSet(append(set, ForegroundServiceLocation)...)
		}
		return set
	default:
		return NewPermissionSet(AccessFineLocation)
	}
}

// RequiredPermissions is shorthand for For(v).RequiredPermissions(background).
func RequiredPermissions(v Version, background bool) PermissionSet {
	return For(v).RequiredPermissions(background)
}

// PermissionSet is a sorted, duplicate-free list of permissions.
type PermissionSet []PermissionID

// NewPermissionSet builds a normalized set from ids.
func NewPermissionSet(ids ...PermissionID) PermissionSet {
	seen := make(map[PermissionID]struct{}, len(ids))
	out := make(PermissionSet, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether id is in the set.
func (s PermissionSet) Contains(id PermissionID) bool {
	for _, p := range s {
		if p == id {
			return true
		}
	}
	return false
}

// Strings returns the fully qualified names.
func (s PermissionSet) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = string(p)
	}
	return out
}
