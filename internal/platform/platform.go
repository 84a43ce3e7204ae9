package platform

import (
	"time"

	"github.com/srg/tracktag/internal/policy"
)

// PermissionStatus is the tri-state grant status of one permission.
type PermissionStatus int

const (
	NotRequested PermissionStatus = iota
	Granted
	Denied
)

func (s PermissionStatus) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "not_requested"
	}
}

// PermissionTable is the OS grant table and its request dialog.
type PermissionTable interface {
	// Status queries the grant table synchronously. Implementations must not cache.
	Status(id policy.PermissionID) PermissionStatus

	// Request shows one batched dialog. onResult is called exactly once, later,
	// possibly on another goroutine, with a grant decision for every requested id.
	Request(ids []policy.PermissionID, onResult func(map[policy.PermissionID]bool)) error
}

// Adapter is the local Bluetooth radio.
type Adapter interface {
	// Present reports whether adapter hardware exists at all.
	Present() bool

	// Enabled reports whether the adapter is powered on.
	Enabled() (bool, error)

	// EnableNow turns the adapter on in-process without user interaction.
	EnableNow() error

	// RequestEnable launches the interactive enable prompt. onResult is called
	// exactly once, later, with the user's answer.
	RequestEnable(onResult func(confirmed bool)) error
}

// ScanMode mirrors the radio duty-cycle choices of the OS scanner.
type ScanMode int

const (
	ScanModeLowPower ScanMode = iota
	ScanModeBalanced
	ScanModeLowLatency
)

func (m ScanMode) String() string {
	switch m {
	case ScanModeLowPower:
		return "low_power"
	case ScanModeBalanced:
		return "balanced"
	default:
		return "low_latency"
	}
}

// ScanFilter restricts which advertisements the OS reports. The scan cycle
// never installs one; it exists so backends can document what they ignore.
type ScanFilter struct {
	Address     string
	ServiceUUID string
}

// ScanSettings configures one native scan registration.
type ScanSettings struct {
	Mode        ScanMode
	ReportDelay time.Duration // 0 reports every match immediately
	Filters     []ScanFilter
}

// ScanResult is one advertisement match.
type ScanResult struct {
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	RSSI      int       `json:"rssi"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanHandle is one active native scan registration.
type ScanHandle interface {
	Stop() error
}

// FailingScanHandle is a registration that can still fail after StartScan
// returned. Failed yields at most one error and is closed once the handle is
// stopped.
type FailingScanHandle interface {
	ScanHandle
	Failed() <-chan error
}

// LeScanner registers native scans.
type LeScanner interface {
	// StartScan registers a scan. onResult may be called from any goroutine
	// until the returned handle is stopped.
	StartScan(settings ScanSettings, onResult func(ScanResult)) (ScanHandle, error)
}

// LocationSettings reads the OS location-service switch.
type LocationSettings interface {
	LocationEnabled() (bool, error)
}

// Importance of a notification channel.
type Importance int

const (
	ImportanceMin Importance = iota + 1
	ImportanceLow
	ImportanceDefault
	ImportanceHigh
)

// NotificationChannel groups notifications with a shared importance.
type NotificationChannel struct {
	ID         string
	Name       string
	Importance Importance
}

// Notification is the persistent notification shown while foreground-privileged.
type Notification struct {
	ChannelID string
	Title     string
	Text      string
}

// ForegroundHost grants the process the elevated, non-suspendable execution state.
type ForegroundHost interface {
	// CreateNotificationChannel must be idempotent.
	CreateNotificationChannel(ch NotificationChannel) error
	StartForeground(id int, n Notification) error
	StopForeground(id int) error
}

// Platform aggregates the OS surfaces the scan lifecycle consumes.
type Platform interface {
	Name() string
	Version() policy.Version
	Permissions() PermissionTable
	Adapter() Adapter
	Scanner() LeScanner
	Location() LocationSettings
	Foreground() ForegroundHost
}
