package platform

import (
	"errors"
	"fmt"
	"strings"
)

// AdapterCondition names why the adapter cannot be used.
type AdapterCondition string

const (
	AdapterMissing  AdapterCondition = "adapter_missing"
	AdapterDisabled AdapterCondition = "adapter_disabled"
)

// AdapterError reports an unusable adapter.
type AdapterError struct {
	Condition AdapterCondition
	Msg       string
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Condition)
	}
	return fmt.Sprintf("%s: %s", e.Condition, e.Msg)
}

// Is lets errors.Is compare AdapterError values by Condition.
func (e *AdapterError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*AdapterError)
	if !ok {
		return false
	}
	return e.Condition == t.Condition
}

var (
	// ErrAdapterAbsent is fatal for the session: there is no radio to enable.
	ErrAdapterAbsent = &AdapterError{Condition: AdapterMissing}
	// ErrAdapterDisabled means the radio exists but is powered off.
	ErrAdapterDisabled = &AdapterError{Condition: AdapterDisabled}
)

var (
	ErrPermissionDenied  = errors.New("permissions denied")
	ErrPermissionMissing = errors.New("required permissions missing")
	ErrUnsupported       = errors.New("unsupported")
	ErrDialogPending     = errors.New("dialog already showing")
	ErrLocationUnknown   = errors.New("location mode unavailable")
)

// MissingPermissionsError lists the permissions that blocked a scan start.
type MissingPermissionsError struct {
	Missing []string
}

func (e *MissingPermissionsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPermissionMissing, strings.Join(e.Missing, ", "))
}

func (e *MissingPermissionsError) Unwrap() error {
	return ErrPermissionMissing
}

// NormalizeError maps known backend error strings to the adapter sentinels.
// The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "is Bluetooth turned on?"):
		return fmt.Errorf("%w: %v", ErrAdapterDisabled, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"), containsIgnoreCase(msg, "not powered"):
		return fmt.Errorf("%w: %v", ErrAdapterDisabled, err)
	case containsIgnoreCase(msg, "no bluez adapter"), containsIgnoreCase(msg, "no such adapter"),
		containsIgnoreCase(msg, "unsupported state"):
		return fmt.Errorf("%w: %v", ErrAdapterAbsent, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
