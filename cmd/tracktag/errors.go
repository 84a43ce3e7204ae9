package main

import (
	"errors"
	"strings"

	"github.com/srg/tracktag/internal/bridge"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/prompt"
)

// Command-level errors
var (
	// ErrPermissionsDenied is returned by scan when the user refused a
	// required permission.
	ErrPermissionsDenied = errors.New("required permissions were denied")
	// ErrBluetoothDenied is returned by scan when the user kept Bluetooth off.
	ErrBluetoothDenied = errors.New("bluetooth was not turned on")
)

// FormatUserError turns an error into a single line with a hint where one helps.
func FormatUserError(err error) string {
	var ce *bridge.ChannelError
	if errors.As(err, &ce) {
		if ce.Message != "" {
			return ce.Message
		}
		return ce.Code
	}

	msg := err.Error()
	var hint string
	switch {
	case errors.Is(err, platform.ErrAdapterAbsent):
		hint = "no Bluetooth adapter found; try --simulate"
	case errors.Is(err, platform.ErrAdapterDisabled):
		hint = "turn Bluetooth on and retry"
	case errors.Is(err, ErrPermissionsDenied), errors.Is(err, platform.ErrPermissionDenied):
		hint = "grant them in the config file (desktop.granted_permissions) or answer the prompt with y"
	case errors.Is(err, prompt.ErrNotInteractive):
		hint = "run from a terminal or pre-grant permissions in the config file"
	case errors.Is(err, platform.ErrUnsupported):
		hint = "this platform cannot do that; try --simulate"
	}

	if hint == "" || strings.Contains(msg, hint) {
		return msg
	}
	return msg + " (" + hint + ")"
}
