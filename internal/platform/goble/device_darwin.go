//go:build darwin

package goble

import (
	"github.com/go-ble/ble/darwin"
)

func newDevice() (scanDevice, error) {
	return darwin.NewDevice()
}
