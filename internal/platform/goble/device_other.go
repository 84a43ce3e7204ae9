//go:build !darwin

package goble

import (
	"fmt"

	"github.com/srg/tracktag/internal/platform"
)

func newDevice() (scanDevice, error) {
	return nil, fmt.Errorf("%w: go-ble backend needs CoreBluetooth", platform.ErrAdapterAbsent)
}
