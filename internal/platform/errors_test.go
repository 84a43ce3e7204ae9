package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	// GOAL: Verify backend error strings are normalized to adapter sentinels without losing the original text
	//
	// TEST SCENARIO: Known messages → sentinel in chain; unknown messages → passed through untouched

	tests := []struct {
		name      string
		err       error
		expectIs  error
		expectMsg string
	}{
		{
			name:      "darwin powered-off state",
			err:       fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			expectIs:  ErrAdapterDisabled,
			expectMsg: "have=4",
		},
		{
			name:      "generic powered off",
			err:       fmt.Errorf("Bluetooth is turned off"),
			expectIs:  ErrAdapterDisabled,
			expectMsg: "turned off",
		},
		{
			name:      "bluez without adapter",
			err:       fmt.Errorf("no BlueZ adapter found"),
			expectIs:  ErrAdapterAbsent,
			expectMsg: "no BlueZ adapter",
		},
		{
			name:      "context canceled passes through",
			err:       context.Canceled,
			expectIs:  context.Canceled,
			expectMsg: "context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)

			assert.ErrorIs(t, got, tt.expectIs, "error chain MUST contain expected sentinel")
			assert.Contains(t, got.Error(), tt.expectMsg, "error message MUST keep original text")
		})
	}

	assert.NoError(t, NormalizeError(nil))

	other := errors.New("some other error")
	assert.Same(t, other, NormalizeError(other), "unknown errors MUST be returned as is")
}

func TestAdapterError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &AdapterError{Condition: AdapterMissing, Msg: "hci0"})

	assert.ErrorIs(t, err, ErrAdapterAbsent)
	assert.NotErrorIs(t, err, ErrAdapterDisabled)
	assert.Equal(t, "adapter_missing: hci0", errors.Unwrap(err).Error())
	assert.Equal(t, "adapter_disabled", ErrAdapterDisabled.Error())
}

func TestMissingPermissionsError(t *testing.T) {
	err := &MissingPermissionsError{Missing: []string{"BLUETOOTH_SCAN", "BLUETOOTH_CONNECT"}}

	assert.ErrorIs(t, err, ErrPermissionMissing)
	assert.Equal(t, "required permissions missing: BLUETOOTH_SCAN, BLUETOOTH_CONNECT", err.Error())
}
