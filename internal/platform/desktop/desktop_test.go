package desktop

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
	"github.com/srg/tracktag/internal/prompt"
)

type mockConfirmer struct {
	mock.Mock
}

func (m *mockConfirmer) Interactive() bool {
	return m.Called().Bool(0)
}

func (m *mockConfirmer) Confirm(question string) (bool, error) {
	args := m.Called(question)
	return args.Bool(0), args.Error(1)
}

func waitResult(t *testing.T, ch <-chan map[policy.PermissionID]bool) map[policy.PermissionID]bool {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("dialog result MUST arrive")
		return nil
	}
}

func TestPermissions_SeededGrantsSkipPrompt(t *testing.T) {
	asker := &mockConfirmer{}
	asker.On("Interactive").Return(true)
	asker.On("Confirm", "Allow BLUETOOTH_CONNECT?").Return(false, nil).Once()

	p := NewPermissions([]policy.PermissionID{policy.BluetoothScan}, asker, nil)
	assert.Equal(t, platform.Granted, p.Status(policy.BluetoothScan))
	assert.Equal(t, platform.NotRequested, p.Status(policy.BluetoothConnect))

	ch := make(chan map[policy.PermissionID]bool, 1)
	require.NoError(t, p.Request([]policy.PermissionID{policy.BluetoothConnect, policy.BluetoothScan}, func(r map[policy.PermissionID]bool) {
		ch <- r
	}))

	got := waitResult(t, ch)
	assert.Equal(t, map[policy.PermissionID]bool{policy.BluetoothConnect: false, policy.BluetoothScan: true}, got)
	assert.Equal(t, platform.Denied, p.Status(policy.BluetoothConnect))
	asker.AssertExpectations(t)
}

func TestPermissions_PromptGrantsAndErrors(t *testing.T) {
	asker := &mockConfirmer{}
	asker.On("Interactive").Return(true)
	asker.On("Confirm", "Allow BLUETOOTH_SCAN?").Return(true, nil)
	asker.On("Confirm", "Allow BLUETOOTH_CONNECT?").Return(false, errors.New("read failed"))

	p := NewPermissions(nil, asker, nil)
	ch := make(chan map[policy.PermissionID]bool, 1)
	require.NoError(t, p.Request([]policy.PermissionID{policy.BluetoothConnect, policy.BluetoothScan}, func(r map[policy.PermissionID]bool) {
		ch <- r
	}))

	got := waitResult(t, ch)
	assert.True(t, got[policy.BluetoothScan])
	assert.False(t, got[policy.BluetoothConnect], "a failed prompt MUST count as denial")
	assert.Equal(t, platform.Granted, p.Status(policy.BluetoothScan))
}

func TestPermissions_NoTerminalDenies(t *testing.T) {
	p := NewPermissions(nil, nil, nil)

	ch := make(chan map[policy.PermissionID]bool, 1)
	require.NoError(t, p.Request([]policy.PermissionID{policy.AccessFineLocation}, func(r map[policy.PermissionID]bool) {
		ch <- r
	}))

	assert.Equal(t, map[policy.PermissionID]bool{policy.AccessFineLocation: false}, waitResult(t, ch))
}

func TestLocation(t *testing.T) {
	on, err := NewLocation("ON")
	require.NoError(t, err)
	enabled, err := on.LocationEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	off, err := NewLocation("off")
	require.NoError(t, err)
	enabled, err = off.LocationEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	unknown, err := NewLocation("")
	require.NoError(t, err)
	_, err = unknown.LocationEnabled()
	assert.ErrorIs(t, err, platform.ErrLocationUnknown)

	_, err = NewLocation("sometimes")
	assert.Error(t, err)
}

func TestEnablePrompt(t *testing.T) {
	asker := &mockConfirmer{}
	asker.On("Interactive").Return(true)
	asker.On("Confirm", "Turn Bluetooth on?").Return(true, nil)

	var mu sync.Mutex
	powered := 0
	ch := make(chan bool, 1)

	e := NewEnablePrompt(asker, nil)
	require.NoError(t, e.Ask(func() error {
		mu.Lock()
		powered++
		mu.Unlock()
		return nil
	}, func(ok bool) { ch <- ok }))

	select {
	case ok := <-ch:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("enable answer MUST arrive")
	}
	mu.Lock()
	assert.Equal(t, 1, powered)
	mu.Unlock()
}

func TestEnablePrompt_PowerFailureIsDecline(t *testing.T) {
	asker := &mockConfirmer{}
	asker.On("Interactive").Return(true)
	asker.On("Confirm", "Turn Bluetooth on?").Return(true, nil)

	ch := make(chan bool, 1)
	e := NewEnablePrompt(asker, nil)
	require.NoError(t, e.Ask(func() error { return errors.New("org.bluez.Error.Failed") }, func(ok bool) { ch <- ok }))

	select {
	case ok := <-ch:
		assert.False(t, ok, "an adapter that stays off MUST be reported as declined")
	case <-time.After(2 * time.Second):
		t.Fatal("enable answer MUST arrive")
	}
}

func TestEnablePrompt_NotInteractive(t *testing.T) {
	e := NewEnablePrompt(nil, nil)
	err := e.Ask(func() error { return nil }, func(bool) {})
	assert.ErrorIs(t, err, prompt.ErrNotInteractive)
}

func TestConsoleForeground(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	f := NewConsoleForeground(&out, nil)

	require.NoError(t, f.CreateNotificationChannel(platform.NotificationChannel{ID: "BLE_SCAN_CHANNEL", Importance: platform.ImportanceLow}))
	require.NoError(t, f.StartForeground(1, platform.Notification{
		ChannelID: "BLE_SCAN_CHANNEL",
		Title:     "Scanning for BLE Devices",
		Text:      "BLE scan running in the background",
	}))
	require.NoError(t, f.StartForeground(1, platform.Notification{Title: "again"}))
	assert.True(t, f.Active(1))

	require.NoError(t, f.StopForeground(1))
	require.NoError(t, f.StopForeground(1), "stopping twice MUST be harmless")
	assert.False(t, f.Active(1))

	assert.Equal(t,
		"● Scanning for BLE Devices: BLE scan running in the background\n○ Scanning for BLE Devices stopped\n",
		out.String())
}
