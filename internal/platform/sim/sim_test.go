package sim

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

func TestPermissions_DialogStaysPendingUntilResolved(t *testing.T) {
	p := New(DefaultConfig(), clockwork.NewFakeClock(), nil)
	perms := p.SimPermissions()

	var got map[policy.PermissionID]bool
	err := perms.Request([]policy.PermissionID{policy.BluetoothScan, policy.BluetoothConnect}, func(r map[policy.PermissionID]bool) {
		got = r
	})
	require.NoError(t, err)

	assert.Nil(t, got, "callback MUST NOT run inside Request")
	assert.Equal(t, 1, perms.Pending())

	n := perms.ResolvePermissions(func(id policy.PermissionID) bool { return id == policy.BluetoothScan })
	assert.Equal(t, 1, n)
	assert.Equal(t, map[policy.PermissionID]bool{policy.BluetoothScan: true, policy.BluetoothConnect: false}, got)
	assert.Equal(t, platform.Granted, perms.Status(policy.BluetoothScan))
	assert.Equal(t, platform.Denied, perms.Status(policy.BluetoothConnect))
	assert.Equal(t, platform.NotRequested, perms.Status(policy.AccessFineLocation))
}

func TestPermissions_AutoResponse(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.AutoResponse = AutoResponse{Enabled: true, GrantPermissions: true, Delay: time.Second}
	perms := New(cfg, clock, nil).SimPermissions()

	var answered atomic.Bool
	require.NoError(t, perms.Request([]policy.PermissionID{policy.AccessFineLocation}, func(map[policy.PermissionID]bool) {
		answered.Store(true)
	}))

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	assert.Eventually(t, answered.Load, time.Second, time.Millisecond, "auto response MUST answer after the delay")
	assert.Equal(t, platform.Granted, perms.Status(policy.AccessFineLocation))
}

func TestAdapter_EnableNowRespectsVersion(t *testing.T) {
	tests := []struct {
		name    string
		version policy.Version
		wantErr error
	}{
		{name: "legacy enables in-process", version: 30},
		{name: "modern refuses", version: 31, wantErr: platform.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Version = tt.version
			cfg.AdapterEnabled = false
			a := New(cfg, nil, nil).SimAdapter()

			err := a.EnableNow()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			on, err := a.Enabled()
			require.NoError(t, err)
			assert.True(t, on)
		})
	}
}

func TestAdapter_AbsentHardware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdapterPresent = false
	a := New(cfg, nil, nil).SimAdapter()

	assert.False(t, a.Present())
	_, err := a.Enabled()
	assert.ErrorIs(t, err, platform.ErrAdapterAbsent)
	assert.ErrorIs(t, a.RequestEnable(func(bool) {}), platform.ErrAdapterAbsent)
}

func TestAdapter_ResolveEnable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdapterEnabled = false
	a := New(cfg, nil, nil).SimAdapter()

	var answers []bool
	require.NoError(t, a.RequestEnable(func(ok bool) { answers = append(answers, ok) }))
	assert.Equal(t, 1, a.PendingPrompts())

	assert.Equal(t, 1, a.ResolveEnable(true))
	assert.Equal(t, []bool{true}, answers)
	assert.Equal(t, 0, a.ResolveEnable(true), "resolved prompts MUST NOT answer twice")

	on, _ := a.Enabled()
	assert.True(t, on)
}

func TestScanner_TracksOverlap(t *testing.T) {
	s := New(DefaultConfig(), nil, nil).SimScanner()

	var seen []string
	h1, err := s.StartScan(platform.ScanSettings{Mode: platform.ScanModeLowLatency}, func(r platform.ScanResult) {
		seen = append(seen, r.Address)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Emit(platform.ScanResult{Address: "AA:BB:CC:DD:EE:FF"}))
	require.NoError(t, h1.Stop())
	require.NoError(t, h1.Stop())
	assert.Equal(t, 0, s.Emit(platform.ScanResult{Address: "11:22:33:44:55:66"}), "stopped handle MUST NOT receive results")

	st := s.Stats()
	assert.Equal(t, 1, st.Starts)
	assert.Equal(t, 1, st.Stops, "double stop MUST count once")
	assert.Equal(t, 1, st.MaxActive)
	assert.Equal(t, platform.ScanModeLowLatency, st.Last.Mode)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, seen)
}

func TestScanner_FailStarts(t *testing.T) {
	s := New(DefaultConfig(), nil, nil).SimScanner()
	boom := errors.New("registration failed")
	s.FailStarts(boom)

	_, err := s.StartScan(platform.ScanSettings{}, func(platform.ScanResult) {})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Stats().Active)
}

func TestScanner_Feed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.Feed = []platform.ScanResult{{Address: "AA:AA:AA:AA:AA:AA", RSSI: -40}}
	cfg.FeedInterval = time.Second
	s := New(cfg, clock, nil).SimScanner()

	results := make(chan platform.ScanResult, 4)
	h, err := s.StartScan(platform.ScanSettings{}, func(r platform.ScanResult) { results <- r })
	require.NoError(t, err)
	defer h.Stop()

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	select {
	case r := <-results:
		assert.Equal(t, "AA:AA:AA:AA:AA:AA", r.Address)
		assert.Equal(t, clock.Now(), r.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("feed MUST advertise once per interval")
	}
}

func TestLocation(t *testing.T) {
	l := New(DefaultConfig(), nil, nil).SimLocation()

	on, err := l.LocationEnabled()
	require.NoError(t, err)
	assert.True(t, on)

	l.Fail(platform.ErrLocationUnknown)
	_, err = l.LocationEnabled()
	assert.ErrorIs(t, err, platform.ErrLocationUnknown)
}

func TestForeground_Records(t *testing.T) {
	f := New(DefaultConfig(), nil, nil).SimForeground()

	require.NoError(t, f.CreateNotificationChannel(platform.NotificationChannel{ID: "c", Importance: platform.ImportanceLow}))
	require.NoError(t, f.CreateNotificationChannel(platform.NotificationChannel{ID: "c", Importance: platform.ImportanceLow}))
	require.NoError(t, f.StartForeground(1, platform.Notification{Title: "t"}))

	_, ok := f.Active(1)
	assert.True(t, ok)
	assert.Equal(t, 2, f.ChannelCreates())

	require.NoError(t, f.StopForeground(1))
	require.NoError(t, f.StopForeground(1))
	starts, stops := f.Counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops, "stopping an inactive id MUST be a no-op")
}
