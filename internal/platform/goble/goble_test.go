package goble

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/tracktag/internal/platform"
)

type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}

type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string              { return m.Called().String(0) }
func (m *MockAdvertisement) ManufacturerData() []byte       { return nil }
func (m *MockAdvertisement) ServiceData() []ble.ServiceData { return nil }
func (m *MockAdvertisement) Services() []ble.UUID           { return nil }
func (m *MockAdvertisement) OverflowService() []ble.UUID    { return nil }
func (m *MockAdvertisement) TxPowerLevel() int              { return 127 }
func (m *MockAdvertisement) Connectable() bool              { return true }
func (m *MockAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (m *MockAdvertisement) RSSI() int                      { return m.Called().Int(0) }
func (m *MockAdvertisement) Addr() ble.Addr                 { return m.Called().Get(0).(ble.Addr) }

// fakeDevice replays advertisements and then scans until cancelled.
type fakeDevice struct {
	ads     []ble.Advertisement
	scanErr error
	scans   atomic.Int32
	stops   atomic.Int32
}

func (d *fakeDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	d.scans.Add(1)
	if d.scanErr != nil {
		return d.scanErr
	}
	for _, a := range d.ads {
		h(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Stop() error {
	d.stops.Add(1)
	return nil
}

type GobleTestSuite struct {
	suite.Suite
	original func() (scanDevice, error)
}

func (s *GobleTestSuite) SetupTest() {
	s.original = DeviceFactory
}

func (s *GobleTestSuite) TearDownTest() {
	DeviceFactory = s.original
}

func (s *GobleTestSuite) TestAdapter_ProbeOutcomes() {
	// GOAL: Verify CoreBluetooth creation errors map onto presence and power state

	tests := []struct {
		name        string
		err         error
		wantPresent bool
		wantEnabled bool
		wantErr     error
	}{
		{name: "powered on", wantPresent: true, wantEnabled: true},
		{
			name:        "powered off",
			err:         errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			wantPresent: true,
		},
		{
			name:    "unsupported hardware",
			err:     errors.New("central manager has invalid state: unsupported state"),
			wantErr: platform.ErrAdapterAbsent,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			DeviceFactory = func() (scanDevice, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &fakeDevice{}, nil
			}

			p := New(Config{Version: 34}, nil)
			s.Equal(tt.wantPresent, p.Adapter().Present())

			on, err := p.Adapter().Enabled()
			if tt.wantErr != nil {
				s.ErrorIs(err, tt.wantErr)
				return
			}
			s.NoError(err)
			s.Equal(tt.wantEnabled, on)
		})
	}
}

func (s *GobleTestSuite) TestAdapter_EnableNowUnsupported() {
	p := New(Config{Version: 34}, nil)
	s.ErrorIs(p.Adapter().EnableNow(), platform.ErrUnsupported)
}

func (s *GobleTestSuite) TestScanner_DeliversAndStops() {
	addr := &MockAddr{}
	addr.On("String").Return("aa:bb:cc:dd:ee:ff")
	adv := &MockAdvertisement{}
	adv.On("Addr").Return(addr)
	adv.On("LocalName").Return("tag")
	adv.On("RSSI").Return(-61)

	dev := &fakeDevice{ads: []ble.Advertisement{adv}}
	DeviceFactory = func() (scanDevice, error) { return dev, nil }

	p := New(Config{Version: 34}, nil)
	got := make(chan platform.ScanResult, 1)
	h, err := p.Scanner().StartScan(platform.ScanSettings{}, func(r platform.ScanResult) { got <- r })
	s.Require().NoError(err)

	select {
	case r := <-got:
		s.Equal("aa:bb:cc:dd:ee:ff", r.Address)
		s.Equal("tag", r.Name)
		s.Equal(-61, r.RSSI)
		s.False(r.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		s.Fail("advertisement MUST be delivered")
	}

	s.NoError(h.Stop())
	s.NoError(h.Stop(), "second stop MUST be a no-op")
	s.NoError(p.Close())
	s.Equal(int32(1), dev.stops.Load())
}

func (s *GobleTestSuite) TestScanner_RadioOffInvalidatesDevice() {
	calls := 0
	dev := &fakeDevice{scanErr: errors.New("bluetooth is turned off")}
	DeviceFactory = func() (scanDevice, error) {
		calls++
		return dev, nil
	}

	p := New(Config{Version: 34}, nil)
	h, err := p.Scanner().StartScan(platform.ScanSettings{}, func(platform.ScanResult) {})
	s.Require().NoError(err)

	fh, ok := h.(platform.FailingScanHandle)
	s.Require().True(ok)
	select {
	case failure := <-fh.Failed():
		s.ErrorIs(failure, platform.ErrAdapterDisabled, "a scan that dies MUST report why")
	case <-time.After(2 * time.Second):
		s.Fail("scan failure MUST be reported")
	}
	s.NoError(h.Stop())

	_, err = p.Adapter().Enabled()
	s.NoError(err)
	s.Equal(2, calls, "a scan failing with the radio off MUST force a new probe")
}

func TestGobleTestSuite(t *testing.T) {
	suite.Run(t, new(GobleTestSuite))
}
