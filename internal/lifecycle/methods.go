package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/tracktag/internal/bridge"
	"github.com/srg/tracktag/internal/looper"
	"github.com/srg/tracktag/internal/platform"
)

// Method names accepted from the host.
const (
	MethodRequestEnableBluetooth = "requestEnableBluetooth"
	MethodCheckLocationServices  = "checkLocationServices"
	MethodStartScan              = "startScan"
	MethodStopScan               = "stopScan"
	MethodGetState               = "getState"
)

// DefaultChannel is the channel name the host talks on.
const DefaultChannel = "flutter_bluetooth"

var errLocationQuery = errors.New("failed to check location services")

// ChannelError maps a lifecycle error to the code the host understands.
func ChannelError(err error) *bridge.ChannelError {
	var missing *platform.MissingPermissionsError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, platform.ErrAdapterAbsent):
		return bridge.NewChannelError(bridge.CodeUnavailable, "Bluetooth not available on this device")
	case errors.Is(err, platform.ErrAdapterDisabled):
		return bridge.NewChannelError(bridge.CodeDisabled, "Bluetooth is turned off")
	case errors.As(err, &missing):
		return bridge.NewChannelErrorWithDetails(bridge.CodePermissionDenied, err.Error(), missing.Missing)
	case errors.Is(err, platform.ErrPermissionDenied):
		return bridge.NewChannelError(bridge.CodePermissionDenied, err.Error())
	case errors.Is(err, errLocationQuery):
		return bridge.NewChannelError(bridge.CodeError, "Failed to check location services: "+locationCause(err))
	case errors.Is(err, looper.ErrStopped), errors.Is(err, bridge.ErrClosed):
		return bridge.NewChannelError(bridge.CodeShutdown, "scan manager is shut down")
	default:
		return bridge.AsChannelError(err)
	}
}

func locationCause(err error) string {
	return strings.TrimPrefix(err.Error(), errLocationQuery.Error()+": ")
}

// Bind registers the lifecycle commands on mc.
func (m *Manager) Bind(mc *bridge.MethodChannel) {
	mc.Handle(MethodRequestEnableBluetooth, func(ctx context.Context, _ any) (any, error) {
		status, err := m.RequestEnableBluetooth(ctx)
		if err != nil {
			return nil, ChannelError(err)
		}
		return string(status), nil
	})

	mc.Handle(MethodCheckLocationServices, func(ctx context.Context, _ any) (any, error) {
		on, err := m.CheckLocationServices(ctx)
		if err != nil {
			return nil, ChannelError(err)
		}
		return on, nil
	})

	mc.Handle(MethodStartScan, func(ctx context.Context, _ any) (any, error) {
		if err := m.StartScan(ctx); err != nil {
			return nil, ChannelError(err)
		}
		return nil, nil
	})

	mc.Handle(MethodStopScan, func(ctx context.Context, _ any) (any, error) {
		if err := m.StopScan(ctx); err != nil {
			return nil, ChannelError(err)
		}
		return nil, nil
	})

	mc.Handle(MethodGetState, func(ctx context.Context, _ any) (any, error) {
		snap, err := m.State(ctx)
		if err != nil {
			return nil, ChannelError(err)
		}
		return snap, nil
	})
}
