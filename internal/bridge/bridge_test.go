package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodChannel_Invoke(t *testing.T) {
	mc := NewMethodChannel("flutter_bluetooth", nil)
	mc.Handle("echo", func(_ context.Context, args any) (any, error) { return args, nil })
	mc.Handle("fail", func(context.Context, any) (any, error) {
		return nil, NewChannelError(CodeUnavailable, "Bluetooth not available on this device")
	})
	mc.Handle("plain", func(context.Context, any) (any, error) { return nil, errors.New("boom") })

	got, err := mc.Invoke(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = mc.Invoke(context.Background(), "fail", nil)
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeUnavailable, ce.Code)

	_, err = mc.Invoke(context.Background(), "plain", nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeError, ce.Code, "plain errors MUST map to ERROR")
	assert.Equal(t, "boom", ce.Message)

	_, err = mc.Invoke(context.Background(), "missing", nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeNotImplemented, ce.Code)

	assert.Equal(t, []string{"echo", "fail", "plain"}, mc.Methods())
}

func TestMethodChannel_Dispatch(t *testing.T) {
	mc := NewMethodChannel("c", nil)
	mc.Handle("sum", func(_ context.Context, args any) (any, error) {
		m, ok := args.(map[string]any)
		if !ok {
			return nil, NewChannelError(CodeInvalidArguments, "object expected")
		}
		return m["a"].(float64) + m["b"].(float64), nil
	})

	reply := mc.Dispatch(context.Background(), Call{ID: "1", Method: "sum", Args: json.RawMessage(`{"a":1,"b":2}`)})
	assert.Equal(t, "1", reply.ID)
	assert.Nil(t, reply.Error)
	assert.Equal(t, float64(3), reply.Result)

	reply = mc.Dispatch(context.Background(), Call{ID: "2", Method: "sum", Args: json.RawMessage(`{bad`)})
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeInvalidArguments, reply.Error.Code)

	reply = mc.Dispatch(context.Background(), Call{ID: "3", Method: "sum"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeInvalidArguments, reply.Error.Code, "nil args MUST reach the handler")
}

func TestEventChannel_OrderAndFanOut(t *testing.T) {
	ec := NewEventChannel("events")

	var a, b []Event
	ec.Listen(EventHandler{OnEvent: func(ev Event) { a = append(a, ev) }})
	ec.Listen(EventHandler{OnEvent: func(ev Event) { b = append(b, ev) }})

	require.NoError(t, ec.Emit("onPermissionsGranted", nil))
	require.NoError(t, ec.Emit("onBluetoothEnabled", nil))

	require.Len(t, a, 2)
	assert.Equal(t, a, b, "every subscriber MUST see the same events")
	assert.Equal(t, "onPermissionsGranted", a[0].Name)
	assert.Equal(t, uint64(1), a[0].Seq)
	assert.Equal(t, uint64(2), a[1].Seq)
}

func TestEventChannel_ConcurrentEmitKeepsSeqOrder(t *testing.T) {
	ec := NewEventChannel("events")

	var seqs []uint64
	ec.Listen(EventHandler{OnEvent: func(ev Event) { seqs = append(seqs, ev.Seq) }})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = ec.Emit(fmt.Sprintf("e%d", g), i)
			}
		}(g)
	}
	wg.Wait()

	require.Len(t, seqs, 100)
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s, "delivery order MUST match sequence order")
	}
}

func TestEventChannel_CancelAndClose(t *testing.T) {
	ec := NewEventChannel("events")

	var got int
	done := 0
	sub := ec.Listen(EventHandler{
		OnEvent: func(Event) { got++ },
		OnDone:  func() { done++ },
	})
	other := ec.Listen(EventHandler{OnDone: func() { done++ }})

	sub.Cancel()
	sub.Cancel()
	require.NoError(t, ec.Emit("x", nil))
	assert.Equal(t, 0, got, "canceled subscription MUST NOT receive events")
	assert.Equal(t, 1, ec.Listeners())

	ec.Close()
	ec.Close()
	assert.Equal(t, 1, done, "only live subscriptions MUST get OnDone, once")
	assert.True(t, other.IsCanceled())
	assert.ErrorIs(t, ec.Emit("y", nil), ErrClosed)

	late := ec.Listen(EventHandler{OnDone: func() { done++ }})
	assert.True(t, late.IsCanceled())
	assert.Equal(t, 2, done)
}

func TestAsChannelError(t *testing.T) {
	assert.Nil(t, AsChannelError(nil))

	wrapped := fmt.Errorf("ctx: %w", NewChannelError(CodeDisabled, "off"))
	assert.Equal(t, CodeDisabled, AsChannelError(wrapped).Code)
	assert.Equal(t, CodeShutdown, AsChannelError(ErrClosed).Code)
	assert.Equal(t, CodeNotImplemented, AsChannelError(ErrMethodNotFound).Code)

	ce := NewChannelErrorWithDetails(CodeError, "m", map[string]any{"k": 1})
	assert.Equal(t, "ERROR: m", ce.Error())
	assert.Equal(t, "UNAVAILABLE", NewChannelError(CodeUnavailable, "").Error())
}

func TestJSONCodec(t *testing.T) {
	c := JSONCodec{}

	v, err := c.Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	data, err := c.Encode(Reply{ID: "1", Result: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","result":true}`, string(data))
}
