package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).Options()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresence)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Compare(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "identical",
			actual:   `{"event":"onBluetoothEnabled","seq":1}`,
			expected: `{"event":"onBluetoothEnabled","seq":1}`,
			match:    true,
		},
		{
			name:     "extra keys ignored",
			actual:   `{"code":"DISABLED","message":"Bluetooth is turned off","details":null}`,
			expected: `{"code":"DISABLED"}`,
			match:    true,
		},
		{
			name:     "extra keys significant on request",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"code":"DISABLED","message":"Bluetooth is turned off"}`,
			expected: `{"code":"DISABLED"}`,
			match:    false,
		},
		{
			name:     "presence matches any value",
			actual:   `{"address":"AA:BB","timestamp":"2026-01-02T03:04:05Z"}`,
			expected: `{"address":"AA:BB","timestamp":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "presence still needs the key",
			actual:   `{"address":"AA:BB"}`,
			expected: `{"address":"AA:BB","timestamp":"<<PRESENCE>>"}`,
			match:    false,
		},
		{
			name:     "value mismatch",
			actual:   `{"rssi":-70}`,
			expected: `{"rssi":-60}`,
			match:    false,
		},
		{
			name:     "root arrays",
			actual:   `[{"address":"A","rssi":-1},{"address":"B","rssi":-2}]`,
			expected: `[{"address":"A"},{"address":"B"}]`,
			match:    true,
		},
		{
			name:     "array order significant by default",
			actual:   `{"missing":["b","a"]}`,
			expected: `{"missing":["a","b"]}`,
			match:    false,
		},
		{
			name:     "array order ignored on request",
			opts:     []Option{WithIgnoreArrayOrder(true)},
			actual:   `{"missing":["b","a"]}`,
			expected: `{"missing":["a","b"]}`,
			match:    true,
		},
		{
			name:     "ignored fields at any depth",
			opts:     []Option{WithIgnoredFields("seq", "timestamp"), WithIgnoreExtraKeys(false)},
			actual:   `{"seq":7,"payload":{"address":"A","timestamp":"now"}}`,
			expected: `{"seq":1,"payload":{"address":"A"}}`,
			match:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, !tt.match, len(rec.failures) > 0)
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	ja := NewJSONAsserter(t)
	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, `{`), "invalid expected JSON")
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	payload := struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
	}{Code: "UNAVAILABLE", Reason: "Bluetooth not available on this device"}

	NewJSONAsserter(t).AssertValue(payload, `{"code":"UNAVAILABLE","reason":"<<PRESENCE>>"}`)
}
