package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures asserter failures instead of failing the test.
type recordingT struct {
	failures []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter_DefaultOptions(t *testing.T) {
	opts := NewTextAsserter(t).Options()

	assert.True(t, opts.TrimSpace)
	assert.True(t, opts.IgnoreTrailingWhitespace)
	assert.True(t, opts.StripANSI)
	assert.False(t, opts.IgnoreEmptyLines)
	assert.False(t, opts.EnableColors)
}

func TestTextAsserter_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "trailing whitespace ignored",
			actual:   "API level:  34   \nEnable mode:  interactive\t\n",
			expected: "API level:  34\nEnable mode:  interactive",
			match:    true,
		},
		{
			name:     "colors stripped",
			actual:   "Location services: \x1b[32mon\x1b[0m\n",
			expected: "Location services: on",
			match:    true,
		},
		{
			name:     "progress redraws collapse to the final frame",
			actual:   "\rScanning (Scanning 3s)   \rScanning (Scanning 2s)   \r\x1b[KNo devices discovered\n",
			expected: "No devices discovered",
			match:    true,
		},
		{
			name:     "empty lines significant by default",
			actual:   "a\n\nb",
			expected: "a\nb",
			match:    false,
		},
		{
			name:     "empty lines ignored on request",
			opts:     []TextOption{WithIgnoreEmptyLines(true)},
			actual:   "a\n\nb",
			expected: "a\nb",
			match:    true,
		},
		{
			name:     "escape sequences kept on request",
			opts:     []TextOption{WithStripANSI(false)},
			actual:   "\x1b[32mon\x1b[0m",
			expected: "on",
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewTextAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, !tt.match, len(rec.failures) > 0)
		})
	}
}

func TestTextAsserter_DiffShowsBothSides(t *testing.T) {
	d := NewTextAsserter(t).Diff("Permission model:  location-gated\n", "Permission model:  scoped-bluetooth\n")

	assert.Contains(t, d, "--- expected")
	assert.Contains(t, d, "+++ actual")
	assert.Contains(t, d, "-Permission model:  scoped-bluetooth")
	assert.Contains(t, d, "+Permission model:  location-gated")
}

func TestTextAsserter_ColoredDiff(t *testing.T) {
	d := NewTextAsserter(t).WithOptions(WithEnableColors(true)).Diff("a b", "a\tb")

	assert.Contains(t, d, "\x1b[", "colored diff MUST carry escape sequences")
	assert.True(t, strings.Contains(d, "a·b") && strings.Contains(d, "a→b"), "whitespace MUST be made visible")
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "done\nnext", StripANSI("\x1b[1mwork\rdone\x1b[0m\nnext"))
}
