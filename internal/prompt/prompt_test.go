package prompt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm_Answers(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"y", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.input), &out, true)

			got, err := p.Confirm("Allow BLUETOOTH_SCAN?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "? Allow BLUETOOTH_SCAN? [y/N]")
		})
	}
}

func TestConfirm_SequentialQuestions(t *testing.T) {
	p := New(strings.NewReader("y\nn\n"), &bytes.Buffer{}, true)

	first, err := p.Confirm("one?")
	require.NoError(t, err)
	second, err := p.Confirm("two?")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second, "each question MUST consume exactly one line")
}

func TestConfirm_NotInteractive(t *testing.T) {
	p := New(strings.NewReader("y\n"), &bytes.Buffer{}, false)
	_, err := p.Confirm("anything?")
	assert.ErrorIs(t, err, ErrNotInteractive)

	var nilPrompter *Prompter
	assert.False(t, nilPrompter.Interactive())
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, IsTerminal(strings.NewReader("")))
}
