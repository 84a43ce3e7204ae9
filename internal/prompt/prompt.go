// Package prompt asks yes/no questions on a terminal. It backs the permission
// and adapter-enable dialogs of the desktop platforms.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when there is no terminal to ask on.
var ErrNotInteractive = errors.New("prompt: input is not a terminal")

// Prompter asks questions one at a time.
type Prompter struct {
	in          io.Reader
	out         io.Writer
	interactive bool

	mu     sync.Mutex
	reader *bufio.Reader
}

// New creates a prompter on arbitrary streams. interactive decides whether
// questions are asked at all.
func New(in io.Reader, out io.Writer, interactive bool) *Prompter {
	return &Prompter{
		in:          in,
		out:         out,
		interactive: interactive,
		reader:      bufio.NewReader(in),
	}
}

// Stdio creates a prompter on the process stdin/stderr. It is interactive only
// when stdin is a terminal.
func Stdio() *Prompter {
	return New(os.Stdin, os.Stderr, IsTerminal(os.Stdin))
}

// IsTerminal reports whether r is a terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Interactive reports whether Confirm will ask.
func (p *Prompter) Interactive() bool {
	return p != nil && p.interactive
}

// Confirm asks question and waits for an answer. Anything but y/yes is a no.
// End of input counts as no.
func (p *Prompter) Confirm(question string) (bool, error) {
	if !p.Interactive() {
		return false, ErrNotInteractive
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	q := color.New(color.FgCyan, color.Bold)
	hint := color.New(color.Faint)
	if _, err := fmt.Fprintf(p.out, "%s %s ", q.Sprint("?"), question); err != nil {
		return false, err
	}
	if _, err := hint.Fprint(p.out, "[y/N] "); err != nil {
		return false, err
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(p.out)
			return false, nil
		}
		return false, fmt.Errorf("prompt: read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
