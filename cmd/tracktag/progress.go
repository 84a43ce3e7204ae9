package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a phase line with elapsed or remaining time.
//
// Usage:
//
//	p := NewProgressPrinter(w, ...)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start at most once, Stop any number of times.
type ProgressPrinter struct {
	out       io.Writer
	prefix    string
	phase     atomic.Value // stores string - current phase name
	startTime time.Time
	countUp   bool          // true for count up, false for countdown
	duration  time.Duration // for countdown mode

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{} // closed when goroutine exits

	// writeMu keeps progress lines and Println output from interleaving.
	writeMu sync.Mutex
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(out io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{out: out, prefix: prefix, countUp: true}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from the duration.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{out: out, prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	p.print(p.phase.Load().(string), 0)

	ticker := time.NewTicker(progressUpdateInterval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print(p.phase.Load().(string), p.seconds())
			}
		}
	}()
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.countUp {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second, e.g. 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase changes the phase shown on the next tick. Safe for concurrent use.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Println prints a full line above the progress line.
func (p *ProgressPrinter) Println(line string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	fmt.Fprint(p.out, clearLineSequence)
	fmt.Fprintln(p.out, line)
}

// Stop stops the progress display and clears the line. Safe to call more
// than once, and before Start.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		if !p.started.Load() {
			return
		}
		close(p.stopChan)
		<-p.done
		p.writeMu.Lock()
		fmt.Fprint(p.out, clearLineSequence)
		p.writeMu.Unlock()
	})
}
