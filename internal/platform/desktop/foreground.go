package desktop

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
)

// ConsoleForeground shows the foreground notification as a status line.
// Desktop processes are never suspended, so the line is all there is to do.
type ConsoleForeground struct {
	out    io.Writer
	logger *logrus.Logger

	mu       sync.Mutex
	channels map[string]platform.NotificationChannel
	active   map[int]platform.Notification
}

// NewConsoleForeground writes status lines to out.
func NewConsoleForeground(out io.Writer, logger *logrus.Logger) *ConsoleForeground {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConsoleForeground{
		out:      out,
		logger:   logger,
		channels: make(map[string]platform.NotificationChannel),
		active:   make(map[int]platform.Notification),
	}
}

// CreateNotificationChannel implements platform.ForegroundHost.
func (f *ConsoleForeground) CreateNotificationChannel(ch platform.NotificationChannel) error {
	f.mu.Lock()
	f.channels[ch.ID] = ch
	f.mu.Unlock()
	return nil
}

// StartForeground implements platform.ForegroundHost.
func (f *ConsoleForeground) StartForeground(id int, n platform.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.active[id]; ok {
		return nil
	}
	f.active[id] = n

	title := color.New(color.FgGreen, color.Bold)
	if _, err := fmt.Fprintf(f.out, "%s %s: %s\n", title.Sprint("●"), title.Sprint(n.Title), n.Text); err != nil {
		return err
	}
	f.logger.WithField("id", id).Debug("Console foreground started")
	return nil
}

// StopForeground implements platform.ForegroundHost.
func (f *ConsoleForeground) StopForeground(id int) error {
	f.mu.Lock()
	n, ok := f.active[id]
	delete(f.active, id)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	_, err := fmt.Fprintf(f.out, "%s %s\n", color.New(color.Faint).Sprint("○"), n.Title+" stopped")
	return err
}

// Active reports whether id is showing.
func (f *ConsoleForeground) Active(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[id]
	return ok
}
