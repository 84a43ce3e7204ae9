package sim

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
)

// Foreground records foreground-host calls.
type Foreground struct {
	logger *logrus.Logger

	mu             sync.Mutex
	channels       map[string]platform.NotificationChannel
	channelCreates int
	active         map[int]platform.Notification
	starts         int
	stops          int
	startErr       error
	onStart        func()
}

func newForeground(logger *logrus.Logger) *Foreground {
	return &Foreground{
		logger:   logger,
		channels: make(map[string]platform.NotificationChannel),
		active:   make(map[int]platform.Notification),
	}
}

// CreateNotificationChannel implements platform.ForegroundHost.
func (f *Foreground) CreateNotificationChannel(ch platform.NotificationChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
	f.channelCreates++
	return nil
}

// StartForeground implements platform.ForegroundHost.
func (f *Foreground) StartForeground(id int, n platform.Notification) error {
	f.mu.Lock()
	hook := f.onStart
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return err
	}
	f.active[id] = n
	f.starts++
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	f.logger.WithFields(logrus.Fields{"id": id, "title": n.Title}).Debug("Simulated foreground started")
	return nil
}

// StopForeground implements platform.ForegroundHost.
func (f *Foreground) StopForeground(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[id]; ok {
		delete(f.active, id)
		f.stops++
	}
	return nil
}

// FailStarts makes StartForeground return err. nil clears it.
func (f *Foreground) FailStarts(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// OnStart runs hook inside every successful StartForeground. Tests use it to
// advance a fake clock while the call is in progress.
func (f *Foreground) OnStart(hook func()) {
	f.mu.Lock()
	f.onStart = hook
	f.mu.Unlock()
}

// Channel returns a created channel by id.
func (f *Foreground) Channel(id string) (platform.NotificationChannel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	return ch, ok
}

// ChannelCreates returns how many times a channel was (re)created.
func (f *Foreground) ChannelCreates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelCreates
}

// Active returns the notification shown for id, if foreground.
func (f *Foreground) Active(id int) (platform.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.active[id]
	return n, ok
}

// Counts returns how many starts and stops were recorded.
func (f *Foreground) Counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

var _ platform.ForegroundHost = (*Foreground)(nil)
