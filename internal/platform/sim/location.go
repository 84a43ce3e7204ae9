package sim

import (
	"sync"

	"github.com/srg/tracktag/internal/platform"
)

// Location is the simulated location-service switch.
type Location struct {
	mu      sync.Mutex
	enabled bool
	err     error
}

// LocationEnabled implements platform.LocationSettings.
func (l *Location) LocationEnabled() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.enabled, nil
}

// Set flips the switch.
func (l *Location) Set(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Fail makes LocationEnabled return err. nil clears it.
func (l *Location) Fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

var _ platform.LocationSettings = (*Location)(nil)
