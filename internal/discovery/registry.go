// Package discovery consumes scan results: a first-seen ordered registry of
// devices and a bounded history of raw matches.
package discovery

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/tracktag/internal/platform"
)

// Device is the aggregated view of one address.
type Device struct {
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	RSSI      int       `json:"rssi"`
	Seen      int       `json:"seen"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Registry aggregates results per address in first-seen order. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices *orderedmap.OrderedMap[string, *Device]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: orderedmap.New[string, *Device]()}
}

// Observe folds r into the registry and reports whether the address is new.
func (r *Registry) Observe(res platform.ScanResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices.Get(res.Address)
	if !ok {
		d = &Device{Address: res.Address, FirstSeen: res.Timestamp}
		r.devices.Set(res.Address, d)
	}
	d.Seen++
	d.RSSI = res.RSSI
	d.LastSeen = res.Timestamp
	// advertisements without a local name keep the last known one
	if res.Name != "" {
		d.Name = res.Name
	}
	return !ok
}

// Get returns a copy of the device with the given address.
func (r *Registry) Get(address string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices.Get(address)
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Len returns the number of distinct addresses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

// Snapshot returns copies of all devices in first-seen order.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// Reset forgets every device.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.devices = orderedmap.New[string, *Device]()
	r.mu.Unlock()
}
