package discovery

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/srg/tracktag/internal/platform"
)

// MaxHistorySize guards against accidental misconfiguration.
const MaxHistorySize uint32 = 1 << 20

// History keeps the most recent raw results, dropping the oldest on overflow.
type History struct {
	mu     sync.Mutex
	buffer mpmc.RichOverlappedRingBuffer[platform.ScanResult]

	pushed      atomic.Int64
	overwritten atomic.Int64
}

// NewHistory creates a history holding up to size results.
func NewHistory(size uint32) (*History, error) {
	if size == 0 {
		return nil, fmt.Errorf("history size must be > 0")
	}
	if size > MaxHistorySize {
		return nil, fmt.Errorf("history size %d exceeds maximum %d", size, MaxHistorySize)
	}
	return &History{buffer: mpmc.NewOverlappedRingBuffer[platform.ScanResult](size)}, nil
}

// Push appends r.
func (h *History) Push(r platform.ScanResult) error {
	overwrites, err := h.buffer.EnqueueM(r)
	if err != nil {
		return fmt.Errorf("history enqueue failed: %w", err)
	}
	h.pushed.Add(1)
	h.overwritten.Add(int64(overwrites))
	return nil
}

// Drain removes and returns everything buffered, oldest first. At most max
// results are returned when max > 0.
func (h *History) Drain(max int) ([]platform.ScanResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []platform.ScanResult
	for !h.buffer.IsEmpty() {
		if max > 0 && len(out) >= max {
			break
		}
		r, err := h.buffer.Dequeue()
		if err != nil {
			return out, fmt.Errorf("history dequeue failed: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// HistoryStats are lifetime counters.
type HistoryStats struct {
	Pushed      int64 `json:"pushed"`
	Overwritten int64 `json:"overwritten"`
}

// Stats returns the lifetime counters.
func (h *History) Stats() HistoryStats {
	return HistoryStats{
		Pushed:      h.pushed.Load(),
		Overwritten: h.overwritten.Load(),
	}
}
