package sim

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

// Adapter is the simulated Bluetooth radio.
type Adapter struct {
	version policy.Version
	clock   clockwork.Clock
	auto    AutoResponse
	logger  *logrus.Logger

	mu         sync.Mutex
	present    bool
	enabled    bool
	queryErr   error
	prompts    []func(bool)
	shown      int
	enableNows int
}

func newAdapter(cfg Config, clock clockwork.Clock, logger *logrus.Logger) *Adapter {
	return &Adapter{
		version: cfg.Version,
		clock:   clock,
		auto:    cfg.AutoResponse,
		logger:  logger,
		present: cfg.AdapterPresent,
		enabled: cfg.AdapterPresent && cfg.AdapterEnabled,
	}
}

// Present implements platform.Adapter.
func (a *Adapter) Present() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.present
}

// Enabled implements platform.Adapter.
func (a *Adapter) Enabled() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.present {
		return false, platform.ErrAdapterAbsent
	}
	if a.queryErr != nil {
		return false, a.queryErr
	}
	return a.enabled, nil
}

// EnableNow implements platform.Adapter. Like the real OS it refuses on
// versions that only allow interactive enablement.
func (a *Adapter) EnableNow() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.present {
		return platform.ErrAdapterAbsent
	}
	if policy.For(a.version).Enable != policy.ProgrammaticEnable {
		return fmt.Errorf("programmatic enable on version %d: %w", a.version, platform.ErrUnsupported)
	}
	a.enableNows++
	a.enabled = true
	return nil
}

// RequestEnable implements platform.Adapter. The prompt stays pending until
// ResolveEnable.
func (a *Adapter) RequestEnable(onResult func(confirmed bool)) error {
	a.mu.Lock()
	if !a.present {
		a.mu.Unlock()
		return platform.ErrAdapterAbsent
	}
	a.prompts = append(a.prompts, onResult)
	a.shown++
	a.mu.Unlock()

	a.logger.Debug("Simulated enable prompt shown")

	if a.auto.Enabled {
		confirm := a.auto.ConfirmEnable
		a.clock.AfterFunc(a.auto.Delay, func() { a.ResolveEnable(confirm) })
	}
	return nil
}

// ResolveEnable answers every pending prompt. It reports how many were answered.
func (a *Adapter) ResolveEnable(confirmed bool) int {
	a.mu.Lock()
	prompts := a.prompts
	a.prompts = nil
	if confirmed && len(prompts) > 0 {
		a.enabled = true
	}
	a.mu.Unlock()

	for _, fn := range prompts {
		fn(confirmed)
	}
	return len(prompts)
}

// SetEnabled flips the radio, as if toggled from the system settings.
func (a *Adapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled && a.present
	a.mu.Unlock()
}

// SetPresent removes or restores the hardware.
func (a *Adapter) SetPresent(present bool) {
	a.mu.Lock()
	a.present = present
	if !present {
		a.enabled = false
	}
	a.mu.Unlock()
}

// FailQueries makes Enabled return err. nil clears it.
func (a *Adapter) FailQueries(err error) {
	a.mu.Lock()
	a.queryErr = err
	a.mu.Unlock()
}

// PendingPrompts returns the number of unanswered enable prompts.
func (a *Adapter) PendingPrompts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prompts)
}

// PromptsShown returns how many enable prompts were ever launched.
func (a *Adapter) PromptsShown() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shown
}

// EnableNowCalls returns how many programmatic enables succeeded.
func (a *Adapter) EnableNowCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableNows
}

var _ platform.Adapter = (*Adapter)(nil)
