// Package adapter queries and enables the local Bluetooth adapter.
package adapter

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/looper"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

// Presence says whether adapter hardware exists.
type Presence int

const (
	Absent Presence = iota
	Present
)

func (p Presence) String() string {
	if p == Present {
		return "present"
	}
	return "absent"
}

// State is the adapter state as seen by the scan lifecycle.
type State int

const (
	StateAbsent State = iota
	StateDisabled
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EnableResult is the immediate answer of Enable.
type EnableResult int

const (
	// EnableCompleted means the adapter is on now.
	EnableCompleted EnableResult = iota
	// EnableSubmitted means a prompt was launched; the answer arrives later
	// through the onResult callback.
	EnableSubmitted
)

func (r EnableResult) String() string {
	if r == EnableSubmitted {
		return "submitted"
	}
	return "completed"
}

// Controller drives adapter enablement. All methods except Presence and State
// must be called on the looper's home goroutine.
type Controller struct {
	policy  policy.Policy
	adapter platform.Adapter
	looper  *looper.Looper
	logger  *logrus.Logger

	promptID uint64
	awaiting bool
}

// NewController creates a controller for the given policy.
func NewController(p policy.Policy, a platform.Adapter, lp *looper.Looper, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		policy:  p,
		adapter: a,
		looper:  lp,
		logger:  logger,
	}
}

// Presence reports whether adapter hardware exists.
func (c *Controller) Presence() Presence {
	if c.adapter == nil || !c.adapter.Present() {
		return Absent
	}
	return Present
}

// State reads the current adapter state.
func (c *Controller) State() (State, error) {
	if c.Presence() == Absent {
		return StateAbsent, nil
	}
	on, err := c.adapter.Enabled()
	if err != nil {
		err = platform.NormalizeError(err)
		if errors.Is(err, platform.ErrAdapterAbsent) {
			return StateAbsent, nil
		}
		if errors.Is(err, platform.ErrAdapterDisabled) {
			return StateDisabled, nil
		}
		return StateAbsent, fmt.Errorf("failed to read adapter state: %w", err)
	}
	if on {
		return StateEnabled, nil
	}
	return StateDisabled, nil
}

// IsEnabled reports whether the adapter is on. A failed query counts as off.
func (c *Controller) IsEnabled() bool {
	st, err := c.State()
	if err != nil {
		c.logger.WithError(err).Warn("Adapter state query failed")
		return false
	}
	return st == StateEnabled
}

// Awaiting reports whether an enable prompt is unanswered.
func (c *Controller) Awaiting() bool {
	return c.awaiting
}

// Enable turns the adapter on.
//
// An enabled adapter completes immediately. A disabled adapter is switched on
// in-process under ProgrammaticEnable and completes immediately. Under
// InteractiveEnable a prompt is launched and EnableSubmitted is returned;
// onResult is then called exactly once on the home goroutine with the
// user's answer. onResult is never called for EnableCompleted.
func (c *Controller) Enable(onResult func(enabled bool)) (EnableResult, error) {
	st, err := c.State()
	if err != nil {
		return EnableCompleted, err
	}

	switch st {
	case StateAbsent:
		return EnableCompleted, platform.ErrAdapterAbsent
	case StateEnabled:
		return EnableCompleted, nil
	}

	if c.policy.Enable == policy.ProgrammaticEnable {
		if err := c.adapter.EnableNow(); err != nil {
			return EnableCompleted, fmt.Errorf("failed to enable adapter: %w", platform.NormalizeError(err))
		}
		c.logger.Info("Adapter enabled programmatically")
		return EnableCompleted, nil
	}

	c.promptID++
	id := c.promptID
	err = c.adapter.RequestEnable(func(confirmed bool) {
		c.looper.Post(func() { c.deliver(id, confirmed, onResult) })
	})
	if err != nil {
		return EnableCompleted, fmt.Errorf("failed to launch enable prompt: %w", platform.NormalizeError(err))
	}
	c.awaiting = true

	c.logger.WithField("prompt_id", id).Info("Adapter enable prompt launched")
	return EnableSubmitted, nil
}

func (c *Controller) deliver(id uint64, confirmed bool, onResult func(bool)) {
	if id != c.promptID || !c.awaiting {
		c.logger.WithField("prompt_id", id).Debug("Dropped stale enable answer")
		return
	}
	c.awaiting = false

	c.logger.WithFields(logrus.Fields{
		"prompt_id": id,
		"confirmed": confirmed,
	}).Info("Adapter enable prompt answered")
	if onResult != nil {
		onResult(confirmed)
	}
}

// Abandon forgets an unanswered prompt so its answer is dropped.
func (c *Controller) Abandon() {
	if c.awaiting {
		c.promptID++
		c.awaiting = false
	}
}
