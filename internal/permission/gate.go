// Package permission resolves, checks and requests the runtime permissions
// scanning depends on.
package permission

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/looper"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

// Outcome is the terminal result of one RequestMissing call.
type Outcome int

const (
	// AlreadySatisfied means nothing was missing; no dialog was shown.
	AlreadySatisfied Outcome = iota
	// AllGranted means every permission in the batch was granted.
	AllGranted
	// Denied means at least one permission in the batch was refused.
	Denied
)

func (o Outcome) String() string {
	switch o {
	case AlreadySatisfied:
		return "already_satisfied"
	case AllGranted:
		return "all_granted"
	case Denied:
		return "denied"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Granted reports whether scanning may proceed.
func (o Outcome) Granted() bool {
	return o == AlreadySatisfied || o == AllGranted
}

// Gate owns the permission request cycle. All methods must be called on the
// looper's home goroutine.
type Gate struct {
	policy policy.Policy
	table  platform.PermissionTable
	looper *looper.Looper
	logger *logrus.Logger

	requestID uint64
	inFlight  bool
}

// NewGate creates a gate for the given policy.
func NewGate(p policy.Policy, table platform.PermissionTable, lp *looper.Looper, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{
		policy: p,
		table:  table,
		looper: lp,
		logger: logger,
	}
}

// RequiredPermissions returns the permission set scanning needs under this
// gate's policy.
func (g *Gate) RequiredPermissions(background bool) policy.PermissionSet {
	return g.policy.RequiredPermissions(background)
}

// CheckGranted queries the OS grant table. The answer is never cached.
func (g *Gate) CheckGranted(id policy.PermissionID) bool {
	return g.table.Status(id) == platform.Granted
}

// Missing returns the members of perms that are not currently granted.
func (g *Gate) Missing(perms policy.PermissionSet) policy.PermissionSet {
	var missing []policy.PermissionID
	for _, id := range perms {
		if !g.CheckGranted(id) {
			missing = append(missing, id)
		}
	}
	return policy.NewPermissionSet(missing...)
}

// InFlight reports whether a dialog is awaiting its answer.
func (g *Gate) InFlight() bool {
	return g.inFlight
}

// RequestMissing asks for perms in a single batched dialog and calls done once
// with the outcome. An empty set completes synchronously with
// AlreadySatisfied. A newer request supersedes an unanswered one; the older
// answer is dropped and its done is never called.
//
// The returned error means the dialog could not be shown; done is not called.
func (g *Gate) RequestMissing(perms policy.PermissionSet, done func(Outcome)) error {
	if len(perms) == 0 {
		done(AlreadySatisfied)
		return nil
	}

	g.requestID++
	id := g.requestID
	if g.inFlight {
		g.logger.WithField("request_id", id).Debug("Superseding unanswered permission request")
	}

	ids := append([]policy.PermissionID(nil), perms...)
	err := g.table.Request(ids, func(result map[policy.PermissionID]bool) {
		g.looper.Post(func() { g.deliver(id, ids, result, done) })
	})
	if err != nil {
		return fmt.Errorf("failed to request permissions: %w", err)
	}
	g.inFlight = true

	g.logger.WithFields(logrus.Fields{
		"request_id":  id,
		"permissions": perms.Strings(),
	}).Info("Requested permissions")
	return nil
}

func (g *Gate) deliver(id uint64, ids []policy.PermissionID, result map[policy.PermissionID]bool, done func(Outcome)) {
	if id != g.requestID {
		g.logger.WithFields(logrus.Fields{
			"request_id": id,
			"current_id": g.requestID,
		}).Debug("Dropped stale permission result")
		return
	}
	g.inFlight = false

	outcome := AllGranted
	for _, p := range ids {
		if !result[p] {
			outcome = Denied
			break
		}
	}

	g.logger.WithFields(logrus.Fields{
		"request_id": id,
		"outcome":    outcome.String(),
	}).Info("Permission request resolved")
	done(outcome)
}

// Abandon forgets any unanswered request so its answer is dropped.
func (g *Gate) Abandon() {
	if g.inFlight {
		g.requestID++
		g.inFlight = false
	}
}
