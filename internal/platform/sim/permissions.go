package sim

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

type permissionDialog struct {
	ids      []policy.PermissionID
	onResult func(map[policy.PermissionID]bool)
}

// Permissions is the simulated grant table and permission dialog.
type Permissions struct {
	table  *hashmap.Map[policy.PermissionID, platform.PermissionStatus]
	clock  clockwork.Clock
	auto   AutoResponse
	logger *logrus.Logger

	mu      sync.Mutex
	pending []permissionDialog
	shown   int
	failErr error
}

func newPermissions(cfg Config, clock clockwork.Clock, logger *logrus.Logger) *Permissions {
	p := &Permissions{
		table:  hashmap.New[policy.PermissionID, platform.PermissionStatus](),
		clock:  clock,
		auto:   cfg.AutoResponse,
		logger: logger,
	}
	for _, id := range cfg.Granted {
		p.table.Set(id, platform.Granted)
	}
	for _, id := range cfg.Denied {
		p.table.Set(id, platform.Denied)
	}
	return p
}

// Status implements platform.PermissionTable.
func (p *Permissions) Status(id policy.PermissionID) platform.PermissionStatus {
	st, ok := p.table.Get(id)
	if !ok {
		return platform.NotRequested
	}
	return st
}

// Request implements platform.PermissionTable. The dialog stays pending until
// resolved.
func (p *Permissions) Request(ids []policy.PermissionID, onResult func(map[policy.PermissionID]bool)) error {
	p.mu.Lock()
	if p.failErr != nil {
		err := p.failErr
		p.mu.Unlock()
		return err
	}
	p.pending = append(p.pending, permissionDialog{
		ids:      append([]policy.PermissionID(nil), ids...),
		onResult: onResult,
	})
	p.shown++
	p.mu.Unlock()

	p.logger.WithField("permissions", ids).Debug("Simulated permission dialog shown")

	if p.auto.Enabled {
		grant := p.auto.GrantPermissions
		p.clock.AfterFunc(p.auto.Delay, func() { p.ResolveAll(grant) })
	}
	return nil
}

// Set changes the grant table directly, as if the user toggled it in settings.
func (p *Permissions) Set(id policy.PermissionID, status platform.PermissionStatus) {
	p.table.Set(id, status)
}

// Grant marks every id granted.
func (p *Permissions) Grant(ids ...policy.PermissionID) {
	for _, id := range ids {
		p.table.Set(id, platform.Granted)
	}
}

// Revoke marks every id denied.
func (p *Permissions) Revoke(ids ...policy.PermissionID) {
	for _, id := range ids {
		p.table.Set(id, platform.Denied)
	}
}

// FailRequests makes subsequent Request calls return err. nil clears it.
func (p *Permissions) FailRequests(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
}

// Pending returns the number of unanswered dialogs.
func (p *Permissions) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// DialogsShown returns how many dialogs were ever requested.
func (p *Permissions) DialogsShown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown
}

// LastRequested returns the ids of the most recent pending dialog.
func (p *Permissions) LastRequested() []policy.PermissionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	return append([]policy.PermissionID(nil), p.pending[len(p.pending)-1].ids...)
}

// ResolveAll answers every pending dialog with the same decision for each id.
// It reports how many dialogs were answered.
func (p *Permissions) ResolveAll(grant bool) int {
	return p.ResolvePermissions(func(policy.PermissionID) bool { return grant })
}

// ResolvePermissions answers every pending dialog, oldest first, deciding each
// id with decide. The grant table is updated before the callback runs.
func (p *Permissions) ResolvePermissions(decide func(policy.PermissionID) bool) int {
	p.mu.Lock()
	dialogs := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, d := range dialogs {
		result := make(map[policy.PermissionID]bool, len(d.ids))
		for _, id := range d.ids {
			granted := decide(id)
			result[id] = granted
			if granted {
				p.table.Set(id, platform.Granted)
			} else {
				p.table.Set(id, platform.Denied)
			}
		}
		d.onResult(result)
	}
	return len(dialogs)
}

var _ platform.PermissionTable = (*Permissions)(nil)
