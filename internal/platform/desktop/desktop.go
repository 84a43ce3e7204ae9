// Package desktop provides the permission table and location settings shared
// by the desktop backends. Desktop systems have no runtime permission model,
// so grants come from configuration and, on a terminal, from the user.
package desktop

import (
	"context"
	"fmt"
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/tracktag/internal/groutine"
	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
	"github.com/srg/tracktag/internal/prompt"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Interactive() bool
	Confirm(question string) (bool, error)
}

// Permissions is a process-local grant table.
type Permissions struct {
	table  *hashmap.Map[policy.PermissionID, platform.PermissionStatus]
	asker  Confirmer
	logger *logrus.Logger
}

// NewPermissions seeds the table with granted. asker may be nil, in which
// case every dialog denies what is not already granted.
func NewPermissions(granted []policy.PermissionID, asker Confirmer, logger *logrus.Logger) *Permissions {
	if logger == nil {
		logger = logrus.New()
	}
	p := &Permissions{
		table:  hashmap.New[policy.PermissionID, platform.PermissionStatus](),
		asker:  asker,
		logger: logger,
	}
	for _, id := range granted {
		p.table.Set(id, platform.Granted)
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

// Request implements platform.PermissionTable. Questions are asked on a
// separate goroutine; onResult runs there once every id is decided.
func (p *Permissions) Request(ids []policy.PermissionID, onResult func(map[policy.PermissionID]bool)) error {
	batch := append([]policy.PermissionID(nil), ids...)

	groutine.GoSafe(context.Background(), "desktop-permission-dialog", p.logger, func(context.Context) {
		result := make(map[policy.PermissionID]bool, len(batch))
		for _, id := range batch {
			granted := p.decide(id)
			result[id] = granted
			if granted {
				p.table.Set(id, platform.Granted)
			} else {
				p.table.Set(id, platform.Denied)
			}
		}
		onResult(result)
	}, nil)
	return nil
}

func (p *Permissions) decide(id policy.PermissionID) bool {
	if p.Status(id) == platform.Granted {
		return true
	}
	if p.asker == nil || !p.asker.Interactive() {
		p.logger.WithField("permission", id.ShortName()).Debug("No terminal to ask, permission denied")
		return false
	}
	ok, err := p.asker.Confirm(fmt.Sprintf("Allow %s?", id.ShortName()))
	if err != nil {
		p.logger.WithError(err).WithField("permission", id.ShortName()).Warn("Permission prompt failed")
		return false
	}
	return ok
}

// Location reports the location-service switch from configuration.
type Location struct {
	mode string
}

// NewLocation parses mode: "on", "off", or empty for unknown.
func NewLocation(mode string) (*Location, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "", "on", "off":
		return &Location{mode: mode}, nil
	default:
		return nil, fmt.Errorf("invalid location services mode %q (want on, off or empty)", mode)
	}
}

// LocationEnabled implements platform.LocationSettings.
func (l *Location) LocationEnabled() (bool, error) {
	switch l.mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, platform.ErrLocationUnknown
	}
}

// EnablePrompt asks the user to power the adapter on, then calls power.
type EnablePrompt struct {
	asker  Confirmer
	logger *logrus.Logger
}

// NewEnablePrompt creates the interactive enable prompt.
func NewEnablePrompt(asker Confirmer, logger *logrus.Logger) *EnablePrompt {
	if logger == nil {
		logger = logrus.New()
	}
	return &EnablePrompt{asker: asker, logger: logger}
}

// Ask runs the prompt on its own goroutine. When the user confirms, power is
// called and its success decides the answer handed to onResult.
func (e *EnablePrompt) Ask(power func() error, onResult func(confirmed bool)) error {
	if e.asker == nil || !e.asker.Interactive() {
		return fmt.Errorf("%w: cannot ask to enable Bluetooth", prompt.ErrNotInteractive)
	}

	groutine.GoSafe(context.Background(), "desktop-enable-dialog", e.logger, func(context.Context) {
		ok, err := e.asker.Confirm("Turn Bluetooth on?")
		if err != nil {
			e.logger.WithError(err).Warn("Enable prompt failed")
			ok = false
		}
		if ok {
			if err := power(); err != nil {
				e.logger.WithError(err).Warn("Failed to power adapter on")
				ok = false
			}
		}
		onResult(ok)
	}, nil)
	return nil
}
