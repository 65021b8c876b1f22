package callout

import (
	"fmt"
	"log/slog"

	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

// Pipeline wraps a mutating command in the callout protocol: a pre event
// that can veto the primary action, the primary action itself, a post event
// carrying its outcome, and a notifier broadcast that always runs last.
//
// Only the pre event is disruptive. Post and notify failures are logged and
// never change the command's reported outcome. Once Run has begun, the
// pipeline always reaches the notifier broadcast, even when the surrounding
// process receives a termination signal.
type Pipeline struct {
	Invoker
	// Force downgrades a pre-callout veto to a logged warning.
	Force bool
}

// NewPipeline returns a pipeline sharing the given negotiation cache. One
// cache serves one command invocation; device pipelines in a batch each get
// their own Pipeline value but may share the cache.
func NewPipeline(e env.Environment, logger *slog.Logger, cache *Cache, force bool) *Pipeline {
	return &Pipeline{
		Invoker: Invoker{Env: e, Logger: logger, Cache: cache},
		Force:   force,
	}
}

// Run executes primary for the given action under the callout protocol. The
// returned error is either the pre-callout veto or the primary action's own
// failure; both name the device.
func (p *Pipeline) Run(dev *device.Device, ac Action, primary func(*device.Device) error) error {
	if resolved, err := p.invoke(dev, EventPre, ac, StateNone); resolved && err != nil {
		if !p.Force {
			// the primary action is skipped and post never runs, but
			// notifiers still hear about the aborted command
			p.Broadcast(dev, ac, StateNone)
			return fmt.Errorf("pre callout for %s of device %s failed: %w", ac, dev.UUID, err)
		}
		p.Logger.Warn("forcing operation despite pre callout failure", "action", ac, "uuid", dev.UUID, "error", err)
	}

	primaryErr := primary(dev)
	st := StateSuccess
	if primaryErr != nil {
		st = StateFailure
	}

	if resolved, err := p.invoke(dev, EventPost, ac, st); resolved && err != nil {
		p.Logger.Warn("post callout failed", "action", ac, "uuid", dev.UUID, "error", err)
	}

	p.Broadcast(dev, ac, st)

	if primaryErr != nil {
		return fmt.Errorf("%s of device %s failed: %w", ac, dev.UUID, primaryErr)
	}
	return nil
}

// TryLiveUpdate propagates the prospective config record to the running
// device through a live modify event. It reports whether the update was
// applied. A missing script, a script without proven live support, or a
// nonzero exit all degrade to the persisted-only modify path; none of them
// fail the command.
func (p *Pipeline) TryLiveUpdate(dev *device.Device) bool {
	resolved, err := p.invoke(dev, EventLive, ActionModify, StateNone)
	if !resolved {
		p.Logger.Debug("live update not available for device", "uuid", dev.UUID, "type", dev.Type)
		return false
	}
	if err != nil {
		p.Logger.Warn("live update rejected by callout script, changes apply on next start", "uuid", dev.UUID, "error", err)
		return false
	}
	p.Logger.Info("applied live update", "uuid", dev.UUID)
	return true
}
