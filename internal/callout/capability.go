package callout

import (
	"encoding/json"
	"log/slog"

	"github.com/mdevctl/mdevctl/internal/device"
)

// Descriptor is the result of negotiating with a callout script: the
// protocol version it declares and the actions and events it claims to
// handle. Scripts that cannot be negotiated with are represented as
// version-2-equivalent with nothing declared, which makes them unusable for
// any version-gated feature.
type Descriptor struct {
	Version int
	Actions map[Action]bool
	Events  map[Event]bool
}

// SupportsLiveModify reports whether the script may be invoked with a live
// modify event. Live updates require protocol version 3 or later and an
// explicit declaration of both the live event and the modify action.
func (d Descriptor) SupportsLiveModify() bool {
	return d.Version >= 3 && d.Events[EventLive] && d.Actions[ActionModify]
}

// legacyDescriptor stands in for scripts that predate capability negotiation
// or whose negotiation failed.
func legacyDescriptor() Descriptor {
	return Descriptor{Version: 2}
}

// Cache negotiates capabilities with callout scripts and remembers the
// result per script path. A Cache lives for one command invocation; results
// are never persisted. Negotiation is an idempotent pure query, so a cache
// may be shared read-only across the device pipelines of a batch.
type Cache struct {
	logger      *slog.Logger
	descriptors map[string]Descriptor
}

// NewCache returns an empty negotiation cache.
func NewCache(logger *slog.Logger) *Cache {
	return &Cache{
		logger:      logger,
		descriptors: make(map[string]Descriptor),
	}
}

// Negotiate probes the script with a get-capabilities event on behalf of the
// device and returns what it declares. A script that exits nonzero, prints
// something other than JSON, omits the supports object, or declares a
// non-positive version is downgraded to the legacy descriptor; negotiation
// failures never abort the surrounding command.
func (c *Cache) Negotiate(script string, dev *device.Device) Descriptor {
	if desc, ok := c.descriptors[script]; ok {
		return desc
	}
	desc := c.negotiate(script, dev)
	c.descriptors[script] = desc
	return desc
}

func (c *Cache) negotiate(script string, dev *device.Device) Descriptor {
	res, err := runScript(script, dev, EventGet, ActionCapabilities, StateNone, []byte("{}"))
	if err != nil {
		c.logger.Debug("capability probe could not be executed", "script", script, "error", err)
		return legacyDescriptor()
	}
	if !res.ok() {
		c.logger.Debug("capability probe exited nonzero", "script", script, "code", res.exitCode)
		return legacyDescriptor()
	}

	var exchange struct {
		Supports *struct {
			Version int      `json:"version"`
			Actions []string `json:"actions"`
			Events  []string `json:"events"`
		} `json:"supports"`
	}
	if err := json.Unmarshal(res.stdout, &exchange); err != nil {
		c.logger.Debug("capability probe returned invalid json", "script", script, "error", err)
		return legacyDescriptor()
	}
	if exchange.Supports == nil {
		c.logger.Debug("capability probe response has no supports object", "script", script)
		return legacyDescriptor()
	}
	if exchange.Supports.Version <= 0 {
		c.logger.Debug("capability probe declared invalid version", "script", script, "version", exchange.Supports.Version)
		return legacyDescriptor()
	}

	desc := Descriptor{
		Version: exchange.Supports.Version,
		Actions: make(map[Action]bool),
		Events:  make(map[Event]bool),
	}
	for _, tag := range exchange.Supports.Actions {
		// unrecognized tags from newer scripts are ignored, not fatal
		if knownActions[Action(tag)] {
			desc.Actions[Action(tag)] = true
		} else {
			c.logger.Debug("ignoring unknown action tag from capability probe", "script", script, "action", tag)
		}
	}
	for _, tag := range exchange.Supports.Events {
		if knownEvents[Event(tag)] {
			desc.Events[Event(tag)] = true
		} else {
			c.logger.Debug("ignoring unknown event tag from capability probe", "script", script, "event", tag)
		}
	}
	c.logger.Debug("negotiated script capabilities", "script", script, "version", desc.Version)
	return desc
}
