// Package callout implements the external script protocol that surrounds
// every mutating mdevctl command: locator-based script discovery, capability
// negotiation, the pre/execute/post/notify pipeline, and the live-update
// extension for modifying running devices.
//
// Callout scripts are an open-ended ecosystem discovered at runtime. A
// failure to discover or negotiate with a script silently degrades the
// available functionality; only a pre-callout veto or the primary action
// itself can fail a command.
package callout

// Event identifies the point in a command's lifecycle at which a script is
// invoked.
type Event string

const (
	EventPre    Event = "pre"
	EventPost   Event = "post"
	EventNotify Event = "notify"
	EventGet    Event = "get"
	EventLive   Event = "live"
)

// Action identifies the command (or query) a callout is invoked for.
type Action string

const (
	ActionDefine       Action = "define"
	ActionUndefine     Action = "undefine"
	ActionStart        Action = "start"
	ActionStop         Action = "stop"
	ActionModify       Action = "modify"
	ActionAttributes   Action = "attributes"
	ActionCapabilities Action = "capabilities"
)

// State reflects the outcome of the primary action as seen by post and
// notify events. Pre and get events always carry StateNone.
type State string

const (
	StateNone    State = "none"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Class partitions events between the two locator directories. Notify events
// have no class: notifiers run unconditionally without a locator step.
type Class int

const (
	ClassCommand Class = iota
	ClassGet
)

// class maps an event to its locator class.
func (e Event) class() Class {
	if e == EventGet {
		return ClassGet
	}
	return ClassCommand
}

var knownActions = map[Action]bool{
	ActionDefine:       true,
	ActionUndefine:     true,
	ActionStart:        true,
	ActionStop:         true,
	ActionModify:       true,
	ActionAttributes:   true,
	ActionCapabilities: true,
}

var knownEvents = map[Event]bool{
	EventPre:    true,
	EventPost:   true,
	EventNotify: true,
	EventGet:    true,
	EventLive:   true,
}
