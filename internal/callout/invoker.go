package callout

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

// Failure reports a resolved callout script that exited nonzero or produced
// required output that could not be parsed.
type Failure struct {
	Script   string
	Event    Event
	Action   Action
	ExitCode int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("script %s failed with status %d for %s-%s", f.Script, f.ExitCode, f.Event, f.Action)
}

// Invoker executes callout events against the script ecosystem. It locates
// the responsible script per device type, enforces version gating, runs the
// script, and classifies the result. It never mutates persisted state.
type Invoker struct {
	Env    env.Environment
	Logger *slog.Logger
	Cache  *Cache
}

// invoke runs one callout event. resolved is false when no script handles
// the device type (or, for gated events, when the script does not prove the
// required capability); this signals "no callout configured" and the caller
// proceeds as though the callout trivially succeeded.
func (iv *Invoker) invoke(dev *device.Device, ev Event, ac Action, st State) (resolved bool, err error) {
	script, ok := Locate(iv.Env, iv.Logger, ev.class(), dev.Type)
	if !ok {
		iv.Logger.Debug("no callout script for device type", "type", dev.Type, "event", ev)
		return false, nil
	}

	// Live is the only event gated on negotiation; everything else is
	// defined for all protocol versions.
	if ev == EventLive {
		desc := iv.Cache.Negotiate(script, dev)
		if !desc.SupportsLiveModify() {
			iv.Logger.Debug("script does not support live updates", "script", script, "version", desc.Version)
			return false, nil
		}
	}

	res, runErr := runScript(script, dev, ev, ac, st, configPayload(dev, ev))
	if runErr != nil {
		iv.Logger.Warn("callout script could not be executed", "script", script, "event", ev, "action", ac, "error", runErr)
		return true, runErr
	}
	if !res.ok() {
		iv.logScriptOutput(script, ev, ac, res)
		return true, &Failure{Script: script, Event: ev, Action: ac, ExitCode: res.exitCode}
	}
	return true, nil
}

// GetAttributes asks the device type's get-class callout for the device's
// current attributes, a JSON array of single-key objects on the script's
// stdout. A missing script yields no attributes and no error.
func (iv *Invoker) GetAttributes(dev *device.Device) ([]device.Attribute, error) {
	script, ok := Locate(iv.Env, iv.Logger, ClassGet, dev.Type)
	if !ok {
		iv.Logger.Debug("no get-class callout script for device type", "type", dev.Type)
		return nil, nil
	}

	res, err := runScript(script, dev, EventGet, ActionAttributes, StateNone, []byte("{}"))
	if err != nil {
		return nil, err
	}
	if !res.ok() {
		iv.logScriptOutput(script, EventGet, ActionAttributes, res)
		return nil, &Failure{Script: script, Event: EventGet, Action: ActionAttributes, ExitCode: res.exitCode}
	}

	stdout := strings.TrimSpace(string(res.stdout))
	if stdout == "" {
		return nil, nil
	}
	if stdout == "[{}]" {
		// scripts report an empty attribute set this way
		return nil, nil
	}
	var raw []map[string]string
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return nil, fmt.Errorf("script %s returned invalid attribute json: %w", script, err)
	}
	attrs, err := device.ParseAttributes(raw)
	if err != nil {
		return nil, fmt.Errorf("script %s returned invalid attribute json: %w", script, err)
	}
	return attrs, nil
}

// Broadcast runs every registered notifier script with the given action and
// state. Notifiers run unconditionally after a pipeline completes; failures
// are logged and otherwise ignored.
func (iv *Invoker) Broadcast(dev *device.Device, ac Action, st State) {
	dir := iv.Env.NotifierDir()
	entries, err := readScriptDir(dir)
	if err != nil {
		iv.Logger.Debug("notifier directory not readable", "dir", dir, "error", err)
		return
	}
	for _, script := range entries {
		res, err := runScript(script, dev, EventNotify, ac, st, configPayload(dev, EventNotify))
		if err != nil {
			iv.Logger.Warn("notifier script could not be executed", "script", script, "error", err)
			continue
		}
		if !res.ok() {
			iv.logScriptOutput(script, EventNotify, ac, res)
		}
	}
}

func (iv *Invoker) logScriptOutput(script string, ev Event, ac Action, res *scriptResult) {
	args := []any{"script", script, "event", ev, "action", ac, "code", res.exitCode}
	if out := strings.TrimSpace(string(res.stdout)); out != "" {
		args = append(args, "stdout", out)
	}
	if errOut := strings.TrimSpace(string(res.stderr)); errOut != "" {
		args = append(args, "stderr", errOut)
	}
	iv.Logger.Warn("callout script reported failure", args...)
}
