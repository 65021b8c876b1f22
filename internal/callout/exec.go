package callout

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"

	"github.com/mdevctl/mdevctl/internal/device"
)

// scriptResult captures one finished script invocation.
type scriptResult struct {
	exitCode int
	stdout   []byte
	stderr   []byte
}

func (r *scriptResult) ok() bool {
	return r.exitCode == 0
}

// runScript spawns a callout or notifier script with the fixed argument
// contract (-t TYPE -e EVENT -a ACTION -s STATE -u UUID -p PARENT) and the
// given stdin document, and waits for it to finish.
//
// The script is deliberately not bound to a context: no timeout is defined
// for callout execution and a pipeline that has begun always runs to
// completion, so a hanging script blocks the owning command.
func runScript(script string, dev *device.Device, ev Event, ac Action, st State, stdin []byte) (*scriptResult, error) {
	cmd := exec.Command(script,
		"-t", dev.Type,
		"-e", string(ev),
		"-a", string(ac),
		"-s", string(st),
		"-u", dev.UUID.String(),
		"-p", dev.Parent,
	)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("execute script %s: %w", script, err)
		}
		if exitErr.ExitCode() < 0 {
			return nil, fmt.Errorf("script %s was terminated by a signal", script)
		}
		return &scriptResult{
			exitCode: exitErr.ExitCode(),
			stdout:   stdout.Bytes(),
			stderr:   stderr.Bytes(),
		}, nil
	}
	return &scriptResult{
		exitCode: 0,
		stdout:   stdout.Bytes(),
		stderr:   stderr.Bytes(),
	}, nil
}

// configPayload renders the stdin document for a script invocation: the
// device's config record for command events, an empty object for probes.
func configPayload(dev *device.Device, ev Event) []byte {
	if ev == EventGet {
		return []byte("{}")
	}
	data, err := dev.MarshalConfig()
	if err != nil {
		return []byte("{}")
	}
	return data
}
