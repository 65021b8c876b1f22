package callout

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv builds an environment with all script directories present.
func newTestEnv(t *testing.T) env.Environment {
	t.Helper()
	e := env.New(t.TempDir())
	for _, dir := range []string{
		e.PersistBase(),
		e.CommandLocatorDir(),
		e.GetLocatorDir(),
		e.NotifierDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return e
}

func newTestDevice(t *testing.T, e env.Environment) *device.Device {
	t.Helper()
	dev := device.New(e, uuid.New())
	dev.Parent = "parent0"
	dev.Type = "vfio-type1"
	return dev
}

// writeScript creates an executable shell script. The body runs with the
// callout argument contract in $1..$12 ($4=event, $6=action, $8=state).
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
	return path
}

// installCallout places a callout script and a locator that resolves the
// test device type to it.
func installCallout(t *testing.T, e env.Environment, class Class, body string) string {
	t.Helper()
	scriptDir := filepath.Join(e.ScriptsBase(), "installed")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", scriptDir, err)
	}
	script := writeScript(t, scriptDir, "callout.sh", body)

	locatorDir := e.CommandLocatorDir()
	if class == ClassGet {
		locatorDir = e.GetLocatorDir()
	}
	writeScript(t, locatorDir, "50-test.sh", "echo "+script)
	return script
}

// logLines reads the invocation log fixture scripts append to.
func logLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
