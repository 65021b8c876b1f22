package commands

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

// newTestEnv builds an environment with the directories a packaged
// installation provides.
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

// writeScript creates an executable shell script. Callout scripts see the
// invocation contract in $1..$12 ($4=event, $6=action, $8=state).
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
	return path
}

// installCommandCallout places a command-class callout script and a locator
// resolving every device type to it.
func installCommandCallout(t *testing.T, e env.Environment, body string) string {
	t.Helper()
	scriptDir := filepath.Join(e.ScriptsBase(), "installed")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", scriptDir, err)
	}
	script := writeScript(t, scriptDir, "command.sh", body)
	writeScript(t, e.CommandLocatorDir(), "50-test.sh", "echo "+script)
	return script
}

// installGetCallout does the same for the get class.
func installGetCallout(t *testing.T, e env.Environment, body string) string {
	t.Helper()
	scriptDir := filepath.Join(e.ScriptsBase(), "installed")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", scriptDir, err)
	}
	script := writeScript(t, scriptDir, "get.sh", body)
	writeScript(t, e.GetLocatorDir(), "50-test.sh", "echo "+script)
	return script
}

// fakeParentType registers an mdev type under a parent with the given
// number of available instances.
func fakeParentType(t *testing.T, e env.Environment, parent, mdevType, instances string) string {
	t.Helper()
	dir := filepath.Join(e.ParentBase(), parent, "mdev_supported_types", mdevType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "available_instances"), []byte(instances+"\n"), 0o644); err != nil {
		t.Fatalf("write available_instances: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "create"), nil, 0o644); err != nil {
		t.Fatalf("write create: %v", err)
	}
	return dir
}

// fakeActiveDevice builds the sysfs shape of a running mediated device.
func fakeActiveDevice(t *testing.T, e env.Environment, id uuid.UUID, parent, mdevType string) string {
	t.Helper()
	devDir := filepath.Join(e.ParentBase(), parent, id.String())
	typeDir := filepath.Join(e.ParentBase(), parent, "mdev_supported_types", mdevType)
	for _, dir := range []string{devDir, typeDir, e.MdevBase()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.Symlink(typeDir, filepath.Join(devDir, "mdev_type")); err != nil {
		t.Fatalf("symlink mdev_type: %v", err)
	}
	if err := os.Symlink(devDir, filepath.Join(e.MdevBase(), id.String())); err != nil {
		t.Fatalf("symlink device: %v", err)
	}
	return devDir
}

// defineTestDevice persists a config record directly, bypassing the define
// command.
func defineTestDevice(t *testing.T, e env.Environment, id uuid.UUID, parent, mdevType string, start device.StartMode, attrs ...device.Attribute) *device.Device {
	t.Helper()
	dev := device.New(e, id)
	dev.Parent = parent
	dev.Type = mdevType
	dev.Start = start
	dev.Attrs = attrs
	if err := dev.WriteConfig(); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dev
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
