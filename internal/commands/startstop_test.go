package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/device"
)

func TestStartDefinedDevice(t *testing.T) {
	e := newTestEnv(t)
	id := uuid.New()
	typeDir := fakeParentType(t, e, "parent0", "vfio-type1", "1")
	defineTestDevice(t, e, id, "parent0", "vfio-type1", device.StartManual)

	var out bytes.Buffer
	if err := Start(e, discardLogger(), &out, StartOptions{UUID: id.String()}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("uuid was echoed despite being supplied: %q", out.String())
	}

	created, err := os.ReadFile(filepath.Join(typeDir, "create"))
	if err != nil {
		t.Fatalf("read create file: %v", err)
	}
	if string(created) != id.String() {
		t.Errorf("create file holds %q, want device uuid", created)
	}
}

func TestStartTransientDevice(t *testing.T) {
	e := newTestEnv(t)
	typeDir := fakeParentType(t, e, "parent0", "vfio-type1", "1")

	var out bytes.Buffer
	err := Start(e, discardLogger(), &out, StartOptions{Parent: "parent0", Type: "vfio-type1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id, err := uuid.Parse(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("output is not a uuid: %q", out.String())
	}

	created, err := os.ReadFile(filepath.Join(typeDir, "create"))
	if err != nil {
		t.Fatalf("read create file: %v", err)
	}
	if string(created) != id.String() {
		t.Errorf("create file holds %q, want generated uuid %s", created, id)
	}
}

func TestStartRejectsConflictingType(t *testing.T) {
	e := newTestEnv(t)
	id := uuid.New()
	defineTestDevice(t, e, id, "parent0", "vfio-type1", device.StartManual)

	err := Start(e, discardLogger(), io.Discard, StartOptions{UUID: id.String(), Parent: "parent0", Type: "other-type"})
	if err == nil || !strings.Contains(err.Error(), "already exists on parent") {
		t.Errorf("got %v, want type-conflict error", err)
	}
}

func TestStartInsufficientlySpecified(t *testing.T) {
	e := newTestEnv(t)

	err := Start(e, discardLogger(), io.Discard, StartOptions{Type: "vfio-type1"})
	if err == nil || !strings.Contains(err.Error(), "can't provide type without parent") {
		t.Errorf("got %v, want type-without-parent error", err)
	}

	err = Start(e, discardLogger(), io.Discard, StartOptions{})
	if err == nil || !strings.Contains(err.Error(), "insufficiently specified") {
		t.Errorf("got %v, want insufficiently-specified error", err)
	}
}

func TestStopActiveDevice(t *testing.T) {
	e := newTestEnv(t)
	id := uuid.New()
	devDir := fakeActiveDevice(t, e, id, "parent0", "vfio-type1")

	if err := Stop(e, discardLogger(), StopOptions{UUID: id.String()}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	removed, err := os.ReadFile(filepath.Join(devDir, "remove"))
	if err != nil {
		t.Fatalf("remove file not written: %v", err)
	}
	if string(removed) != "1" {
		t.Errorf("remove file holds %q, want 1", removed)
	}
}

func TestStopRequiresActiveDevice(t *testing.T) {
	e := newTestEnv(t)
	err := Stop(e, discardLogger(), StopOptions{UUID: uuid.NewString()})
	if err == nil || !strings.Contains(err.Error(), "is not active") {
		t.Errorf("got %v, want not-active error", err)
	}
}

func TestStartParentMdevsAutostartsAndContinuesPastFailures(t *testing.T) {
	e := newTestEnv(t)
	goodDir := fakeParentType(t, e, "parent0", "good-type", "1")
	manualDir := fakeParentType(t, e, "parent0", "manual-type", "1")

	auto := defineTestDevice(t, e, uuid.New(), "parent0", "good-type", device.StartAuto)
	// broken-type is not registered on the parent, this device cannot start
	defineTestDevice(t, e, uuid.New(), "parent0", "broken-type", device.StartAuto)
	defineTestDevice(t, e, uuid.New(), "parent0", "manual-type", device.StartManual)

	if err := StartParentMdevs(e, discardLogger(), "parent0"); err != nil {
		t.Fatalf("one failing device must not fail the batch: %v", err)
	}

	created, err := os.ReadFile(filepath.Join(goodDir, "create"))
	if err != nil {
		t.Fatalf("read create file: %v", err)
	}
	if string(created) != auto.UUID.String() {
		t.Errorf("create file holds %q, want autostart device uuid", created)
	}

	untouched, err := os.ReadFile(filepath.Join(manualDir, "create"))
	if err != nil {
		t.Fatalf("read create file: %v", err)
	}
	if len(untouched) != 0 {
		t.Errorf("manual-start device was autostarted: %q", untouched)
	}
}

func TestStartParentMdevsRequiresParent(t *testing.T) {
	e := newTestEnv(t)
	if err := StartParentMdevs(e, discardLogger(), ""); err == nil {
		t.Error("expected an error for a missing parent")
	}
	if err := StartParentMdevs(e, discardLogger(), "unknown-parent"); err != nil {
		t.Errorf("unknown parent must be a no-op: %v", err)
	}
}
