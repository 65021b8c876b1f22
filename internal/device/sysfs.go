package device

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/env"
)

// sysfsPath is the location of the device's sysfs node when active.
func (d *Device) sysfsPath() string {
	return filepath.Join(d.Env.MdevBase(), d.UUID.String())
}

// LoadFromSysfs fills in the live state of the device from sysfs. A device
// that is not present in sysfs is simply marked inactive.
func (d *Device) LoadFromSysfs() error {
	path := d.sysfsPath()
	info, err := os.Lstat(path)
	d.Active = err == nil && info.Mode()&os.ModeSymlink != 0
	if !d.Active {
		return nil
	}

	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolve sysfs node for %s: %w", d.UUID, err)
	}
	d.Parent = filepath.Base(filepath.Dir(canon))

	typePath, err := filepath.EvalSymlinks(filepath.Join(path, "mdev_type"))
	if err != nil {
		return fmt.Errorf("resolve mdev type for %s: %w", d.UUID, err)
	}
	d.Type = filepath.Base(typePath)
	return nil
}

// Create asks the kernel to instantiate the device under its parent.
func (d *Device) Create() error {
	existing := New(d.Env, d.UUID)
	if existing.LoadFromSysfs() == nil && existing.Active {
		if existing.Parent != d.Parent {
			return fmt.Errorf("device %s exists under different parent", d.UUID)
		}
		if existing.Type != d.Type {
			return fmt.Errorf("device %s exists with different type", d.UUID)
		}
		return fmt.Errorf("device %s already exists", d.UUID)
	}

	typeDir := filepath.Join(d.Env.ParentBase(), d.Parent, "mdev_supported_types")
	if info, err := os.Stat(typeDir); err != nil || !info.IsDir() {
		return fmt.Errorf("parent %s is not currently registered for mdev support", d.Parent)
	}
	typeDir = filepath.Join(typeDir, d.Type)
	if info, err := os.Stat(typeDir); err != nil || !info.IsDir() {
		return fmt.Errorf("parent %s does not support mdev type %s", d.Parent, d.Type)
	}

	avail, err := readSysfsInt(filepath.Join(typeDir, "available_instances"))
	if err != nil {
		return fmt.Errorf("read available instances for %s/%s: %w", d.Parent, d.Type, err)
	}
	if avail == 0 {
		return fmt.Errorf("no available instances of %s on %s", d.Type, d.Parent)
	}

	if err := os.WriteFile(filepath.Join(typeDir, "create"), []byte(d.UUID.String()), 0o200); err != nil {
		return fmt.Errorf("failed to create mdev %s, type %s on %s: %w", d.UUID, d.Type, d.Parent, err)
	}
	d.Active = true
	return nil
}

// StartDevice creates the device and applies its attributes in order. If an
// attribute write fails the device is torn down again so a half-configured
// device is never left running.
func (d *Device) StartDevice() error {
	if err := d.Create(); err != nil {
		return err
	}
	for _, attr := range d.Attrs {
		if err := d.writeAttr(attr); err != nil {
			if stopErr := d.StopDevice(); stopErr != nil {
				return fmt.Errorf("%w (cleanup failed: %v)", err, stopErr)
			}
			return err
		}
	}
	return nil
}

// StopDevice removes the active device from the kernel.
func (d *Device) StopDevice() error {
	remove := filepath.Join(d.sysfsPath(), "remove")
	if err := os.WriteFile(remove, []byte("1"), 0o200); err != nil {
		return fmt.Errorf("error removing device %s: %w", d.UUID, err)
	}
	d.Active = false
	return nil
}

func (d *Device) writeAttr(attr Attribute) error {
	path := filepath.Join(d.sysfsPath(), attr.Name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("invalid attribute %q", attr.Name)
	}
	if err := os.WriteFile(path, []byte(attr.Value), 0o200); err != nil {
		return fmt.Errorf("failed to write %q to attribute %s: %w", attr.Value, attr.Name, err)
	}
	return nil
}

func readSysfsInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// Active returns all devices present in sysfs grouped by parent, optionally
// filtered by uuid and/or parent, in stable sorted order. The autostart flag
// is recovered from the persisted config when one exists.
func Active(e env.Environment, logger *slog.Logger, filterUUID *uuid.UUID, filterParent string) (map[string][]*Device, error) {
	devices := make(map[string][]*Device)

	entries, err := os.ReadDir(e.MdevBase())
	if err != nil {
		if os.IsNotExist(err) {
			return devices, nil
		}
		return nil, fmt.Errorf("read mdev sysfs tree: %w", err)
	}
	for _, entry := range entries {
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			logger.Warn("skipping sysfs node with non-uuid name", "file", entry.Name())
			continue
		}
		if filterUUID != nil && *filterUUID != id {
			continue
		}

		dev := New(e, id)
		if err := dev.LoadFromSysfs(); err != nil || !dev.Active {
			continue
		}
		if filterParent != "" && filterParent != dev.Parent {
			continue
		}

		persisted := New(e, id)
		persisted.Parent = dev.Parent
		if persisted.LoadDefinition() == nil {
			dev.Start = persisted.Start
		}
		devices[dev.Parent] = append(devices[dev.Parent], dev)
	}
	for parent := range devices {
		sort.Slice(devices[parent], func(i, j int) bool {
			return devices[parent][i].UUID.String() < devices[parent][j].UUID.String()
		})
	}
	return devices, nil
}

// GetActive looks up exactly one active device.
func GetActive(e env.Environment, logger *slog.Logger, id uuid.UUID, parent string) (*Device, error) {
	devs, err := Active(e, logger, &id, parent)
	if err != nil {
		return nil, err
	}
	var found []*Device
	for _, children := range devs {
		found = append(found, children...)
	}
	switch {
	case len(found) == 0 && parent == "":
		return nil, fmt.Errorf("mediated device %s is not active", id)
	case len(found) == 0:
		return nil, fmt.Errorf("mediated device %s/%s is not active", parent, id)
	case len(found) > 1:
		return nil, fmt.Errorf("multiple active devices found for %s, specify a parent", id)
	}
	return found[0], nil
}
