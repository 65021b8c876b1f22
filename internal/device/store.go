package device

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/env"
)

// PersistPath is the stable on-disk location of the device's config record,
// keyed by parent and uuid. Empty when no parent is known.
func (d *Device) PersistPath() string {
	if d.Parent == "" {
		return ""
	}
	return filepath.Join(d.Env.PersistBase(), d.Parent, d.UUID.String())
}

// IsDefined reports whether a persisted config exists for this device.
func (d *Device) IsDefined() bool {
	path := d.PersistPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// WriteConfig persists the device's config record, creating the parent
// directory as needed.
func (d *Device) WriteConfig() error {
	path := d.PersistPath()
	if path == "" {
		return fmt.Errorf("cannot persist device %s without a parent", d.UUID)
	}
	data, err := d.MarshalConfig()
	if err != nil {
		return fmt.Errorf("serialize config for device %s: %w", d.UUID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory for device %s: %w", d.UUID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config for device %s: %w", d.UUID, err)
	}
	return nil
}

// Undefine removes the persisted config record.
func (d *Device) Undefine() error {
	path := d.PersistPath()
	if path == "" {
		return fmt.Errorf("failed to undefine %s: no parent known", d.UUID)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to undefine %s: %w", d.UUID, err)
	}
	return nil
}

// LoadDefinition fills the device from its persisted config record. The
// device's parent must already be set.
func (d *Device) LoadDefinition() error {
	path := d.PersistPath()
	if path == "" {
		return fmt.Errorf("device %s has no parent", d.UUID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config for device %s: %w", d.UUID, err)
	}
	return d.UnmarshalConfig(d.Parent, data)
}

// Defined returns all persisted devices grouped by parent name, optionally
// filtered to one uuid and/or one parent. Parents and devices are returned
// in stable sorted order. Unreadable or malformed entries are logged and
// skipped.
func Defined(e env.Environment, logger *slog.Logger, filterUUID *uuid.UUID, filterParent string) (map[string][]*Device, error) {
	devices := make(map[string][]*Device)

	parents, err := os.ReadDir(e.PersistBase())
	if err != nil {
		return nil, fmt.Errorf("read config store: %w", err)
	}
	for _, parent := range parents {
		name := parent.Name()
		if !parent.IsDir() || filepath.Join(e.PersistBase(), name) == e.ScriptsBase() {
			continue
		}
		if filterParent != "" && filterParent != name {
			continue
		}

		children, err := os.ReadDir(filepath.Join(e.PersistBase(), name))
		if err != nil {
			logger.Warn("unable to read parent config directory", "parent", name, "error", err)
			continue
		}
		for _, child := range children {
			if child.IsDir() {
				continue
			}
			id, err := uuid.Parse(child.Name())
			if err != nil {
				logger.Warn("skipping config file with non-uuid name", "parent", name, "file", child.Name())
				continue
			}
			if filterUUID != nil && *filterUUID != id {
				continue
			}

			dev := New(e, id)
			dev.Parent = name
			if err := dev.LoadDefinition(); err != nil {
				logger.Warn("skipping unreadable device config", "parent", name, "uuid", id, "error", err)
				continue
			}
			if err := dev.LoadFromSysfs(); err != nil {
				logger.Debug("device state unavailable in sysfs", "uuid", id, "error", err)
			}
			devices[name] = append(devices[name], dev)
		}
		sort.Slice(devices[name], func(i, j int) bool {
			return devices[name][i].UUID.String() < devices[name][j].UUID.String()
		})
	}
	return devices, nil
}

// GetDefined looks up exactly one persisted device. It is an error if the
// uuid is undefined or, absent a parent filter, defined more than once.
func GetDefined(e env.Environment, logger *slog.Logger, id uuid.UUID, parent string) (*Device, error) {
	devs, err := Defined(e, logger, &id, parent)
	if err != nil {
		return nil, err
	}
	var found []*Device
	for _, children := range devs {
		found = append(found, children...)
	}
	switch {
	case len(found) == 0 && parent == "":
		return nil, fmt.Errorf("mediated device %s is not defined", id)
	case len(found) == 0:
		return nil, fmt.Errorf("mediated device %s/%s is not defined", parent, id)
	case len(found) > 1:
		return nil, fmt.Errorf("multiple definitions found for %s, specify a parent", id)
	}
	return found[0], nil
}
