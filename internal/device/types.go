package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mdevctl/mdevctl/internal/env"
)

// Type describes one mediated device type supported by a parent device.
type Type struct {
	Parent             string
	Name               string
	AvailableInstances int
	DeviceAPI          string
	DisplayName        string
	Description        string
}

// MarshalJSON renders the type keyed by its name, matching the hierarchical
// types output format.
func (t Type) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"available_instances": t.AvailableInstances,
		"device_api":          t.DeviceAPI,
	}
	if t.DisplayName != "" {
		body["name"] = t.DisplayName
	}
	if t.Description != "" {
		body["description"] = t.Description
	}
	return json.Marshal(map[string]any{t.Name: body})
}

// SupportedTypes enumerates the mdev types every parent on the system
// advertises in sysfs, optionally filtered to one parent. Types are sorted
// by name within each parent.
func SupportedTypes(e env.Environment, filterParent string) (map[string][]Type, error) {
	types := make(map[string][]Type)

	parents, err := os.ReadDir(e.ParentBase())
	if err != nil {
		if os.IsNotExist(err) {
			return types, nil
		}
		return nil, fmt.Errorf("read parent sysfs tree: %w", err)
	}
	for _, parent := range parents {
		name := parent.Name()
		if filterParent != "" && filterParent != name {
			continue
		}

		typeDir := filepath.Join(e.ParentBase(), name, "mdev_supported_types")
		children, err := os.ReadDir(typeDir)
		if err != nil {
			return nil, fmt.Errorf("read supported types for parent %s: %w", name, err)
		}

		var childTypes []Type
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			t := Type{Parent: name, Name: child.Name()}
			dir := filepath.Join(typeDir, child.Name())

			t.AvailableInstances, err = readSysfsInt(filepath.Join(dir, "available_instances"))
			if err != nil {
				return nil, fmt.Errorf("read available instances for type %s: %w", t.Name, err)
			}
			api, err := os.ReadFile(filepath.Join(dir, "device_api"))
			if err != nil {
				return nil, fmt.Errorf("read device api for type %s: %w", t.Name, err)
			}
			t.DeviceAPI = strings.TrimSpace(string(api))

			if data, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
				t.DisplayName = strings.TrimSpace(string(data))
			}
			if data, err := os.ReadFile(filepath.Join(dir, "description")); err == nil {
				t.Description = strings.ReplaceAll(strings.TrimSpace(string(data)), "\n", ", ")
			}
			childTypes = append(childTypes, t)
		}
		sort.Slice(childTypes, func(i, j int) bool { return childTypes[i].Name < childTypes[j].Name })
		types[name] = childTypes
	}
	return types, nil
}
