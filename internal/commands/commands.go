// Package commands implements the mdevctl operations. Each command wires a
// device record, the persisted store, and the callout pipeline together; the
// cobra layer in cmd/mdevctl only parses flags and delegates here.
package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

// parseUUID parses an optional uuid flag value. An empty value yields nil.
func parseUUID(value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", value, err)
	}
	return &id, nil
}

// deviceFromJSONFile constructs a device from an externally supplied config
// record document.
func deviceFromJSONFile(e env.Environment, id uuid.UUID, parent, path string) (*device.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read json file %s: %w", path, err)
	}
	dev := device.New(e, id)
	if err := dev.UnmarshalConfig(parent, data); err != nil {
		return nil, fmt.Errorf("json file %s: %w", path, err)
	}
	return dev, nil
}
