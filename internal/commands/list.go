package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mdevctl/mdevctl/internal/callout"
	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

// ListOptions carries the flags of the list command.
type ListOptions struct {
	Defined  bool
	DumpJSON bool
	Verbose  bool
	UUID     string
	Parent   string
}

// List renders active devices (default) or defined devices, as text or
// JSON. When a single device is selected with --dumpjson the output is the
// bare config record, suitable for piping back into a config file.
func List(e env.Environment, logger *slog.Logger, opts ListOptions) (string, error) {
	id, err := parseUUID(opts.UUID)
	if err != nil {
		return "", err
	}

	var devices map[string][]*device.Device
	if opts.Defined {
		devices, err = device.Defined(e, logger, id, opts.Parent)
	} else {
		devices, err = device.Active(e, logger, id, opts.Parent)
	}
	if err != nil {
		return "", err
	}

	if !opts.Defined {
		// augment active devices with attributes reported by their
		// get-class callout, when one exists
		invoker := callout.Invoker{Env: e, Logger: logger, Cache: callout.NewCache(logger)}
		for _, children := range devices {
			for _, dev := range children {
				attrs, err := invoker.GetAttributes(dev)
				if err != nil {
					logger.Warn("unable to fetch attributes for device", "uuid", dev.UUID, "error", err)
					continue
				}
				dev.Attrs = append(dev.Attrs, attrs...)
			}
		}
	}

	if opts.DumpJSON {
		return dumpDevicesJSON(devices, id != nil)
	}

	format := device.FormatActive
	if opts.Defined {
		format = device.FormatDefined
	}
	var b strings.Builder
	for _, parent := range sortedParents(devices) {
		for _, dev := range devices[parent] {
			text, err := dev.Text(format, opts.Verbose)
			if err != nil {
				continue
			}
			b.WriteString(text)
		}
	}
	return b.String(), nil
}

func dumpDevicesJSON(devices map[string][]*device.Device, single bool) (string, error) {
	total := 0
	for _, children := range devices {
		total += len(children)
	}

	if single && total == 1 {
		for _, children := range devices {
			data, err := children[0].MarshalConfig()
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}

	if total == 0 {
		return "[]", nil
	}
	hierarchy := make(map[string][]json.RawMessage)
	for parent, children := range devices {
		for _, dev := range children {
			data, err := dev.MarshalFull()
			if err != nil {
				return "", err
			}
			hierarchy[parent] = append(hierarchy[parent], data)
		}
	}
	data, err := json.MarshalIndent([]any{hierarchy}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("unable to serialize json: %w", err)
	}
	return string(data), nil
}

// TypesOptions carries the flags of the types command.
type TypesOptions struct {
	Parent   string
	DumpJSON bool
}

// Types renders the mediated device types every parent on the system
// supports.
func Types(e env.Environment, opts TypesOptions) (string, error) {
	types, err := device.SupportedTypes(e, opts.Parent)
	if err != nil {
		return "", err
	}

	if opts.DumpJSON {
		if len(types) == 0 {
			return "[]", nil
		}
		data, err := json.MarshalIndent([]any{types}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("unable to serialize json: %w", err)
		}
		return string(data), nil
	}

	var b strings.Builder
	for _, parent := range sortedTypeParents(types) {
		fmt.Fprintln(&b, parent)
		for _, t := range types[parent] {
			fmt.Fprintf(&b, "  %s\n", t.Name)
			fmt.Fprintf(&b, "    Available instances: %d\n", t.AvailableInstances)
			fmt.Fprintf(&b, "    Device API: %s\n", t.DeviceAPI)
			if t.DisplayName != "" {
				fmt.Fprintf(&b, "    Name: %s\n", t.DisplayName)
			}
			if t.Description != "" {
				fmt.Fprintf(&b, "    Description: %s\n", t.Description)
			}
		}
	}
	return b.String(), nil
}

func sortedParents(devices map[string][]*device.Device) []string {
	parents := make([]string, 0, len(devices))
	for parent := range devices {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	return parents
}

func sortedTypeParents(types map[string][]device.Type) []string {
	parents := make([]string, 0, len(types))
	for parent := range types {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	return parents
}
