package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/callout"
	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

// DefineOptions carries the flags of the define command.
type DefineOptions struct {
	UUID     string
	Parent   string
	Type     string
	Auto     bool
	JSONFile string
	Force    bool
}

// Define persists a config record for a device, sourced from inline options,
// an external JSON document, or a currently active device. When no uuid was
// supplied, a fresh one is generated and printed to out.
func Define(e env.Environment, logger *slog.Logger, out io.Writer, opts DefineOptions) error {
	id, err := parseUUID(opts.UUID)
	if err != nil {
		return err
	}
	dev, err := defineDevice(e, logger, id, opts)
	if err != nil {
		return err
	}

	pipeline := callout.NewPipeline(e, logger, callout.NewCache(logger), opts.Force)
	err = pipeline.Run(dev, callout.ActionDefine, func(d *device.Device) error {
		if d.Active {
			// defining an active device captures the attributes it was
			// started with, via the get-class callout
			attrs, err := pipeline.GetAttributes(d)
			if err != nil {
				logger.Warn("unable to fetch attributes for active device", "uuid", d.UUID, "error", err)
			} else {
				d.Attrs = append(d.Attrs, attrs...)
			}
		}
		return d.WriteConfig()
	})
	if err != nil {
		return err
	}
	if id == nil {
		fmt.Fprintln(out, dev.UUID)
	}
	return nil
}

func defineDevice(e env.Environment, logger *slog.Logger, id *uuid.UUID, opts DefineOptions) (*device.Device, error) {
	devID := uuid.New()
	if id != nil {
		devID = *id
	}

	if opts.JSONFile != "" {
		if opts.Type != "" {
			return nil, fmt.Errorf("device type cannot be specified separately from %s", opts.JSONFile)
		}
		if opts.Parent == "" {
			return nil, fmt.Errorf("parent device required to define device via %s", opts.JSONFile)
		}
		existing, err := device.Defined(e, logger, &devID, opts.Parent)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("refusing to overwrite existing config for %s/%s", opts.Parent, devID)
		}
		return deviceFromJSONFile(e, devID, opts.Parent, opts.JSONFile)
	}

	dev := device.New(e, devID)
	if id != nil {
		if err := dev.LoadFromSysfs(); err != nil {
			return nil, err
		}
		if opts.Parent == "" && (!dev.Active || opts.Type != "") {
			return nil, fmt.Errorf("no parent specified")
		}
	}

	dev.SetAutostart(opts.Auto)
	if opts.Parent != "" {
		dev.Parent = opts.Parent
	}
	if opts.Type != "" {
		dev.Type = opts.Type
	}
	if dev.Parent == "" {
		return nil, fmt.Errorf("no parent specified")
	}
	if dev.Type == "" {
		return nil, fmt.Errorf("no type specified")
	}
	if dev.IsDefined() {
		return nil, fmt.Errorf("device %s on %s already defined", dev.UUID, dev.Parent)
	}
	return dev, nil
}

// UndefineOptions carries the flags of the undefine command.
type UndefineOptions struct {
	UUID   string
	Parent string
	Force  bool
}

// Undefine removes the persisted config records matching the uuid, across
// all parents unless one is given. A failing record does not stop the rest.
func Undefine(e env.Environment, logger *slog.Logger, opts UndefineOptions) error {
	id, err := parseUUID(opts.UUID)
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("a uuid is required")
	}

	devs, err := device.Defined(e, logger, id, opts.Parent)
	if err != nil {
		return err
	}
	total := 0
	for _, children := range devs {
		total += len(children)
	}
	if total == 0 {
		return fmt.Errorf("no devices match the specified uuid")
	}

	cache := callout.NewCache(logger)
	failed := false
	for _, children := range devs {
		for _, dev := range children {
			pipeline := callout.NewPipeline(e, logger, cache, opts.Force)
			err := pipeline.Run(dev, callout.ActionUndefine, func(d *device.Device) error {
				return d.Undefine()
			})
			if err != nil {
				failed = true
				logger.Warn("undefine failed", "uuid", dev.UUID, "parent", dev.Parent, "error", err)
			}
		}
	}
	if failed {
		return fmt.Errorf("undefine of %s failed", id)
	}
	return nil
}
