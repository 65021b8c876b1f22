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

// StartOptions carries the flags of the start command.
type StartOptions struct {
	UUID     string
	Parent   string
	Type     string
	JSONFile string
	Force    bool
}

// Start creates a mediated device in the kernel and applies its attributes.
// The device comes from its persisted definition, from inline options (a
// transient device), or from an external JSON document. A generated uuid is
// printed to out.
func Start(e env.Environment, logger *slog.Logger, out io.Writer, opts StartOptions) error {
	id, err := parseUUID(opts.UUID)
	if err != nil {
		return err
	}
	dev, err := startDevice(e, logger, id, opts)
	if err != nil {
		return err
	}

	pipeline := callout.NewPipeline(e, logger, callout.NewCache(logger), opts.Force)
	err = pipeline.Run(dev, callout.ActionStart, func(d *device.Device) error {
		return d.StartDevice()
	})
	if err != nil {
		return err
	}
	if id == nil {
		fmt.Fprintln(out, dev.UUID)
	}
	return nil
}

func startDevice(e env.Environment, logger *slog.Logger, id *uuid.UUID, opts StartOptions) (*device.Device, error) {
	devID := uuid.New()
	if id != nil {
		devID = *id
	}

	if opts.JSONFile != "" {
		if opts.Type != "" {
			return nil, fmt.Errorf("device type cannot be specified separately from %s", opts.JSONFile)
		}
		if opts.Parent == "" {
			return nil, fmt.Errorf("parent device required to start device via %s", opts.JSONFile)
		}
		return deviceFromJSONFile(e, devID, opts.Parent, opts.JSONFile)
	}

	if id != nil {
		// a bare uuid may refer to a defined device
		devs, err := device.Defined(e, logger, id, opts.Parent)
		if err != nil {
			return nil, err
		}
		var found []*device.Device
		for _, children := range devs {
			found = append(found, children...)
		}
		if len(found) > 1 {
			return nil, fmt.Errorf("multiple definitions found for device %s, please specify a parent", id)
		}
		if len(found) == 1 {
			dev := found[0]
			if opts.Type != "" && opts.Type != dev.Type {
				return nil, fmt.Errorf("device %s already exists on parent %s with type %s", dev.UUID, dev.Parent, dev.Type)
			}
			return dev, nil
		}
	}

	dev := device.New(e, devID)
	dev.Parent = opts.Parent
	dev.Type = opts.Type
	if dev.Type != "" && dev.Parent == "" {
		return nil, fmt.Errorf("can't provide type without parent")
	}
	if dev.Type == "" || dev.Parent == "" {
		return nil, fmt.Errorf("device is insufficiently specified")
	}
	return dev, nil
}

// StopOptions carries the flags of the stop command.
type StopOptions struct {
	UUID  string
	Force bool
}

// Stop removes an active mediated device from the kernel.
func Stop(e env.Environment, logger *slog.Logger, opts StopOptions) error {
	id, err := parseUUID(opts.UUID)
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("a uuid is required")
	}

	dev := device.New(e, *id)
	if err := dev.LoadFromSysfs(); err != nil {
		return err
	}
	if !dev.Active {
		return fmt.Errorf("mediated device %s is not active", id)
	}

	pipeline := callout.NewPipeline(e, logger, callout.NewCache(logger), opts.Force)
	return pipeline.Run(dev, callout.ActionStop, func(d *device.Device) error {
		return d.StopDevice()
	})
}

// StartParentMdevs starts every defined auto-start device under the given
// parent. Each device runs its own independent pipeline; a failure is
// logged and the batch continues with the siblings.
func StartParentMdevs(e env.Environment, logger *slog.Logger, parent string) error {
	if parent == "" {
		return fmt.Errorf("a parent is required")
	}
	devs, err := device.Defined(e, logger, nil, parent)
	if err != nil {
		return err
	}
	if len(devs) == 0 {
		return nil
	}

	// discovery and negotiation are idempotent, so the batch shares one cache
	cache := callout.NewCache(logger)
	for _, children := range devs {
		for _, dev := range children {
			if !dev.Autostart() {
				continue
			}
			logger.Debug("autostarting device", "uuid", dev.UUID)
			pipeline := callout.NewPipeline(e, logger, cache, false)
			err := pipeline.Run(dev, callout.ActionStart, func(d *device.Device) error {
				return d.StartDevice()
			})
			if err != nil {
				logger.Warn("autostart failed", "uuid", dev.UUID, "parent", dev.Parent, "error", err)
			}
		}
	}
	return nil
}
