package commands

import (
	"fmt"
	"log/slog"

	"github.com/mdevctl/mdevctl/internal/callout"
	"github.com/mdevctl/mdevctl/internal/device"
	"github.com/mdevctl/mdevctl/internal/env"
)

// ModifyOptions carries the flags of the modify command. AttrIndex is -1
// when no index was given.
type ModifyOptions struct {
	UUID      string
	Parent    string
	Type      string
	AddAttr   string
	AttrValue string
	DelAttr   bool
	AttrIndex int
	Auto      bool
	Manual    bool
	JSONFile  string
	Force     bool
}

// Modify edits a device's persisted config record. When the device is
// currently active and a live-capable callout proves support, the updated
// record is additionally propagated to the running device; otherwise the
// change takes effect on the next start.
func Modify(e env.Environment, logger *slog.Logger, opts ModifyOptions) error {
	id, err := parseUUID(opts.UUID)
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("a uuid is required")
	}
	if opts.Auto && opts.Manual {
		return fmt.Errorf("'auto' and 'manual' are mutually exclusive")
	}

	var dev *device.Device
	if opts.JSONFile != "" {
		if opts.Parent == "" {
			return fmt.Errorf("parent device required to modify device via %s", opts.JSONFile)
		}
		dev, err = deviceFromJSONFile(e, *id, opts.Parent, opts.JSONFile)
		if err != nil {
			return err
		}
		if !dev.IsDefined() {
			return fmt.Errorf("mediated device %s/%s is not defined", opts.Parent, id)
		}
	} else {
		dev, err = device.GetDefined(e, logger, *id, opts.Parent)
		if err != nil {
			return err
		}
		if opts.Type != "" {
			dev.Type = opts.Type
		}
		if opts.Auto {
			dev.SetAutostart(true)
		} else if opts.Manual {
			dev.SetAutostart(false)
		}

		switch {
		case opts.AddAttr != "":
			if opts.AttrValue == "" {
				return fmt.Errorf("no attribute value provided")
			}
			if err := dev.AddAttribute(opts.AddAttr, opts.AttrValue, opts.AttrIndex); err != nil {
				return err
			}
		case opts.DelAttr:
			if err := dev.DeleteAttribute(opts.AttrIndex); err != nil {
				return err
			}
		}
	}

	pipeline := callout.NewPipeline(e, logger, callout.NewCache(logger), opts.Force)
	maybeLiveUpdate(pipeline, logger, dev)

	return pipeline.Run(dev, callout.ActionModify, func(d *device.Device) error {
		return d.WriteConfig()
	})
}

// maybeLiveUpdate attempts the live propagation of a prospective record when
// the device is running under the same parent with the same type. All
// degradation paths fall back to the persisted-only update.
func maybeLiveUpdate(pipeline *callout.Pipeline, logger *slog.Logger, dev *device.Device) {
	active := device.New(dev.Env, dev.UUID)
	if err := active.LoadFromSysfs(); err != nil || !active.Active {
		return
	}
	if active.Parent != dev.Parent {
		logger.Debug("device active under different parent, skipping live update", "uuid", dev.UUID)
		return
	}
	if active.Type != dev.Type {
		logger.Debug("device active with different type, skipping live update", "uuid", dev.UUID)
		return
	}
	pipeline.TryLiveUpdate(dev)
}
