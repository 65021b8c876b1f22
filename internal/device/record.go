// Package device models mediated devices: the persisted configuration record,
// the sysfs-backed active state, and the supported-type inventory of parent
// devices.
package device

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/env"
)

// StartMode selects whether a defined device is started automatically when
// its parent appears or only on explicit request.
type StartMode string

const (
	StartAuto   StartMode = "auto"
	StartManual StartMode = "manual"
)

// Attribute is a single named value written to the device after creation.
// Attribute order is meaningful: attributes are applied in sequence and are
// addressed by index when modified.
type Attribute struct {
	Name  string
	Value string
}

// Device is a mediated device, either defined (persisted config), active
// (present in sysfs), or both. A device constructed purely from command
// options with no persisted config is transient.
type Device struct {
	UUID   uuid.UUID
	Parent string
	Type   string
	Start  StartMode
	Attrs  []Attribute
	Active bool

	Env env.Environment
}

// New returns a manual-start device bound to the given environment.
func New(e env.Environment, id uuid.UUID) *Device {
	return &Device{
		UUID:  id,
		Start: StartManual,
		Env:   e,
	}
}

// Autostart reports whether the device starts with its parent.
func (d *Device) Autostart() bool {
	return d.Start == StartAuto
}

// SetAutostart flips the start mode.
func (d *Device) SetAutostart(auto bool) {
	if auto {
		d.Start = StartAuto
	} else {
		d.Start = StartManual
	}
}

// configRecord is the on-disk and on-the-wire form of a device config. Field
// order and key names are part of the external contract.
type configRecord struct {
	MdevType string              `json:"mdev_type"`
	Start    string              `json:"start"`
	Attrs    []map[string]string `json:"attrs,omitempty"`
}

// MarshalConfig serializes the device's configuration record without its
// uuid, the form used for persisted configs and callout stdin.
func (d *Device) MarshalConfig() ([]byte, error) {
	return json.MarshalIndent(d.record(), "", "  ")
}

// MarshalFull serializes the configuration record keyed by the device uuid,
// the form used in hierarchical list output.
func (d *Device) MarshalFull() ([]byte, error) {
	full := map[string]configRecord{
		d.UUID.String(): d.record(),
	}
	return json.MarshalIndent(full, "", "  ")
}

func (d *Device) record() configRecord {
	rec := configRecord{
		MdevType: d.Type,
		Start:    string(d.Start),
	}
	for _, attr := range d.Attrs {
		rec.Attrs = append(rec.Attrs, map[string]string{attr.Name: attr.Value})
	}
	return rec
}

// UnmarshalConfig loads the device configuration from the JSON form produced
// by MarshalConfig. The parent is supplied by the caller since it is encoded
// in the store's directory layout, not in the record.
func (d *Device) UnmarshalConfig(parent string, data []byte) error {
	var rec struct {
		MdevType *string             `json:"mdev_type"`
		Start    *string             `json:"start"`
		Attrs    []map[string]string `json:"attrs"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("invalid device config: %w", err)
	}
	if rec.MdevType == nil || rec.Start == nil {
		return fmt.Errorf("invalid device config: mdev_type and start are required")
	}
	switch StartMode(*rec.Start) {
	case StartAuto, StartManual:
	default:
		return fmt.Errorf("invalid device config: unknown start mode %q", *rec.Start)
	}

	attrs, err := ParseAttributes(rec.Attrs)
	if err != nil {
		return fmt.Errorf("invalid device config: %w", err)
	}

	d.Parent = parent
	d.Type = *rec.MdevType
	d.Start = StartMode(*rec.Start)
	d.Attrs = attrs
	return nil
}

// ParseAttributes converts the wire form of the attribute list, an ordered
// array of single-key objects, into Attributes.
func ParseAttributes(raw []map[string]string) ([]Attribute, error) {
	var attrs []Attribute
	for i, obj := range raw {
		if len(obj) != 1 {
			return nil, fmt.Errorf("attribute %d must contain exactly one key", i)
		}
		for name, value := range obj {
			attrs = append(attrs, Attribute{Name: name, Value: value})
		}
	}
	return attrs, nil
}

// AddAttribute inserts an attribute at index, or appends when index is -1.
func (d *Device) AddAttribute(name, value string, index int) error {
	attr := Attribute{Name: name, Value: value}
	if index < 0 || index == len(d.Attrs) {
		d.Attrs = append(d.Attrs, attr)
		return nil
	}
	if index > len(d.Attrs) {
		return fmt.Errorf("attribute index %d is invalid", index)
	}
	d.Attrs = append(d.Attrs[:index], append([]Attribute{attr}, d.Attrs[index:]...)...)
	return nil
}

// DeleteAttribute removes the attribute at index, or the last attribute when
// index is -1. Remaining attributes keep their relative order and are
// addressed contiguously from 0 afterwards.
func (d *Device) DeleteAttribute(index int) error {
	if len(d.Attrs) == 0 {
		return fmt.Errorf("device has no attributes")
	}
	if index < 0 {
		d.Attrs = d.Attrs[:len(d.Attrs)-1]
		return nil
	}
	if index >= len(d.Attrs) {
		return fmt.Errorf("attribute index %d is invalid", index)
	}
	d.Attrs = append(d.Attrs[:index], d.Attrs[index+1:]...)
	return nil
}

// FormatType selects which devices Text renders.
type FormatType int

const (
	FormatActive FormatType = iota
	FormatDefined
)

// Text renders the one-line (plus optional attribute block) human-readable
// form used by the list command.
func (d *Device) Text(fmt_ FormatType, verbose bool) (string, error) {
	switch fmt_ {
	case FormatDefined:
		if !d.IsDefined() {
			return "", fmt.Errorf("device %s is not defined", d.UUID)
		}
	case FormatActive:
		if !d.Active {
			return "", fmt.Errorf("device %s is not active", d.UUID)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s", d.UUID, d.Parent, d.Type, d.Start)
	if fmt_ == FormatDefined && d.Active {
		b.WriteString(" (active)")
	}
	if fmt_ == FormatActive && d.IsDefined() {
		b.WriteString(" (defined)")
	}
	b.WriteByte('\n')

	if verbose && len(d.Attrs) > 0 {
		b.WriteString("  Attrs:\n")
		for i, attr := range d.Attrs {
			fmt.Fprintf(&b, "    @{%d}: {\"%s\":\"%s\"}\n", i, attr.Name, attr.Value)
		}
	}
	return b.String(), nil
}
