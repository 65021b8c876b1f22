package device

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/mdevctl/mdevctl/internal/env"
)

func testDevice(t *testing.T) *Device {
	t.Helper()
	dev := New(env.New(t.TempDir()), uuid.New())
	dev.Parent = "matrix"
	dev.Type = "vfio_ap-passthrough"
	return dev
}

func TestConfigRoundTripPreservesAttributeOrder(t *testing.T) {
	dev := testDevice(t)
	dev.Start = StartAuto
	dev.Attrs = []Attribute{
		{Name: "assign_adapter", Value: "5"},
		{Name: "assign_domain", Value: "0xab"},
		{Name: "assign_adapter", Value: "6"},
	}

	data, err := dev.MarshalConfig()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	loaded := New(dev.Env, dev.UUID)
	if err := loaded.UnmarshalConfig("matrix", data); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}

	if loaded.Type != dev.Type {
		t.Errorf("type changed in round trip: %q", loaded.Type)
	}
	if loaded.Start != StartAuto {
		t.Errorf("start mode changed in round trip: %q", loaded.Start)
	}
	if len(loaded.Attrs) != len(dev.Attrs) {
		t.Fatalf("attribute count changed: got %d, want %d", len(loaded.Attrs), len(dev.Attrs))
	}
	for i := range dev.Attrs {
		if loaded.Attrs[i] != dev.Attrs[i] {
			t.Errorf("attribute %d changed: got %+v, want %+v", i, loaded.Attrs[i], dev.Attrs[i])
		}
	}
}

func TestConfigFieldNames(t *testing.T) {
	dev := testDevice(t)
	dev.Attrs = []Attribute{{Name: "assign_adapter", Value: "5"}}

	data, err := dev.MarshalConfig()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config is not a json object: %v", err)
	}
	for _, key := range []string{"mdev_type", "start", "attrs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("config is missing key %q: %s", key, data)
		}
	}
	if string(raw["start"]) != `"manual"` {
		t.Errorf("unexpected start value: %s", raw["start"])
	}
}

func TestConfigOmitsEmptyAttrs(t *testing.T) {
	dev := testDevice(t)
	data, err := dev.MarshalConfig()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config is not a json object: %v", err)
	}
	if _, ok := raw["attrs"]; ok {
		t.Errorf("attrs key present for attribute-less device: %s", data)
	}
}

func TestUnmarshalConfigRejectsMalformedRecords(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "not json"},
		{"missing type", `{"start": "manual"}`},
		{"missing start", `{"mdev_type": "vfio_ap-passthrough"}`},
		{"bad start mode", `{"mdev_type": "t", "start": "sometimes"}`},
		{"multi-key attr", `{"mdev_type": "t", "start": "auto", "attrs": [{"a": "1", "b": "2"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev := testDevice(t)
			if err := dev.UnmarshalConfig("matrix", []byte(tc.data)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestAddAttributeAtIndex(t *testing.T) {
	dev := testDevice(t)
	if err := dev.AddAttribute("a", "1", -1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := dev.AddAttribute("c", "3", -1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := dev.AddAttribute("b", "2", 1); err != nil {
		t.Fatalf("insert at 1: %v", err)
	}

	want := []Attribute{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	for i, attr := range want {
		if dev.Attrs[i] != attr {
			t.Errorf("attribute %d: got %+v, want %+v", i, dev.Attrs[i], attr)
		}
	}

	if err := dev.AddAttribute("d", "4", 7); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestDeleteAttributeReindexes(t *testing.T) {
	dev := testDevice(t)
	dev.Attrs = []Attribute{{"a", "1"}, {"b", "2"}, {"c", "3"}}

	if err := dev.DeleteAttribute(0); err != nil {
		t.Fatalf("delete index 0: %v", err)
	}
	want := []Attribute{{"b", "2"}, {"c", "3"}}
	if len(dev.Attrs) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(dev.Attrs), len(want))
	}
	for i, attr := range want {
		if dev.Attrs[i] != attr {
			t.Errorf("attribute %d after delete: got %+v, want %+v", i, dev.Attrs[i], attr)
		}
	}

	// no index removes the last attribute
	if err := dev.DeleteAttribute(-1); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	if len(dev.Attrs) != 1 || dev.Attrs[0] != (Attribute{"b", "2"}) {
		t.Errorf("unexpected attributes after deleting last: %+v", dev.Attrs)
	}

	if err := dev.DeleteAttribute(5); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestTextFormatting(t *testing.T) {
	dev := testDevice(t)
	dev.Active = true
	dev.Attrs = []Attribute{{"assign_adapter", "5"}}

	text, err := dev.Text(FormatActive, true)
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	want := dev.UUID.String() + " matrix vfio_ap-passthrough manual\n  Attrs:\n    @{0}: {\"assign_adapter\":\"5\"}\n"
	if text != want {
		t.Errorf("unexpected text output:\ngot  %q\nwant %q", text, want)
	}

	if _, err := dev.Text(FormatDefined, false); err == nil {
		t.Error("expected error formatting undefined device as defined")
	}
}
