// Package config reads and writes YAML platform descriptions.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/pcplat/internal/devices/pci"
	"github.com/tinyrange/pcplat/internal/platform"
)

const (
	Filename      = "pcplat.yaml"
	DefaultName   = "pcplat"
	DefaultMemory = Size(3 << 30)
)

// Description is a platform description as written on disk.
type Description struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`
	// Requires is the minimum tool version able to build the description.
	Requires string `yaml:"requires,omitempty"`

	Memory     Size `yaml:"memory"`
	CPUs       int  `yaml:"cpus,omitempty"`
	LegacyIRQs int  `yaml:"legacyIRQs,omitempty"`

	Devices  []Device `yaml:"devices,omitempty"`
	Switches []Switch `yaml:"switches,omitempty"`
}

// Device is one PCI function. Kind selects which of the kind-specific
// fields apply.
type Device struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`

	Bus      uint8 `yaml:"pciBus"`
	Device   uint8 `yaml:"pciDev"`
	Function uint8 `yaml:"pciFunc"`

	InterruptLine uint8  `yaml:"interruptLine"`
	InterruptPin  string `yaml:"interruptPin,omitempty"`

	MMIOSize Size `yaml:"mmioSize,omitempty"`
	MMIOBase Size `yaml:"mmioBase,omitempty"`

	// nic
	Model string `yaml:"model,omitempty"`
	// ide
	Disks []string `yaml:"disks,omitempty"`
	// generic
	ClassCode uint32 `yaml:"classCode,omitempty"`
}

type Switch struct {
	Name   string `yaml:"name"`
	Bus    uint8  `yaml:"bus"`
	Parent uint8  `yaml:"parent"`
}

func (d *Description) normalize() {
	if d.Version == 0 {
		d.Version = 1
	}
	if d.Name == "" {
		d.Name = DefaultName
	}
	if d.Memory == 0 {
		d.Memory = DefaultMemory
	}
	if d.CPUs == 0 {
		d.CPUs = 1
	}
	if d.LegacyIRQs == 0 {
		d.LegacyIRQs = platform.DefaultLegacyIRQs
	}
	for i := range d.Devices {
		dev := &d.Devices[i]
		dev.Kind = strings.ToLower(strings.TrimSpace(dev.Kind))
		if dev.Kind == pci.KindNIC.String() && dev.Model == "" {
			dev.Model = string(pci.NICModelE1000)
		}
	}
}

// Default returns the reference platform: 3GiB of RAM and a single PCIe
// network controller in slot 0.
func Default() Description {
	d := Description{
		Devices: []Device{{
			Kind:          pci.KindNIC.String(),
			Name:          "eth0",
			InterruptLine: 1,
			InterruptPin:  "A",
			Model:         string(pci.NICModelPCIe),
		}},
	}
	d.normalize()
	return d
}

// Parse decodes a description. Unknown fields are rejected.
func Parse(data []byte) (Description, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Description
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return Description{}, errors.New("config: empty description")
		}
		return Description{}, fmt.Errorf("config: parse: %w", err)
	}
	d.normalize()
	return d, nil
}

// Load reads the description at path.
func Load(path string) (Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return Description{}, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("loaded platform description", "path", path, "name", d.Name, "devices", len(d.Devices))
	return d, nil
}

// Encode writes v as YAML with two-space indentation.
func Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}

// Write stores the normalised description at path.
func Write(path string, d Description) error {
	d.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := Encode(f, &d); err != nil {
		return err
	}
	return f.Close()
}

// CheckRequires fails if the description needs a newer tool than
// toolVersion. Development builds without a semantic version are let
// through.
func (d Description) CheckRequires(toolVersion string) error {
	if d.Requires == "" {
		return nil
	}
	req := canonical(d.Requires)
	if !semver.IsValid(req) {
		return fmt.Errorf("config: requires %q is not a semantic version", d.Requires)
	}
	have := canonical(toolVersion)
	if !semver.IsValid(have) {
		slog.Debug("skipping version requirement", "requires", req, "version", toolVersion)
		return nil
	}
	if semver.Compare(have, req) < 0 {
		return fmt.Errorf("config: %s requires pcplat %s or newer, have %s", d.Name, req, have)
	}
	return nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Descriptor converts the device into its typed descriptor and validates it.
func (d Device) Descriptor() (pci.Descriptor, error) {
	kind, err := pci.ParseKind(d.Kind)
	if err != nil {
		return nil, fmt.Errorf("config: device %q: %w", d.Name, err)
	}
	pin, err := parsePin(d.InterruptPin)
	if err != nil {
		return nil, fmt.Errorf("config: device %q: %w", d.Name, err)
	}
	f := pci.Function{
		Name:          d.Name,
		Addr:          pci.BDF{Bus: d.Bus, Device: d.Device, Function: d.Function},
		InterruptLine: d.InterruptLine,
		InterruptPin:  pin,
		WindowSize:    uint64(d.MMIOSize),
		WindowBase:    uint64(d.MMIOBase),
	}

	var desc pci.Descriptor
	switch kind {
	case pci.KindNIC:
		desc = pci.NIC{Function: f, Model: pci.NICModel(d.Model)}
	case pci.KindIDE:
		desc = pci.IDE{Function: f, Disks: append([]string(nil), d.Disks...)}
	case pci.KindGeneric:
		desc = pci.Generic{Function: f, ClassCode: d.ClassCode}
	default:
		return nil, fmt.Errorf("config: device %q: unsupported kind %s", d.Name, kind)
	}
	if err := pci.Validate(desc); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return desc, nil
}

func parsePin(s string) (pci.InterruptPin, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "INT") {
	case "", "NONE":
		return pci.PinNone, nil
	case "A":
		return pci.PinA, nil
	case "B":
		return pci.PinB, nil
	case "C":
		return pci.PinC, nil
	case "D":
		return pci.PinD, nil
	}
	return pci.PinNone, fmt.Errorf("invalid interrupt pin %q", s)
}

// Platform converts the description into an assembly config.
func (d Description) Platform() (platform.Config, error) {
	cfg := platform.Config{
		MemorySize: uint64(d.Memory),
		CPUs:       d.CPUs,
		LegacyIRQs: d.LegacyIRQs,
	}
	for _, dev := range d.Devices {
		desc, err := dev.Descriptor()
		if err != nil {
			return platform.Config{}, err
		}
		cfg.Devices = append(cfg.Devices, desc)
	}
	for _, s := range d.Switches {
		cfg.Switches = append(cfg.Switches, platform.Switch{Name: s.Name, Bus: s.Bus, Parent: s.Parent})
	}
	return cfg, nil
}
