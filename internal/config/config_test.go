package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/pcplat/internal/addr"
	"github.com/tinyrange/pcplat/internal/devices/pci"
	"github.com/tinyrange/pcplat/internal/platform"
)

const fabric = `
name: fabric
requires: v0.2.0
memory: 1GiB
cpus: 2
devices:
  - kind: nic
    name: eth0
    pciBus: 3
    pciDev: 0
    interruptLine: 1
    interruptPin: INTA
  - kind: ide
    name: disk0
    pciDev: 5
    interruptPin: B
    disks: [root.img]
  - kind: generic
    name: scratch
    pciDev: 6
    mmioSize: 64KiB
    mmioBase: 0xD0000000
switches:
  - name: upstream
    bus: 2
    parent: 0
  - name: downstream
    bus: 3
    parent: 2
`

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"4096", 4096},
		{"0x1000", 0x1000},
		{"0x1B", 0x1b},
		{"64KiB", 64 << 10},
		{"512MiB", 512 << 20},
		{"3GiB", 3 << 30},
		{"3G", 3 << 30},
		{"1_024 K", 1 << 20},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseSize(%q) = %#x, want %#x", tt.in, uint64(got), uint64(tt.want))
		}
	}

	for _, bad := range []string{"", "GiB", "lots", "-1MiB", "32TiB0", "20000000TiB"} {
		if _, err := ParseSize(bad); err == nil {
			t.Fatalf("ParseSize(%q) accepted", bad)
		}
	}
}

func TestSizeString(t *testing.T) {
	tests := map[Size]string{
		3 << 30:    "3GiB",
		1536 << 20: "1536MiB",
		0x1800:     "6KiB",
		0x1801:     "0x1801",
	}
	for in, want := range tests {
		if got := in.String(); got != want {
			t.Fatalf("Size(%#x).String() = %q, want %q", uint64(in), got, want)
		}
	}
}

func TestParseDescription(t *testing.T) {
	d, err := Parse([]byte(fabric))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Memory != 1<<30 || d.CPUs != 2 || d.LegacyIRQs != platform.DefaultLegacyIRQs {
		t.Fatalf("parsed %+v", d)
	}
	if d.Devices[0].Model != string(pci.NICModelE1000) {
		t.Fatalf("nic model defaulted to %q", d.Devices[0].Model)
	}

	cfg, err := d.Platform()
	if err != nil {
		t.Fatalf("platform config: %v", err)
	}
	nic, ok := cfg.Devices[0].(pci.NIC)
	if !ok || nic.Addr != (pci.BDF{Bus: 3}) || nic.InterruptPin != pci.PinA {
		t.Fatalf("device 0 = %#v", cfg.Devices[0])
	}
	ide, ok := cfg.Devices[1].(pci.IDE)
	if !ok || len(ide.Disks) != 1 || ide.InterruptPin != pci.PinB {
		t.Fatalf("device 1 = %#v", cfg.Devices[1])
	}
	gen, ok := cfg.Devices[2].(pci.Generic)
	if !ok || gen.WindowSize != 0x10000 || gen.WindowBase != 0xD000_0000 {
		t.Fatalf("device 2 = %#v", cfg.Devices[2])
	}

	p, err := platform.Assemble(cfg)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	scratch, _ := p.Topology.Device("scratch")
	if scratch.Window != addr.New(0xD000_0000, 0x10000) {
		t.Fatalf("scratch window = %s", scratch.Window)
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"unknown field": "memory: 1GiB\nram: 2GiB\n",
		"bad size":      "memory: plenty\n",
	}
	for name, doc := range tests {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: parse accepted %q", name, doc)
		}
	}

	d, err := Parse([]byte("devices:\n  - kind: sound\n    name: beep\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := d.Platform(); err == nil || !strings.Contains(err.Error(), "sound") {
		t.Fatalf("unknown kind: %v", err)
	}

	d, err = Parse([]byte("devices:\n  - kind: nic\n    name: eth0\n    interruptPin: E\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := d.Platform(); err == nil {
		t.Fatalf("interrupt pin E accepted")
	}
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	want := Default()
	want.Switches = []Switch{{Name: "sw", Bus: 2}}
	want.Devices[0].Bus = 2
	if err := Write(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Memory != DefaultMemory || got.Name != DefaultName || len(got.Devices) != 1 || got.Devices[0].Bus != 2 {
		t.Fatalf("loaded %+v", got)
	}
	if len(got.Switches) != 1 || got.Switches[0] != want.Switches[0] {
		t.Fatalf("switches = %v", got.Switches)
	}
}

func TestDefaultAssembles(t *testing.T) {
	cfg, err := Default().Platform()
	if err != nil {
		t.Fatalf("platform config: %v", err)
	}
	p, err := platform.Assemble(cfg)
	if err != nil {
		t.Fatalf("assemble default: %v", err)
	}
	if p.Topology.HasHole {
		t.Fatalf("default 3GiB platform has a hole")
	}
}

func TestCheckRequires(t *testing.T) {
	d := Description{Name: "x", Requires: "0.2.0"}
	tests := []struct {
		tool string
		ok   bool
	}{
		{"v0.2.0", true},
		{"v0.3.1", true},
		{"0.10.0", true},
		{"v0.1.9", false},
		{"dev", true},
	}
	for _, tt := range tests {
		err := d.CheckRequires(tt.tool)
		if (err == nil) != tt.ok {
			t.Fatalf("CheckRequires(%q) = %v, want ok=%v", tt.tool, err, tt.ok)
		}
	}

	bad := Description{Requires: "soon"}
	if err := bad.CheckRequires("v1.0.0"); err == nil {
		t.Fatalf("non-semver requirement accepted")
	}
	var none Description
	if err := none.CheckRequires("v0.0.1"); err != nil {
		t.Fatalf("empty requirement: %v", err)
	}
}
