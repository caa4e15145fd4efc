package platform

import (
	"fmt"

	"github.com/tinyrange/pcplat/internal/devices/pci"
	"github.com/tinyrange/pcplat/internal/mptable"
)

// MaxCPUs keeps the I/O APIC id, which follows the last local APIC id, below
// the broadcast id.
const MaxCPUs = 254

// SouthBridgeIDE is the PCI address of the always-present IDE controller.
var SouthBridgeIDE = pci.BDF{Bus: 0, Device: 4, Function: 0}

// Switch is one PCIe switch; it owns secondary bus Bus below bus Parent.
type Switch struct {
	Name   string
	Bus    uint8
	Parent uint8
}

// Config describes the platform to assemble.
type Config struct {
	// MemorySize is the amount of RAM in bytes.
	MemorySize uint64
	// CPUs defaults to 1.
	CPUs int
	// LegacyIRQs is the number of ISA interrupt lines; defaults to 16.
	LegacyIRQs int

	Devices  []pci.Descriptor
	Switches []Switch
}

func (c *Config) normalize() {
	if c.CPUs == 0 {
		c.CPUs = 1
	}
	if c.LegacyIRQs == 0 {
		c.LegacyIRQs = DefaultLegacyIRQs
	}
}

func (c *Config) validate() error {
	if c.MemorySize < MinMemory {
		return fmt.Errorf("platform: memory size %#x below the %#x minimum", c.MemorySize, uint64(MinMemory))
	}
	if c.CPUs < 1 || c.CPUs > MaxCPUs {
		return fmt.Errorf("platform: cpu count %d out of range [1, %d]", c.CPUs, MaxCPUs)
	}
	if c.LegacyIRQs < 2 || c.LegacyIRQs > DefaultLegacyIRQs {
		return fmt.Errorf("platform: legacy irq count %d out of range [2, %d]", c.LegacyIRQs, DefaultLegacyIRQs)
	}

	buses := map[uint8]string{mptable.PCIRootBusID: "root"}
	for _, s := range c.Switches {
		if s.Name == "" {
			return fmt.Errorf("platform: switch on bus %d has no name", s.Bus)
		}
		switch s.Bus {
		case mptable.PCIRootBusID, mptable.ISABusID:
			return fmt.Errorf("platform: switch %s: bus %d is reserved", s.Name, s.Bus)
		}
		if owner, dup := buses[s.Bus]; dup {
			return fmt.Errorf("platform: switch %s: bus %d already used by %s", s.Name, s.Bus, owner)
		}
		// Parents must be declared first, which keeps the fabric a tree.
		if _, ok := buses[s.Parent]; !ok {
			return fmt.Errorf("platform: switch %s: parent bus %d not declared before it", s.Name, s.Parent)
		}
		buses[s.Bus] = s.Name
	}

	names := map[string]bool{}
	addrs := map[pci.BDF]string{SouthBridgeIDE: "south bridge IDE"}
	for _, d := range c.Devices {
		if err := pci.Validate(d); err != nil {
			return fmt.Errorf("platform: %w", err)
		}
		f := d.Common()
		if names[f.Name] {
			return fmt.Errorf("platform: duplicate device name %q", f.Name)
		}
		names[f.Name] = true
		if owner, dup := addrs[f.Addr]; dup {
			return fmt.Errorf("platform: device %s: address %s already used by %s", f.Name, f.Addr, owner)
		}
		addrs[f.Addr] = f.Name
		if _, ok := buses[f.Addr.Bus]; !ok {
			return fmt.Errorf("platform: device %s: bus %d does not exist", f.Name, f.Addr.Bus)
		}
		if int(f.InterruptLine) >= c.LegacyIRQs {
			return fmt.Errorf("platform: device %s: interrupt line %d beyond the %d legacy lines", f.Name, f.InterruptLine, c.LegacyIRQs)
		}
	}
	return nil
}
