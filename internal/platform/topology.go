package platform

import (
	"fmt"

	"github.com/tinyrange/pcplat/internal/addr"
	"github.com/tinyrange/pcplat/internal/chipset"
	"github.com/tinyrange/pcplat/internal/devices/pci"
)

// Leaf is a fixed responder such as the memory controller or a legacy port.
type Leaf struct {
	name string
}

func (l *Leaf) Name() string { return l.name }

// Controller is an I/O APIC instantiated in the topology.
type Controller struct {
	ID      uint8
	Version uint8
	Window  addr.Range
}

func (c *Controller) Name() string { return fmt.Sprintf("io_apic%d", c.ID) }

// Device is a PCI function placed in the topology.
type Device struct {
	Descriptor pci.Descriptor
	// Window is the MMIO window the device claims on Bus.
	Window addr.Range
	// Config is the configuration space window claimed on the config bus.
	Config addr.Range
	Bus    *chipset.Bus
	// Route is the I/O APIC input INTx is wired to; zero if the function
	// has no interrupt pin.
	Route uint8
}

func (d *Device) Name() string { return d.Descriptor.Common().Name }

// Addr returns the bus/device/function address.
func (d *Device) Addr() pci.BDF { return d.Descriptor.Common().Addr }

type configSpace struct {
	dev *Device
}

func (c configSpace) Name() string { return c.dev.Name() + ".config" }

// SwitchBus is a PCIe switch placed in the topology.
type SwitchBus struct {
	Switch
	Bus  *chipset.Bus
	Link *chipset.Bridge
}

// Topology is the finished bus and bridge graph.
type Topology struct {
	Root      *chipset.Bus
	IO        *chipset.Bus
	PCIConfig *chipset.Bus
	Switches  []*SwitchBus

	// RootBridge forwards device, I/O and configuration accesses from the
	// root bus to the I/O bus.
	RootBridge *chipset.Bridge
	// APICBridge carries local APIC traffic from the I/O bus back up.
	APICBridge *chipset.Bridge
	// IOCache passes device DMA to RAM.
	IOCache    *chipset.Bridge
	ConfigLink *chipset.Bridge

	MemorySize uint64
	RAM        []addr.Range
	Hole       addr.Range
	HasHole    bool

	MemoryController *Leaf
	ControlInterface *Leaf
	LocalAPIC        *Leaf
	LocalAPICWindow  addr.Range

	CPUs        int
	Controllers []*Controller
	Devices     []*Device
}

// Decode routes a from the root bus.
func (t *Topology) Decode(a uint64) (chipset.Route, error) {
	return chipset.Decode(t.Root, a)
}

// Bus returns the bus node carrying PCI bus id.
func (t *Topology) Bus(id uint8) (*chipset.Bus, bool) {
	if id == 0 {
		return t.IO, true
	}
	for _, s := range t.Switches {
		if s.Switch.Bus == id {
			return s.Bus, true
		}
	}
	return nil, false
}

// Buses returns every bus reachable from the root, breadth first.
func (t *Topology) Buses() []*chipset.Bus {
	var out []*chipset.Bus
	_ = chipset.Walk(t.Root, func(b *chipset.Bus) error {
		out = append(out, b)
		return nil
	})
	return out
}

// Device returns the placed device named name.
func (t *Topology) Device(name string) (*Device, bool) {
	for _, d := range t.Devices {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}
