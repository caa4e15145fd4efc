package platform

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/tinyrange/pcplat/internal/addr"
	"github.com/tinyrange/pcplat/internal/chipset"
	"github.com/tinyrange/pcplat/internal/devices/pci"
)

// legacyPorts are the south bridge's fixed I/O port responders.
var legacyPorts = []struct {
	name  string
	ports []addr.Range
}{
	{"pic_master", []addr.Range{PortRange(0x20, 2)}},
	{"pit", []addr.Range{PortRange(0x40, 4)}},
	{"keyboard", []addr.Range{PortRange(0x60, 1), PortRange(0x64, 1)}},
	{"speaker", []addr.Range{PortRange(0x61, 1)}},
	{"cmos", []addr.Range{PortRange(0x70, 2)}},
	{"pic_slave", []addr.Range{PortRange(0xA0, 2)}},
	{"com1", []addr.Range{PortRange(0x3F8, 8)}},
}

// Builder assembles a Topology. It owns the topology under construction until
// Build returns it; a failed Build leaves nothing behind for the caller.
type Builder struct {
	cfg     Config
	topo    *Topology
	windows *pci.WindowAllocator
	// devices is the placement order: the south bridge first, then the
	// configured devices.
	devices []pci.Descriptor
}

// NewBuilder returns a builder for cfg. The config is normalised but not
// validated; Assemble does both.
func NewBuilder(cfg Config) *Builder {
	cfg.normalize()
	ide := pci.IDE{Function: pci.Function{
		Name:          "south_bridge.ide",
		Addr:          SouthBridgeIDE,
		InterruptLine: 14,
		InterruptPin:  pci.PinA,
	}}
	return &Builder{
		cfg:     cfg,
		windows: pci.NewWindowAllocator(MMIOAperture),
		devices: append([]pci.Descriptor{ide}, cfg.Devices...),
	}
}

// Build runs every assembly step in dependency order and seals the buses.
func (b *Builder) Build() (*Topology, error) {
	if b.topo != nil {
		return nil, fmt.Errorf("platform: builder already used")
	}
	b.topo = &Topology{
		Root:       chipset.NewBus("membus", chipset.NewErrorSink("membus.unmapped")),
		IO:         chipset.NewBus("iobus", chipset.NewFloatingSink("isa.floating")),
		PCIConfig:  chipset.NewBus("pcicfg", chipset.NewMasterAbortSink("pci.master_abort")),
		MemorySize: b.cfg.MemorySize,
		CPUs:       b.cfg.CPUs,
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"memory", b.buildMemory},
		{"root bridge", b.buildRootBridge},
		{"interrupt controllers", b.buildInterrupts},
		{"I/O cache", b.buildIOCache},
		{"south bridge", b.buildSouthBridge},
		{"PCI config space", b.buildConfigSpace},
		{"PCI devices", b.buildDevices},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			b.topo = nil
			return nil, fmt.Errorf("platform: %s: %w", step.name, err)
		}
	}

	topo := b.topo
	for _, bus := range topo.Buses() {
		bus.Seal()
	}
	slog.Debug("built topology",
		"memory", topo.MemorySize,
		"cpus", topo.CPUs,
		"devices", len(topo.Devices),
		"switches", len(topo.Switches),
	)
	return topo, nil
}

func (b *Builder) buildMemory() error {
	t := b.topo
	t.RAM = RAMRanges(t.MemorySize)
	t.Hole, t.HasHole = MemoryHole(t.MemorySize)

	t.MemoryController = &Leaf{name: "mem_ctrl"}
	if err := t.Root.Claim(t.MemoryController, t.RAM...); err != nil {
		return err
	}
	t.ControlInterface = &Leaf{name: "control_interface"}
	return t.Root.Claim(t.ControlInterface, ControlWindow)
}

func (b *Builder) buildRootBridge() error {
	t := b.topo
	var forward []addr.Range
	if t.HasHole {
		forward = append(forward, t.Hole)
	}
	forward = append(forward,
		MMIOAperture,
		addr.Span(IOBase, InterruptsBase),
		addr.ToMax(PCIConfigBase),
	)
	link, err := chipset.NewBridge("bridge", t.Root, t.IO, forward...)
	if err != nil {
		return err
	}
	if err := t.Root.Attach(link); err != nil {
		return err
	}
	t.RootBridge = link
	return nil
}

func (b *Builder) buildInterrupts() error {
	t := b.topo
	t.LocalAPICWindow = LocalAPICWindow(t.CPUs)
	t.LocalAPIC = &Leaf{name: "local_apic"}
	if err := t.Root.Claim(t.LocalAPIC, t.LocalAPICWindow); err != nil {
		return err
	}

	link, err := chipset.NewBridge("apicbridge", t.IO, t.Root, t.LocalAPICWindow)
	if err != nil {
		return err
	}
	if err := t.IO.Attach(link); err != nil {
		return err
	}
	t.APICBridge = link

	// The I/O APIC id follows the last local APIC id.
	ioapic := &Controller{
		ID:      uint8(t.CPUs),
		Version: IOAPICVersion,
		Window:  addr.New(IOAPICBase, IOAPICSize),
	}
	if err := t.IO.Claim(ioapic, ioapic.Window); err != nil {
		return err
	}
	if err := b.windows.Reserve(ioapic.Name(), ioapic.Window); err != nil {
		return err
	}
	t.Controllers = append(t.Controllers, ioapic)
	return nil
}

func (b *Builder) buildIOCache() error {
	t := b.topo
	link, err := chipset.NewPassThrough("iocache", t.IO, t.Root, t.RAM...)
	if err != nil {
		return err
	}
	if err := t.IO.Attach(link); err != nil {
		return err
	}
	t.IOCache = link
	return nil
}

func (b *Builder) buildSouthBridge() error {
	for _, p := range legacyPorts {
		if err := b.topo.IO.Claim(&Leaf{name: p.name}, p.ports...); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildConfigSpace() error {
	t := b.topo
	link, err := chipset.NewBridge("pcicfg_link", t.IO, t.PCIConfig, addr.New(PCIConfigBase, PCIConfigSize))
	if err != nil {
		return err
	}
	if err := t.IO.Attach(link); err != nil {
		return err
	}
	t.ConfigLink = link
	return nil
}

func (b *Builder) buildDevices() error {
	t := b.topo
	for _, s := range b.cfg.Switches {
		t.Switches = append(t.Switches, &SwitchBus{
			Switch: s,
			Bus:    chipset.NewBus(s.Name, nil),
		})
	}

	if err := b.placeWindows(); err != nil {
		return err
	}

	for _, d := range t.Devices {
		if err := d.Bus.Claim(d, d.Window); err != nil {
			return err
		}
		if err := t.PCIConfig.Claim(configSpace{dev: d}, d.Config); err != nil {
			return err
		}
	}

	for _, s := range t.Switches {
		if err := b.linkSwitch(s); err != nil {
			return err
		}
	}
	return nil
}

// placeWindows assigns MMIO windows: pinned windows first so that
// allocation steps around them, then the rest in device order.
func (b *Builder) placeWindows() error {
	t := b.topo
	for _, desc := range b.devices {
		f := desc.Common()
		bus, ok := t.Bus(f.Addr.Bus)
		if !ok {
			return fmt.Errorf("device %s: bus %d does not exist", f.Name, f.Addr.Bus)
		}
		dev := &Device{
			Descriptor: desc,
			Config:     addr.New(PCIConfigBase+f.Addr.ConfigOffset(), pci.ConfigSpaceSize),
			Bus:        bus,
		}
		if f.InterruptPin != pci.PinNone {
			dev.Route = FirstPCIPin + pci.Swizzle(f.Addr.Device, f.InterruptPin)
		}
		if f.WindowBase != 0 {
			dev.Window = addr.New(f.WindowBase, pci.WindowSize(desc))
			if err := b.windows.Reserve(f.Name, dev.Window); err != nil {
				return err
			}
		}
		t.Devices = append(t.Devices, dev)
	}

	for _, dev := range t.Devices {
		if dev.Window.Size != 0 {
			continue
		}
		w, err := b.windows.Allocate(dev.Name(), pci.WindowSize(dev.Descriptor))
		if err != nil {
			return err
		}
		dev.Window = w
	}
	return nil
}

// linkSwitch attaches the switch's bus below its parent, forwarding the
// window of every device in its subtree.
func (b *Builder) linkSwitch(s *SwitchBus) error {
	t := b.topo
	parent, ok := t.Bus(s.Parent)
	if !ok {
		return fmt.Errorf("switch %s: parent bus %d does not exist", s.Name, s.Parent)
	}

	var forward []addr.Range
	for _, d := range t.Devices {
		if b.below(d.Addr().Bus, s.Switch.Bus) {
			forward = append(forward, d.Window)
		}
	}
	if len(forward) == 0 {
		return fmt.Errorf("switch %s: no devices below bus %d", s.Name, s.Switch.Bus)
	}
	slices.SortFunc(forward, func(a, b addr.Range) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	link, err := chipset.NewBridge(s.Name+"_link", parent, s.Bus, forward...)
	if err != nil {
		return err
	}
	if err := parent.Attach(link); err != nil {
		return err
	}
	s.Link = link
	return nil
}

// below reports whether PCI bus id lies in the subtree rooted at bus top.
func (b *Builder) below(id, top uint8) bool {
	for depth := 0; depth <= len(b.cfg.Switches); depth++ {
		if id == top {
			return true
		}
		if id == 0 {
			return false
		}
		parent, ok := b.parentOf(id)
		if !ok {
			return false
		}
		id = parent
	}
	return false
}

func (b *Builder) parentOf(id uint8) (uint8, bool) {
	for _, s := range b.cfg.Switches {
		if s.Bus == id {
			return s.Parent, true
		}
	}
	return 0, false
}
