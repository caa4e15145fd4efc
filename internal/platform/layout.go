package platform

import (
	"github.com/tinyrange/pcplat/internal/addr"
	"github.com/tinyrange/pcplat/internal/e820"
)

// Fixed x86 physical address layout.
const (
	// LowMemoryCeiling is the highest address low RAM reaches. Everything
	// between it and the control window decodes to PCI devices.
	LowMemoryCeiling = 0xC000_0000

	ControlWindowBase = 0xFFFF_0000
	ControlWindowSize = 64 * e820.KiB

	// HighMemoryBase is where RAM above the ceiling is relocated.
	HighMemoryBase = 1 << 32

	// IOBase starts the 64-bit I/O port window; port p lives at IOBase+p.
	IOBase = 0x8000_0000_0000_0000
	// InterruptsBase starts the local APIC window.
	InterruptsBase = 0xA000_0000_0000_0000
	// PCIConfigBase starts the PCI configuration window.
	PCIConfigBase = 0xC000_0000_0000_0000
	PCIConfigSize = 16 * e820.MiB

	APICPageSize = 0x1000

	IOAPICBase    = 0xFEC0_0000
	IOAPICSize    = 2 * APICPageSize
	IOAPICVersion = 0x11

	LocalAPICVersion = 0x14

	// MinMemory is the smallest RAM size the fixed first megabyte allows.
	MinMemory = 1 * e820.MiB

	DefaultLegacyIRQs = 16
	// FirstPCIPin is the I/O APIC input PCI INTA of device 0 is wired to.
	FirstPCIPin = 16
)

// MMIOAperture is the 32-bit window device MMIO is allocated from.
var MMIOAperture = addr.Span(LowMemoryCeiling, ControlWindowBase)

// ControlWindow is the control-interface window at the top of 32-bit space.
var ControlWindow = addr.New(ControlWindowBase, ControlWindowSize)

// RAMRanges returns where ram bytes of RAM live. RAM above the ceiling is
// relocated to HighMemoryBase.
func RAMRanges(ram uint64) []addr.Range {
	if ram <= LowMemoryCeiling {
		return []addr.Range{addr.New(0, ram)}
	}
	return []addr.Range{
		addr.New(0, LowMemoryCeiling),
		addr.New(HighMemoryBase, ram-LowMemoryCeiling),
	}
}

// MemoryHole returns the range between the end of RAM and the ceiling, which
// is reserved in the memory map and forwarded to the I/O bus.
func MemoryHole(ram uint64) (addr.Range, bool) {
	return e820.Hole(memoryLayout(ram))
}

// LocalAPICWindow returns the local APIC window for cpus processors, one page
// each and never less than two pages.
func LocalAPICWindow(cpus int) addr.Range {
	return addr.New(InterruptsBase, uint64(max(2, cpus))*APICPageSize)
}

// PortRange returns the address range of n I/O ports starting at port.
func PortRange(port uint16, n uint64) addr.Range {
	return addr.New(IOBase+uint64(port), n)
}

func memoryLayout(ram uint64) e820.Layout {
	return e820.Layout{
		RAMSize:       ram,
		LowCeiling:    LowMemoryCeiling,
		HighBase:      HighMemoryBase,
		ControlWindow: ControlWindow,
	}
}
