// Package platform assembles the simulated x86 platform: the bus and bridge
// topology, the MP table and the e820 memory map derived from it, and the
// checks that keep the three in agreement.
package platform

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/pcplat/internal/devices/pci"
	"github.com/tinyrange/pcplat/internal/e820"
	"github.com/tinyrange/pcplat/internal/mptable"
)

// Platform is a fully assembled and checked configuration.
type Platform struct {
	Config    Config
	Topology  *Topology
	MPTable   *mptable.Table
	MemoryMap []e820.Entry
}

// Assemble validates cfg, builds the topology and both firmware tables, and
// cross-checks them. Any failure aborts the whole configuration.
func Assemble(cfg Config) (*Platform, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	topo, err := NewBuilder(cfg).Build()
	if err != nil {
		return nil, err
	}

	table, err := mptable.Build(topo.Wiring(cfg.LegacyIRQs))
	if err != nil {
		return nil, fmt.Errorf("platform: MP table: %w", err)
	}

	mm, err := e820.Build(topo.MemoryLayout())
	if err != nil {
		return nil, fmt.Errorf("platform: memory map: %w", err)
	}

	p := &Platform{
		Config:    cfg,
		Topology:  topo,
		MPTable:   table,
		MemoryMap: mm,
	}
	if err := Check(p); err != nil {
		return nil, err
	}
	slog.Debug("assembled platform", "memory", cfg.MemorySize, "e820", len(mm), "mptable", len(table.Base))
	return p, nil
}

// Wiring returns the interrupt wiring of the topology.
func (t *Topology) Wiring(legacyIRQs int) mptable.Wiring {
	w := mptable.Wiring{
		PCIBuses:   []uint8{mptable.PCIRootBusID},
		LegacyIRQs: legacyIRQs,
	}
	for i := 0; i < t.CPUs; i++ {
		w.Processors = append(w.Processors, mptable.Processor{
			LocalAPICID:      uint8(i),
			LocalAPICVersion: LocalAPICVersion,
			Enabled:          true,
			Bootstrap:        i == 0,
		})
	}
	for _, c := range t.Controllers {
		w.IOAPICs = append(w.IOAPICs, mptable.IOAPIC{
			ID:      c.ID,
			Version: c.Version,
			Enabled: true,
			Address: uint32(c.Window.Start),
		})
	}
	if len(t.Controllers) > 0 {
		w.LegacyAPIC = t.Controllers[0].ID
	}
	for _, s := range t.Switches {
		w.PCIBuses = append(w.PCIBuses, s.Switch.Bus)
		w.Bridges = append(w.Bridges, mptable.BusHierarchy{
			BusID:     s.Switch.Bus,
			ParentBus: s.Parent,
		})
	}
	for _, d := range t.Devices {
		f := d.Descriptor.Common()
		if f.InterruptPin == pci.PinNone {
			continue
		}
		w.Devices = append(w.Devices, mptable.PCIRoute{
			Bus:      f.Addr.Bus,
			Device:   f.Addr.Device,
			Pin:      f.InterruptPin,
			DestAPIC: w.LegacyAPIC,
			DestPin:  d.Route,
		})
	}
	return w
}

// MemoryLayout returns the inputs of the e820 map.
func (t *Topology) MemoryLayout() e820.Layout {
	return memoryLayout(t.MemorySize)
}
