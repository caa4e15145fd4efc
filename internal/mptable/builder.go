package mptable

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/pcplat/internal/devices/pci"
)

const (
	DefaultOEMID            = "TINYR"
	DefaultProductID        = "PCPLAT"
	DefaultLocalAPICAddress = 0xFEE0_0000

	// ISABusID and PCIRootBusID are the fixed bus ids of the platform.
	PCIRootBusID uint8 = 0
	ISABusID     uint8 = 1
)

type phase int

const (
	phaseProcessors phase = iota
	phaseControllers
	phaseBuses
	phaseHierarchy
	phaseInterrupts
)

var phaseNames = [...]string{"processor", "I/O APIC", "bus", "bus hierarchy", "interrupt assignment"}

// Builder appends entries in the fixed table order: processors, I/O APICs,
// buses, bus hierarchy, interrupt assignments. Every id an entry refers to
// must have been declared by an earlier entry.
type Builder struct {
	table Table
	phase phase

	apicIDs map[uint8]string
	ioapics map[uint8]bool
	buses   map[uint8]BusType
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		table: Table{
			OEMID:            DefaultOEMID,
			ProductID:        DefaultProductID,
			LocalAPICAddress: DefaultLocalAPICAddress,
		},
		apicIDs: make(map[uint8]string),
		ioapics: make(map[uint8]bool),
		buses:   make(map[uint8]BusType),
	}
}

func (b *Builder) enter(p phase) error {
	if p < b.phase {
		return fmt.Errorf("mptable: %s entry after %s entries", phaseNames[p], phaseNames[b.phase])
	}
	b.phase = p
	return nil
}

// AddProcessor appends a processor entry.
func (b *Builder) AddProcessor(p Processor) error {
	if err := b.enter(phaseProcessors); err != nil {
		return err
	}
	if owner, ok := b.apicIDs[p.LocalAPICID]; ok {
		return fmt.Errorf("mptable: APIC id %d used by both %s and a processor", p.LocalAPICID, owner)
	}
	b.apicIDs[p.LocalAPICID] = "a processor"
	b.table.Base = append(b.table.Base, p)
	return nil
}

// AddIOAPIC appends an I/O APIC entry.
func (b *Builder) AddIOAPIC(a IOAPIC) error {
	if err := b.enter(phaseControllers); err != nil {
		return err
	}
	if owner, ok := b.apicIDs[a.ID]; ok {
		return fmt.Errorf("mptable: APIC id %d used by both %s and an I/O APIC", a.ID, owner)
	}
	b.apicIDs[a.ID] = "an I/O APIC"
	b.ioapics[a.ID] = true
	b.table.Base = append(b.table.Base, a)
	return nil
}

// AddBus appends a bus entry.
func (b *Builder) AddBus(bus Bus) error {
	if err := b.enter(phaseBuses); err != nil {
		return err
	}
	if _, ok := b.buses[bus.ID]; ok {
		return fmt.Errorf("mptable: bus id %d declared twice", bus.ID)
	}
	if len(bus.Kind) == 0 || len(bus.Kind) > 6 {
		return fmt.Errorf("mptable: bus %d has invalid type %q", bus.ID, bus.Kind)
	}
	b.buses[bus.ID] = bus.Kind
	b.table.Base = append(b.table.Base, bus)
	return nil
}

// AddBusHierarchy appends an extended bus hierarchy entry.
func (b *Builder) AddBusHierarchy(h BusHierarchy) error {
	if err := b.enter(phaseHierarchy); err != nil {
		return err
	}
	entry := fmt.Sprintf("bus hierarchy for bus %d", h.BusID)
	if _, ok := b.buses[h.BusID]; !ok {
		return &DanglingReferenceError{Kind: "bus", ID: h.BusID, Entry: entry}
	}
	if _, ok := b.buses[h.ParentBus]; !ok {
		return &DanglingReferenceError{Kind: "bus", ID: h.ParentBus, Entry: entry}
	}
	b.table.Extended = append(b.table.Extended, h)
	return nil
}

// AddInterrupt appends an interrupt assignment entry.
func (b *Builder) AddInterrupt(i IOInterrupt) error {
	if err := b.enter(phaseInterrupts); err != nil {
		return err
	}
	if _, ok := b.buses[i.SourceBus]; !ok {
		return &DanglingReferenceError{Kind: "bus", ID: i.SourceBus, Entry: i.String()}
	}
	if !b.ioapics[i.DestAPIC] {
		return &DanglingReferenceError{Kind: "I/O APIC", ID: i.DestAPIC, Entry: i.String()}
	}
	b.table.Base = append(b.table.Base, i)
	return nil
}

// Table returns the finished table. It fails unless exactly one processor is
// flagged bootstrap.
func (b *Builder) Table() (*Table, error) {
	bootstrap := 0
	for _, p := range b.table.Processors() {
		if p.Bootstrap {
			bootstrap++
		}
	}
	if bootstrap != 1 {
		return nil, &BootstrapCardinalityError{Count: bootstrap}
	}
	t := b.table
	t.Base = append([]Entry(nil), b.table.Base...)
	t.Extended = append([]Entry(nil), b.table.Extended...)
	return &t, nil
}

// PCISource encodes a PCI function's interrupt source id: device number in
// bits 2-6, INTx pin in bits 0-1.
func PCISource(device uint8, pin pci.InterruptPin) uint8 {
	if pin == pci.PinNone {
		pin = pci.PinA
	}
	return device<<2 | (uint8(pin)-1)&0x3
}

// LegacyLines returns the ISA interrupt lines routed for a controller with
// count lines: every line below count-1 except the cascade line 2.
func LegacyLines(count int) []uint8 {
	var out []uint8
	for i := 0; i < count-1; i++ {
		if i == 2 {
			continue
		}
		out = append(out, uint8(i))
	}
	return out
}

// LegacyPin returns the I/O APIC pin an ISA line is wired to directly. The
// timer (line 0) is on pin 2 and line 1 stays on pin 1; every other line uses
// the pin equal to its number.
func LegacyPin(irq uint8) uint8 {
	if irq == 0 {
		return 2
	}
	return irq
}

// Wiring is the physical interrupt wiring the table is derived from.
type Wiring struct {
	Processors []Processor
	IOAPICs    []IOAPIC

	// PCIBuses lists every PCI bus id; the first is the root bus.
	PCIBuses []uint8
	// Bridges attaches secondary PCI buses to their parents.
	Bridges []BusHierarchy

	// Devices are the PCI functions whose INTx pins are routed.
	Devices []PCIRoute

	// LegacyAPIC is the I/O APIC the ISA lines are wired to.
	LegacyAPIC uint8
	LegacyIRQs int
}

// PCIRoute wires one PCI function's INTx pin to an I/O APIC input.
type PCIRoute struct {
	Bus      uint8
	Device   uint8
	Pin      pci.InterruptPin
	DestAPIC uint8
	DestPin  uint8
}

// Build derives the table from w.
func Build(w Wiring) (*Table, error) {
	b := NewBuilder()
	for _, p := range w.Processors {
		if err := b.AddProcessor(p); err != nil {
			return nil, err
		}
	}
	for _, a := range w.IOAPICs {
		if err := b.AddIOAPIC(a); err != nil {
			return nil, err
		}
	}
	if len(w.PCIBuses) == 0 {
		return nil, fmt.Errorf("mptable: no PCI buses in wiring")
	}
	if err := b.AddBus(Bus{ID: w.PCIBuses[0], Kind: BusPCI}); err != nil {
		return nil, err
	}
	if err := b.AddBus(Bus{ID: ISABusID, Kind: BusISA}); err != nil {
		return nil, err
	}
	for _, id := range w.PCIBuses[1:] {
		if err := b.AddBus(Bus{ID: id, Kind: BusPCI}); err != nil {
			return nil, err
		}
	}
	if err := b.AddBusHierarchy(BusHierarchy{BusID: ISABusID, SubtractiveDecode: true, ParentBus: w.PCIBuses[0]}); err != nil {
		return nil, err
	}
	for _, h := range w.Bridges {
		if err := b.AddBusHierarchy(h); err != nil {
			return nil, err
		}
	}
	for _, d := range w.Devices {
		if err := b.AddInterrupt(IOInterrupt{
			Kind:      InterruptINT,
			Polarity:  PolarityConform,
			Trigger:   TriggerConform,
			SourceBus: d.Bus,
			SourceIRQ: PCISource(d.Device, d.Pin),
			DestAPIC:  d.DestAPIC,
			DestPin:   d.DestPin,
		}); err != nil {
			return nil, err
		}
	}
	for _, irq := range LegacyLines(w.LegacyIRQs) {
		// Through the 8259 pair, which the I/O APIC sees on pin 0.
		if err := b.AddInterrupt(IOInterrupt{
			Kind:      InterruptExtINT,
			SourceBus: ISABusID,
			SourceIRQ: irq,
			DestAPIC:  w.LegacyAPIC,
			DestPin:   0,
		}); err != nil {
			return nil, err
		}
		if err := b.AddInterrupt(IOInterrupt{
			Kind:      InterruptINT,
			SourceBus: ISABusID,
			SourceIRQ: irq,
			DestAPIC:  w.LegacyAPIC,
			DestPin:   LegacyPin(irq),
		}); err != nil {
			return nil, err
		}
	}
	t, err := b.Table()
	if err != nil {
		return nil, err
	}
	slog.Debug("built MP table", "base", len(t.Base), "extended", len(t.Extended))
	return t, nil
}
