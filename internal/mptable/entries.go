// Package mptable builds the Intel MultiProcessor configuration table that
// tells a booting guest which processors, interrupt controllers and buses
// exist and how interrupt lines are wired between them.
package mptable

import "fmt"

// EntryType is the entry type byte of the MP configuration table.
type EntryType uint8

const (
	TypeProcessor    EntryType = 0
	TypeBus          EntryType = 1
	TypeIOAPIC       EntryType = 2
	TypeIOInterrupt  EntryType = 3
	TypeBusHierarchy EntryType = 0x81
)

// Entry is one base or extended table entry.
type Entry interface {
	Type() EntryType
}

// Processor describes one processor and its local APIC.
type Processor struct {
	LocalAPICID      uint8
	LocalAPICVersion uint8
	Enabled          bool
	Bootstrap        bool
	Signature        uint32
	FeatureFlags     uint32
}

func (Processor) Type() EntryType { return TypeProcessor }

// BusType is the six-character bus type string.
type BusType string

const (
	BusPCI BusType = "PCI"
	BusISA BusType = "ISA"
)

// Bus declares a bus id interrupt sources may refer to.
type Bus struct {
	ID   uint8
	Kind BusType
}

func (Bus) Type() EntryType { return TypeBus }

// IOAPIC describes an I/O interrupt controller.
type IOAPIC struct {
	ID      uint8
	Version uint8
	Enabled bool
	Address uint32
}

func (IOAPIC) Type() EntryType { return TypeIOAPIC }

// InterruptKind is the interrupt type of an assignment entry.
type InterruptKind uint8

const (
	InterruptINT    InterruptKind = 0
	InterruptNMI    InterruptKind = 1
	InterruptSMI    InterruptKind = 2
	InterruptExtINT InterruptKind = 3
)

func (k InterruptKind) String() string {
	switch k {
	case InterruptINT:
		return "INT"
	case InterruptNMI:
		return "NMI"
	case InterruptSMI:
		return "SMI"
	case InterruptExtINT:
		return "ExtINT"
	default:
		return fmt.Sprintf("InterruptKind(%d)", uint8(k))
	}
}

// Polarity of an interrupt input.
type Polarity uint8

const (
	PolarityConform    Polarity = 0
	PolarityActiveHigh Polarity = 1
	PolarityActiveLow  Polarity = 3
)

// Trigger mode of an interrupt input.
type Trigger uint8

const (
	TriggerConform Trigger = 0
	TriggerEdge    Trigger = 1
	TriggerLevel   Trigger = 3
)

// IOInterrupt routes a bus interrupt source to an I/O APIC input pin.
type IOInterrupt struct {
	Kind      InterruptKind
	Polarity  Polarity
	Trigger   Trigger
	SourceBus uint8
	SourceIRQ uint8
	DestAPIC  uint8
	DestPin   uint8
}

func (IOInterrupt) Type() EntryType { return TypeIOInterrupt }

func (i IOInterrupt) String() string {
	return fmt.Sprintf("%s bus %d irq %#x -> apic %d pin %d", i.Kind, i.SourceBus, i.SourceIRQ, i.DestAPIC, i.DestPin)
}

// BusHierarchy is an extended entry attaching a bus below a parent bus.
type BusHierarchy struct {
	BusID             uint8
	SubtractiveDecode bool
	ParentBus         uint8
}

func (BusHierarchy) Type() EntryType { return TypeBusHierarchy }

// Table is a complete MP configuration table.
type Table struct {
	OEMID            string
	ProductID        string
	LocalAPICAddress uint32
	Base             []Entry
	Extended         []Entry
}

// Processors returns the processor entries in table order.
func (t *Table) Processors() []Processor { return entriesOf[Processor](t.Base) }

// IOAPICs returns the I/O APIC entries in table order.
func (t *Table) IOAPICs() []IOAPIC { return entriesOf[IOAPIC](t.Base) }

// Buses returns the bus entries in table order.
func (t *Table) Buses() []Bus { return entriesOf[Bus](t.Base) }

// Interrupts returns the interrupt assignment entries in table order.
func (t *Table) Interrupts() []IOInterrupt { return entriesOf[IOInterrupt](t.Base) }

// Hierarchy returns the bus hierarchy entries in table order.
func (t *Table) Hierarchy() []BusHierarchy { return entriesOf[BusHierarchy](t.Extended) }

func entriesOf[T Entry](entries []Entry) []T {
	var out []T
	for _, e := range entries {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
