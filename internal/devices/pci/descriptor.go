package pci

import (
	"errors"
	"fmt"

	"github.com/tinyrange/pcplat/internal/addr"
)

// Kind identifies a device descriptor variant.
type Kind int

const (
	KindNIC Kind = iota + 1
	KindIDE
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindNIC:
		return "nic"
	case KindIDE:
		return "ide"
	case KindGeneric:
		return "generic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a descriptor kind name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "nic":
		return KindNIC, nil
	case "ide":
		return KindIDE, nil
	case "generic":
		return KindGeneric, nil
	default:
		return 0, fmt.Errorf("pci: unknown device kind %q", s)
	}
}

const (
	minWindowSize = 0x1000

	defaultNICWindow = 0x2_0000
	defaultIDEWindow = 0x1000
)

// Function holds the fields every descriptor variant shares.
type Function struct {
	Name string
	Addr BDF
	// InterruptLine is the legacy PIC line the function reports in its
	// configuration header. Routing through the I/O APIC uses only the pin.
	InterruptLine uint8
	InterruptPin  InterruptPin
	// WindowSize is the MMIO window size in bytes; zero selects the kind's
	// default. It is rounded up to a page.
	WindowSize uint64
	// WindowBase pins the window at a fixed address; zero lets the platform
	// allocate one.
	WindowBase uint64
}

// Descriptor is one configured PCI function. The set of implementations is
// closed: NIC, IDE and Generic.
type Descriptor interface {
	Kind() Kind
	Common() Function
	sealed()
}

// NICModel selects the emulated network controller.
type NICModel string

const (
	NICModelE1000 NICModel = "e1000"
	NICModelPCIe  NICModel = "igbe-pcie"
)

// NIC is a network controller function.
type NIC struct {
	Function
	Model NICModel
}

func (NIC) Kind() Kind { return KindNIC }
func (n NIC) Common() Function { return n.Function }
func (NIC) sealed() {}

// IDE is a disk controller function. Disks are image paths handed to the
// storage collaborator, master first.
type IDE struct {
	Function
	Disks []string
}

func (IDE) Kind() Kind { return KindIDE }
func (d IDE) Common() Function { return d.Function }
func (IDE) sealed() {}

// Generic is any other function identified only by its class code.
type Generic struct {
	Function
	ClassCode uint32
}

func (Generic) Kind() Kind { return KindGeneric }
func (g Generic) Common() Function { return g.Function }
func (Generic) sealed() {}

// Validate checks the fields of a descriptor for its kind.
func Validate(d Descriptor) error {
	if d == nil {
		return errors.New("pci: nil descriptor")
	}
	f := d.Common()
	if f.Name == "" {
		return fmt.Errorf("pci: %s device at %s has no name", d.Kind(), f.Addr)
	}
	if err := f.Addr.Validate(); err != nil {
		return fmt.Errorf("pci: device %s: %w", f.Name, err)
	}
	if f.InterruptPin > PinD {
		return fmt.Errorf("pci: device %s: interrupt pin %d out of range", f.Name, f.InterruptPin)
	}
	if f.WindowSize != 0 && !addr.IsPowerOfTwo(f.WindowSize) {
		return fmt.Errorf("pci: device %s: window size %#x is not a power of two", f.Name, f.WindowSize)
	}
	if f.WindowBase != 0 && f.WindowBase%WindowSize(d) != 0 {
		return fmt.Errorf("pci: device %s: window base %#x not aligned to size %#x", f.Name, f.WindowBase, WindowSize(d))
	}

	switch v := d.(type) {
	case NIC:
		switch v.Model {
		case NICModelE1000, NICModelPCIe:
		default:
			return fmt.Errorf("pci: device %s: unknown NIC model %q", f.Name, v.Model)
		}
	case IDE:
		if len(v.Disks) > 2 {
			return fmt.Errorf("pci: device %s: %d disks, a channel holds at most 2", f.Name, len(v.Disks))
		}
	case Generic:
		if f.WindowSize == 0 {
			return fmt.Errorf("pci: device %s: generic devices need an explicit window size", f.Name)
		}
	}
	return nil
}

// WindowSize returns the page-rounded MMIO window size of d.
func WindowSize(d Descriptor) uint64 {
	size := d.Common().WindowSize
	if size == 0 {
		switch d.Kind() {
		case KindNIC:
			size = defaultNICWindow
		case KindIDE:
			size = defaultIDEWindow
		}
	}
	if size < minWindowSize {
		size = minWindowSize
	}
	return size
}
