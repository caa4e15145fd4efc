package pci

import "fmt"

const (
	// MaxDevices is the number of device slots on one bus.
	MaxDevices = 32
	// MaxFunctions is the number of functions per device.
	MaxFunctions = 8
	// ConfigSpaceSize is the configuration space of one function.
	ConfigSpaceSize = 256
)

// BDF identifies a PCI function by bus, device and function number.
type BDF struct {
	Bus      uint8
	Device   uint8
	Function uint8
}

func (b BDF) String() string {
	return fmt.Sprintf("%02x:%02x.%x", b.Bus, b.Device, b.Function)
}

// Validate checks the device and function numbers are in range.
func (b BDF) Validate() error {
	if b.Device >= MaxDevices {
		return fmt.Errorf("pci: device number %d out of range in %s", b.Device, b)
	}
	if b.Function >= MaxFunctions {
		return fmt.Errorf("pci: function number %d out of range in %s", b.Function, b)
	}
	return nil
}

// ConfigOffset returns the offset of the function's configuration space in a
// CAM-style window (bus<<16 | device<<11 | function<<8).
func (b BDF) ConfigOffset() uint64 {
	return uint64(b.Bus)<<16 | uint64(b.Device)<<11 | uint64(b.Function)<<8
}

// InterruptPin is the PCI INTx pin a function asserts.
type InterruptPin uint8

const (
	PinNone InterruptPin = iota
	PinA
	PinB
	PinC
	PinD
)

func (p InterruptPin) String() string {
	switch p {
	case PinNone:
		return "none"
	case PinA, PinB, PinC, PinD:
		return "INT" + string(rune('A'+p-PinA))
	default:
		return fmt.Sprintf("InterruptPin(%d)", uint8(p))
	}
}

// Swizzle returns the root-complex interrupt line (0..3) a function's pin is
// routed to with the conventional device-number rotation.
func Swizzle(device uint8, pin InterruptPin) uint8 {
	if pin == PinNone {
		return 0
	}
	return (device + uint8(pin) - 1) % 4
}
