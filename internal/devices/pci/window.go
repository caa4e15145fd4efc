package pci

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/pcplat/internal/addr"
)

// ErrWindowExhausted is returned when no room is left in the aperture.
var ErrWindowExhausted = errors.New("pci: MMIO aperture exhausted")

// WindowAllocator hands out naturally aligned MMIO windows from an aperture,
// stepping around windows that were reserved at fixed addresses.
type WindowAllocator struct {
	aperture addr.Range
	next     uint64
	used     *addr.Set[string]
}

// NewWindowAllocator returns an allocator over aperture.
func NewWindowAllocator(aperture addr.Range) *WindowAllocator {
	return &WindowAllocator{
		aperture: aperture,
		next:     aperture.Start,
		used:     addr.NewSet[string](),
	}
}

// Reserve records a fixed window. Overlapping reservations fail with
// *addr.OverlapError naming both owners.
func (a *WindowAllocator) Reserve(name string, r addr.Range) error {
	if !a.aperture.Covers(r) {
		return fmt.Errorf("pci: window %s for %s lies outside aperture %s", r, name, a.aperture)
	}
	if err := a.used.Add(r, name); err != nil {
		return fmt.Errorf("pci: reserve window for %s: %w", name, err)
	}
	return nil
}

// Allocate returns the lowest free window of the given power-of-two size at
// or above the previous allocation.
func (a *WindowAllocator) Allocate(name string, size uint64) (addr.Range, error) {
	if !addr.IsPowerOfTwo(size) {
		return addr.Range{}, fmt.Errorf("pci: window size %#x for %s is not a power of two", size, name)
	}
	base := addr.AlignUp(a.next, size)
	for {
		if base < a.aperture.Start || base+size < base || base+size-1 > a.aperture.Last() {
			return addr.Range{}, fmt.Errorf("%w: %s needs %#x bytes", ErrWindowExhausted, name, size)
		}
		candidate := addr.New(base, size)
		clash, ok := a.used.Overlapping(candidate)
		if !ok {
			if err := a.used.Add(candidate, name); err != nil {
				return addr.Range{}, err
			}
			a.next = candidate.End()
			slog.Debug("allocated MMIO window", "device", name, "window", candidate.String())
			return candidate, nil
		}
		base = addr.AlignUp(clash.Range.End(), size)
	}
}
