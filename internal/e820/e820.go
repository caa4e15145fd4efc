// Package e820 builds the firmware memory map a guest uses to tell general
// RAM from reserved and device-mapped address ranges.
package e820

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tinyrange/pcplat/internal/addr"
)

// Type is the firmware classification of a region.
type Type uint32

const (
	TypeAvailable Type = 1
	TypeReserved  Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeAvailable:
		return "available"
	case TypeReserved:
		return "reserved"
	default:
		return fmt.Sprintf("type-%d", uint32(t))
	}
}

const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30

	// LowReservedSize covers the real-mode area at the bottom of memory.
	LowReservedSize = 639 * KiB
	// BIOSAreaBase and BIOSAreaSize reserve the rest of the first megabyte.
	BIOSAreaBase = 0x9FC00
	BIOSAreaSize = 385 * KiB
	// ExtendedBase is where general RAM starts.
	ExtendedBase = 1 * MiB

	entrySize  = 20
	maxEntries = 128
)

// Entry describes a single memory map region.
type Entry struct {
	Addr uint64
	Size uint64
	Type Type
}

// Range returns the region as an address range.
func (e Entry) Range() addr.Range { return addr.New(e.Addr, e.Size) }

func (e Entry) String() string {
	return fmt.Sprintf("%s %s", e.Range(), e.Type)
}

// Layout holds the inputs of the memory map.
type Layout struct {
	// RAMSize is the total RAM in bytes.
	RAMSize uint64
	// LowCeiling is the highest address low RAM may reach; RAM beyond it is
	// relocated to HighBase.
	LowCeiling uint64
	HighBase   uint64
	// ControlWindow is reserved at the top of the 32-bit space.
	ControlWindow addr.Range
}

// ErrTooSmall is returned when RAM does not cover the fixed first megabyte.
var ErrTooSmall = errors.New("e820: RAM smaller than 1MiB")

// Build returns the memory map for l, ordered by address.
func Build(l Layout) ([]Entry, error) {
	if l.RAMSize < ExtendedBase {
		return nil, fmt.Errorf("%w (%#x bytes)", ErrTooSmall, l.RAMSize)
	}
	if l.LowCeiling < ExtendedBase {
		return nil, fmt.Errorf("e820: low memory ceiling %#x below 1MiB", l.LowCeiling)
	}

	// Start from the low 32-bit window as RAM and carve the firmware areas
	// and the hole out of it.
	entries := []Entry{{Addr: 0, Size: l.LowCeiling, Type: TypeAvailable}}
	carve := []addr.Range{
		addr.New(0, LowReservedSize),
		addr.New(BIOSAreaBase, BIOSAreaSize),
	}
	if hole, ok := Hole(l); ok {
		carve = append(carve, hole)
	}
	for _, r := range carve {
		var err error
		if entries, err = Reserve(entries, r); err != nil {
			return nil, err
		}
	}
	if l.ControlWindow.Size != 0 {
		entries = append(entries, Entry{Addr: l.ControlWindow.Start, Size: l.ControlWindow.Size, Type: TypeReserved})
	}
	if l.RAMSize > l.LowCeiling {
		entries = append(entries, Entry{Addr: l.HighBase, Size: l.RAMSize - l.LowCeiling, Type: TypeAvailable})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Addr < entries[j].Addr })
	slog.Debug("built e820 map", "entries", len(entries), "ram", l.RAMSize)
	return entries, nil
}

// Hole returns the reserved range between the end of RAM and the low memory
// ceiling, present only when RAM ends below the ceiling.
func Hole(l Layout) (addr.Range, bool) {
	if l.RAMSize >= l.LowCeiling {
		return addr.Range{}, false
	}
	return addr.Span(l.RAMSize, l.LowCeiling), true
}

// Reserve marks r as reserved, splitting the entries it crosses. Parts of r
// outside every entry are ignored, but r must touch at least one entry.
func Reserve(entries []Entry, r addr.Range) ([]Entry, error) {
	if r.Size == 0 {
		return entries, nil
	}

	out := make([]Entry, 0, len(entries)+2)
	touched := false
	for _, ent := range entries {
		er := ent.Range()
		if !er.Overlaps(r) {
			out = append(out, ent)
			continue
		}
		touched = true

		if ent.Addr < r.Start {
			out = append(out, Entry{Addr: ent.Addr, Size: r.Start - ent.Addr, Type: ent.Type})
		}
		lo, hi := max(ent.Addr, r.Start), min(er.Last(), r.Last())
		out = append(out, Entry{Addr: lo, Size: hi - lo + 1, Type: TypeReserved})
		if hi < er.Last() {
			out = append(out, Entry{Addr: hi + 1, Size: er.Last() - hi, Type: ent.Type})
		}
	}

	if !touched {
		return entries, fmt.Errorf("e820: reserved region %s outside map", r)
	}
	return out, nil
}

// Encode serialises the map as consecutive 20-byte little-endian records,
// the layout used by the Linux zero page.
func Encode(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("e820: map must contain at least one entry")
	}
	if len(entries) > maxEntries {
		return nil, fmt.Errorf("e820: too many entries (%d > %d)", len(entries), maxEntries)
	}
	out := make([]byte, len(entries)*entrySize)
	for idx, ent := range entries {
		base := idx * entrySize
		binary.LittleEndian.PutUint64(out[base:], ent.Addr)
		binary.LittleEndian.PutUint64(out[base+8:], ent.Size)
		binary.LittleEndian.PutUint32(out[base+16:], uint32(ent.Type))
	}
	return out, nil
}
