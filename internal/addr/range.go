// Package addr models physical address intervals and ordered sets of
// non-overlapping intervals.
package addr

import (
	"fmt"
	"math"
)

// Range is the half-open interval [Start, Start+Size).
//
// A range may touch the top of the 64-bit address space, in which case End
// wraps to zero. Use Last for comparisons.
type Range struct {
	Start uint64
	Size  uint64
}

// New returns the range of size bytes starting at start.
func New(start, size uint64) Range {
	return Range{Start: start, Size: size}
}

// Span returns the range [start, end). An end of zero denotes the top of the
// address space.
func Span(start, end uint64) Range {
	return Range{Start: start, Size: end - start}
}

// ToMax returns the range from start up to and including the maximum address.
func ToMax(start uint64) Range {
	return Range{Start: start, Size: math.MaxUint64 - start + 1}
}

// End returns the first address after the range.
func (r Range) End() uint64 { return r.Start + r.Size }

// Last returns the last address inside the range.
func (r Range) Last() uint64 { return r.Start + r.Size - 1 }

// Validate reports whether the range is non-empty and fits in the address space.
func (r Range) Validate() error {
	if r.Size == 0 {
		return fmt.Errorf("addr: range at %#x has zero size", r.Start)
	}
	if r.Size-1 > math.MaxUint64-r.Start {
		return fmt.Errorf("addr: range at %#x with size %#x overflows", r.Start, r.Size)
	}
	return nil
}

// Contains reports whether a falls inside the range.
func (r Range) Contains(a uint64) bool {
	return r.Size != 0 && a >= r.Start && a <= r.Last()
}

// Covers reports whether o lies entirely inside r.
func (r Range) Covers(o Range) bool {
	return r.Size != 0 && o.Size != 0 && o.Start >= r.Start && o.Last() <= r.Last()
}

// Overlaps reports whether the two ranges share at least one address.
func (r Range) Overlaps(o Range) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return r.Start <= o.Last() && o.Start <= r.Last()
}

func (r Range) String() string {
	if r.Size == 0 {
		return fmt.Sprintf("%#x-(empty)", r.Start)
	}
	return fmt.Sprintf("%#x-%#x", r.Start, r.Last())
}

// AlignUp rounds value up to a multiple of align, which must be a power of two.
func AlignUp(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	mask := align - 1
	return (value + mask) &^ mask
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
