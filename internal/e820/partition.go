package e820

import (
	"fmt"
	"sort"

	"github.com/tinyrange/pcplat/internal/addr"
)

// PartitionKind says what went wrong with a partition.
type PartitionKind string

const (
	PartitionGap     PartitionKind = "gap"
	PartitionOverlap PartitionKind = "overlap"
	PartitionEmpty   PartitionKind = "empty entry"
)

// PartitionError reports a gap or overlap in the memory map.
type PartitionError struct {
	Kind PartitionKind
	At   uint64
	Prev addr.Range
	Next addr.Range
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("e820: %s at %#x between %s and %s", e.Kind, e.At, e.Prev, e.Next)
}

// Validate checks that the entries together with the given apertures cover
// [0, limit) exactly once. Apertures are ranges the platform decodes to
// devices and deliberately leaves out of the map. Entries above limit are
// only checked for overlap.
func Validate(entries []Entry, limit uint64, apertures ...addr.Range) error {
	regions := make([]addr.Range, 0, len(entries)+len(apertures))
	for _, e := range entries {
		if e.Size == 0 {
			return &PartitionError{Kind: PartitionEmpty, At: e.Addr, Prev: e.Range(), Next: e.Range()}
		}
		regions = append(regions, e.Range())
	}
	regions = append(regions, apertures...)
	sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })

	var cursor uint64
	prev := addr.Range{}
	for _, r := range regions {
		switch {
		case r.Start < cursor:
			return &PartitionError{Kind: PartitionOverlap, At: r.Start, Prev: prev, Next: r}
		case r.Start > cursor && cursor < limit:
			return &PartitionError{Kind: PartitionGap, At: cursor, Prev: prev, Next: r}
		}
		cursor = r.End()
		prev = r
		if cursor == 0 {
			// Reached the top of the address space.
			return nil
		}
	}
	if cursor < limit {
		return &PartitionError{Kind: PartitionGap, At: cursor, Prev: prev}
	}
	return nil
}
