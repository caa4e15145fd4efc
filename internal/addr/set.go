package addr

import (
	"fmt"

	"github.com/google/btree"
)

const setDegree = 8

// OverlapError reports an attempt to claim a range that intersects a range
// already present.
type OverlapError struct {
	Existing      Range
	New           Range
	ExistingOwner string
	NewOwner      string
}

func (e *OverlapError) Error() string {
	if e.ExistingOwner == "" && e.NewOwner == "" {
		return fmt.Sprintf("range %s overlaps existing range %s", e.New, e.Existing)
	}
	return fmt.Sprintf("range %s (%s) overlaps existing range %s (%s)",
		e.New, ownerOrUnknown(e.NewOwner), e.Existing, ownerOrUnknown(e.ExistingOwner))
}

func ownerOrUnknown(s string) string {
	if s == "" {
		return "unnamed"
	}
	return s
}

// Entry is a range together with the value that owns it.
type Entry[V any] struct {
	Range Range
	Value V
}

// Set holds pairwise non-overlapping ranges ordered by start address.
// The zero value is not usable; call NewSet.
type Set[V any] struct {
	tree *btree.BTreeG[Entry[V]]
}

// NewSet returns an empty set.
func NewSet[V any]() *Set[V] {
	return &Set[V]{
		tree: btree.NewG(setDegree, func(a, b Entry[V]) bool {
			return a.Range.Start < b.Range.Start
		}),
	}
}

// Add inserts r owned by v. It fails with *OverlapError if r intersects a
// range already in the set and leaves the set unchanged.
func (s *Set[V]) Add(r Range, v V) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if existing, ok := s.Overlapping(r); ok {
		return &OverlapError{
			Existing:      existing.Range,
			New:           r,
			ExistingOwner: describe(existing.Value),
			NewOwner:      describe(v),
		}
	}
	s.tree.ReplaceOrInsert(Entry[V]{Range: r, Value: v})
	return nil
}

// Overlapping returns the lowest entry that intersects r, if any.
func (s *Set[V]) Overlapping(r Range) (Entry[V], bool) {
	var (
		found Entry[V]
		ok    bool
	)
	// Only the entry starting at or below r.Start can reach into r from the left.
	s.tree.DescendLessOrEqual(Entry[V]{Range: Range{Start: r.Start}}, func(e Entry[V]) bool {
		if e.Range.Overlaps(r) {
			found, ok = e, true
		}
		return false
	})
	if ok {
		return found, true
	}
	s.tree.AscendGreaterOrEqual(Entry[V]{Range: Range{Start: r.Start}}, func(e Entry[V]) bool {
		if e.Range.Start > r.Last() {
			return false
		}
		if e.Range.Overlaps(r) {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok
}

// Contains returns the entry owning address a.
func (s *Set[V]) Contains(a uint64) (Entry[V], bool) {
	return s.Overlapping(Range{Start: a, Size: 1})
}

// Covering returns the entry whose range fully covers r.
func (s *Set[V]) Covering(r Range) (Entry[V], bool) {
	e, ok := s.Contains(r.Start)
	if !ok || !e.Range.Covers(r) {
		return Entry[V]{}, false
	}
	return e, true
}

// Entries returns all entries by ascending start address.
func (s *Set[V]) Entries() []Entry[V] {
	out := make([]Entry[V], 0, s.tree.Len())
	s.tree.Ascend(func(e Entry[V]) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Ranges returns all ranges by ascending start address.
func (s *Set[V]) Ranges() []Range {
	out := make([]Range, 0, s.tree.Len())
	s.tree.Ascend(func(e Entry[V]) bool {
		out = append(out, e.Range)
		return true
	})
	return out
}

// Len returns the number of ranges in the set.
func (s *Set[V]) Len() int { return s.tree.Len() }

// Clone returns a copy of the set. The copy shares no mutable state with s.
func (s *Set[V]) Clone() *Set[V] {
	return &Set[V]{tree: s.tree.Clone()}
}

// AddAll inserts every range in order. Either all ranges are inserted or, on
// the first overlap, none are.
func (s *Set[V]) AddAll(ranges []Range, v V) error {
	staged := s.Clone()
	for _, r := range ranges {
		if err := staged.Add(r, v); err != nil {
			return err
		}
	}
	s.tree = staged.tree
	return nil
}

func describe(v any) string {
	switch o := v.(type) {
	case nil:
		return ""
	case fmt.Stringer:
		return o.String()
	case string:
		return o
	case interface{ Name() string }:
		return o.Name()
	default:
		return ""
	}
}
