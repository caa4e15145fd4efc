package addr

import (
	"errors"
	"math"
	"testing"
)

func TestRangeOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Range
		want bool
	}{
		{"disjoint", New(0, 0x1000), New(0x1000, 0x1000), false},
		{"nested", New(0, 0x4000), New(0x1000, 0x1000), true},
		{"straddle", New(0x800, 0x1000), New(0x1000, 0x1000), true},
		{"top of space", ToMax(0xC000_0000_0000_0000), New(math.MaxUint64, 1), true},
		{"below top", ToMax(0xC000_0000_0000_0000), New(0xA000_0000_0000_0000, 0x2000), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("%s overlaps %s = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("overlap is not symmetric for %s and %s", tc.a, tc.b)
			}
		})
	}
}

func TestRangeValidate(t *testing.T) {
	if err := New(0x1000, 0).Validate(); err == nil {
		t.Fatalf("zero-size range accepted")
	}
	if err := New(math.MaxUint64, 2).Validate(); err == nil {
		t.Fatalf("overflowing range accepted")
	}
	if err := ToMax(0xC000_0000_0000_0000).Validate(); err != nil {
		t.Fatalf("range ending at the top of the address space rejected: %v", err)
	}
}

func TestSetRejectsOverlap(t *testing.T) {
	s := NewSet[string]()
	if err := s.Add(New(0x1000, 0x1000), "a"); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add(New(0x3000, 0x1000), "b"); err != nil {
		t.Fatalf("add b: %v", err)
	}

	err := s.Add(New(0x1800, 0x2000), "c")
	var overlap *OverlapError
	if !errors.As(err, &overlap) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	if overlap.Existing != New(0x1000, 0x1000) || overlap.ExistingOwner != "a" || overlap.NewOwner != "c" {
		t.Fatalf("unexpected overlap context: %+v", overlap)
	}
	if s.Len() != 2 {
		t.Fatalf("set length = %d after rejected add, want 2", s.Len())
	}
}

func TestOverlappingReportsLowestConflict(t *testing.T) {
	s := NewSet[string]()
	for _, e := range []Entry[string]{
		{New(0x0000, 0x1000), "low"},
		{New(0x2000, 0x1000), "mid"},
		{New(0x4000, 0x1000), "high"},
	} {
		if err := s.Add(e.Range, e.Value); err != nil {
			t.Fatalf("add %s: %v", e.Value, err)
		}
	}

	e, ok := s.Overlapping(New(0x1800, 0x3000))
	if !ok || e.Value != "mid" {
		t.Fatalf("Overlapping = %v, %v, want mid", e, ok)
	}
	e, ok = s.Overlapping(New(0x0800, 0x4000))
	if !ok || e.Value != "low" {
		t.Fatalf("Overlapping = %v, %v, want low", e, ok)
	}
	if e, ok := s.Overlapping(New(0x1000, 0x1000)); ok {
		t.Fatalf("gap reported as overlapping %v", e)
	}
	e, ok = s.Overlapping(ToMax(0x3000))
	if !ok || e.Value != "high" {
		t.Fatalf("Overlapping to the top = %v, %v, want high", e, ok)
	}
}

func TestSetContains(t *testing.T) {
	s := NewSet[string]()
	for _, e := range []Entry[string]{
		{New(0, 0x1000), "low"},
		{New(0x10_0000, 0x10_0000), "mid"},
		{ToMax(0xC000_0000_0000_0000), "top"},
	} {
		if err := s.Add(e.Range, e.Value); err != nil {
			t.Fatalf("add %s: %v", e.Value, err)
		}
	}

	for _, tc := range []struct {
		addr uint64
		want string
	}{
		{0, "low"},
		{0xfff, "low"},
		{0x1000, ""},
		{0x18_0000, "mid"},
		{0x20_0000, ""},
		{math.MaxUint64, "top"},
	} {
		e, ok := s.Contains(tc.addr)
		if tc.want == "" {
			if ok {
				t.Fatalf("address %#x unexpectedly owned by %s", tc.addr, e.Value)
			}
			continue
		}
		if !ok || e.Value != tc.want {
			t.Fatalf("address %#x owned by %q, want %q", tc.addr, e.Value, tc.want)
		}
	}
}

func TestSetRangesAscending(t *testing.T) {
	s := NewSet[int]()
	starts := []uint64{0x5000, 0x1000, 0x9000, 0x3000}
	for i, start := range starts {
		if err := s.Add(New(start, 0x1000), i); err != nil {
			t.Fatalf("add %#x: %v", start, err)
		}
	}
	ranges := s.Ranges()
	for i := 1; i < len(ranges); i++ {
		if ranges[i-1].Start >= ranges[i].Start {
			t.Fatalf("ranges not ascending: %v", ranges)
		}
	}
}

func TestSetAddAllIsAtomic(t *testing.T) {
	s := NewSet[string]()
	if err := s.Add(New(0x8000, 0x1000), "existing"); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := s.AddAll([]Range{New(0x1000, 0x1000), New(0x8800, 0x100)}, "link")
	if err == nil {
		t.Fatalf("expected overlap error")
	}
	if s.Len() != 1 {
		t.Fatalf("partial insert retained: %v", s.Ranges())
	}
	if _, ok := s.Contains(0x1000); ok {
		t.Fatalf("first range of rejected batch is present")
	}
}

func TestSetCovering(t *testing.T) {
	s := NewSet[string]()
	if err := s.Add(New(0, 0xC000_0000), "ram"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, ok := s.Covering(New(0x9fc00, 0x60400)); !ok {
		t.Fatalf("range inside RAM not covered")
	}
	if _, ok := s.Covering(New(0xBFFF_F000, 0x2000)); ok {
		t.Fatalf("range crossing the end of RAM reported as covered")
	}
}
