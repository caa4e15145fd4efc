package pci

import (
	"errors"
	"testing"

	"github.com/tinyrange/pcplat/internal/addr"
)

func TestAllocateNaturallyAligned(t *testing.T) {
	a := NewWindowAllocator(addr.Span(0xC000_0000, 0xFFFF_0000))

	first, err := a.Allocate("ide", 0x1000)
	if err != nil {
		t.Fatalf("allocate ide: %v", err)
	}
	second, err := a.Allocate("nic", 0x2_0000)
	if err != nil {
		t.Fatalf("allocate nic: %v", err)
	}
	if first != addr.New(0xC000_0000, 0x1000) {
		t.Fatalf("first window = %s", first)
	}
	if second.Start%0x2_0000 != 0 || second.Overlaps(first) {
		t.Fatalf("second window %s misaligned or overlapping %s", second, first)
	}
}

func TestAllocateSkipsReservations(t *testing.T) {
	a := NewWindowAllocator(addr.Span(0xC000_0000, 0xFFFF_0000))
	if err := a.Reserve("pinned", addr.New(0xC000_0000, 0x4000)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	w, err := a.Allocate("dev", 0x1000)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if w.Start != 0xC000_4000 {
		t.Fatalf("window = %s, want start 0xc0004000", w)
	}
}

func TestReserveOverlapNamesBothOwners(t *testing.T) {
	a := NewWindowAllocator(addr.Span(0xC000_0000, 0xFFFF_0000))
	if err := a.Reserve("nic0", addr.New(0xD000_0000, 0x2_0000)); err != nil {
		t.Fatalf("reserve nic0: %v", err)
	}
	err := a.Reserve("nic1", addr.New(0xD001_0000, 0x1_0000))
	var overlap *addr.OverlapError
	if !errors.As(err, &overlap) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	if overlap.ExistingOwner != "nic0" || overlap.NewOwner != "nic1" {
		t.Fatalf("owners = %q/%q", overlap.ExistingOwner, overlap.NewOwner)
	}
}

func TestReserveOutsideAperture(t *testing.T) {
	a := NewWindowAllocator(addr.Span(0xC000_0000, 0xFFFF_0000))
	if err := a.Reserve("low", addr.New(0x1000_0000, 0x1000)); err == nil {
		t.Fatalf("reservation below the aperture accepted")
	}
}

func TestAllocateExhaustion(t *testing.T) {
	a := NewWindowAllocator(addr.New(0xC000_0000, 0x4000))
	for i := 0; i < 4; i++ {
		if _, err := a.Allocate("dev", 0x1000); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if _, err := a.Allocate("dev", 0x1000); !errors.Is(err, ErrWindowExhausted) {
		t.Fatalf("allocate past the end = %v, want ErrWindowExhausted", err)
	}
}

func TestValidateDescriptors(t *testing.T) {
	cases := []struct {
		name string
		desc Descriptor
		ok   bool
	}{
		{"nic", NIC{Function: Function{Name: "nic0", InterruptPin: PinA}, Model: NICModelPCIe}, true},
		{"unknown model", NIC{Function: Function{Name: "nic0"}, Model: "rtl8139"}, false},
		{"bad device number", IDE{Function: Function{Name: "ide", Addr: BDF{Device: 32}}}, false},
		{"three disks", IDE{Function: Function{Name: "ide"}, Disks: []string{"a", "b", "c"}}, false},
		{"generic without size", Generic{Function: Function{Name: "g"}}, false},
		{"odd window", Generic{Function: Function{Name: "g", WindowSize: 0x3000}}, false},
		{"misaligned base", Generic{Function: Function{Name: "g", WindowSize: 0x2000, WindowBase: 0xC000_1000}}, false},
		{"generic", Generic{Function: Function{Name: "g", WindowSize: 0x2000, WindowBase: 0xC000_2000}}, true},
		{"unnamed", NIC{Model: NICModelE1000}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.desc)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("invalid descriptor accepted")
			}
		})
	}
}

func TestBDFConfigOffset(t *testing.T) {
	b := BDF{Bus: 1, Device: 4, Function: 2}
	if got, want := b.ConfigOffset(), uint64(0x1_2200); got != want {
		t.Fatalf("config offset = %#x, want %#x", got, want)
	}
	if b.String() != "01:04.2" {
		t.Fatalf("string = %q", b.String())
	}
}

func TestSwizzle(t *testing.T) {
	if got := Swizzle(4, PinA); got != 0 {
		t.Fatalf("swizzle(4, INTA) = %d, want 0", got)
	}
	if got := Swizzle(1, PinD); got != 0 {
		t.Fatalf("swizzle(1, INTD) = %d, want 0", got)
	}
	if got := Swizzle(2, PinB); got != 3 {
		t.Fatalf("swizzle(2, INTB) = %d, want 3", got)
	}
}
