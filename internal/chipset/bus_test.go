package chipset

import (
	"errors"
	"testing"

	"github.com/tinyrange/pcplat/internal/addr"
)

type leaf string

func (l leaf) Name() string { return string(l) }

func newTwoLevel(t *testing.T) (root, io *Bus, bridge *Bridge) {
	t.Helper()
	root = NewBus("membus", nil)
	io = NewBus("iobus", NewFloatingSink("isa-floating"))

	if err := root.Claim(leaf("dram"), addr.New(0, 0x4000_0000)); err != nil {
		t.Fatalf("claim dram: %v", err)
	}
	var err error
	bridge, err = NewBridge("bridge", root, io,
		addr.Span(0xC000_0000, 0xFFFF_0000),
		addr.Span(0x8000_0000_0000_0000, 0xA000_0000_0000_0000),
	)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if err := root.Attach(bridge); err != nil {
		t.Fatalf("attach bridge: %v", err)
	}
	if err := io.Claim(leaf("nic"), addr.New(0xC000_0000, 0x2_0000)); err != nil {
		t.Fatalf("claim nic: %v", err)
	}
	return root, io, bridge
}

func TestDecodeFollowsBridges(t *testing.T) {
	root, io, bridge := newTwoLevel(t)

	route, err := Decode(root, 0xC000_1000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if route.Target == nil || route.Target.Name() != "nic" {
		t.Fatalf("target = %v, want nic", route.Target)
	}
	if len(route.Hops) != 2 || route.Hops[0].Bridge != bridge || route.Hops[1].Bus != io {
		t.Fatalf("unexpected route %s", route)
	}

	route, err = Decode(root, 0x1000)
	if err != nil {
		t.Fatalf("decode RAM: %v", err)
	}
	if route.Target.Name() != "dram" {
		t.Fatalf("RAM address decoded to %s", route.Target.Name())
	}
}

func TestDecodeForwardedButUnclaimedHitsDownstreamDefault(t *testing.T) {
	root, _, _ := newTwoLevel(t)

	route, err := Decode(root, 0xD000_0000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sink, ok := route.Target.(*Sink)
	if !ok || sink.Kind() != SinkFloating {
		t.Fatalf("target = %v, want floating sink", route.Target)
	}
}

func TestDecodeUnclaimedAtRootFaults(t *testing.T) {
	root, _, _ := newTwoLevel(t)

	_, err := Decode(root, 0x5000_0000)
	var unmapped *UnmappedError
	if !errors.As(err, &unmapped) {
		t.Fatalf("expected UnmappedError, got %v", err)
	}
	if unmapped.Addr != 0x5000_0000 || unmapped.Bus != "membus" {
		t.Fatalf("unexpected error context: %+v", unmapped)
	}
}

func TestAttachIsAllOrNothing(t *testing.T) {
	root, io, _ := newTwoLevel(t)
	before := len(root.Claims())

	// The second range collides with DRAM.
	other, err := NewBridge("other", root, io, addr.New(0xFFFF_0000, 0x1_0000), addr.New(0x3000_0000, 0x1000))
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	err = root.Attach(other)
	var overlap *addr.OverlapError
	if !errors.As(err, &overlap) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	if overlap.ExistingOwner != "dram" || overlap.NewOwner != "other" {
		t.Fatalf("unexpected owners in %v", overlap)
	}
	if got := len(root.Claims()); got != before {
		t.Fatalf("claims = %d after failed attach, want %d", got, before)
	}
	if len(root.Links()) != 1 {
		t.Fatalf("failed bridge recorded as a link")
	}
}

func TestNewBridgeRejectsSelfOverlap(t *testing.T) {
	a := NewBus("a", nil)
	b := NewBus("b", nil)
	if _, err := NewBridge("dup", a, b, addr.New(0x1000, 0x2000), addr.New(0x2000, 0x1000)); err == nil {
		t.Fatalf("bridge with overlapping forward ranges accepted")
	}
	if _, err := NewBridge("self", a, a, addr.New(0x1000, 0x1000)); err == nil {
		t.Fatalf("bridge looping onto its own bus accepted")
	}
}

func TestAttachRequiresMatchingUpstream(t *testing.T) {
	a := NewBus("a", nil)
	b := NewBus("b", nil)
	l, err := NewBridge("l", a, b, addr.New(0x1000, 0x1000))
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if err := b.Attach(l); err == nil {
		t.Fatalf("attach to the downstream bus accepted")
	}
}

func TestSealedBusRejectsClaims(t *testing.T) {
	root, _, _ := newTwoLevel(t)
	root.Seal()
	if err := root.Claim(leaf("late"), addr.New(0x9000_0000, 0x1000)); !errors.Is(err, ErrSealed) {
		t.Fatalf("claim on sealed bus = %v, want ErrSealed", err)
	}
}

func TestDecodeDetectsLoops(t *testing.T) {
	a := NewBus("a", nil)
	b := NewBus("b", nil)
	down, err := NewBridge("down", a, b, addr.New(0x1000, 0x1000))
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	up, err := NewBridge("up", b, a, addr.New(0x1000, 0x1000))
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if err := a.Attach(down); err != nil {
		t.Fatalf("attach down: %v", err)
	}
	if err := b.Attach(up); err != nil {
		t.Fatalf("attach up: %v", err)
	}
	if _, err := Decode(a, 0x1800); err == nil {
		t.Fatalf("looping decode succeeded")
	}
}

func TestDeepTopology(t *testing.T) {
	// root -> io -> switch -> port, as a PCIe fabric would be wired.
	root := NewBus("root", nil)
	buses := []*Bus{root}
	window := addr.New(0xE000_0000, 0x1000)
	for i, name := range []string{"io", "switch", "port"} {
		next := NewBus(name, nil)
		l, err := NewBridge(name+"-link", buses[i], next, window)
		if err != nil {
			t.Fatalf("new bridge: %v", err)
		}
		if err := buses[i].Attach(l); err != nil {
			t.Fatalf("attach %s: %v", name, err)
		}
		buses = append(buses, next)
	}
	if err := buses[len(buses)-1].Claim(leaf("endpoint"), window); err != nil {
		t.Fatalf("claim endpoint: %v", err)
	}

	route, err := Decode(root, 0xE000_0010)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if route.Target.Name() != "endpoint" || len(route.Hops) != 4 {
		t.Fatalf("unexpected route %s", route)
	}

	var names []string
	if err := Walk(root, func(b *Bus) error {
		names = append(names, b.Name())
		return nil
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(names) != 4 || names[0] != "root" || names[3] != "port" {
		t.Fatalf("walk order = %v", names)
	}
}

func TestSubtractiveBusFallsBackToParent(t *testing.T) {
	parent := NewBus("parent", NewFloatingSink("float"))
	if err := parent.Claim(leaf("legacy"), addr.New(0x60, 1)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	child := NewSubtractiveBus("child", parent)

	route, err := Decode(child, 0x60)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if route.Target.Name() != "legacy" {
		t.Fatalf("target = %s, want legacy", route.Target.Name())
	}
}
