package platform

import (
	"errors"
	"fmt"

	"github.com/tinyrange/pcplat/internal/addr"
	"github.com/tinyrange/pcplat/internal/chipset"
	"github.com/tinyrange/pcplat/internal/e820"
	"github.com/tinyrange/pcplat/internal/mptable"
)

// ConsistencyError names the cross-check that failed.
type ConsistencyError struct {
	Check string
	Err   error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("platform: consistency check %q failed: %v", e.Check, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// Check cross-validates the topology against both firmware tables.
func Check(p *Platform) error {
	checks := []struct {
		name string
		fn   func(*Platform) error
	}{
		{"reserved regions claimed", checkReserved},
		{"interrupt destinations", checkInterrupts},
		{"MMIO hole", checkHole},
		{"available regions are RAM", checkAvailable},
		{"memory map partition", checkPartition},
		{"controller decode", checkDecode},
	}
	for _, c := range checks {
		if err := c.fn(p); err != nil {
			return &ConsistencyError{Check: c.name, Err: err}
		}
	}
	return nil
}

// checkReserved requires every reserved entry to be enforced by a single
// claim on the root bus.
func checkReserved(p *Platform) error {
	root := p.Topology.Root
	for _, e := range p.MemoryMap {
		if e.Type != e820.TypeReserved {
			continue
		}
		if _, ok := root.Covering(e.Range()); !ok {
			return fmt.Errorf("reserved region %s is not claimed on %s", e.Range(), root)
		}
	}
	return nil
}

func checkInterrupts(p *Platform) error {
	controllers := map[uint8]bool{}
	for _, c := range p.Topology.Controllers {
		controllers[c.ID] = true
	}
	declared := map[uint8]bool{}
	for _, a := range p.MPTable.IOAPICs() {
		if !controllers[a.ID] {
			return &mptable.DanglingReferenceError{Kind: "I/O APIC", ID: a.ID, Entry: "I/O APIC entry"}
		}
		declared[a.ID] = true
	}
	for _, i := range p.MPTable.Interrupts() {
		if !declared[i.DestAPIC] {
			return &mptable.DanglingReferenceError{Kind: "I/O APIC", ID: i.DestAPIC, Entry: i.String()}
		}
	}
	return nil
}

// checkHole requires the memory map's hole entry and the root bridge to
// agree exactly, and neither to exist without the other.
func checkHole(p *Platform) error {
	t := p.Topology
	var holes []addr.Range
	for _, e := range p.MemoryMap {
		if e.Type == e820.TypeReserved && e.Addr >= t.MemorySize && e.Addr < LowMemoryCeiling {
			holes = append(holes, e.Range())
		}
	}

	var forwarded []addr.Range
	for _, r := range t.RootBridge.Forward() {
		if r.Start < LowMemoryCeiling {
			forwarded = append(forwarded, r)
		}
	}

	if !t.HasHole {
		if len(holes) != 0 || len(forwarded) != 0 {
			return fmt.Errorf("RAM fills the low window but map has holes %v and %s forwards %v", holes, t.RootBridge, forwarded)
		}
		return nil
	}
	if len(holes) != 1 || holes[0] != t.Hole {
		return fmt.Errorf("memory map holes %v, want exactly %s", holes, t.Hole)
	}
	if len(forwarded) != 1 || !t.RootBridge.Forwards(t.Hole) {
		return fmt.Errorf("%s forwards %v below the ceiling, want exactly %s", t.RootBridge, forwarded, t.Hole)
	}
	return nil
}

func checkAvailable(p *Platform) error {
	t := p.Topology
	for _, e := range p.MemoryMap {
		if e.Type != e820.TypeAvailable {
			continue
		}
		claim, ok := t.Root.Covering(e.Range())
		if !ok || claim.Value.Leaf != chipset.Responder(t.MemoryController) {
			return fmt.Errorf("available region %s is not backed by %s", e.Range(), t.MemoryController.Name())
		}
	}
	return nil
}

func checkPartition(p *Platform) error {
	return e820.Validate(p.MemoryMap, HighMemoryBase, MMIOAperture)
}

// checkDecode walks the windows of every controller and device from the
// root and requires each to land on its owner.
func checkDecode(p *Platform) error {
	t := p.Topology
	expect := func(from *chipset.Bus, a uint64, want chipset.Responder) error {
		route, err := chipset.Decode(from, a)
		if err != nil {
			return err
		}
		if route.Target != want {
			return fmt.Errorf("%s reaches %v, want %s", route, targetName(route.Target), want.Name())
		}
		return nil
	}

	for _, c := range t.Controllers {
		if err := expect(t.Root, c.Window.Start, c); err != nil {
			return err
		}
	}
	if err := expect(t.IO, t.LocalAPICWindow.Start, t.LocalAPIC); err != nil {
		return err
	}
	for _, d := range t.Devices {
		if err := expect(t.Root, d.Window.Start, d); err != nil {
			return err
		}
		if err := expect(t.Root, d.Config.Start, configSpace{dev: d}); err != nil {
			return err
		}
	}
	if t.HasHole {
		route, err := t.Decode(t.Hole.Start)
		if err != nil {
			return err
		}
		if len(route.Hops) == 0 || route.Hops[0].Bridge != t.RootBridge {
			return errors.New("MMIO hole does not leave the root bus through the root bridge")
		}
	}
	return nil
}

func targetName(r chipset.Responder) string {
	if r == nil {
		return "nothing"
	}
	return r.Name()
}
