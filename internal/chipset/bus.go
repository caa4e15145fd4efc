// Package chipset models range-decoded buses joined by bridges. Each bus
// forwards an address to whichever child claims it and delivers everything
// else to its default responder.
package chipset

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/pcplat/internal/addr"
)

// ErrSealed is returned when a sealed bus is modified.
var ErrSealed = errors.New("chipset: bus is sealed")

// Claim is one range claimed on a bus, either by a bridge leading to
// another bus or by a leaf responder.
type Claim struct {
	Link *Bridge
	Leaf Responder
}

// Name returns the name of the claiming bridge or leaf.
func (c Claim) Name() string {
	if c.Link != nil {
		return c.Link.Name()
	}
	if c.Leaf != nil {
		return c.Leaf.Name()
	}
	return ""
}

// Bus is one address-space segment.
type Bus struct {
	name string

	fallback    Responder
	fallbackBus *Bus

	claims *addr.Set[Claim]
	links  []*Bridge
	sealed bool
}

// NewBus returns an empty bus. A nil fallback makes every unclaimed access
// fault.
func NewBus(name string, fallback Responder) *Bus {
	if fallback == nil {
		fallback = NewErrorSink(name + ".unmapped")
	}
	return &Bus{
		name:     name,
		fallback: fallback,
		claims:   addr.NewSet[Claim](),
	}
}

// NewSubtractiveBus returns a bus whose unclaimed accesses are presented to
// parent, the way a subtractive-decode bridge behaves.
func NewSubtractiveBus(name string, parent *Bus) *Bus {
	b := NewBus(name, nil)
	b.fallbackBus = parent
	return b
}

func (b *Bus) Name() string { return b.name }

func (b *Bus) String() string { return b.name }

// Default returns the responder for unclaimed accesses, or nil when the bus
// falls back to another bus.
func (b *Bus) Default() Responder {
	if b.fallbackBus != nil {
		return nil
	}
	return b.fallback
}

// DefaultBus returns the bus unclaimed accesses are presented to, if any.
func (b *Bus) DefaultBus() *Bus { return b.fallbackBus }

// Attach claims every forward range of link on this bus. Either all ranges
// are claimed or none are.
func (b *Bus) Attach(link *Bridge) error {
	if link == nil {
		return fmt.Errorf("chipset: attach nil bridge to %s", b.name)
	}
	if link.upstream != b {
		return fmt.Errorf("chipset: bridge %s has upstream %s, not %s", link.name, link.upstream.name, b.name)
	}
	if b.sealed {
		return ErrSealed
	}
	if err := b.claims.AddAll(link.forward, Claim{Link: link}); err != nil {
		return fmt.Errorf("chipset: attach %s to %s: %w", link.name, b.name, err)
	}
	b.links = append(b.links, link)
	slog.Debug("attached bridge", "bus", b.name, "bridge", link.name, "downstream", link.downstream.name, "ranges", len(link.forward))
	return nil
}

// Claim attaches a leaf responder owning the given ranges. Either all ranges
// are claimed or none are.
func (b *Bus) Claim(leaf Responder, ranges ...addr.Range) error {
	if leaf == nil {
		return fmt.Errorf("chipset: claim nil responder on %s", b.name)
	}
	if len(ranges) == 0 {
		return fmt.Errorf("chipset: %s claims no ranges on %s", leaf.Name(), b.name)
	}
	if b.sealed {
		return ErrSealed
	}
	if err := b.claims.AddAll(ranges, Claim{Leaf: leaf}); err != nil {
		return fmt.Errorf("chipset: claim %s on %s: %w", leaf.Name(), b.name, err)
	}
	return nil
}

// Lookup returns the claim owning a.
func (b *Bus) Lookup(a uint64) (addr.Entry[Claim], bool) {
	return b.claims.Contains(a)
}

// Covering returns the claim whose range fully covers r.
func (b *Bus) Covering(r addr.Range) (addr.Entry[Claim], bool) {
	return b.claims.Covering(r)
}

// Claims returns the claimed ranges by ascending address.
func (b *Bus) Claims() []addr.Entry[Claim] {
	return b.claims.Entries()
}

// Links returns the bridges attached to the bus in attach order.
func (b *Bus) Links() []*Bridge {
	out := make([]*Bridge, len(b.links))
	copy(out, b.links)
	return out
}

// Seal forbids further claims on the bus.
func (b *Bus) Seal() { b.sealed = true }

// Sealed reports whether Seal has been called.
func (b *Bus) Sealed() bool { return b.sealed }
