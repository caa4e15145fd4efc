package chipset

import (
	"fmt"

	"github.com/tinyrange/pcplat/internal/addr"
)

// BridgeKind distinguishes bridges that make a decode decision from
// pass-through range owners such as the I/O cache.
type BridgeKind int

const (
	BridgeDecode BridgeKind = iota
	BridgePassThrough
)

// Bridge forwards an explicit list of ranges from its upstream bus to its
// downstream bus. Addresses outside the list are never forwarded.
type Bridge struct {
	name       string
	kind       BridgeKind
	upstream   *Bus
	downstream *Bus
	forward    []addr.Range
}

// NewBridge validates the forward ranges and returns the bridge. The bridge
// still has to be attached to its upstream bus.
func NewBridge(name string, upstream, downstream *Bus, forward ...addr.Range) (*Bridge, error) {
	return newBridge(name, BridgeDecode, upstream, downstream, forward)
}

// NewPassThrough returns a bridge that owns ranges on behalf of a component
// interposed between two buses.
func NewPassThrough(name string, upstream, downstream *Bus, forward ...addr.Range) (*Bridge, error) {
	return newBridge(name, BridgePassThrough, upstream, downstream, forward)
}

func newBridge(name string, kind BridgeKind, upstream, downstream *Bus, forward []addr.Range) (*Bridge, error) {
	if upstream == nil || downstream == nil {
		return nil, fmt.Errorf("chipset: bridge %s needs both buses", name)
	}
	if upstream == downstream {
		return nil, fmt.Errorf("chipset: bridge %s loops %s onto itself", name, upstream.name)
	}
	if len(forward) == 0 {
		return nil, fmt.Errorf("chipset: bridge %s forwards nothing", name)
	}
	seen := addr.NewSet[string]()
	for _, r := range forward {
		if err := seen.Add(r, name); err != nil {
			return nil, fmt.Errorf("chipset: bridge %s: %w", name, err)
		}
	}
	out := make([]addr.Range, len(forward))
	copy(out, forward)
	return &Bridge{
		name:       name,
		kind:       kind,
		upstream:   upstream,
		downstream: downstream,
		forward:    out,
	}, nil
}

func (l *Bridge) Name() string { return l.name }

func (l *Bridge) String() string { return l.name }

func (l *Bridge) Kind() BridgeKind { return l.kind }

func (l *Bridge) Upstream() *Bus { return l.upstream }

func (l *Bridge) Downstream() *Bus { return l.downstream }

// Forward returns the forwarded ranges in declaration order.
func (l *Bridge) Forward() []addr.Range {
	out := make([]addr.Range, len(l.forward))
	copy(out, l.forward)
	return out
}

// Forwards reports whether r is exactly one of the forwarded ranges.
func (l *Bridge) Forwards(r addr.Range) bool {
	for _, f := range l.forward {
		if f == r {
			return true
		}
	}
	return false
}
