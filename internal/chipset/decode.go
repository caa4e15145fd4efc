package chipset

import (
	"fmt"
	"strings"
)

// UnmappedError is returned when an access reaches a faulting sink.
type UnmappedError struct {
	Addr uint64
	Bus  string
	Sink string
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("chipset: unmapped address %#x on %s (%s)", e.Addr, e.Bus, e.Sink)
}

// Hop is one step of a decode: the bus the address was presented to and the
// bridge it left through, if any.
type Hop struct {
	Bus    *Bus
	Bridge *Bridge
}

// Route is the outcome of decoding one address.
type Route struct {
	Addr   uint64
	Hops   []Hop
	Target Responder
}

func (r Route) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%#x:", r.Addr)
	for _, h := range r.Hops {
		sb.WriteString(" ")
		sb.WriteString(h.Bus.name)
		if h.Bridge != nil {
			sb.WriteString(" -[")
			sb.WriteString(h.Bridge.name)
			sb.WriteString("]->")
		}
	}
	sb.WriteString(" => ")
	if r.Target != nil {
		sb.WriteString(r.Target.Name())
	}
	return sb.String()
}

// Decode presents a to bus and follows claims until a leaf or a default
// responder accepts it. Reaching a faulting sink yields *UnmappedError along
// with the partial route.
func Decode(bus *Bus, a uint64) (Route, error) {
	route := Route{Addr: a}
	visited := make(map[*Bus]bool)
	for cur := bus; cur != nil; {
		if visited[cur] {
			return route, fmt.Errorf("chipset: decode of %#x loops back to %s", a, cur.name)
		}
		visited[cur] = true

		entry, ok := cur.Lookup(a)
		switch {
		case ok && entry.Value.Link != nil:
			route.Hops = append(route.Hops, Hop{Bus: cur, Bridge: entry.Value.Link})
			cur = entry.Value.Link.downstream
		case ok:
			route.Hops = append(route.Hops, Hop{Bus: cur})
			route.Target = entry.Value.Leaf
			return route, nil
		case cur.fallbackBus != nil:
			route.Hops = append(route.Hops, Hop{Bus: cur})
			cur = cur.fallbackBus
		default:
			route.Hops = append(route.Hops, Hop{Bus: cur})
			route.Target = cur.fallback
			if sink, isSink := cur.fallback.(*Sink); isSink && sink.Faults() {
				return route, &UnmappedError{Addr: a, Bus: cur.name, Sink: sink.name}
			}
			return route, nil
		}
	}
	return route, fmt.Errorf("chipset: decode of %#x fell off the topology", a)
}

// Walk visits bus and every bus reachable from it through attached bridges
// and subtractive fallbacks, each exactly once, parents before children.
func Walk(bus *Bus, fn func(*Bus) error) error {
	visited := make(map[*Bus]bool)
	queue := []*Bus{bus}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == nil || visited[cur] {
			continue
		}
		visited[cur] = true
		if err := fn(cur); err != nil {
			return err
		}
		for _, l := range cur.links {
			queue = append(queue, l.downstream)
		}
		if cur.fallbackBus != nil {
			queue = append(queue, cur.fallbackBus)
		}
	}
	return nil
}
