package platform

import (
	"fmt"

	"github.com/tinyrange/pcplat/internal/chipset"
)

// Report is a plain description of an assembled platform, suitable for
// serialising.
type Report struct {
	MemorySize uint64         `yaml:"memorySize"`
	CPUs       int            `yaml:"cpus"`
	Buses      []BusReport    `yaml:"buses"`
	Devices    []DeviceReport `yaml:"devices,omitempty"`
	MemoryMap  []string       `yaml:"memoryMap"`
	MPTable    MPTableReport  `yaml:"mptable"`
}

// BusReport lists one bus's claims.
type BusReport struct {
	Name    string        `yaml:"name"`
	Default string        `yaml:"default"`
	Claims  []ClaimReport `yaml:"claims"`
}

// ClaimReport is a claimed range and who owns it. Via is set when the range
// leads through a bridge.
type ClaimReport struct {
	Range string `yaml:"range"`
	Owner string `yaml:"owner"`
	Via   string `yaml:"via,omitempty"`
}

type DeviceReport struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Addr   string `yaml:"addr"`
	Bus    string `yaml:"bus"`
	Window string `yaml:"window"`
	Config string `yaml:"config"`
	Line   uint8  `yaml:"line"`
	Pin    string `yaml:"pin,omitempty"`
	Route  uint8  `yaml:"route,omitempty"`
}

type MPTableReport struct {
	Processors []string `yaml:"processors"`
	IOAPICs    []string `yaml:"ioapics"`
	Buses      []string `yaml:"buses"`
	Hierarchy  []string `yaml:"hierarchy"`
	Interrupts []string `yaml:"interrupts"`
}

// Report describes p.
func (p *Platform) Report() Report {
	t := p.Topology
	r := Report{
		MemorySize: t.MemorySize,
		CPUs:       t.CPUs,
	}

	for _, bus := range t.Buses() {
		br := BusReport{Name: bus.Name(), Default: defaultName(bus)}
		for _, c := range bus.Claims() {
			cr := ClaimReport{Range: c.Range.String(), Owner: c.Value.Name()}
			if c.Value.Link != nil {
				cr.Owner = c.Value.Link.Downstream().Name()
				cr.Via = c.Value.Link.Name()
			}
			br.Claims = append(br.Claims, cr)
		}
		r.Buses = append(r.Buses, br)
	}

	for _, d := range t.Devices {
		f := d.Descriptor.Common()
		dr := DeviceReport{
			Name:   f.Name,
			Kind:   d.Descriptor.Kind().String(),
			Addr:   f.Addr.String(),
			Bus:    d.Bus.Name(),
			Window: d.Window.String(),
			Config: d.Config.String(),
			Line:   f.InterruptLine,
			Route:  d.Route,
		}
		if d.Route != 0 {
			dr.Pin = f.InterruptPin.String()
		}
		r.Devices = append(r.Devices, dr)
	}

	for _, e := range p.MemoryMap {
		r.MemoryMap = append(r.MemoryMap, e.String())
	}

	mp := p.MPTable
	for _, c := range mp.Processors() {
		s := fmt.Sprintf("apic %d version %#x", c.LocalAPICID, c.LocalAPICVersion)
		if c.Bootstrap {
			s += " bootstrap"
		}
		r.MPTable.Processors = append(r.MPTable.Processors, s)
	}
	for _, a := range mp.IOAPICs() {
		r.MPTable.IOAPICs = append(r.MPTable.IOAPICs, fmt.Sprintf("id %d version %#x at %#x", a.ID, a.Version, a.Address))
	}
	for _, b := range mp.Buses() {
		r.MPTable.Buses = append(r.MPTable.Buses, fmt.Sprintf("%d %s", b.ID, b.Kind))
	}
	for _, h := range mp.Hierarchy() {
		s := fmt.Sprintf("%d under %d", h.BusID, h.ParentBus)
		if h.SubtractiveDecode {
			s += " subtractive"
		}
		r.MPTable.Hierarchy = append(r.MPTable.Hierarchy, s)
	}
	for _, i := range mp.Interrupts() {
		r.MPTable.Interrupts = append(r.MPTable.Interrupts, i.String())
	}
	return r
}

func defaultName(b *chipset.Bus) string {
	if next := b.DefaultBus(); next != nil {
		return "subtractive to " + next.Name()
	}
	return b.Default().Name()
}
