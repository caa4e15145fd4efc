package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/bradleyjkemp/memviz"

	"github.com/tinyrange/pcplat/internal/chipset"
	"github.com/tinyrange/pcplat/internal/config"
	"github.com/tinyrange/pcplat/internal/devices/pci"
	"github.com/tinyrange/pcplat/internal/disk"
	"github.com/tinyrange/pcplat/internal/e820"
	"github.com/tinyrange/pcplat/internal/mptable"
	"github.com/tinyrange/pcplat/internal/platform"
)

// defaultMPTableAddr places the configuration table just after a floating
// pointer at the start of the BIOS area.
const defaultMPTableAddr = 0xF0010

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	common := addCommonFlags(fs)
	out := fs.String("o", "", "Write the assembled platform as YAML to this file (- for stdout)")
	mpOut := fs.String("mptable", "", "Write the encoded MP floating pointer and table to this file")
	mpAddr := fs.Uint64("mptable-addr", defaultMPTableAddr, "Guest physical address of the MP configuration table")
	e820Out := fs.String("e820", "", "Write the encoded e820 map to this file")
	memvizOut := fs.String("memviz", "", "Write a Graphviz dump of the bus graph to this file")
	openDisks := fs.Bool("open-disks", false, "Open IDE disk images copy-on-write and report their sizes")
	save := fs.String("save", "", "Write the effective platform description, overrides applied, to this file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	desc, err := common.load()
	if err != nil {
		return err
	}
	cfg, err := desc.Platform()
	if err != nil {
		return err
	}
	p, err := platform.Assemble(cfg)
	if err != nil {
		return err
	}

	r := newRenderer(os.Stdout)
	printPlatform(r, desc.Name, p)

	if *openDisks {
		if err := printDisks(r, cfg); err != nil {
			return err
		}
	}

	if *save != "" {
		if err := config.Write(*save, desc); err != nil {
			return err
		}
	}
	if *out != "" {
		if err := writeReport(*out, p); err != nil {
			return err
		}
	}
	if *mpOut != "" {
		if *mpAddr < 16 || *mpAddr > 0xFFFF_FFFF {
			return fmt.Errorf("-mptable-addr %#x out of range", *mpAddr)
		}
		pointer, table, err := mptable.Encode(p.MPTable, uint32(*mpAddr))
		if err != nil {
			return err
		}
		if err := os.WriteFile(*mpOut, append(pointer, table...), 0o644); err != nil {
			return fmt.Errorf("write MP table: %w", err)
		}
	}
	if *e820Out != "" {
		raw, err := e820.Encode(p.MemoryMap)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*e820Out, raw, 0o644); err != nil {
			return fmt.Errorf("write e820 map: %w", err)
		}
	}
	if *memvizOut != "" {
		if err := writeMemviz(*memvizOut, p.Topology); err != nil {
			return err
		}
	}
	return nil
}

func printPlatform(r *renderer, name string, p *platform.Platform) {
	topo := p.Topology
	r.line("%s: %s RAM, %d CPU(s), %d device(s) %s",
		name, config.Size(topo.MemorySize), topo.CPUs, len(topo.Devices), r.style(okStyle, "consistent"))

	for _, bus := range topo.Buses() {
		r.heading("bus %s", bus.Name())
		var rows [][]string
		for _, c := range bus.Claims() {
			owner := c.Value.Name()
			if c.Value.Link != nil {
				owner = fmt.Sprintf("%s -> %s", c.Value.Link.Name(), c.Value.Link.Downstream().Name())
			}
			rows = append(rows, []string{c.Range.String(), owner})
		}
		if def := bus.Default(); def != nil {
			rows = append(rows, []string{r.style(dimStyle, "(unclaimed)"), def.Name()})
		} else if next := bus.DefaultBus(); next != nil {
			rows = append(rows, []string{r.style(dimStyle, "(unclaimed)"), "subtractive to " + next.Name()})
		}
		r.table([]string{"RANGE", "OWNER"}, rows)
	}

	r.heading("PCI devices")
	var devs [][]string
	for _, d := range topo.Devices {
		f := d.Descriptor.Common()
		irq := "-"
		if d.Route != 0 {
			irq = fmt.Sprintf("%s -> pin %d", f.InterruptPin, d.Route)
		}
		devs = append(devs, []string{f.Addr.String(), f.Name, d.Descriptor.Kind().String(), d.Window.String(), irq})
	}
	r.table([]string{"BDF", "NAME", "KIND", "WINDOW", "INTERRUPT"}, devs)

	r.heading("e820 map")
	var entries [][]string
	for _, e := range p.MemoryMap {
		entries = append(entries, []string{
			fmt.Sprintf("%#x", e.Addr),
			fmt.Sprintf("%#x", e.Size),
			e.Type.String(),
		})
	}
	r.table([]string{"ADDR", "SIZE", "TYPE"}, entries)

	r.heading("MP table")
	var mp [][]string
	for _, c := range p.MPTable.Processors() {
		flags := ""
		if c.Bootstrap {
			flags = "bootstrap"
		}
		mp = append(mp, []string{"processor", strconv.Itoa(int(c.LocalAPICID)), flags})
	}
	for _, a := range p.MPTable.IOAPICs() {
		mp = append(mp, []string{"ioapic", strconv.Itoa(int(a.ID)), fmt.Sprintf("%#x", a.Address)})
	}
	for _, b := range p.MPTable.Buses() {
		mp = append(mp, []string{"bus", strconv.Itoa(int(b.ID)), string(b.Kind)})
	}
	for _, h := range p.MPTable.Hierarchy() {
		kind := "positive"
		if h.SubtractiveDecode {
			kind = "subtractive"
		}
		mp = append(mp, []string{"hierarchy", strconv.Itoa(int(h.BusID)), fmt.Sprintf("%s below bus %d", kind, h.ParentBus)})
	}
	for _, i := range p.MPTable.Interrupts() {
		mp = append(mp, []string{"interrupt", i.Kind.String(), i.String()})
	}
	r.table([]string{"ENTRY", "ID", "DETAIL"}, mp)
}

func printDisks(r *renderer, cfg platform.Config) error {
	r.heading("disks")
	var rows [][]string
	for _, d := range cfg.Devices {
		ide, ok := d.(pci.IDE)
		if !ok {
			continue
		}
		for _, path := range ide.Disks {
			img, err := disk.OpenCow(path)
			if err != nil {
				rows = append(rows, []string{ide.Name, path, r.style(failStyle, err.Error())})
				continue
			}
			rows = append(rows, []string{ide.Name, path, config.Size(img.Size()).String()})
			if err := img.Close(); err != nil {
				return err
			}
		}
	}
	r.table([]string{"CONTROLLER", "IMAGE", "SIZE"}, rows)
	return nil
}

func writeReport(path string, p *platform.Platform) error {
	report := p.Report()
	if path == "-" {
		return config.Encode(os.Stdout, &report)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := config.Encode(f, &report); err != nil {
		return err
	}
	return f.Close()
}

// graphBus mirrors one bus for the memviz dump; bridges become pointers so
// the graph shows how buses link, cycles included.
type graphBus struct {
	Name    string
	Default string
	Claims  []*graphClaim
}

type graphClaim struct {
	Range  string
	Owner  string
	Bridge string
	Next   *graphBus
}

func busGraph(topo *platform.Topology) *graphBus {
	nodes := make(map[*chipset.Bus]*graphBus)
	var visit func(b *chipset.Bus) *graphBus
	visit = func(b *chipset.Bus) *graphBus {
		if n, ok := nodes[b]; ok {
			return n
		}
		n := &graphBus{Name: b.Name()}
		if def := b.Default(); def != nil {
			n.Default = def.Name()
		}
		nodes[b] = n
		for _, c := range b.Claims() {
			gc := &graphClaim{Range: c.Range.String(), Owner: c.Value.Name()}
			if c.Value.Link != nil {
				gc.Bridge = c.Value.Link.Name()
				gc.Next = visit(c.Value.Link.Downstream())
			}
			n.Claims = append(n.Claims, gc)
		}
		return n
	}
	return visit(topo.Root)
}

func writeMemviz(path string, topo *platform.Topology) error {
	if topo == nil {
		return errors.New("no topology to dump")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	memviz.Map(f, busGraph(topo))
	return f.Close()
}
