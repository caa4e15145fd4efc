package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/tinyrange/pcplat/internal/chipset"
	"github.com/tinyrange/pcplat/internal/platform"
)

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	common := addCommonFlags(fs)
	from := fs.String("from", "membus", "Bus the addresses are presented to")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if fs.NArg() == 0 {
		return errors.New("decode: at least one address required")
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

	var start *chipset.Bus
	for _, b := range p.Topology.Buses() {
		if b.Name() == *from {
			start = b
		}
	}
	if start == nil {
		return fmt.Errorf("decode: no bus named %q", *from)
	}

	r := newRenderer(os.Stdout)
	var rows [][]string
	for _, arg := range fs.Args() {
		a, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return fmt.Errorf("decode: invalid address %q", arg)
		}
		route, err := chipset.Decode(start, a)
		var unmapped *chipset.UnmappedError
		switch {
		case errors.As(err, &unmapped):
			rows = append(rows, []string{fmt.Sprintf("%#x", a), route.String(), r.style(failStyle, "unmapped")})
		case err != nil:
			return err
		default:
			rows = append(rows, []string{fmt.Sprintf("%#x", a), route.String(), r.style(okStyle, route.Target.Name())})
		}
	}
	r.table([]string{"ADDR", "PATH", "TARGET"}, rows)
	return nil
}
