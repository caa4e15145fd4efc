package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/pcplat/internal/config"
	"github.com/tinyrange/pcplat/internal/platform"
)

type sweepFailure struct {
	size config.Size
	err  error
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	common := addCommonFlags(fs)
	fromFlag := fs.String("from", "1MiB", "Smallest memory size")
	toFlag := fs.String("to", "4GiB", "Largest memory size")
	stepFlag := fs.String("step", "64MiB", "Memory size increment")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	from, err := config.ParseSize(*fromFlag)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to, err := config.ParseSize(*toFlag)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	step, err := config.ParseSize(*stepFlag)
	if err != nil {
		return fmt.Errorf("-step: %w", err)
	}
	if step == 0 || from > to {
		return fmt.Errorf("empty sweep from %s to %s step %s", from, to, step)
	}

	desc, err := common.load()
	if err != nil {
		return err
	}
	cfg, err := desc.Platform()
	if err != nil {
		return err
	}

	count := int64((to-from)/step) + 1
	bar := progressbar.NewOptions64(count,
		progressbar.OptionSetDescription("assembling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(term.IsTerminal(int(os.Stderr.Fd()))),
	)

	var failures []sweepFailure
	for i := int64(0); i < count; i++ {
		size := from + config.Size(i)*step
		cfg.MemorySize = uint64(size)
		if _, err := platform.Assemble(cfg); err != nil {
			failures = append(failures, sweepFailure{size: size, err: err})
		}
		bar.Add(1)
	}
	bar.Finish()

	r := newRenderer(os.Stdout)
	if len(failures) == 0 {
		r.line("%d memory sizes from %s to %s: %s", count, from, to, r.style(okStyle, "all consistent"))
		return nil
	}

	r.heading("failures")
	var rows [][]string
	for _, f := range failures {
		rows = append(rows, []string{f.size.String(), r.style(failStyle, f.err.Error())})
	}
	r.table([]string{"MEMORY", "ERROR"}, rows)
	return fmt.Errorf("%d of %d memory sizes failed", len(failures), count)
}
