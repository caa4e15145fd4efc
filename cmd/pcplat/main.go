// pcplat assembles simulated x86 platform configurations and prints the
// bus topology and firmware tables derived from them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/pcplat/internal/config"
)

// version is set at link time for release builds.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pcplat: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags] [args...]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Assemble a simulated x86 platform and check its firmware tables.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  build             assemble the platform and print its topology and tables\n")
	fmt.Fprintf(os.Stderr, "  sweep             assemble and check the platform over a range of memory sizes\n")
	fmt.Fprintf(os.Stderr, "  decode ADDR...    print the decode path of physical addresses\n")
	fmt.Fprintf(os.Stderr, "  version           print the tool version\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  %s build -memory 1GiB\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s build -config %s -o platform.yaml -mptable mp.bin\n", os.Args[0], config.Filename)
	fmt.Fprintf(os.Stderr, "  %s sweep -from 1MiB -to 8GiB -step 256MiB\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s decode -from iobus 0xa000000000000000\n", os.Args[0])
}

func run(args []string) error {
	if len(args) < 1 {
		usage()
		return errors.New("command required")
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "decode":
		return runDecode(args[1:])
	case "version":
		fmt.Println(version)
		return nil
	case "help", "-h", "-help", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// commonFlags are accepted by every command that assembles a platform.
type commonFlags struct {
	config *string
	memory *string
	cpus   *int
	debug  *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config: fs.String("config", "", "Platform description (default: built-in reference platform)"),
		memory: fs.String("memory", "", "Override the memory size (e.g. 512MiB, 3GiB)"),
		cpus:   fs.Int("cpus", 0, "Override the number of CPUs"),
		debug:  fs.Bool("debug", false, "Enable debug logging"),
	}
}

// load sets up logging and returns the description with flag overrides
// applied.
func (c *commonFlags) load() (config.Description, error) {
	level := slog.LevelInfo
	if *c.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	desc := config.Default()
	if *c.config != "" {
		var err error
		desc, err = config.Load(*c.config)
		if err != nil {
			return config.Description{}, err
		}
	}
	if *c.memory != "" {
		size, err := config.ParseSize(*c.memory)
		if err != nil {
			return config.Description{}, fmt.Errorf("-memory: %w", err)
		}
		desc.Memory = size
	}
	if *c.cpus > 0 {
		desc.CPUs = *c.cpus
	}
	if err := desc.CheckRequires(version); err != nil {
		return config.Description{}, err
	}
	return desc, nil
}
