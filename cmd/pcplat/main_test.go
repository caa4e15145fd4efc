package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/pcplat/internal/config"
	"github.com/tinyrange/pcplat/internal/platform"
)

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	r := &renderer{w: &buf}
	r.table([]string{"A", "LONG HEADER"}, [][]string{
		{"wide cell", "x"},
		{"y", "z"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	col := strings.Index(lines[0], "LONG HEADER")
	for _, l := range lines[1:] {
		if got := strings.LastIndex(l, " ") + 1; got != col {
			t.Fatalf("second column of %q starts at %d, want %d", l, got, col)
		}
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("plain renderer emitted escape sequences")
	}
}

func TestBusGraphFollowsBridges(t *testing.T) {
	cfg, err := config.Default().Platform()
	if err != nil {
		t.Fatalf("platform config: %v", err)
	}
	p, err := platform.Assemble(cfg)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	root := busGraph(p.Topology)
	if root.Name != "membus" || root.Default != "membus.unmapped" {
		t.Fatalf("root node = %+v", root)
	}
	var io *graphBus
	for _, c := range root.Claims {
		if c.Bridge == "bridge" {
			io = c.Next
		}
	}
	if io == nil || io.Name != "iobus" {
		t.Fatalf("root bridge does not lead to iobus")
	}
	var back bool
	for _, c := range io.Claims {
		if c.Bridge == "apicbridge" && c.Next == root {
			back = true
		}
	}
	if !back {
		t.Fatalf("APIC bridge does not lead back to the root node")
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run([]string{"frobnicate"}); err == nil {
		t.Fatalf("unknown command accepted")
	}
	if err := run(nil); err == nil {
		t.Fatalf("missing command accepted")
	}
}

func TestBuildSavesEffectiveDescription(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.Filename)
	if err := run([]string{"build", "-memory", "1GiB", "-cpus", "2", "-save", path}); err != nil {
		t.Fatalf("build: %v", err)
	}
	desc, err := config.Load(path)
	if err != nil {
		t.Fatalf("load saved description: %v", err)
	}
	if desc.Memory != 1<<30 || desc.CPUs != 2 {
		t.Fatalf("saved memory %s, cpus %d", desc.Memory, desc.CPUs)
	}
}
