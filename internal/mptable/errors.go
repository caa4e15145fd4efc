package mptable

import "fmt"

// DanglingReferenceError reports an entry that refers to an id no earlier
// entry declared.
type DanglingReferenceError struct {
	Kind  string
	ID    uint8
	Entry string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("mptable: %s refers to undeclared %s %d", e.Entry, e.Kind, e.ID)
}

// BootstrapCardinalityError reports a table without exactly one bootstrap
// processor.
type BootstrapCardinalityError struct {
	Count int
}

func (e *BootstrapCardinalityError) Error() string {
	return fmt.Sprintf("mptable: %d processors flagged bootstrap, want exactly 1", e.Count)
}
