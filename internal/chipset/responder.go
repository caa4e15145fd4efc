package chipset

import "fmt"

// Responder terminates a decode: memory controllers, device windows,
// interrupt controllers and the default sinks below.
type Responder interface {
	Name() string
}

// SinkKind describes how a default responder treats accesses nobody claims.
type SinkKind int

const (
	// SinkFault turns the access into an unmapped-address fault.
	SinkFault SinkKind = iota
	// SinkFloating returns all ones on reads and drops writes, like an
	// undriven ISA bus.
	SinkFloating
	// SinkMasterAbort completes a PCI configuration access with all ones.
	SinkMasterAbort
)

func (k SinkKind) String() string {
	switch k {
	case SinkFault:
		return "fault"
	case SinkFloating:
		return "floating"
	case SinkMasterAbort:
		return "master-abort"
	default:
		return fmt.Sprintf("SinkKind(%d)", int(k))
	}
}

// Sink is a default responder that owns no ranges of its own.
type Sink struct {
	name string
	kind SinkKind
}

// NewErrorSink returns a sink that faults every access delivered to it.
func NewErrorSink(name string) *Sink { return &Sink{name: name, kind: SinkFault} }

// NewFloatingSink returns a sink that reads as all ones.
func NewFloatingSink(name string) *Sink { return &Sink{name: name, kind: SinkFloating} }

// NewMasterAbortSink returns a sink for unclaimed PCI configuration accesses.
func NewMasterAbortSink(name string) *Sink { return &Sink{name: name, kind: SinkMasterAbort} }

func (s *Sink) Name() string { return s.name }

// Kind returns the sink behaviour.
func (s *Sink) Kind() SinkKind { return s.kind }

// Faults reports whether accesses delivered to the sink are errors.
func (s *Sink) Faults() bool { return s.kind == SinkFault }

func (s *Sink) String() string { return s.name + " (" + s.kind.String() + ")" }
