// Package spanonce implements the SpanOnce one-shot parent span handle
// (§9 design note "Cyclic ownership"): a child operation links itself to
// its parent frame or run's span exactly once, without the parent holding
// a strong back-reference to any one child.
package spanonce

import (
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.opentelemetry.io/otel/trace"
)

// State is SpanOnce's current position in its one-shot lifecycle.
type State int

const (
	Unset State = iota
	Set
	Taken
)

func (s State) String() string {
	switch s {
	case Unset:
		return "unset"
	case Set:
		return "set"
	case Taken:
		return "taken"
	default:
		return "unknown"
	}
}

// Handle is the linkage payload a parent span records: a span context plus
// a correlation id used when no real tracer is configured (spec's telemetry
// exporters are out of scope; only the span-context value type is wired).
type Handle struct {
	ID          uuid.UUID
	SpanContext trace.SpanContext
}

// SpanOnce is a once-settable parent span handle, initialised Unset,
// movable to Set(handle) exactly once by Init, and to Taken exactly once by
// Take. Further calls to Init or Take after the terminal state are no-ops
// that report the transition did not occur.
type SpanOnce struct {
	mu    sync.Mutex
	state State
	h     Handle
}

// New returns an Unset SpanOnce.
func New() *SpanOnce { return &SpanOnce{} }

// Init transitions Unset->Set with the given span context, generating a
// fresh correlation id for the handle. Returns false if the handle was
// already Set or Taken.
func (s *SpanOnce) Init(sc trace.SpanContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unset {
		return false
	}
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.UUID{}
	}
	s.h = Handle{ID: id, SpanContext: sc}
	s.state = Set
	return true
}

// Link returns the current handle and state without consuming it, for a
// child that wants to read the parent's span context repeatedly.
func (s *SpanOnce) Link() (Handle, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h, s.state
}

// Take transitions Set->Taken, returning the handle and true. Returns
// false if the handle was Unset or already Taken.
func (s *SpanOnce) Take() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Set {
		return Handle{}, false
	}
	s.state = Taken
	return s.h, true
}

// State reports the handle's current lifecycle position.
func (s *SpanOnce) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
