package runengine

import (
	"time"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

// RunParameters is the identity and window of one recording session (spec
// §3). PeriodsSeen is mirrored into the run file's periods/type dataset in
// first-observed order (SPEC_FULL.md D.3).
type RunParameters struct {
	CollectFrom    time.Time
	RunName        string
	InstrumentName string
	RunNumber      uint32
	NumPeriods     uint32
	CollectUntil   time.Time // zero value means unbounded (+inf)
	LastModified   time.Time
	PeriodsSeen    []uint32
}

// HasStop reports whether the run has an active run-stop boundary.
func (p *RunParameters) HasStop() bool {
	return !p.CollectUntil.IsZero()
}

// Contains reports whether t falls within [CollectFrom, CollectUntil), or
// [CollectFrom, +inf) when the run has no stop yet.
func (p *RunParameters) Contains(t time.Time) bool {
	if t.Before(p.CollectFrom) {
		return false
	}
	if !p.HasStop() {
		return true
	}
	return t.Before(p.CollectUntil)
}

// SeenPeriod records a period number, returning true if it is new to the run.
func (p *RunParameters) SeenPeriod(period uint32) bool {
	for _, seen := range p.PeriodsSeen {
		if seen == period {
			return false
		}
	}
	p.PeriodsSeen = append(p.PeriodsSeen, period)
	return true
}

// RunStart is the control payload that opens a run (spec §4.2 start).
type RunStart struct {
	RunName        string
	InstrumentName string
	RunNumber      uint32
	NumPeriods     uint32
	StartTime      time.Time
}

// RunStop is the control payload that closes a run (spec §4.2 stop).
type RunStop struct {
	RunName  string
	StopTime time.Time
}

// FrameEvent is the dispatch input for a digitiser-aggregated event frame
// (spec §4.2 event_list). DigitiserIDs is the authoritative set of
// contributing digitisers (sorted ascending by internal/framecache), used
// by appendIncompleteFrame, which must not fall back to the per-event source
// tags: a digitiser can be a genuine contributor with zero events. The
// frame's veto_flag/running fields are written from Metadata.
type FrameEvent struct {
	Metadata     digitiser.Metadata
	DigitiserIDs []digitiser.ID
	Events       eventdata.EventList
	Complete     bool // false if the aggregator emitted it on expiry rather than completion
}

// Log is the dispatch input for an f144-style typed scalar log (spec §4.2
// log): one (time, value) pair per message.
type Log struct {
	Name      string
	Type      writer.DataType
	Timestamp time.Time
	Value     any // concrete Go value matching Type
}

// SampleEnv is the dispatch input for an se00-style sample-environment log
// (spec §4.2 sample_env). Timestamps may be absent, in which case they are
// synthesised from PacketTimestamp + k*TimeDelta.
type SampleEnv struct {
	Name            string
	Type            writer.DataType
	Values          any // slice of the concrete Go type matching Type
	Timestamps      []time.Time
	PacketTimestamp time.Time
	TimeDelta       time.Duration
}

// Alarm is the dispatch input for an al00-style alarm log (spec §4.2 alarm).
type Alarm struct {
	Name      string
	Severity  string
	Message   string
	Timestamp time.Time
}
