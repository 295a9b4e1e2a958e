// Package eventdata implements the Accumulate[D] capability (§9 design
// note) for the two payload shapes the original pipeline correlates per
// frame: event lists (time/voltage/channel vectors) and digitiser traces
// (per-channel sample placement).
package eventdata

import "github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"

// Accumulate is the capability a frame payload type must implement to be
// stored in the frame cache. A single contribution from one digitiser is
// merged into the accumulated payload each time it is pushed; repeated
// contributions from the same digitiser are the caller's responsibility to
// avoid (the frame cache does not itself deduplicate by digitiser id beyond
// recording it in the contributor set).
type Accumulate interface {
	Accumulate(id digitiser.ID, contribution any)
}

// EventList accumulates per-digitiser event contributions by concatenating
// their time/voltage/channel vectors, each tagged with the contributing
// digitiser id.
type EventList struct {
	Time    []uint32
	Voltage []uint16
	Channel []uint32
	Source  []digitiser.ID // parallel to Time/Voltage/Channel
}

// EventContribution is one digitiser's partial event list for a frame.
type EventContribution struct {
	Time    []uint32
	Voltage []uint16
	Channel []uint32
}

// NewEventList returns an empty accumulator ready for the first contribution.
func NewEventList() *EventList {
	return &EventList{}
}

// Accumulate appends contribution's vectors to the accumulated event list,
// tagging each appended element with id.
func (e *EventList) Accumulate(id digitiser.ID, contribution any) {
	c, ok := contribution.(EventContribution)
	if !ok {
		return
	}
	n := len(c.Time)
	e.Time = append(e.Time, c.Time...)
	e.Voltage = append(e.Voltage, c.Voltage...)
	e.Channel = append(e.Channel, c.Channel...)
	for i := 0; i < n; i++ {
		e.Source = append(e.Source, id)
	}
}

// Len returns the total number of events accumulated so far.
func (e *EventList) Len() int {
	return len(e.Time)
}

// TraceData accumulates per-channel analog samples placed by digitiser and
// channel number, matching the original pipeline's trace aggregation
// (original_source/trace-archiver-hdf5). Traces are not decomposed into
// events here; pulse detection/DSP is explicitly out of scope (spec.md §1).
type TraceData struct {
	Channels map[uint32][]int16 // channel number -> samples
	Sources  map[uint32]digitiser.ID
}

// TraceContribution is one digitiser's channel samples for a frame.
type TraceContribution struct {
	Channel uint32
	Samples []int16
}

// NewTraceData returns an empty trace accumulator.
func NewTraceData() *TraceData {
	return &TraceData{
		Channels: make(map[uint32][]int16),
		Sources:  make(map[uint32]digitiser.ID),
	}
}

// Accumulate places contribution's samples under its channel number,
// overwriting any prior placement from the same channel (later delivery of
// the same channel/digitiser pair wins, matching idempotent re-delivery
// semantics for the frame cache's push operation).
func (t *TraceData) Accumulate(id digitiser.ID, contribution any) {
	c, ok := contribution.(TraceContribution)
	if !ok {
		return
	}
	t.Channels[c.Channel] = c.Samples
	t.Sources[c.Channel] = id
}

// Channel returns the samples for a channel, or nil if the channel was
// never contributed (§9 open question: return the zero value rather than
// panicking on a missing channel).
func (t *TraceData) Channel(channel uint32) []int16 {
	return t.Channels[channel]
}
