// Package digitiser defines the core frame identity types shared by the
// aggregator and writer stages: the digitiser source tag and the logical
// frame metadata that correlates contributions across digitisers.
package digitiser

import "time"

// ID identifies the hardware source that produced a trace or event
// contribution. The wire format carries this as a single byte.
type ID uint8

// Metadata is the identity of a logical frame. Two values denote the same
// frame when every field other than VetoFlags matches; VetoFlags is
// combined (bitwise-or) across contributing digitisers by the frame cache.
type Metadata struct {
	Timestamp       time.Time
	PeriodNumber    uint32
	FrameNumber     uint32
	ProtonsPerPulse uint32
	Running         bool
	VetoFlags       uint16
}

// SameFrame reports whether m and other identify the same logical frame,
// ignoring VetoFlags.
func (m Metadata) SameFrame(other Metadata) bool {
	return m.Timestamp.Equal(other.Timestamp) &&
		m.PeriodNumber == other.PeriodNumber &&
		m.FrameNumber == other.FrameNumber &&
		m.ProtonsPerPulse == other.ProtonsPerPulse &&
		m.Running == other.Running
}

// MergeVetoFlags returns the bitwise-or of m's and other's VetoFlags,
// applied when a second digitiser contributes to an already-known frame.
func (m Metadata) MergeVetoFlags(other Metadata) uint16 {
	return m.VetoFlags | other.VetoFlags
}

// ExpectedSet is the set of digitiser ids a frame cache instance expects a
// contribution from before a frame is considered complete.
type ExpectedSet map[ID]struct{}

// NewExpectedSet builds an ExpectedSet from a list of ids.
func NewExpectedSet(ids ...ID) ExpectedSet {
	s := make(ExpectedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Satisfied reports whether contributors is a superset of the expected set.
func (e ExpectedSet) Satisfied(contributors map[ID]struct{}) bool {
	for id := range e {
		if _, ok := contributors[id]; !ok {
			return false
		}
	}
	return true
}
