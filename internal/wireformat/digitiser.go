package wireformat

import (
	"fmt"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
)

// DigitiserEventMessage is one digitiser's event-list contribution to a
// frame, the dev2-tagged payload on the digitiser_event topic.
type DigitiserEventMessage struct {
	ID       digitiser.ID
	Metadata digitiser.Metadata
	Events   eventdata.EventContribution
}

// EncodeDigitiserEvent serialises m as a dev2 payload.
func EncodeDigitiserEvent(m DigitiserEventMessage) []byte {
	b := newBuilder(IdentDigitiserEvent)
	b.putU8(uint8(m.ID))
	b.putMetadata(m.Metadata)
	n := len(m.Events.Time)
	b.putU32(uint32(n))
	for i := 0; i < n; i++ {
		b.putU32(m.Events.Time[i])
	}
	for i := 0; i < n; i++ {
		b.putU16(m.Events.Voltage[i])
	}
	for i := 0; i < n; i++ {
		b.putU32(m.Events.Channel[i])
	}
	return b.bytes()
}

// DecodeDigitiserEvent parses a dev2 payload (the 4-byte identifier must
// already have been validated by the dispatch layer and is re-skipped here
// since Parse receives the full record value per spec §4.4).
func DecodeDigitiserEvent(payload []byte) (DigitiserEventMessage, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return DigitiserEventMessage{}, err
	}
	id, err := c.u8()
	if err != nil {
		return DigitiserEventMessage{}, err
	}
	meta, err := c.metadata()
	if err != nil {
		return DigitiserEventMessage{}, err
	}
	n, err := c.u32()
	if err != nil {
		return DigitiserEventMessage{}, err
	}
	times := make([]uint32, n)
	for i := range times {
		if times[i], err = c.u32(); err != nil {
			return DigitiserEventMessage{}, err
		}
	}
	voltages := make([]uint16, n)
	for i := range voltages {
		if voltages[i], err = c.u16(); err != nil {
			return DigitiserEventMessage{}, err
		}
	}
	channels := make([]uint32, n)
	for i := range channels {
		if channels[i], err = c.u32(); err != nil {
			return DigitiserEventMessage{}, err
		}
	}
	return DigitiserEventMessage{
		ID:       digitiser.ID(id),
		Metadata: meta,
		Events:   eventdata.EventContribution{Time: times, Voltage: voltages, Channel: channels},
	}, nil
}

// DigitiserTraceMessage is one digitiser's analog-trace contribution, the
// dat2-tagged payload on the digitiser_event topic (spec SPEC_FULL.md §D.5).
type DigitiserTraceMessage struct {
	ID       digitiser.ID
	Metadata digitiser.Metadata
	Trace    eventdata.TraceContribution
}

// EncodeDigitiserTrace serialises m as a dat2 payload.
func EncodeDigitiserTrace(m DigitiserTraceMessage) []byte {
	b := newBuilder(IdentDigitiserTrace)
	b.putU8(uint8(m.ID))
	b.putMetadata(m.Metadata)
	b.putU32(m.Trace.Channel)
	b.putU32(uint32(len(m.Trace.Samples)))
	for _, s := range m.Trace.Samples {
		b.putU16(uint16(s))
	}
	return b.bytes()
}

// DecodeDigitiserTrace parses a dat2 payload.
func DecodeDigitiserTrace(payload []byte) (DigitiserTraceMessage, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return DigitiserTraceMessage{}, err
	}
	id, err := c.u8()
	if err != nil {
		return DigitiserTraceMessage{}, err
	}
	meta, err := c.metadata()
	if err != nil {
		return DigitiserTraceMessage{}, err
	}
	channel, err := c.u32()
	if err != nil {
		return DigitiserTraceMessage{}, err
	}
	n, err := c.u32()
	if err != nil {
		return DigitiserTraceMessage{}, err
	}
	samples := make([]int16, n)
	for i := range samples {
		v, err := c.u16()
		if err != nil {
			return DigitiserTraceMessage{}, err
		}
		samples[i] = int16(v)
	}
	return DigitiserTraceMessage{
		ID:       digitiser.ID(id),
		Metadata: meta,
		Trace:    eventdata.TraceContribution{Channel: channel, Samples: samples},
	}, nil
}

// FrameEventMessage is the aggregator's output: one complete-or-expired
// aggregated frame, the aev2-tagged payload on the frame_event topic.
type FrameEventMessage struct {
	Metadata     digitiser.Metadata
	DigitiserIDs []digitiser.ID
	Events       eventdata.EventList
	Complete     bool
}

// EncodeFrameEvent serialises m as an aev2 payload.
func EncodeFrameEvent(m FrameEventMessage) []byte {
	b := newBuilder(IdentFrameEvent)
	b.putMetadata(m.Metadata)
	complete := uint8(0)
	if m.Complete {
		complete = 1
	}
	b.putU8(complete)
	b.putU32(uint32(len(m.DigitiserIDs)))
	for _, id := range m.DigitiserIDs {
		b.putU8(uint8(id))
	}
	n := len(m.Events.Time)
	b.putU32(uint32(n))
	for i := 0; i < n; i++ {
		b.putU32(m.Events.Time[i])
	}
	for i := 0; i < n; i++ {
		b.putU16(m.Events.Voltage[i])
	}
	for i := 0; i < n; i++ {
		b.putU32(m.Events.Channel[i])
	}
	for i := 0; i < n; i++ {
		b.putU8(uint8(m.Events.Source[i]))
	}
	return b.bytes()
}

// DecodeFrameEvent parses an aev2 payload.
func DecodeFrameEvent(payload []byte) (FrameEventMessage, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return FrameEventMessage{}, err
	}
	meta, err := c.metadata()
	if err != nil {
		return FrameEventMessage{}, err
	}
	completeByte, err := c.u8()
	if err != nil {
		return FrameEventMessage{}, err
	}
	nIDs, err := c.u32()
	if err != nil {
		return FrameEventMessage{}, err
	}
	ids := make([]digitiser.ID, nIDs)
	for i := range ids {
		v, err := c.u8()
		if err != nil {
			return FrameEventMessage{}, err
		}
		ids[i] = digitiser.ID(v)
	}
	n, err := c.u32()
	if err != nil {
		return FrameEventMessage{}, err
	}
	times := make([]uint32, n)
	for i := range times {
		if times[i], err = c.u32(); err != nil {
			return FrameEventMessage{}, err
		}
	}
	voltages := make([]uint16, n)
	for i := range voltages {
		if voltages[i], err = c.u16(); err != nil {
			return FrameEventMessage{}, err
		}
	}
	channels := make([]uint32, n)
	for i := range channels {
		if channels[i], err = c.u32(); err != nil {
			return FrameEventMessage{}, err
		}
	}
	sources := make([]digitiser.ID, n)
	for i := range sources {
		v, err := c.u8()
		if err != nil {
			return FrameEventMessage{}, err
		}
		sources[i] = digitiser.ID(v)
	}
	if nIDs == 0 && n > 0 {
		return FrameEventMessage{}, fmt.Errorf("wireformat: frame event has events but no digitiser ids")
	}
	return FrameEventMessage{
		Metadata:     meta,
		DigitiserIDs: ids,
		Events:       eventdata.EventList{Time: times, Voltage: voltages, Channel: channels, Source: sources},
		Complete:     completeByte != 0,
	}, nil
}
