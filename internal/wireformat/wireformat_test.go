package wireformat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
	"github.com/supermusr-data-pipeline/pulse-core/internal/runengine"
	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

func sampleMetadata() digitiser.Metadata {
	return digitiser.Metadata{
		Timestamp:       time.Unix(1_700_000_000, 0).UTC(),
		PeriodNumber:    3,
		FrameNumber:     42,
		ProtonsPerPulse: 100,
		Running:         true,
		VetoFlags:       0x0F,
	}
}

func TestDigitiserEventRoundTrip(t *testing.T) {
	in := DigitiserEventMessage{
		ID:       digitiser.ID(2),
		Metadata: sampleMetadata(),
		Events: eventdata.EventContribution{
			Time:    []uint32{10, 20, 30},
			Voltage: []uint16{1, 2, 3},
			Channel: []uint32{0, 1, 0},
		},
	}
	out, err := DecodeDigitiserEvent(EncodeDigitiserEvent(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDigitiserEventRoundTripEmpty(t *testing.T) {
	in := DigitiserEventMessage{ID: digitiser.ID(1), Metadata: sampleMetadata()}
	out, err := DecodeDigitiserEvent(EncodeDigitiserEvent(in))
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Metadata, out.Metadata)
	assert.Equal(t, 0, len(out.Events.Time))
}

func TestDigitiserTraceRoundTrip(t *testing.T) {
	in := DigitiserTraceMessage{
		ID:       digitiser.ID(5),
		Metadata: sampleMetadata(),
		Trace:    eventdata.TraceContribution{Channel: 7, Samples: []int16{-200, 0, 200, 400}},
	}
	out, err := DecodeDigitiserTrace(EncodeDigitiserTrace(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameEventRoundTrip(t *testing.T) {
	in := FrameEventMessage{
		Metadata:     sampleMetadata(),
		DigitiserIDs: []digitiser.ID{1, 2},
		Events: eventdata.EventList{
			Time:    []uint32{10, 20},
			Voltage: []uint16{1, 2},
			Channel: []uint32{0, 1},
			Source:  []digitiser.ID{1, 2},
		},
		Complete: true,
	}
	out, err := DecodeFrameEvent(EncodeFrameEvent(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameEventRoundTripIncomplete(t *testing.T) {
	in := FrameEventMessage{
		Metadata:     sampleMetadata(),
		DigitiserIDs: []digitiser.ID{1},
		Complete:     false,
	}
	out, err := DecodeFrameEvent(EncodeFrameEvent(in))
	require.NoError(t, err)
	assert.False(t, out.Complete)
	assert.Equal(t, in.DigitiserIDs, out.DigitiserIDs)
}

func TestRunStartRoundTrip(t *testing.T) {
	in := runengine.RunStart{
		RunName:        "run0001",
		InstrumentName: "LOKI",
		RunNumber:      1,
		NumPeriods:     2,
		StartTime:      time.Unix(1_700_000_000, 0).UTC(),
	}
	out, err := DecodeRunStart(EncodeRunStart(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRunStopRoundTrip(t *testing.T) {
	in := runengine.RunStop{RunName: "run0001", StopTime: time.Unix(1_700_000_500, 0).UTC()}
	out, err := DecodeRunStop(EncodeRunStop(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLogRoundTripScalarTypes(t *testing.T) {
	cases := []runengine.Log{
		{Name: "temperature", Type: writer.F64, Timestamp: time.Unix(1, 0).UTC(), Value: float64(21.5)},
		{Name: "counter", Type: writer.U32, Timestamp: time.Unix(2, 0).UTC(), Value: uint32(7)},
		{Name: "status", Type: writer.VarString, Timestamp: time.Unix(3, 0).UTC(), Value: "ok"},
		{Name: "small", Type: writer.I8, Timestamp: time.Unix(4, 0).UTC(), Value: int8(-5)},
	}
	for _, in := range cases {
		encoded, err := EncodeLog(in)
		require.NoError(t, err)
		out, err := DecodeLog(encoded)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestSampleEnvRoundTripWithTimestamps(t *testing.T) {
	in := runengine.SampleEnv{
		Name:            "pressure",
		Type:            writer.F32,
		Values:          []float32{1.1, 2.2, 3.3},
		Timestamps:      []time.Time{time.Unix(1, 0).UTC(), time.Unix(2, 0).UTC(), time.Unix(3, 0).UTC()},
		PacketTimestamp: time.Unix(0, 0).UTC(),
		TimeDelta:       0,
	}
	encoded, err := EncodeSampleEnv(in)
	require.NoError(t, err)
	out, err := DecodeSampleEnv(encoded)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSampleEnvRoundTripWithoutTimestamps(t *testing.T) {
	in := runengine.SampleEnv{
		Name:            "flow",
		Type:            writer.I32,
		Values:          []int32{100, 200, 300},
		PacketTimestamp: time.Unix(1_700_000_000, 0).UTC(),
		TimeDelta:       10 * time.Millisecond,
	}
	encoded, err := EncodeSampleEnv(in)
	require.NoError(t, err)
	out, err := DecodeSampleEnv(encoded)
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Values, out.Values)
	assert.Empty(t, out.Timestamps)
	assert.Equal(t, in.PacketTimestamp, out.PacketTimestamp)
	assert.Equal(t, in.TimeDelta, out.TimeDelta)
}

func TestSampleEnvRoundTripStrings(t *testing.T) {
	in := runengine.SampleEnv{
		Name:            "state",
		Type:            writer.VarString,
		Values:          []string{"on", "off", "on"},
		PacketTimestamp: time.Unix(5, 0).UTC(),
		TimeDelta:       time.Second,
	}
	encoded, err := EncodeSampleEnv(in)
	require.NoError(t, err)
	out, err := DecodeSampleEnv(encoded)
	require.NoError(t, err)
	assert.Equal(t, in.Values, out.Values)
}

func TestAlarmRoundTrip(t *testing.T) {
	in := runengine.Alarm{
		Name:      "vacuum",
		Severity:  "MAJOR",
		Message:   "pressure out of range",
		Timestamp: time.Unix(1_700_000_123, 0).UTC(),
	}
	out, err := DecodeAlarm(EncodeAlarm(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	full := EncodeRunStart(runengine.RunStart{RunName: "r", StartTime: time.Unix(1, 0)})
	_, err := DecodeRunStart(full[:len(full)-2])
	assert.Error(t, err)
}

func TestDecodeUnknownUnionTagErrors(t *testing.T) {
	encoded, err := EncodeLog(runengine.Log{Name: "x", Type: writer.VarString, Value: "y"})
	require.NoError(t, err)
	// tag byte sits right after the 4-byte identifier, the length-prefixed
	// name ("x", 4+1 bytes) and the 8-byte timestamp.
	tagOffset := 4 + (4 + len("x")) + 8
	corrupted := append([]byte(nil), encoded...)
	corrupted[tagOffset] = 0xFF
	_, err = DecodeLog(corrupted)
	assert.Error(t, err)
}
