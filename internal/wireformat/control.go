package wireformat

import (
	"time"

	"github.com/supermusr-data-pipeline/pulse-core/internal/runengine"
)

// EncodeRunStart serialises rs as a pl72 payload.
func EncodeRunStart(rs runengine.RunStart) []byte {
	b := newBuilder(IdentRunStart)
	b.putStr(rs.RunName)
	b.putStr(rs.InstrumentName)
	b.putU32(rs.RunNumber)
	b.putU32(rs.NumPeriods)
	b.putTimestamp(rs.StartTime)
	return b.bytes()
}

// DecodeRunStart parses a pl72 payload.
func DecodeRunStart(payload []byte) (runengine.RunStart, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return runengine.RunStart{}, err
	}
	runName, err := c.str()
	if err != nil {
		return runengine.RunStart{}, err
	}
	instrument, err := c.str()
	if err != nil {
		return runengine.RunStart{}, err
	}
	runNumber, err := c.u32()
	if err != nil {
		return runengine.RunStart{}, err
	}
	numPeriods, err := c.u32()
	if err != nil {
		return runengine.RunStart{}, err
	}
	startTime, err := c.timestamp()
	if err != nil {
		return runengine.RunStart{}, err
	}
	return runengine.RunStart{
		RunName:        runName,
		InstrumentName: instrument,
		RunNumber:      runNumber,
		NumPeriods:     numPeriods,
		StartTime:      startTime,
	}, nil
}

// EncodeRunStop serialises rs as a 6s4t payload.
func EncodeRunStop(rs runengine.RunStop) []byte {
	b := newBuilder(IdentRunStop)
	b.putStr(rs.RunName)
	b.putTimestamp(rs.StopTime)
	return b.bytes()
}

// DecodeRunStop parses a 6s4t payload.
func DecodeRunStop(payload []byte) (runengine.RunStop, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return runengine.RunStop{}, err
	}
	runName, err := c.str()
	if err != nil {
		return runengine.RunStop{}, err
	}
	stopTime, err := c.timestamp()
	if err != nil {
		return runengine.RunStop{}, err
	}
	return runengine.RunStop{RunName: runName, StopTime: stopTime}, nil
}

// EncodeLog serialises l as an f144 payload: one typed (time, value) pair.
func EncodeLog(l runengine.Log) ([]byte, error) {
	b := newBuilder(IdentLog)
	b.putStr(l.Name)
	b.putTimestamp(l.Timestamp)
	if err := b.putUnionScalar(l.Type, l.Value); err != nil {
		return nil, err
	}
	return b.bytes(), nil
}

// DecodeLog parses an f144 payload.
func DecodeLog(payload []byte) (runengine.Log, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return runengine.Log{}, err
	}
	name, err := c.str()
	if err != nil {
		return runengine.Log{}, err
	}
	ts, err := c.timestamp()
	if err != nil {
		return runengine.Log{}, err
	}
	tag, value, err := c.takeUnionScalar()
	if err != nil {
		return runengine.Log{}, err
	}
	return runengine.Log{Name: name, Type: tag, Timestamp: ts, Value: value}, nil
}

// EncodeSampleEnv serialises s as an se00 payload. Per-sample timestamps are
// optional (spec §4.2 sample_env); when absent they are synthesised by the
// engine from PacketTimestamp/TimeDelta, so the wire carries a one-byte
// presence flag, followed by the count and the timestamps only when present.
func EncodeSampleEnv(s runengine.SampleEnv) ([]byte, error) {
	b := newBuilder(IdentSampleEnv)
	b.putStr(s.Name)

	n, err := unionLen(s.Type, s.Values)
	if err != nil {
		return nil, err
	}
	if err := putUnionVectorOf(b, s.Type, n, s.Values); err != nil {
		return nil, err
	}

	hasTimestamps := uint8(0)
	if len(s.Timestamps) > 0 {
		hasTimestamps = 1
	}
	b.putU8(hasTimestamps)
	if hasTimestamps != 0 {
		b.putU32(uint32(len(s.Timestamps)))
		for _, t := range s.Timestamps {
			b.putTimestamp(t)
		}
	}

	b.putTimestamp(s.PacketTimestamp)
	b.putI64(int64(s.TimeDelta))
	return b.bytes(), nil
}

// DecodeSampleEnv parses an se00 payload.
func DecodeSampleEnv(payload []byte) (runengine.SampleEnv, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return runengine.SampleEnv{}, err
	}
	name, err := c.str()
	if err != nil {
		return runengine.SampleEnv{}, err
	}
	tag, values, err := c.takeUnionVector()
	if err != nil {
		return runengine.SampleEnv{}, err
	}
	hasTimestamps, err := c.u8()
	if err != nil {
		return runengine.SampleEnv{}, err
	}
	var timestamps []time.Time
	if hasTimestamps != 0 {
		n, err := c.u32()
		if err != nil {
			return runengine.SampleEnv{}, err
		}
		timestamps = make([]time.Time, n)
		for i := range timestamps {
			if timestamps[i], err = c.timestamp(); err != nil {
				return runengine.SampleEnv{}, err
			}
		}
	}
	packetTimestamp, err := c.timestamp()
	if err != nil {
		return runengine.SampleEnv{}, err
	}
	deltaNanos, err := c.i64()
	if err != nil {
		return runengine.SampleEnv{}, err
	}
	return runengine.SampleEnv{
		Name:            name,
		Type:            tag,
		Values:          values,
		Timestamps:      timestamps,
		PacketTimestamp: packetTimestamp,
		TimeDelta:       time.Duration(deltaNanos),
	}, nil
}

// EncodeAlarm serialises a as an al00 payload.
func EncodeAlarm(a runengine.Alarm) []byte {
	b := newBuilder(IdentAlarm)
	b.putStr(a.Name)
	b.putStr(a.Severity)
	b.putStr(a.Message)
	b.putTimestamp(a.Timestamp)
	return b.bytes()
}

// DecodeAlarm parses an al00 payload.
func DecodeAlarm(payload []byte) (runengine.Alarm, error) {
	c := &cursor{b: payload}
	if _, err := c.identifier(); err != nil {
		return runengine.Alarm{}, err
	}
	name, err := c.str()
	if err != nil {
		return runengine.Alarm{}, err
	}
	severity, err := c.str()
	if err != nil {
		return runengine.Alarm{}, err
	}
	message, err := c.str()
	if err != nil {
		return runengine.Alarm{}, err
	}
	ts, err := c.timestamp()
	if err != nil {
		return runengine.Alarm{}, err
	}
	return runengine.Alarm{Name: name, Severity: severity, Message: message, Timestamp: ts}, nil
}
