// Package logadapter normalizes the two heterogeneous log payload shapes
// the original pipeline carries (f144-style scalar/vector logs, se00-style
// sample-environment logs) into the append-writer's uniform typed-dataset
// contract, and performs the flat runtime type-tag dispatch the writer
// needs to pick a concrete generic append call (spec §4.3, §9 "Heterogeneous
// log payloads").
//
// Grounded on original_source/nexus-writer/src/nexus/logs.rs for the
// normalization semantics (timestamp synthesis from
// packet_timestamp + k*time_delta) and on the teacher's
// plugins/filter/skywalking/types tagged-variant style for modeling the
// either-of-two LogMessage variant as a capability rather than a class
// hierarchy.
package logadapter

import (
	"fmt"
	"time"

	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

// LogWithOrigin pairs a payload with a borrowed reference to its containing
// run's collect_from, so timestamps can be computed as seconds-since-start
// without widening the payload interface (spec §3).
type LogWithOrigin[T any] struct {
	Payload     T
	CollectFrom time.Time
}

// SecondsSinceOrigin returns t expressed as seconds since the origin run
// started, as a float64 matching the writer's log-value convention.
func (l LogWithOrigin[T]) SecondsSinceOrigin(t time.Time) float64 {
	return t.Sub(l.CollectFrom).Seconds()
}

// AppendUnionValue appends one element of values (a slice of the concrete
// Go type matching tag) to ds, performing the flat match from the runtime
// type tag to a concrete typed append call (spec §4.3 "Type dispatch for
// union payloads"). Any tag outside the recognised set is
// ErrFlatBufferInvalidDataType, surfaced by ds's own type check.
func AppendUnionValue(ds *writer.Dataset, tag writer.DataType, values any) (int, error) {
	switch tag {
	case writer.I8:
		return appendTyped(ds, values.([]int8))
	case writer.U8:
		return appendTyped(ds, values.([]uint8))
	case writer.I16:
		return appendTyped(ds, values.([]int16))
	case writer.U16:
		return appendTyped(ds, values.([]uint16))
	case writer.I32:
		return appendTyped(ds, values.([]int32))
	case writer.U32:
		return appendTyped(ds, values.([]uint32))
	case writer.I64:
		return appendTyped(ds, values.([]int64))
	case writer.U64:
		return appendTyped(ds, values.([]uint64))
	case writer.F32:
		return appendTyped(ds, values.([]float32))
	case writer.F64:
		return appendTyped(ds, values.([]float64))
	case writer.VarString:
		return appendStrings(ds, values.([]string))
	default:
		return 0, fmt.Errorf("%w: tag %s", writer.ErrFlatBufferInvalidDataType, tag)
	}
}

func appendTyped[T writer.Numeric](ds *writer.Dataset, values []T) (int, error) {
	return writer.AppendSlice(ds, values)
}

// AppendUnionScalar appends a single value of the concrete Go type matching
// tag to ds, performing the same flat type-tag match as AppendUnionValue
// but for one-value-per-message logs (spec §4.2 "log").
func AppendUnionScalar(ds *writer.Dataset, tag writer.DataType, value any) (int, error) {
	switch tag {
	case writer.I8:
		return writer.AppendValue(ds, value.(int8))
	case writer.U8:
		return writer.AppendValue(ds, value.(uint8))
	case writer.I16:
		return writer.AppendValue(ds, value.(int16))
	case writer.U16:
		return writer.AppendValue(ds, value.(uint16))
	case writer.I32:
		return writer.AppendValue(ds, value.(int32))
	case writer.U32:
		return writer.AppendValue(ds, value.(uint32))
	case writer.I64:
		return writer.AppendValue(ds, value.(int64))
	case writer.U64:
		return writer.AppendValue(ds, value.(uint64))
	case writer.F32:
		return writer.AppendValue(ds, value.(float32))
	case writer.F64:
		return writer.AppendValue(ds, value.(float64))
	case writer.VarString:
		return writer.AppendStringValue(ds, value.(string))
	default:
		return 0, fmt.Errorf("%w: tag %s", writer.ErrFlatBufferInvalidDataType, tag)
	}
}

func appendStrings(ds *writer.Dataset, values []string) (int, error) {
	first := -1
	for _, s := range values {
		prev, err := writer.AppendStringValue(ds, s)
		if err != nil {
			return 0, err
		}
		if first == -1 {
			first = prev
		}
	}
	if first == -1 {
		size, err := ds.Size()
		if err != nil {
			return 0, err
		}
		return size, nil
	}
	return first, nil
}

// SynthesiseTimestamps builds a timestamp vector of length n starting at
// packetTimestamp and advancing by delta per sample, used when an se00
// sample-environment log arrives without explicit per-sample timestamps
// (spec §4.2 sample_env).
func SynthesiseTimestamps(packetTimestamp time.Time, delta time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for k := 0; k < n; k++ {
		out[k] = packetTimestamp.Add(time.Duration(k) * delta)
	}
	return out
}
