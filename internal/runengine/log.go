package runengine

import (
	"fmt"

	"github.com/supermusr-data-pipeline/pulse-core/internal/logadapter"
	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

// log dispatches an f144-style typed log into the run's selog group,
// appending one (time, value) pair (spec §4.2 log).
func (r *Run) log(l Log) error {
	r.Parameters.LastModified = l.Timestamp

	selog, err := r.file.GetGroupOrCreate(r.root, "selog", "NXlog")
	if err != nil {
		return err
	}
	group, err := r.file.GetGroupOrCreate(selog, l.Name, "NXlog")
	if err != nil {
		return err
	}

	timeDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "time", writer.F64, chunkSize)
	if err != nil {
		return err
	}
	t := l.Timestamp.Sub(r.Parameters.CollectFrom).Seconds()
	if _, err := writer.AppendValue(timeDS, t); err != nil {
		return err
	}

	valueDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "value", l.Type, chunkSize)
	if err != nil {
		return err
	}
	_, err = logadapter.AppendUnionScalar(valueDS, l.Type, l.Value)
	return err
}

// sampleEnv dispatches an se00-style sample-environment log: a vector of
// values paired with either explicit timestamps or a synthesised arithmetic
// progression from PacketTimestamp + k*TimeDelta (spec §4.2 sample_env).
func (r *Run) sampleEnv(s SampleEnv) error {
	n, err := unionLen(s.Type, s.Values)
	if err != nil {
		return err
	}

	timestamps := s.Timestamps
	if len(timestamps) == 0 {
		timestamps = logadapter.SynthesiseTimestamps(s.PacketTimestamp, s.TimeDelta, n)
	}
	if len(timestamps) != n {
		return fmt.Errorf("%w: got %d, expected %d", ErrInconsistentTimeValueSizes, len(timestamps), n)
	}
	if n == 0 {
		return nil
	}
	r.Parameters.LastModified = timestamps[len(timestamps)-1]

	selog, err := r.file.GetGroupOrCreate(r.root, "selog", "NXlog")
	if err != nil {
		return err
	}
	group, err := r.file.GetGroupOrCreate(selog, s.Name, "NXlog")
	if err != nil {
		return err
	}

	timeDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "time", writer.F64, chunkSize)
	if err != nil {
		return err
	}
	secs := make([]float64, n)
	for i, ts := range timestamps {
		secs[i] = ts.Sub(r.Parameters.CollectFrom).Seconds()
	}
	if _, err := writer.AppendSlice(timeDS, secs); err != nil {
		return err
	}

	valueDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "value", s.Type, chunkSize)
	if err != nil {
		return err
	}
	_, err = logadapter.AppendUnionValue(valueDS, s.Type, s.Values)
	return err
}

// alarm dispatches an al00-style alarm log: a (time, severity, status)
// triple (spec §4.2 alarm). Implements the dispatching-by-timestamp variant
// per the §9 open-question resolution.
func (r *Run) alarm(a Alarm) error {
	if a.Name == "" || a.Severity == "" || a.Message == "" {
		return ErrMissingAlarmFields
	}
	r.Parameters.LastModified = a.Timestamp

	runlog, err := r.file.GetGroupOrCreate(r.root, "runlog", "NXlog")
	if err != nil {
		return err
	}
	group, err := r.file.GetGroupOrCreate(runlog, a.Name, "NXlog")
	if err != nil {
		return err
	}

	timeDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "alarm_time", writer.F64, chunkSize)
	if err != nil {
		return err
	}
	t := a.Timestamp.Sub(r.Parameters.CollectFrom).Seconds()
	if _, err := writer.AppendValue(timeDS, t); err != nil {
		return err
	}

	severityDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "alarm_severity", writer.VarString, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendStringValue(severityDS, a.Severity); err != nil {
		return err
	}

	statusDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "alarm_status", writer.VarString, chunkSize)
	if err != nil {
		return err
	}
	_, err = writer.AppendStringValue(statusDS, a.Message)
	return err
}

// unionLen reports the element count of a type-tagged union slice, for
// validating sample-env timestamp/value length agreement.
func unionLen(tag writer.DataType, values any) (int, error) {
	switch tag {
	case writer.I8:
		return len(values.([]int8)), nil
	case writer.U8:
		return len(values.([]uint8)), nil
	case writer.I16:
		return len(values.([]int16)), nil
	case writer.U16:
		return len(values.([]uint16)), nil
	case writer.I32:
		return len(values.([]int32)), nil
	case writer.U32:
		return len(values.([]uint32)), nil
	case writer.I64:
		return len(values.([]int64)), nil
	case writer.U64:
		return len(values.([]uint64)), nil
	case writer.F32:
		return len(values.([]float32)), nil
	case writer.F64:
		return len(values.([]float64)), nil
	case writer.VarString:
		return len(values.([]string)), nil
	default:
		return 0, fmt.Errorf("%w: tag %s", writer.ErrFlatBufferInvalidDataType, tag)
	}
}
