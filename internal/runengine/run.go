// Package runengine implements the Run/Frame State Engine (spec §4.2): run
// lifecycle (start/stop/abort/resume), timestamp-based message dispatch,
// and flush-to-completed retirement.
//
// Grounded on original_source/nexus-writer/src/run_engine/engine.rs for the
// dispatch/abort/resume semantics, and on the manager/context/state-machine
// triad in the teacher's plugins/handler/skywalking/{dialog,transaction}
// packages for the Go shape of an owning-loop-managed collection of
// stateful sessions.
package runengine

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tevino/abool"
	"go.opentelemetry.io/otel/trace"

	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
	"github.com/supermusr-data-pipeline/pulse-core/internal/spanonce"
	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

// RunState is the run's position in its lifecycle (spec §4.2 state machine).
type RunState int

const (
	Recording RunState = iota
	Stopped
	Retired
)

func (s RunState) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

const (
	instrumentName = "SuperMuSR"
	sourceType     = "Pulsed Neutron Source"
	sourceProbe    = "neutron"
	chunkSize      = 4096

	idfVersion     = uint32(2)
	definitionName = "muonTD"
	programName    = "pulse-core"
)

// nexusTimeLayout is the RFC3339-like reference layout spec.md §6 names
// ("%Y-%m-%dT%H:%M:%S%.f%:z"): fractional seconds trimmed when zero, and a
// numeric zone offset rather than "Z".
const nexusTimeLayout = "2006-01-02T15:04:05.999999999-07:00"

// Run owns exclusive write access to one output file on disk, plus the
// lifecycle metadata needed to dispatch messages into it (spec §3). span
// is the run's parent span handle (§9 "Cyclic ownership"): set once when
// the run is created (or recovered), and taken when the run is stopped or
// aborted.
type Run struct {
	Parameters RunParameters

	file *writer.File
	root *writer.Group // /raw_data_1

	recording *abool.AtomicBool
	stopped   *abool.AtomicBool
	retired   *abool.AtomicBool
	span      *spanonce.SpanOnce
}

// newRun creates a fresh run file under dir/<run_name>.nxs, stamps its
// fixed header metadata, and returns the run in the Recording state.
func newRun(dir string, rs RunStart) (*Run, error) {
	path := filepath.Join(dir, rs.RunName+".nxs")
	f, err := writer.CreateFile(path)
	if err != nil {
		return nil, err
	}

	root, err := f.GetGroupOrCreate(f.Root(), "raw_data_1", "NXentry")
	if err != nil {
		return nil, err
	}

	if err := writeFixedHeader(f, root, rs); err != nil {
		return nil, err
	}

	r := &Run{
		Parameters: RunParameters{
			CollectFrom:    rs.StartTime,
			RunName:        rs.RunName,
			InstrumentName: rs.InstrumentName,
			RunNumber:      rs.RunNumber,
			NumPeriods:     rs.NumPeriods,
			LastModified:   rs.StartTime,
		},
		file:      f,
		root:      root,
		recording: abool.New(),
		stopped:   abool.New(),
		retired:   abool.New(),
		span:      spanonce.New(),
	}
	r.recording.Set()
	r.span.Init(trace.SpanContext{})
	return r, nil
}

// writeFixedHeader writes the fixed NeXus header fields, instrument/source
// block, and run identity fields once at run creation (spec §6,
// SPEC_FULL.md D.2, D.4).
func writeFixedHeader(f *writer.File, root *writer.Group, rs RunStart) error {
	if err := writer.SetScalar(f, root, "IDF_version", idfVersion); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "definition", definitionName); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "program_name", programName); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "name", rs.RunName); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "title", ""); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "experiment_identifier", ""); err != nil {
		return err
	}
	if err := writer.SetScalar(f, root, "run_number", rs.RunNumber); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "start_time", rs.StartTime.Format(nexusTimeLayout)); err != nil {
		return err
	}
	if err := writer.SetString(f, root, "end_time", ""); err != nil {
		return err
	}
	if err := writer.SetScalar(f, root, "number_of_periods", rs.NumPeriods); err != nil {
		return err
	}

	instrument, err := f.GetGroupOrCreate(root, "instrument", "NXinstrument")
	if err != nil {
		return err
	}
	if err := writer.SetString(f, instrument, "name", rs.InstrumentName); err != nil {
		return err
	}

	source, err := f.GetGroupOrCreate(instrument, "source", "NXsource")
	if err != nil {
		return err
	}
	if err := writer.SetString(f, source, "name", instrumentName); err != nil {
		return err
	}
	if err := writer.SetString(f, source, "type", sourceType); err != nil {
		return err
	}
	if err := writer.SetString(f, source, "probe", sourceProbe); err != nil {
		return err
	}

	if _, err := f.GetGroupOrCreate(root, "periods", "NXperiod"); err != nil {
		return err
	}
	if _, err := f.GetGroupOrCreate(root, "runlog", "NXlog"); err != nil {
		return err
	}
	if _, err := f.GetGroupOrCreate(root, "selog", "NXlog"); err != nil {
		return err
	}
	if _, err := f.GetGroupOrCreate(root, "event_data", "NXevent_data"); err != nil {
		return err
	}
	return nil
}

// State reports the run's current lifecycle position.
func (r *Run) State() RunState {
	switch {
	case r.retired.IsSet():
		return Retired
	case r.stopped.IsSet():
		return Stopped
	default:
		return Recording
	}
}

// stop validates and applies a run-stop, transitioning Recording->Stopped.
func (r *Run) stop(rs RunStop) error {
	if r.Parameters.RunName != rs.RunName {
		return fmt.Errorf("%w: active run %q, stop for %q", ErrRunNameMismatch, r.Parameters.RunName, rs.RunName)
	}
	if rs.StopTime.Before(r.Parameters.CollectFrom) {
		return ErrStopBeforeStart
	}

	r.Parameters.CollectUntil = rs.StopTime
	r.Parameters.LastModified = rs.StopTime
	r.recording.UnSet()
	r.stopped.Set()
	r.span.Take()

	return writer.SetString(r.file, r.root, "end_time", rs.StopTime.Format(nexusTimeLayout))
}

// abort applies the abort variant of stop (spec §3: a new run-start arrives
// while this run lacks a run-stop): collect_until is set to the new start
// time and an AbortRun log entry is written.
func (r *Run) abort(newStart time.Time) error {
	r.Parameters.CollectUntil = newStart
	r.Parameters.LastModified = newStart
	r.recording.UnSet()
	r.stopped.Set()
	r.span.Take()
	return r.appendAbortRun(newStart)
}

// idleFor reports how long the run has been idle since its last
// modification, for flush-delay retirement comparisons.
func (r *Run) idleFor(now time.Time) time.Duration {
	return now.Sub(r.Parameters.LastModified)
}

// retireTo closes the run's file and moves it from its current (temp)
// directory to destDir, transitioning Stopped->Retired.
func (r *Run) retireTo(destDir string) error {
	dest := filepath.Join(destDir, r.Parameters.RunName+".nxs")
	if err := r.file.Move(dest); err != nil {
		return err
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	r.retired.Set()
	return nil
}

// eventList merges a frame event into the run's event_data group, mirrors
// newly observed period numbers, and appends an IncompleteFrame log entry
// when the frame was emitted by expiry rather than completion.
func (r *Run) eventList(fe FrameEvent) error {
	r.Parameters.LastModified = fe.Metadata.Timestamp

	group, err := r.file.GetGroupOrCreate(r.root, "event_data", "NXevent_data")
	if err != nil {
		return err
	}

	eventOffset, err := existingEventCount(r.file, group)
	if err != nil {
		return err
	}
	if err := appendEventData(r.file, group, fe.Events); err != nil {
		return err
	}
	if err := r.appendFrameIndex(group, fe, eventOffset); err != nil {
		return err
	}

	if r.Parameters.SeenPeriod(fe.Metadata.PeriodNumber) {
		periods, err := r.file.GetGroupOrCreate(r.root, "periods", "NXperiod")
		if err != nil {
			return err
		}
		ds, err := writer.GetDatasetOrCreateDynamic(r.file, periods, "type", writer.U32, chunkSize)
		if err != nil {
			return err
		}
		if _, err := writer.AppendValue(ds, fe.Metadata.PeriodNumber); err != nil {
			return err
		}
	}

	if !fe.Complete {
		return r.appendIncompleteFrame(fe)
	}
	return nil
}

// existingEventCount returns the number of events already recorded under
// group's event_time_offset dataset, i.e. the index the next frame's first
// event will land at once appended — the value event_index records for
// that frame (spec §6).
func existingEventCount(f *writer.File, group *writer.Group) (uint32, error) {
	ds, err := writer.GetDatasetOrCreateDynamic(f, group, "event_time_offset", writer.U32, chunkSize)
	if err != nil {
		return 0, err
	}
	n, err := ds.Size()
	return uint32(n), err
}

func appendEventData(f *writer.File, group *writer.Group, events eventdata.EventList) error {
	timeDS, err := writer.GetDatasetOrCreateDynamic(f, group, "event_time_offset", writer.U32, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendSlice(timeDS, events.Time); err != nil {
		return err
	}

	idDS, err := writer.GetDatasetOrCreateDynamic(f, group, "event_id", writer.U32, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendSlice(idDS, events.Channel); err != nil {
		return err
	}

	pulseDS, err := writer.GetDatasetOrCreateDynamic(f, group, "pulse_height", writer.U16, chunkSize)
	if err != nil {
		return err
	}
	_, err = writer.AppendSlice(pulseDS, events.Voltage)
	return err
}

// appendFrameIndex writes the per-frame-indexed arrays under
// event_data/NXevent_data (spec §6): event_index records each frame's
// starting offset into the per-event arrays, event_time_zero its
// timestamp relative to the run's collect_from (with collect_from's
// RFC3339 form stamped once as the "offset" attribute), and the remaining
// fields mirror the frame's metadata and completeness.
func (r *Run) appendFrameIndex(group *writer.Group, fe FrameEvent, eventOffset uint32) error {
	indexDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "event_index", writer.U32, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendValue(indexDS, eventOffset); err != nil {
		return err
	}

	timeZeroDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "event_time_zero", writer.U64, chunkSize)
	if err != nil {
		return err
	}
	if offset, err := timeZeroDS.Attr("offset"); err == nil && offset == "" {
		if err := timeZeroDS.SetAttr("offset", r.Parameters.CollectFrom.Format(nexusTimeLayout)); err != nil {
			return err
		}
	}
	timeZero := uint64(fe.Metadata.Timestamp.Sub(r.Parameters.CollectFrom).Nanoseconds())
	if _, err := writer.AppendValue(timeZeroDS, timeZero); err != nil {
		return err
	}

	periodDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "period_number", writer.U32, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendValue(periodDS, fe.Metadata.PeriodNumber); err != nil {
		return err
	}

	frameDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "frame_number", writer.U32, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendValue(frameDS, fe.Metadata.FrameNumber); err != nil {
		return err
	}

	completeDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "is_frame_complete", writer.U8, chunkSize)
	if err != nil {
		return err
	}
	complete := uint8(0)
	if fe.Complete {
		complete = 1
	}
	if _, err := writer.AppendValue(completeDS, complete); err != nil {
		return err
	}

	runningDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "running", writer.U8, chunkSize)
	if err != nil {
		return err
	}
	running := uint8(0)
	if fe.Metadata.Running {
		running = 1
	}
	if _, err := writer.AppendValue(runningDS, running); err != nil {
		return err
	}

	vetoDS, err := writer.GetDatasetOrCreateDynamic(r.file, group, "veto_flag", writer.U16, chunkSize)
	if err != nil {
		return err
	}
	_, err = writer.AppendValue(vetoDS, fe.Metadata.VetoFlags)
	return err
}

// appendRunResume writes the RunResume internal log entry (spec §4.3): time = resumeTime - collect_from in nanoseconds, value 0.
func (r *Run) appendRunResume(resumeTime time.Time) error {
	t := float64(resumeTime.Sub(r.Parameters.CollectFrom).Nanoseconds())
	return r.appendInternalLog("run_resume", t, float64(0))
}

// appendIncompleteFrame writes the IncompleteFrame internal log entry:
// time = frame timestamp - collect_from in nanoseconds, value = sorted
// comma-separated digitiser ids present in the frame. Uses
// fe.DigitiserIDs — the frame cache's contributor set — rather than the
// per-event source tags, since a digitiser can be a genuine contributor
// to the frame with zero events of its own.
func (r *Run) appendIncompleteFrame(fe FrameEvent) error {
	t := float64(fe.Metadata.Timestamp.Sub(r.Parameters.CollectFrom).Nanoseconds())

	ids := make([]string, len(fe.DigitiserIDs))
	for i, id := range fe.DigitiserIDs {
		ids[i] = strconv.Itoa(int(id))
	}
	value := strings.Join(ids, ",")

	return r.appendInternalLogString("incomplete_frame", t, value)
}

// appendAbortRun writes the AbortRun internal log entry: time is expressed
// in fractional seconds from a stop time given in milliseconds since epoch
// relative to the run's nanosecond-resolution collect_from.
func (r *Run) appendAbortRun(stopTime time.Time) error {
	stopTimeMs := stopTime.UnixMilli()
	collectFromNs := r.Parameters.CollectFrom.UnixNano()
	t := float64(stopTimeMs*1_000_000-collectFromNs) / 1e9
	return r.appendInternalLog("abort_run", t, float64(0))
}

func (r *Run) appendInternalLog(name string, t float64, value float64) error {
	runlog, err := r.file.GetGroupOrCreate(r.root, "runlog", "NXlog")
	if err != nil {
		return err
	}
	entry, err := r.file.GetGroupOrCreate(runlog, name, "NXlog")
	if err != nil {
		return err
	}

	timeDS, err := writer.GetDatasetOrCreateDynamic(r.file, entry, "time", writer.F64, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendValue(timeDS, t); err != nil {
		return err
	}

	valueDS, err := writer.GetDatasetOrCreateDynamic(r.file, entry, "value", writer.F64, chunkSize)
	if err != nil {
		return err
	}
	_, err = writer.AppendValue(valueDS, value)
	return err
}

func (r *Run) appendInternalLogString(name string, t float64, value string) error {
	runlog, err := r.file.GetGroupOrCreate(r.root, "runlog", "NXlog")
	if err != nil {
		return err
	}
	entry, err := r.file.GetGroupOrCreate(runlog, name, "NXlog")
	if err != nil {
		return err
	}

	timeDS, err := writer.GetDatasetOrCreateDynamic(r.file, entry, "time", writer.F64, chunkSize)
	if err != nil {
		return err
	}
	if _, err := writer.AppendValue(timeDS, t); err != nil {
		return err
	}

	valueDS, err := writer.GetDatasetOrCreateDynamic(r.file, entry, "value", writer.VarString, chunkSize)
	if err != nil {
		return err
	}
	_, err = writer.AppendStringValue(valueDS, value)
	return err
}
