package runengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

func newTestEngine(t *testing.T) (*Engine, string, string) {
	t.Helper()
	base := t.TempDir()
	temp := filepath.Join(base, "temp")
	completed := filepath.Join(base, "completed")
	e, err := New(temp, completed, 0)
	require.NoError(t, err)
	return e, temp, completed
}

func startAt(ms int64) RunStart {
	return RunStart{
		RunName:        "R1",
		InstrumentName: "MUSR",
		RunNumber:      1,
		NumPeriods:     1,
		StartTime:      time.UnixMilli(ms),
	}
}

// Scenario D — start/stop round-trip.
func TestStartStopRoundTrip(t *testing.T) {
	e, _, completed := newTestEngine(t)

	require.NoError(t, e.Start(RunStart{RunName: "R1", InstrumentName: "MUSR", StartTime: time.UnixMilli(16)}))
	require.NoError(t, e.Stop(RunStop{RunName: "R1", StopTime: time.UnixMilli(17)}))

	require.Equal(t, 1, e.cache.Len())
	r := e.cache.newest()
	assert.Equal(t, time.UnixMilli(16), r.Parameters.CollectFrom)
	assert.Equal(t, time.UnixMilli(17), r.Parameters.CollectUntil)
	assert.Equal(t, "R1", r.Parameters.RunName)

	require.NoError(t, e.Flush(0))
	assert.Equal(t, 0, e.cache.Len())

	_, err := os.Stat(filepath.Join(completed, "R1.nxs"))
	assert.NoError(t, err, "completed/R1.nxs must exist after flush")
}

// Scenario E — stop-before-start rejection.
func TestStopBeforeStartRejection(t *testing.T) {
	e, temp, _ := newTestEngine(t)

	err := e.Stop(RunStop{RunName: "R1", StopTime: time.UnixMilli(0)})
	require.ErrorIs(t, err, ErrUnexpectedRunStop)

	entries, err := os.ReadDir(temp)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file should be created for a rejected stop")
}

// Scenario F — double-start abort.
func TestDoubleStartAbort(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Start(RunStart{RunName: "R1", InstrumentName: "MUSR", StartTime: time.UnixMilli(100)}))
	require.NoError(t, e.Start(RunStart{RunName: "R2", InstrumentName: "MUSR", StartTime: time.UnixMilli(200)}))

	require.Equal(t, 2, e.cache.Len())

	r1 := e.cache.runs[0]
	r2 := e.cache.runs[1]
	assert.Equal(t, time.UnixMilli(200), r1.Parameters.CollectUntil)
	assert.False(t, r2.Parameters.HasStop())

	group, err := r1.file.GetGroupOrCreate(r1.root, "runlog", "NXlog")
	require.NoError(t, err)
	abortGroup, err := r1.file.GetGroupOrCreate(group, "abort_run", "NXlog")
	require.NoError(t, err)

	valueDS, err := writer.OpenDataset(abortGroup, "value")
	require.NoError(t, err)
	size, err := valueDS.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	timeDS, err := writer.OpenDataset(abortGroup, "time")
	require.NoError(t, err)
	tVal, err := writer.ReadScalar[float64](timeDS)
	require.NoError(t, err)
	assert.InDelta(t, 100e-3, tVal, 1e-9, "abort time must be (200-100)ms expressed in seconds")
}

// Property 5 — timestamp dispatch.
func TestTimestampDispatchNoRunFound(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(startAt(0)))
	require.NoError(t, e.Stop(RunStop{RunName: "R1", StopTime: time.UnixMilli(10)}))

	fe := FrameEvent{
		Metadata: digitiser.Metadata{Timestamp: time.UnixMilli(20)},
		Events:   eventdata.EventList{Time: []uint32{1}},
		Complete: true,
	}
	err := e.EventList(fe)
	require.ErrorIs(t, err, ErrNoRunForTimestamp)
}

func TestTimestampDispatchRoutesToMatchingRun(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(startAt(0)))

	fe := FrameEvent{
		Metadata: digitiser.Metadata{Timestamp: time.UnixMilli(5)},
		Events: eventdata.EventList{
			Time:    []uint32{1, 2},
			Voltage: []uint16{10, 20},
			Channel: []uint32{0, 1},
		},
		Complete: true,
	}
	require.NoError(t, e.EventList(fe))

	r := e.cache.newest()
	group, err := r.file.GetGroupOrCreate(r.root, "event_data", "NXevent_data")
	require.NoError(t, err)
	ds, err := writer.OpenDataset(group, "event_time_offset")
	require.NoError(t, err)
	size, err := ds.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

// Property 7 — resume idempotence.
func TestResumeAppendsSingleResumeEntryAndRetiresOnNextFlush(t *testing.T) {
	base := t.TempDir()
	temp := filepath.Join(base, "temp")
	completed := filepath.Join(base, "completed")

	e1, err := New(temp, completed, 0)
	require.NoError(t, err)
	require.NoError(t, e1.Start(RunStart{RunName: "R1", InstrumentName: "MUSR", StartTime: time.UnixMilli(0)}))
	require.NoError(t, e1.Stop(RunStop{RunName: "R1", StopTime: time.UnixMilli(1)}))

	e2, err := New(temp, completed, 0)
	require.NoError(t, err)
	require.Equal(t, 1, e2.cache.Len())

	r := e2.cache.newest()
	assert.Equal(t, Stopped, r.State())

	runlog, err := r.file.GetGroupOrCreate(r.root, "runlog", "NXlog")
	require.NoError(t, err)
	resumeGroup, err := r.file.GetGroupOrCreate(runlog, "run_resume", "NXlog")
	require.NoError(t, err)
	valueDS, err := writer.OpenDataset(resumeGroup, "value")
	require.NoError(t, err)
	size, err := valueDS.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size, "resume must append exactly one resume-log entry")

	require.NoError(t, e2.Flush(0))
	assert.Equal(t, 0, e2.cache.Len())
	_, err = os.Stat(filepath.Join(completed, "R1.nxs"))
	assert.NoError(t, err)
}
