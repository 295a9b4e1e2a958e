package writer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "run.nxs")
	f, err := CreateFile(dir)
	require.NoError(t, err)
	return f
}

func TestCreateFileLeavesRootUntagged(t *testing.T) {
	f := newTestFile(t)
	class, err := f.Root().Attr("class")
	require.NoError(t, err)
	assert.Equal(t, "", class, "the root group is a bare container; raw_data_1 carries the NXentry class")
}

func TestGetGroupOrCreateIsIdempotent(t *testing.T) {
	f := newTestFile(t)
	g1, err := f.GetGroupOrCreate(f.Root(), "instrument", "NXinstrument")
	require.NoError(t, err)

	require.NoError(t, g1.SetAttr("name", "SuperMuSR"))

	g2, err := f.GetGroupOrCreate(f.Root(), "instrument", "NXinstrument")
	require.NoError(t, err)

	name, err := g2.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, "SuperMuSR", name, "re-creating an existing group must not disturb its attributes")
}

func TestAppendSliceMonotonicGrowth(t *testing.T) {
	f := newTestFile(t)
	ds, err := CreateResizableDataset[uint32](f, f.Root(), "event_time_offset", 1024)
	require.NoError(t, err)

	prev, err := AppendSlice(ds, []uint32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, prev)

	size, err := ds.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	prev, err = AppendSlice(ds, []uint32{4, 5})
	require.NoError(t, err)
	assert.Equal(t, 3, prev, "second append must start at the prior size")

	size, err = ds.Size()
	require.NoError(t, err)
	assert.Equal(t, 5, size)
}

func TestAppendSliceTypeMismatch(t *testing.T) {
	f := newTestFile(t)
	ds, err := CreateResizableDataset[uint32](f, f.Root(), "pulse_height", 8)
	require.NoError(t, err)

	_, err = AppendSlice(ds, []uint64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at "+ds.Path())
}

func TestDynamicDatasetAllTags(t *testing.T) {
	f := newTestFile(t)
	tags := []DataType{I8, I16, I32, I64, U8, U16, U32, U64, F32, F64, VarString}
	for _, tag := range tags {
		name := "ds_" + tag.String()
		ds, err := CreateDynamicResizableDataset(f, f.Root(), name, tag, 16)
		require.NoError(t, err, tag.String())
		assert.Equal(t, tag, ds.Type())
	}
}

func TestCreateDynamicResizableDatasetRejectsInvalidTag(t *testing.T) {
	f := newTestFile(t)
	_, err := CreateDynamicResizableDataset(f, f.Root(), "bad", Invalid, 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestGetDatasetOrCreateDynamicReusesExisting(t *testing.T) {
	f := newTestFile(t)
	ds1, err := GetDatasetOrCreateDynamic(f, f.Root(), "period_index", U32, 32)
	require.NoError(t, err)
	_, err = AppendValue(ds1, uint32(7))
	require.NoError(t, err)

	ds2, err := GetDatasetOrCreateDynamic(f, f.Root(), "period_index", U32, 32)
	require.NoError(t, err)

	size, err := ds2.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size, "reopening an existing dataset must preserve its contents")
}

func TestGetDatasetOrCreateDynamicRejectsTypeMismatch(t *testing.T) {
	f := newTestFile(t)
	_, err := GetDatasetOrCreateDynamic(f, f.Root(), "seq", U32, 32)
	require.NoError(t, err)

	_, err = GetDatasetOrCreateDynamic(f, f.Root(), "seq", F64, 32)
	require.Error(t, err)
}

func TestStringDatasetRoundTrip(t *testing.T) {
	f := newTestFile(t)
	ds, err := CreateDynamicResizableDataset(f, f.Root(), "source_name", VarString, 8)
	require.NoError(t, err)

	_, err = AppendStringValue(ds, "detector_1")
	require.NoError(t, err)
	_, err = AppendStringValue(ds, "detector_2")
	require.NoError(t, err)

	values, err := ReadStrings(ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"detector_1", "detector_2"}, values)
}

func TestSetScalarOverwrites(t *testing.T) {
	f := newTestFile(t)
	g, err := f.GetGroupOrCreate(f.Root(), "instrument", "NXinstrument")
	require.NoError(t, err)

	require.NoError(t, SetScalar(f, g, "period_number", uint32(1)))
	require.NoError(t, SetScalar(f, g, "period_number", uint32(2)))

	ds, err := openDataset(filepath.Join(g.Path(), "period_number"))
	require.NoError(t, err)
	size, err := ds.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size, "SetScalar must overwrite rather than accumulate")
}
