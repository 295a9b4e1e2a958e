package writer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Numeric is the set of element types that may be appended to a fixed-type
// resizable dataset.
type Numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Dataset is a 1-D, chunked, resizable dataset living at a path under a
// Group. Growth is append-only; ChunkSize is retained for parity with the
// spec's per-dataset chunk-size configuration but this filesystem-backed
// translation does not itself need chunked allocation — values are simply
// appended to the backing file.
type Dataset struct {
	path      string
	dtype     DataType
	chunkSize int
	resizable bool
}

const datasetHeaderMagic = "PCDS"

// datasetHeader is the fixed 16-byte prefix of every dataset file:
// magic(4) + dtype(1) + resizable(1) + reserved(2) + count(8, little-endian).
type datasetHeader struct {
	DType     DataType
	Resizable bool
	Count     uint64
}

func headerSize() int { return 16 }

func writeHeader(f *os.File, h datasetHeader) error {
	buf := make([]byte, headerSize())
	copy(buf[0:4], datasetHeaderMagic)
	buf[4] = byte(h.DType)
	if h.Resizable {
		buf[5] = 1
	}
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return nil
}

func readHeader(f *os.File) (datasetHeader, error) {
	buf := make([]byte, headerSize())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return datasetHeader{}, err
	}
	if string(buf[0:4]) != datasetHeaderMagic {
		return datasetHeader{}, fmt.Errorf("not a dataset file")
	}
	return datasetHeader{
		DType:     DataType(buf[4]),
		Resizable: buf[5] == 1,
		Count:     binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

// createDataset creates a new dataset file at path with the given type and
// resizability, failing if one already exists.
func createDataset(path string, dtype DataType, chunkSize int, resizable bool) (*Dataset, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, atPath(path, fmt.Errorf("create dataset: %w", err))
	}
	defer f.Close()

	if err := writeHeader(f, datasetHeader{DType: dtype, Resizable: resizable}); err != nil {
		return nil, atPath(path, fmt.Errorf("write dataset header: %w", err))
	}
	return &Dataset{path: path, dtype: dtype, chunkSize: chunkSize, resizable: resizable}, nil
}

func openDataset(path string) (*Dataset, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, atPath(path, fmt.Errorf("open dataset: %w", err))
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return nil, atPath(path, fmt.Errorf("read dataset header: %w", err))
	}
	return &Dataset{path: path, dtype: h.DType, resizable: h.Resizable}, nil
}

// Path returns the dataset's hierarchical path.
func (d *Dataset) Path() string { return d.path }

// Type returns the dataset's element type tag.
func (d *Dataset) Type() DataType { return d.dtype }

// Size returns the current number of elements in the dataset.
func (d *Dataset) Size() (int, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return 0, atPath(d.path, err)
	}
	defer f.Close()
	h, err := readHeader(f)
	if err != nil {
		return 0, atPath(d.path, err)
	}
	return int(h.Count), nil
}

func (d *Dataset) attrsPath() string { return d.path + ".attrs.json" }

func (d *Dataset) readAttrs() (map[string]string, error) {
	data, err := os.ReadFile(d.attrsPath())
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	attrs := map[string]string{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// SetAttr sets a single string attribute on the dataset (e.g. the
// event_time_zero "offset" attribute, spec §6), stored in a JSON sidecar
// next to the dataset file, mirroring Group.SetAttr.
func (d *Dataset) SetAttr(key, value string) error {
	attrs, err := d.readAttrs()
	if err != nil {
		return atPath(d.path, err)
	}
	attrs[key] = value
	data, err := json.Marshal(attrs)
	if err != nil {
		return atPath(d.path, err)
	}
	if err := os.WriteFile(d.attrsPath(), data, 0o644); err != nil {
		return atPath(d.path, err)
	}
	return nil
}

// Attr returns a string attribute, or "" if unset.
func (d *Dataset) Attr(key string) (string, error) {
	attrs, err := d.readAttrs()
	if err != nil {
		return "", atPath(d.path, err)
	}
	return attrs[key], nil
}

// CreateResizableDataset creates a 1-D dataset of element type T, initial
// size 0, chunked for append (spec §4.3).
func CreateResizableDataset[T Numeric](f *File, group *Group, name string, chunkSize int) (*Dataset, error) {
	dtype, err := dataTypeOf[T]()
	if err != nil {
		return nil, atPath(filepath.Join(group.path, name), err)
	}
	return createDataset(filepath.Join(group.path, name), dtype, chunkSize, true)
}

// CreateDynamicResizableDataset creates a 1-D dataset whose element type is
// chosen at runtime from the recognised tags (the ten numeric types and
// VarString); any other tag is ErrInvalidType.
func CreateDynamicResizableDataset(f *File, group *Group, name string, tag DataType, chunkSize int) (*Dataset, error) {
	path := filepath.Join(group.path, name)
	if tag <= Invalid || tag > VarString {
		return nil, atPath(path, ErrInvalidType)
	}
	return createDataset(path, tag, chunkSize, true)
}

// GetDatasetOrCreateDynamic is idempotent: it returns the dataset at name
// if it exists (validating its type matches tag), or creates it with the
// given type and chunk size if absent.
func GetDatasetOrCreateDynamic(f *File, group *Group, name string, tag DataType, chunkSize int) (*Dataset, error) {
	path := filepath.Join(group.path, name)
	if _, err := os.Stat(path); err == nil {
		ds, err := openDataset(path)
		if err != nil {
			return nil, err
		}
		if ds.dtype != tag {
			return nil, atPath(path, fmt.Errorf("dataset type mismatch: have %s, want %s", ds.dtype, tag))
		}
		ds.chunkSize = chunkSize
		return ds, nil
	}
	return CreateDynamicResizableDataset(f, group, name, tag, chunkSize)
}

// dataTypeOf resolves the DataType for a compile-time numeric type T.
func dataTypeOf[T Numeric]() (DataType, error) {
	var zero T
	switch any(zero).(type) {
	case int8:
		return I8, nil
	case uint8:
		return U8, nil
	case int16:
		return I16, nil
	case uint16:
		return U16, nil
	case int32:
		return I32, nil
	case uint32:
		return U32, nil
	case int64:
		return I64, nil
	case uint64:
		return U64, nil
	case float32:
		return F32, nil
	case float64:
		return F64, nil
	default:
		return Invalid, ErrInvalidType
	}
}

// AppendSlice grows the dataset by len(values) and writes values at the
// tail. It returns the previous size, i.e. the index of the first appended
// element.
func AppendSlice[T Numeric](ds *Dataset, values []T) (int, error) {
	dtype, err := dataTypeOf[T]()
	if err != nil {
		return 0, atPath(ds.path, err)
	}
	if dtype != ds.dtype {
		return 0, atPath(ds.path, fmt.Errorf("append type mismatch: dataset is %s", ds.dtype))
	}

	f, err := os.OpenFile(ds.path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, atPath(ds.path, err)
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return 0, atPath(ds.path, err)
	}

	buf := make([]byte, len(values)*ds.dtype.elemSize())
	for i, v := range values {
		putNumeric(buf[i*ds.dtype.elemSize():], v)
	}

	end, err := f.Seek(0, 2)
	if err != nil {
		return 0, atPath(ds.path, err)
	}
	if end < int64(headerSize()) {
		end = int64(headerSize())
	}
	if _, err := f.WriteAt(buf, end); err != nil {
		return 0, atPath(ds.path, fmt.Errorf("append: %w", err))
	}

	prevCount := h.Count
	h.Count += uint64(len(values))
	if err := writeHeader(f, h); err != nil {
		return 0, atPath(ds.path, err)
	}
	return int(prevCount), nil
}

// AppendValue appends a single element, equivalent to AppendSlice with a
// one-element slice.
func AppendValue[T Numeric](ds *Dataset, v T) (int, error) {
	return AppendSlice(ds, []T{v})
}

// SetScalar writes a non-resizable one-element dataset.
func SetScalar[T Numeric](f *File, group *Group, name string, v T) error {
	dtype, err := dataTypeOf[T]()
	if err != nil {
		return atPath(filepath.Join(group.path, name), err)
	}
	path := filepath.Join(group.path, name)
	os.Remove(path)
	ds, err := createDataset(path, dtype, 0, false)
	if err != nil {
		return err
	}
	_, err = AppendValue(ds, v)
	return err
}

// SetString writes a non-resizable one-element string dataset.
func SetString(f *File, group *Group, name string, s string) error {
	path := filepath.Join(group.path, name)
	os.Remove(path)
	ds, err := createDataset(path, VarString, 0, false)
	if err != nil {
		return err
	}
	_, err = AppendStringValue(ds, s)
	return err
}

// AppendStringValue appends one length-prefixed UTF-8 string to a
// VarString dataset, returning the previous size.
func AppendStringValue(ds *Dataset, s string) (int, error) {
	if ds.dtype != VarString {
		return 0, atPath(ds.path, fmt.Errorf("append string type mismatch: dataset is %s", ds.dtype))
	}

	f, err := os.OpenFile(ds.path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, atPath(ds.path, err)
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return 0, atPath(ds.path, err)
	}

	end, err := f.Seek(0, 2)
	if err != nil {
		return 0, atPath(ds.path, err)
	}

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
	if _, err := f.WriteAt(lenBuf, end); err != nil {
		return 0, atPath(ds.path, err)
	}
	if _, err := f.WriteAt([]byte(s), end+4); err != nil {
		return 0, atPath(ds.path, err)
	}

	prevCount := h.Count
	h.Count++
	if err := writeHeader(f, h); err != nil {
		return 0, atPath(ds.path, err)
	}
	return int(prevCount), nil
}

// ReadStrings reads back every string entry in a VarString dataset, in
// append order. Used by run-resume to reconstruct a run's header fields.
func ReadStrings(ds *Dataset) ([]string, error) {
	if ds.dtype != VarString {
		return nil, atPath(ds.path, fmt.Errorf("read strings type mismatch: dataset is %s", ds.dtype))
	}
	f, err := os.Open(ds.path)
	if err != nil {
		return nil, atPath(ds.path, err)
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return nil, atPath(ds.path, err)
	}

	offset := int64(headerSize())
	out := make([]string, 0, h.Count)
	lenBuf := make([]byte, 4)
	for i := uint64(0); i < h.Count; i++ {
		if _, err := f.ReadAt(lenBuf, offset); err != nil {
			return nil, atPath(ds.path, err)
		}
		n := binary.LittleEndian.Uint32(lenBuf)
		sbuf := make([]byte, n)
		if _, err := f.ReadAt(sbuf, offset+4); err != nil {
			return nil, atPath(ds.path, err)
		}
		out = append(out, string(sbuf))
		offset += 4 + int64(n)
	}
	return out, nil
}

// ReadScalar reads back the single element of a non-resizable scalar
// dataset written by SetScalar, e.g. to reconstruct a run's header fields
// when resuming after a crash.
func ReadScalar[T Numeric](ds *Dataset) (T, error) {
	var zero T
	dtype, err := dataTypeOf[T]()
	if err != nil {
		return zero, atPath(ds.path, err)
	}
	if dtype != ds.dtype {
		return zero, atPath(ds.path, fmt.Errorf("read type mismatch: dataset is %s", ds.dtype))
	}

	f, err := os.Open(ds.path)
	if err != nil {
		return zero, atPath(ds.path, err)
	}
	defer f.Close()

	buf := make([]byte, ds.dtype.elemSize())
	if _, err := f.ReadAt(buf, int64(headerSize())); err != nil {
		return zero, atPath(ds.path, err)
	}
	return getNumeric[T](buf), nil
}

func getNumeric[T Numeric](b []byte) T {
	var zero T
	switch any(zero).(type) {
	case int8:
		return any(int8(b[0])).(T)
	case uint8:
		return any(b[0]).(T)
	case int16:
		return any(int16(binary.LittleEndian.Uint16(b))).(T)
	case uint16:
		return any(binary.LittleEndian.Uint16(b)).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(b))).(T)
	case uint32:
		return any(binary.LittleEndian.Uint32(b)).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(b))).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(b)).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(b))).(T)
	case float64:
		return any(math.Float64frombits(binary.LittleEndian.Uint64(b))).(T)
	default:
		return zero
	}
}

// OpenDataset opens an existing dataset at the given hierarchical path
// under group, for read-back during run resume.
func OpenDataset(group *Group, name string) (*Dataset, error) {
	return openDataset(filepath.Join(group.path, name))
}

// ReadString reads back the single entry of a non-resizable scalar string
// dataset written by SetString.
func ReadString(ds *Dataset) (string, error) {
	values, err := ReadStrings(ds)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

func putNumeric(b []byte, v any) {
	switch x := v.(type) {
	case int8:
		b[0] = byte(x)
	case uint8:
		b[0] = x
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case uint16:
		binary.LittleEndian.PutUint16(b, x)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	}
}
