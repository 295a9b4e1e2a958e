// Package wireformat implements the boundary codec between Kafka message
// bytes and the typed values internal/dispatch hands to internal/framecache
// and internal/runengine. spec.md treats the flatbuffer-style payload
// schemas as an external accessor-trait boundary (out of scope); this
// package is that boundary's concrete Go implementation: a compact,
// self-describing binary encoding carrying the same fields the spec's
// GLOSSARY and §6 wire-format table name, prefixed by the same 4-byte
// ASCII identifiers spec.md §6 lists per topic.
//
// Grounded on the teacher's plugins/reporter/hep/encoder.go: a documented
// fixed-header-plus-variable-chunks layout decoded with encoding/binary.
package wireformat

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

// Identifier is the 4-byte ASCII schema tag every payload begins with
// (spec.md §6).
type Identifier [4]byte

var (
	IdentDigitiserTrace = Identifier{'d', 'a', 't', '2'}
	IdentDigitiserEvent = Identifier{'d', 'e', 'v', '2'}
	IdentFrameEvent     = Identifier{'a', 'e', 'v', '2'}
	IdentLog            = Identifier{'f', '1', '4', '4'}
	IdentSampleEnv      = Identifier{'s', 'e', '0', '0'}
	IdentAlarm          = Identifier{'a', 'l', '0', '0'}
	IdentRunStart       = Identifier{'p', 'l', '7', '2'}
	IdentRunStop        = Identifier{'6', 's', '4', 't'}
)

// byteOrder is used throughout this package's wire layout.
var byteOrder = binary.BigEndian

// cursor is a small read helper over a byte slice, returning errors instead
// of panicking on short input.
type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.b) - c.pos }

func (c *cursor) take(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, fmt.Errorf("wireformat: truncated payload: need %d bytes, have %d", n, c.remaining())
	}
	out := c.b[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b), nil
}

func (c *cursor) i64() (int64, error) {
	u, err := c.u64()
	return int64(u), err
}

// timestamp reads a nanosecond-resolution Unix timestamp.
func (c *cursor) timestamp() (time.Time, error) {
	ns, err := c.i64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ns).UTC(), nil
}

// str reads a uint32 byte-length prefix followed by that many bytes.
func (c *cursor) str() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// identifier reads the fixed 4-byte schema tag.
func (c *cursor) identifier() (Identifier, error) {
	b, err := c.take(4)
	if err != nil {
		return Identifier{}, err
	}
	var id Identifier
	copy(id[:], b)
	return id, nil
}

// builder accumulates an encoded payload.
type builder struct {
	buf []byte
}

func newBuilder(id Identifier) *builder {
	b := &builder{}
	b.buf = append(b.buf, id[:]...)
	return b
}

func (b *builder) putU8(v uint8)   { b.buf = append(b.buf, v) }
func (b *builder) putU16(v uint16) { b.buf = binary.BigEndian.AppendUint16(b.buf, v) }
func (b *builder) putU32(v uint32) { b.buf = binary.BigEndian.AppendUint32(b.buf, v) }
func (b *builder) putU64(v uint64) { b.buf = binary.BigEndian.AppendUint64(b.buf, v) }
func (b *builder) putI64(v int64)  { b.putU64(uint64(v)) }

func (b *builder) putTimestamp(t time.Time) { b.putI64(t.UnixNano()) }

func (b *builder) putStr(s string) {
	b.putU32(uint32(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *builder) bytes() []byte { return b.buf }

// putMetadata/metadata encode and decode digitiser.Metadata's frame-identity
// fields (spec GLOSSARY "Frame") followed by the contribution's own
// VetoFlags, which the frame cache merges across digitisers.
func (b *builder) putMetadata(m digitiser.Metadata) {
	b.putTimestamp(m.Timestamp)
	b.putU32(m.PeriodNumber)
	b.putU32(m.FrameNumber)
	b.putU32(m.ProtonsPerPulse)
	running := uint8(0)
	if m.Running {
		running = 1
	}
	b.putU8(running)
	b.putU16(m.VetoFlags)
}

func (c *cursor) metadata() (digitiser.Metadata, error) {
	ts, err := c.timestamp()
	if err != nil {
		return digitiser.Metadata{}, err
	}
	period, err := c.u32()
	if err != nil {
		return digitiser.Metadata{}, err
	}
	frame, err := c.u32()
	if err != nil {
		return digitiser.Metadata{}, err
	}
	protons, err := c.u32()
	if err != nil {
		return digitiser.Metadata{}, err
	}
	running, err := c.u8()
	if err != nil {
		return digitiser.Metadata{}, err
	}
	veto, err := c.u16()
	if err != nil {
		return digitiser.Metadata{}, err
	}
	return digitiser.Metadata{
		Timestamp:       ts,
		PeriodNumber:    period,
		FrameNumber:     frame,
		ProtonsPerPulse: protons,
		Running:         running != 0,
		VetoFlags:       veto,
	}, nil
}

// putUnionScalar/takeUnionScalar and putUnionVector/takeUnionVector encode a
// value tagged by writer.DataType, implementing
// spec §4.3's "type dispatch for union payloads" at the wire boundary: one
// byte of tag followed by the scalar or length-prefixed vector.
func (b *builder) putUnionScalar(tag writer.DataType, v any) error {
	b.putU8(uint8(tag))
	switch tag {
	case writer.I8:
		b.putU8(uint8(v.(int8)))
	case writer.U8:
		b.putU8(v.(uint8))
	case writer.I16:
		b.putU16(uint16(v.(int16)))
	case writer.U16:
		b.putU16(v.(uint16))
	case writer.I32:
		b.putU32(uint32(v.(int32)))
	case writer.U32:
		b.putU32(v.(uint32))
	case writer.I64:
		b.putI64(v.(int64))
	case writer.U64:
		b.putU64(v.(uint64))
	case writer.F32:
		b.putU32(math.Float32bits(v.(float32)))
	case writer.F64:
		b.putU64(math.Float64bits(v.(float64)))
	case writer.VarString:
		b.putStr(v.(string))
	default:
		return fmt.Errorf("wireformat: %w: tag %v", writer.ErrFlatBufferInvalidDataType, tag)
	}
	return nil
}

func (c *cursor) takeUnionScalar() (writer.DataType, any, error) {
	tagByte, err := c.u8()
	if err != nil {
		return writer.Invalid, nil, err
	}
	tag := writer.DataType(tagByte)
	switch tag {
	case writer.I8:
		v, err := c.u8()
		return tag, int8(v), err
	case writer.U8:
		v, err := c.u8()
		return tag, v, err
	case writer.I16:
		v, err := c.u16()
		return tag, int16(v), err
	case writer.U16:
		v, err := c.u16()
		return tag, v, err
	case writer.I32:
		v, err := c.u32()
		return tag, int32(v), err
	case writer.U32:
		v, err := c.u32()
		return tag, v, err
	case writer.I64:
		v, err := c.i64()
		return tag, v, err
	case writer.U64:
		v, err := c.u64()
		return tag, v, err
	case writer.F32:
		v, err := c.u32()
		return tag, math.Float32frombits(v), err
	case writer.F64:
		v, err := c.u64()
		return tag, math.Float64frombits(v), err
	case writer.VarString:
		v, err := c.str()
		return tag, v, err
	default:
		return writer.Invalid, nil, fmt.Errorf("wireformat: %w: tag byte %d", writer.ErrFlatBufferInvalidDataType, tagByte)
	}
}

// putUnionVector/takeUnionVector encode a tag byte, a uint32 element count,
// and the elements in sequence, for sample_env's value vectors.
func (b *builder) putUnionVector(tag writer.DataType, n int, elem func(i int) any) error {
	b.putU8(uint8(tag))
	b.putU32(uint32(n))
	for i := 0; i < n; i++ {
		v := elem(i)
		switch tag {
		case writer.I8:
			b.putU8(uint8(v.(int8)))
		case writer.U8:
			b.putU8(v.(uint8))
		case writer.I16:
			b.putU16(uint16(v.(int16)))
		case writer.U16:
			b.putU16(v.(uint16))
		case writer.I32:
			b.putU32(uint32(v.(int32)))
		case writer.U32:
			b.putU32(v.(uint32))
		case writer.I64:
			b.putI64(v.(int64))
		case writer.U64:
			b.putU64(v.(uint64))
		case writer.F32:
			b.putU32(math.Float32bits(v.(float32)))
		case writer.F64:
			b.putU64(math.Float64bits(v.(float64)))
		case writer.VarString:
			b.putStr(v.(string))
		default:
			return fmt.Errorf("wireformat: %w: tag %v", writer.ErrFlatBufferInvalidDataType, tag)
		}
	}
	return nil
}

func (c *cursor) takeUnionVector() (writer.DataType, any, error) {
	tagByte, err := c.u8()
	if err != nil {
		return writer.Invalid, nil, err
	}
	tag := writer.DataType(tagByte)
	n, err := c.u32()
	if err != nil {
		return writer.Invalid, nil, err
	}

	switch tag {
	case writer.I8:
		out := make([]int8, n)
		for i := range out {
			v, err := c.u8()
			if err != nil {
				return tag, nil, err
			}
			out[i] = int8(v)
		}
		return tag, out, nil
	case writer.U8:
		out := make([]uint8, n)
		for i := range out {
			if out[i], err = c.u8(); err != nil {
				return tag, nil, err
			}
		}
		return tag, out, nil
	case writer.I16:
		out := make([]int16, n)
		for i := range out {
			v, err := c.u16()
			if err != nil {
				return tag, nil, err
			}
			out[i] = int16(v)
		}
		return tag, out, nil
	case writer.U16:
		out := make([]uint16, n)
		for i := range out {
			if out[i], err = c.u16(); err != nil {
				return tag, nil, err
			}
		}
		return tag, out, nil
	case writer.I32:
		out := make([]int32, n)
		for i := range out {
			v, err := c.u32()
			if err != nil {
				return tag, nil, err
			}
			out[i] = int32(v)
		}
		return tag, out, nil
	case writer.U32:
		out := make([]uint32, n)
		for i := range out {
			if out[i], err = c.u32(); err != nil {
				return tag, nil, err
			}
		}
		return tag, out, nil
	case writer.I64:
		out := make([]int64, n)
		for i := range out {
			if out[i], err = c.i64(); err != nil {
				return tag, nil, err
			}
		}
		return tag, out, nil
	case writer.U64:
		out := make([]uint64, n)
		for i := range out {
			if out[i], err = c.u64(); err != nil {
				return tag, nil, err
			}
		}
		return tag, out, nil
	case writer.F32:
		out := make([]float32, n)
		for i := range out {
			v, err := c.u32()
			if err != nil {
				return tag, nil, err
			}
			out[i] = math.Float32frombits(v)
		}
		return tag, out, nil
	case writer.F64:
		out := make([]float64, n)
		for i := range out {
			v, err := c.u64()
			if err != nil {
				return tag, nil, err
			}
			out[i] = math.Float64frombits(v)
		}
		return tag, out, nil
	case writer.VarString:
		out := make([]string, n)
		for i := range out {
			if out[i], err = c.str(); err != nil {
				return tag, nil, err
			}
		}
		return tag, out, nil
	default:
		return writer.Invalid, nil, fmt.Errorf("wireformat: %w: tag byte %d", writer.ErrFlatBufferInvalidDataType, tagByte)
	}
}
