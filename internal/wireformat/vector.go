package wireformat

import (
	"fmt"

	"github.com/supermusr-data-pipeline/pulse-core/internal/writer"
)

// unionLen returns the element count of values, a slice whose concrete type
// must match tag (mirroring internal/runengine's own tag/slice agreement
// for sample_env payloads).
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
		return 0, fmt.Errorf("wireformat: %w: tag %v", writer.ErrFlatBufferInvalidDataType, tag)
	}
}

// putUnionVectorOf writes values (the concrete slice type matching tag) as
// a union vector, indexing into it element-by-element via putUnionVector's
// elem callback.
func putUnionVectorOf(b *builder, tag writer.DataType, n int, values any) error {
	switch tag {
	case writer.I8:
		v := values.([]int8)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.U8:
		v := values.([]uint8)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.I16:
		v := values.([]int16)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.U16:
		v := values.([]uint16)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.I32:
		v := values.([]int32)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.U32:
		v := values.([]uint32)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.I64:
		v := values.([]int64)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.U64:
		v := values.([]uint64)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.F32:
		v := values.([]float32)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.F64:
		v := values.([]float64)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	case writer.VarString:
		v := values.([]string)
		return b.putUnionVector(tag, n, func(i int) any { return v[i] })
	default:
		return fmt.Errorf("wireformat: %w: tag %v", writer.ErrFlatBufferInvalidDataType, tag)
	}
}
