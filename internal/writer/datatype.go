package writer

import "fmt"

// DataType is the closed enumeration of element types a dynamic resizable
// dataset may hold (spec §4.3). The writer's type dispatch is a flat match
// over this enumeration; a tag outside it is InvalidType.
type DataType int

const (
	Invalid DataType = iota
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	VarString
)

func (d DataType) String() string {
	switch d {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case VarString:
		return "var_length_string"
	default:
		return "invalid"
	}
}

// elemSize returns the fixed on-disk width of one element for fixed-width
// types, or 0 for VarString (which is length-prefixed).
func (d DataType) elemSize() int {
	switch d {
	case I8, U8:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64:
		return 8
	default:
		return 0
	}
}

// ParseDataType maps a flatbuffer-style union tag name (spec §4.4) onto the
// writer's DataType enumeration. Array variants (e.g. "ByteArray") map to
// the same element DataType as their scalar counterpart.
func ParseDataType(tag string) (DataType, error) {
	switch tag {
	case "Byte", "ByteArray":
		return I8, nil
	case "UByte", "UByteArray":
		return U8, nil
	case "Short", "ShortArray":
		return I16, nil
	case "UShort", "UShortArray":
		return U16, nil
	case "Int", "IntArray":
		return I32, nil
	case "UInt", "UIntArray":
		return U32, nil
	case "Long", "LongArray":
		return I64, nil
	case "ULong", "ULongArray":
		return U64, nil
	case "Float", "FloatArray":
		return F32, nil
	case "Double", "DoubleArray":
		return F64, nil
	case "string", "String":
		return VarString, nil
	default:
		return Invalid, fmt.Errorf("%w: %s", ErrFlatBufferInvalidDataType, tag)
	}
}
