package schema

// DType enumerates the primitive leaf types a schema field can carry.
type DType string

const (
	DTypeBoolean     DType = "boolean"
	DTypeInt8        DType = "int8"
	DTypeInt16       DType = "int16"
	DTypeInt32       DType = "int32"
	DTypeInt64       DType = "int64"
	DTypeUint8       DType = "uint8"
	DTypeUint16      DType = "uint16"
	DTypeUint32      DType = "uint32"
	DTypeUint64      DType = "uint64"
	DTypeFloat32     DType = "float32"
	DTypeFloat64     DType = "float64"
	DTypeString      DType = "string"
	DTypeBinary      DType = "binary"
	DTypeTimestamp   DType = "timestamp"
	DTypeEmbedding   DType = "embedding"
	DTypeStringSpan  DType = "string_span"
)

// IsNumeric reports whether the dtype supports ordered numeric comparison.
func (d DType) IsNumeric() bool {
	switch d {
	case DTypeInt8, DTypeInt16, DTypeInt32, DTypeInt64,
		DTypeUint8, DTypeUint16, DTypeUint32, DTypeUint64,
		DTypeFloat32, DTypeFloat64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the dtype is one of the floating point types,
// which is where the NaN-filtering rule (spec §9) applies.
func (d DType) IsFloat() bool {
	return d == DTypeFloat32 || d == DTypeFloat64
}

// IsOrdered reports whether the dtype supports min/max/sort comparison:
// numeric types, timestamps, and strings (lexicographic).
func (d DType) IsOrdered() bool {
	return d.IsNumeric() || d == DTypeTimestamp || d == DTypeString
}

// valid is the set of dtype names the schema accepts on construction.
var valid = map[DType]bool{
	DTypeBoolean: true, DTypeInt8: true, DTypeInt16: true, DTypeInt32: true, DTypeInt64: true,
	DTypeUint8: true, DTypeUint16: true, DTypeUint32: true, DTypeUint64: true,
	DTypeFloat32: true, DTypeFloat64: true, DTypeString: true, DTypeBinary: true,
	DTypeTimestamp: true, DTypeEmbedding: true, DTypeStringSpan: true,
}

// Valid reports whether d is one of the dtypes this engine recognizes.
func (d DType) Valid() bool { return valid[d] }
