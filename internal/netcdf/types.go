// Package netcdf reads and writes netCDF classic format files (CDF-1 and the
// 64-bit offset CDF-2 variant). Variables are read lazily through an
// io.ReaderAt unless the dataset is loaded.
package netcdf

import (
	"errors"
	"fmt"
)

var (
	// ErrNotNetCDF is returned when the magic bytes are not a classic header.
	ErrNotNetCDF = errors.New("netcdf: not a classic netCDF file")
	// ErrClosed is returned when reading a lazy variable after Close.
	ErrClosed = errors.New("netcdf: dataset closed")
)

// Type is a netCDF external data type.
type Type int32

const (
	Byte   Type = 1
	Char   Type = 2
	Short  Type = 3
	Int    Type = 4
	Float  Type = 5
	Double Type = 6
)

const (
	tagDimension int32 = 10
	tagVariable  int32 = 11
	tagAttribute int32 = 12

	streamingRecs = 0xFFFFFFFF
)

// Size is the width in bytes of one value.
func (t Type) Size() int64 {
	switch t {
	case Byte, Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Double:
		return 8
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

// typeOf maps a Go value onto its netCDF type and element count.
func typeOf(v any) (Type, int64, error) {
	switch x := v.(type) {
	case []int8:
		return Byte, int64(len(x)), nil
	case string:
		return Char, int64(len(x)), nil
	case []int16:
		return Short, int64(len(x)), nil
	case []int32:
		return Int, int64(len(x)), nil
	case []float32:
		return Float, int64(len(x)), nil
	case []float64:
		return Double, int64(len(x)), nil
	default:
		return 0, 0, fmt.Errorf("netcdf: unsupported value type %T", v)
	}
}

func pad4(n int64) int64 { return (n + 3) &^ 3 }
