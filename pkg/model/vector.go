package model

import (
	"math"
	"strconv"
	"strings"
)

// VectorKind is the element type of a vector value
type VectorKind byte

const (
	VectorKindDouble VectorKind = iota
	VectorKindLong
)

func (k VectorKind) String() string {
	switch k {
	case VectorKindDouble:
		return "f64"
	case VectorKindLong:
		return "i64"
	default:
		return "unknown"
	}
}

// VectorValue is implemented by DoubleVectorValue and LongVectorValue. A
// vector is tagged by its element kind and fixed length; vectors of a
// different kind or length live in different dictionary tables.
type VectorValue interface {
	Value
	Kind() VectorKind
	Len() int
	// Float64s returns a copy of the elements widened to float64
	Float64s() []float64
}

// DoubleVectorValue is a vector of float64 elements
type DoubleVectorValue []float64

func NewDoubleVector(elements ...float64) DoubleVectorValue {
	return DoubleVectorValue(elements)
}

func (v DoubleVectorValue) Type() ValueType  { return ValueTypeDoubleVector }
func (v DoubleVectorValue) Kind() VectorKind { return VectorKindDouble }
func (v DoubleVectorValue) Len() int         { return len(v) }
func (v DoubleVectorValue) sealed()          {}

func (v DoubleVectorValue) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = formatDouble(e)
	}
	return "[" + strings.Join(parts, ",") + "]" + suffixDoubleVector
}

func (v DoubleVectorValue) Key() string {
	var sb strings.Builder
	sb.WriteString("F")
	for i, e := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(math.Float64bits(e), 16))
	}
	return sb.String()
}

func (v DoubleVectorValue) Equals(other Value) bool {
	o, ok := other.(DoubleVectorValue)
	if !ok || len(o) != len(v) {
		return false
	}
	for i := range v {
		if math.Float64bits(v[i]) != math.Float64bits(o[i]) {
			return false
		}
	}
	return true
}

func (v DoubleVectorValue) Float64s() []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// LongVectorValue is a vector of int64 elements
type LongVectorValue []int64

func NewLongVector(elements ...int64) LongVectorValue {
	return LongVectorValue(elements)
}

func (v LongVectorValue) Type() ValueType  { return ValueTypeLongVector }
func (v LongVectorValue) Kind() VectorKind { return VectorKindLong }
func (v LongVectorValue) Len() int         { return len(v) }
func (v LongVectorValue) sealed()          {}

func (v LongVectorValue) String() string {
	return "[" + v.joined() + "]" + suffixLongVector
}

func (v LongVectorValue) Key() string {
	return "I" + v.joined()
}

func (v LongVectorValue) joined() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = strconv.FormatInt(e, 10)
	}
	return strings.Join(parts, ",")
}

func (v LongVectorValue) Equals(other Value) bool {
	o, ok := other.(LongVectorValue)
	if !ok || len(o) != len(v) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

func (v LongVectorValue) Float64s() []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[i] = float64(e)
	}
	return out
}

// EmptyVector returns the zero-length vector of the given kind
func EmptyVector(kind VectorKind) VectorValue {
	if kind == VectorKindLong {
		return LongVectorValue{}
	}
	return DoubleVectorValue{}
}
