package model

import (
	"math"
	"strconv"
	"strings"
)

// ValueType represents the variant of a Value
type ValueType byte

const (
	ValueTypeString ValueType = iota + 1
	ValueTypeLong
	ValueTypeDouble
	ValueTypeURI
	ValueTypeLocalURI
	ValueTypeDoubleVector
	ValueTypeLongVector
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeString:
		return "String"
	case ValueTypeLong:
		return "Long"
	case ValueTypeDouble:
		return "Double"
	case ValueTypeURI:
		return "URI"
	case ValueTypeLocalURI:
		return "LocalURI"
	case ValueTypeDoubleVector:
		return "DoubleVector"
	case ValueTypeLongVector:
		return "LongVector"
	default:
		return "unknown"
	}
}

// Value is a single position of a quad. The set of implementations is closed:
// StringValue, LongValue, DoubleValue, URIValue, LocalURIValue,
// DoubleVectorValue and LongVectorValue.
type Value interface {
	Type() ValueType
	// String renders the value in the wire format with an empty local base.
	String() string
	Equals(other Value) bool
	// Key is a collision-free map key for the value. Vector variants are
	// slices and cannot be compared with ==.
	Key() string

	sealed()
}

// StringValue is a string literal
type StringValue string

func (v StringValue) Type() ValueType { return ValueTypeString }
func (v StringValue) String() string  { return string(v) + suffixString }
func (v StringValue) Key() string     { return "S" + string(v) }
func (v StringValue) sealed()         {}

func (v StringValue) Equals(other Value) bool {
	o, ok := other.(StringValue)
	return ok && o == v
}

// LongValue is a 64-bit integer literal. It is stored inline and never
// goes through a dictionary table.
type LongValue int64

func (v LongValue) Type() ValueType { return ValueTypeLong }
func (v LongValue) String() string  { return strconv.FormatInt(int64(v), 10) + suffixLong }
func (v LongValue) Key() string     { return "L" + strconv.FormatInt(int64(v), 10) }
func (v LongValue) sealed()         {}

func (v LongValue) Equals(other Value) bool {
	o, ok := other.(LongValue)
	return ok && o == v
}

// DoubleValue is a 64-bit floating point literal. Equality is by bit
// pattern, so NaN equals itself.
type DoubleValue float64

func (v DoubleValue) Type() ValueType { return ValueTypeDouble }
func (v DoubleValue) String() string  { return formatDouble(float64(v)) + suffixDouble }
func (v DoubleValue) sealed()         {}

func (v DoubleValue) Key() string {
	return "D" + strconv.FormatUint(math.Float64bits(float64(v)), 16)
}

func (v DoubleValue) Equals(other Value) bool {
	o, ok := other.(DoubleValue)
	return ok && math.Float64bits(float64(o)) == math.Float64bits(float64(v))
}

// URIValue is an external URI split into a prefix and a suffix, each kept in
// its own dictionary table.
type URIValue struct {
	Prefix string
	Suffix string
}

// NewURIValue splits uri after its last '#' or '/'
func NewURIValue(uri string) URIValue {
	idx := strings.LastIndexAny(uri, "#/")
	return URIValue{Prefix: uri[:idx+1], Suffix: uri[idx+1:]}
}

// URI returns the full rendered URI
func (v URIValue) URI() string { return v.Prefix + v.Suffix }

func (v URIValue) Type() ValueType { return ValueTypeURI }
func (v URIValue) String() string  { return "<" + v.URI() + ">" }
func (v URIValue) Key() string     { return "U" + v.URI() }
func (v URIValue) sealed()         {}

func (v URIValue) Equals(other Value) bool {
	o, ok := other.(URIValue)
	return ok && o.URI() == v.URI()
}

// LocalURIValue is a URI below the store's own base address. Only the
// suffix relative to that base is kept.
type LocalURIValue struct {
	Suffix string
}

func NewLocalURIValue(suffix string) LocalURIValue {
	return LocalURIValue{Suffix: suffix}
}

func (v LocalURIValue) Type() ValueType { return ValueTypeLocalURI }
func (v LocalURIValue) String() string  { return "<" + v.Suffix + ">" }
func (v LocalURIValue) Key() string     { return "R" + v.Suffix }
func (v LocalURIValue) sealed()         {}

func (v LocalURIValue) Equals(other Value) bool {
	o, ok := other.(LocalURIValue)
	return ok && o.Suffix == v.Suffix
}

// QueryDistance is the predicate of the synthetic quads produced by a
// nearest neighbor query. Their object is the distance as a DoubleValue.
var QueryDistance Value = LocalURIValue{Suffix: "queryDistance"}

// Equal reports whether a and b are structurally equal. Nil values are only
// equal to each other.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

// IsSearchable reports whether a search backend can act on v: string
// literals feed the text index and vectors feed similarity search.
func IsSearchable(v Value) bool {
	switch v.(type) {
	case StringValue, DoubleVectorValue, LongVectorValue:
		return true
	default:
		return false
	}
}
