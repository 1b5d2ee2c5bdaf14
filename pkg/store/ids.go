package store

import (
	"fmt"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// Reserved discriminators of QuadValueID.Type. External URIs use the id of
// their prefix row (>= 1) as the type and the suffix row id as the id.
// Vectors use one negative discriminator per (kind, length) pair below
// vectorTypeOffset.
const (
	TypeLong     int32 = -1
	TypeDouble   int32 = -2
	TypeString   int32 = -3
	TypeLocalURI int32 = -4

	vectorTypeOffset int32 = -16
)

// QuadValueID is a dictionary-encoded reference to a value: a type
// discriminator and an id in the table that discriminator selects. Long
// values are inline, their id is the value itself.
type QuadValueID struct {
	Type int32
	ID   int64
}

func (id QuadValueID) String() string {
	return fmt.Sprintf("%d:%d", id.Type, id.ID)
}

// IsURI reports whether the type is a prefix id of an external URI
func (id QuadValueID) IsURI() bool {
	return id.Type > 0
}

// IsVector reports whether the type is a vector discriminator
func (id QuadValueID) IsVector() bool {
	return id.Type <= vectorTypeOffset
}

// VectorType returns the discriminator of vectors of the given kind and length
func VectorType(kind model.VectorKind, length int) int32 {
	return vectorTypeOffset - 2*int32(length) - int32(kind) // #nosec G115 - vector lengths are far below 2^30
}

// VectorTypeOf returns the discriminator for v
func VectorTypeOf(v model.VectorValue) int32 {
	return VectorType(v.Kind(), v.Len())
}

// VectorShape decodes a vector discriminator into kind and length
func VectorShape(t int32) (model.VectorKind, int, bool) {
	if t > vectorTypeOffset {
		return 0, 0, false
	}
	rel := vectorTypeOffset - t
	return model.VectorKind(rel % 2), int(rel / 2), true
}
