package encoding

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

const (
	// Maximum size of a dictionary key that is stored inline. Longer
	// strings and vector blobs are keyed by their 128-bit hash.
	MaxInlineKeySize = 16

	// Encoded size of a QuadValueID (4 byte type + 8 byte id)
	ValueIDSize = 12

	// Encoded size of a quad row (three QuadValueIDs)
	QuadRowSize = 3 * ValueIDSize

	// Encoded size of a sequence id
	IDSize = 8
)

// Hash128 computes a 128-bit xxhash3 hash of the input
func Hash128(data []byte) [16]byte {
	hash := xxh3.Hash128(data)
	var result [16]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// IdentityHash is the canonical hash of a dictionary-encoded triple over
// its six components
func IdentityHash(subject, predicate, object store.QuadValueID) int64 {
	row := EncodeQuadRow(subject, predicate, object)
	return int64(xxh3.Hash(row)) // #nosec G115 - intentional bit-pattern conversion for hashing
}

// ContentKey returns the dictionary key for a string or blob: the data
// itself when short, its 128-bit hash otherwise. Inline keys are prefixed
// with their length so they never collide with a hash.
func ContentKey(data []byte) []byte {
	if len(data) <= MaxInlineKeySize {
		key := make([]byte, 1+len(data))
		key[0] = byte(len(data))
		copy(key[1:], data)
		return key
	}
	hash := Hash128(data)
	key := make([]byte, 1+len(hash))
	key[0] = 0xff
	copy(key[1:], hash[:])
	return key
}

// EncodeID encodes a sequence id as big-endian bytes, so positive ids sort
// in numeric order
func EncodeID(id int64) []byte {
	var b [IDSize]byte
	binary.BigEndian.PutUint64(b[:], uint64(id)) // #nosec G115 - intentional bit-pattern conversion for binary encoding
	return b[:]
}

// EncodeDouble encodes a double literal key by its bit pattern
func EncodeDouble(f float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	return b[:]
}

func putValueID(dst []byte, id store.QuadValueID) {
	binary.BigEndian.PutUint32(dst[0:4], uint32(id.Type)) // #nosec G115 - intentional bit-pattern conversion for binary encoding
	binary.BigEndian.PutUint64(dst[4:12], uint64(id.ID))  // #nosec G115 - intentional bit-pattern conversion for binary encoding
}

// EncodeValueID encodes a QuadValueID into a fixed-size byte array
func EncodeValueID(id store.QuadValueID) []byte {
	b := make([]byte, ValueIDSize)
	putValueID(b, id)
	return b
}

// EncodeQuadRow encodes the three components of a quad row
func EncodeQuadRow(subject, predicate, object store.QuadValueID) []byte {
	b := make([]byte, QuadRowSize)
	putValueID(b[0:], subject)
	putValueID(b[ValueIDSize:], predicate)
	putValueID(b[2*ValueIDSize:], object)
	return b
}

// EncodeIndexKey encodes a position index entry: the value at the position
// followed by the id of the quad holding it. A scan over EncodeValueID(v)
// yields every quad with v at that position.
func EncodeIndexKey(value store.QuadValueID, quadID int64) []byte {
	b := make([]byte, ValueIDSize+IDSize)
	putValueID(b, value)
	copy(b[ValueIDSize:], EncodeID(quadID))
	return b
}

// EncodeVectorType encodes a vector discriminator, the first component of
// every vector table key
func EncodeVectorType(vectorType int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(vectorType)) // #nosec G115 - intentional bit-pattern conversion for binary encoding
	return b[:]
}

// EncodeVector encodes the elements of v exactly, little-endian, eight
// bytes per element
func EncodeVector(v model.VectorValue) []byte {
	switch vec := v.(type) {
	case model.DoubleVectorValue:
		b := make([]byte, 8*len(vec))
		for i, f := range vec {
			binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(f))
		}
		return b
	case model.LongVectorValue:
		b := make([]byte, 8*len(vec))
		for i, n := range vec {
			binary.LittleEndian.PutUint64(b[8*i:], uint64(n)) // #nosec G115 - intentional bit-pattern conversion for binary encoding
		}
		return b
	default:
		return nil
	}
}

// VectorKey is the value -> id key of a vector: its discriminator followed
// by the content key of its blob
func VectorKey(v model.VectorValue) []byte {
	return append(EncodeVectorType(store.VectorTypeOf(v)), ContentKey(EncodeVector(v))...)
}

// VectorIDKey is the id -> value key of a vector
func VectorIDKey(vectorType int32, id int64) []byte {
	return append(EncodeVectorType(vectorType), EncodeID(id)...)
}
