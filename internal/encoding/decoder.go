package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// DecodeID decodes a sequence id written by EncodeID
func DecodeID(b []byte) (int64, error) {
	if len(b) < IDSize {
		return 0, fmt.Errorf("invalid id: need %d bytes, got %d", IDSize, len(b))
	}
	return int64(binary.BigEndian.Uint64(b[:IDSize])), nil // #nosec G115 - intentional bit-pattern conversion for binary decoding
}

// DecodeDouble decodes a double literal written by EncodeDouble
func DecodeDouble(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid double: need 8 bytes, got %d", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func valueIDAt(b []byte) store.QuadValueID {
	return store.QuadValueID{
		Type: int32(binary.BigEndian.Uint32(b[0:4])),  // #nosec G115 - intentional bit-pattern conversion for binary decoding
		ID:   int64(binary.BigEndian.Uint64(b[4:12])), // #nosec G115 - intentional bit-pattern conversion for binary decoding
	}
}

// DecodeQuadRow decodes a quad row written by EncodeQuadRow
func DecodeQuadRow(b []byte) (subject, predicate, object store.QuadValueID, err error) {
	if len(b) != QuadRowSize {
		return subject, predicate, object, fmt.Errorf("invalid quad row: need %d bytes, got %d", QuadRowSize, len(b))
	}
	return valueIDAt(b[0:]), valueIDAt(b[ValueIDSize:]), valueIDAt(b[2*ValueIDSize:]), nil
}

// DecodeIndexKey returns the quad id of a position index key
func DecodeIndexKey(b []byte) (int64, error) {
	if len(b) != ValueIDSize+IDSize {
		return 0, fmt.Errorf("invalid index key: need %d bytes, got %d", ValueIDSize+IDSize, len(b))
	}
	return DecodeID(b[ValueIDSize:])
}

// DecodeVector decodes a blob written by EncodeVector
func DecodeVector(kind model.VectorKind, b []byte) (model.VectorValue, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("invalid vector blob: length %d is not a multiple of 8", len(b))
	}
	n := len(b) / 8
	switch kind {
	case model.VectorKindDouble:
		vec := make(model.DoubleVectorValue, n)
		for i := range vec {
			vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
		}
		return vec, nil
	case model.VectorKindLong:
		vec := make(model.LongVectorValue, n)
		for i := range vec {
			vec[i] = int64(binary.LittleEndian.Uint64(b[8*i:])) // #nosec G115 - intentional bit-pattern conversion for binary decoding
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("unknown vector kind: %d", kind)
	}
}
