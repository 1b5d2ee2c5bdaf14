package encoding

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

func TestQuadRowRoundTrip(t *testing.T) {
	s := store.QuadValueID{Type: 7, ID: 12}
	p := store.QuadValueID{Type: store.TypeLocalURI, ID: 3}
	o := store.QuadValueID{Type: store.TypeLong, ID: -42}

	gotS, gotP, gotO, err := DecodeQuadRow(EncodeQuadRow(s, p, o))
	require.NoError(t, err)
	assert.Equal(t, s, gotS)
	assert.Equal(t, p, gotP)
	assert.Equal(t, o, gotO)

	_, _, _, err = DecodeQuadRow([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIdentityHash(t *testing.T) {
	a := store.QuadValueID{Type: store.TypeString, ID: 1}
	b := store.QuadValueID{Type: store.TypeString, ID: 2}

	assert.Equal(t, IdentityHash(a, a, b), IdentityHash(a, a, b))
	assert.NotEqual(t, IdentityHash(a, a, b), IdentityHash(b, a, a))
}

func TestIndexKeyPrefixesValue(t *testing.T) {
	v := store.QuadValueID{Type: store.TypeDouble, ID: 9}
	key := EncodeIndexKey(v, 1234)

	assert.True(t, bytes.HasPrefix(key, EncodeValueID(v)))
	id, err := DecodeIndexKey(key)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), id)
}

func TestIDOrdering(t *testing.T) {
	assert.Negative(t, bytes.Compare(EncodeID(1), EncodeID(2)))
	assert.Negative(t, bytes.Compare(EncodeID(255), EncodeID(256)))

	id, err := DecodeID(EncodeID(1 << 40))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), id)
}

func TestDoubleRoundTrip(t *testing.T) {
	for _, f := range []float64{0, -1.5, math.Inf(1), math.SmallestNonzeroFloat64} {
		got, err := DecodeDouble(EncodeDouble(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	nan, err := DecodeDouble(EncodeDouble(math.NaN()))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(nan))
}

func TestVectorRoundTrip(t *testing.T) {
	doubles := model.DoubleVectorValue{1.25, -3, math.MaxFloat64, 0}
	got, err := DecodeVector(model.VectorKindDouble, EncodeVector(doubles))
	require.NoError(t, err)
	assert.True(t, doubles.Equals(got))

	longs := model.LongVectorValue{math.MinInt64, -1, 0, math.MaxInt64}
	got, err = DecodeVector(model.VectorKindLong, EncodeVector(longs))
	require.NoError(t, err)
	assert.True(t, longs.Equals(got))

	_, err = DecodeVector(model.VectorKindDouble, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestContentKey(t *testing.T) {
	short := ContentKey([]byte("agra"))
	assert.Equal(t, append([]byte{4}, "agra"...), short)

	long := strings.Repeat("x", 100)
	key := ContentKey([]byte(long))
	assert.Len(t, key, 17)
	assert.Equal(t, byte(0xff), key[0])
	assert.Equal(t, key, ContentKey([]byte(long)))
	assert.NotEqual(t, key, ContentKey([]byte(long+"y")))
}

func TestVectorKeysSeparateShapes(t *testing.T) {
	a := VectorKey(model.DoubleVectorValue{1, 2})
	b := VectorKey(model.LongVectorValue{1, 2})
	c := VectorKey(model.DoubleVectorValue{1, 2, 3})

	assert.NotEqual(t, a[:4], b[:4])
	assert.NotEqual(t, a[:4], c[:4])
	assert.True(t, bytes.HasPrefix(VectorIDKey(store.VectorType(model.VectorKindDouble, 2), 5), a[:4]))
}
