package cache

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

func TestCache_SetGet(t *testing.T) {
	c, err := New[string, int64]("test", 100)
	require.NoError(t, err)
	defer c.Close()

	c.Set("agra", 7)
	c.Wait()

	id, ok := c.Get("agra")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("agra")
	assert.False(t, ok)
}

func TestCache_RejectsNonPositiveSize(t *testing.T) {
	_, err := New[string, int64]("test", 0)
	assert.Error(t, err)
}

func TestCache_Bounded(t *testing.T) {
	c, err := New[int64, int64]("test", 10)
	require.NoError(t, err)
	defer c.Close()

	for i := range int64(1000) {
		c.Set(i, i)
	}
	c.Wait()

	present := 0
	for i := range int64(1000) {
		if _, ok := c.Get(i); ok {
			present++
		}
	}
	assert.LessOrEqual(t, present, 10)
}

func TestValueCache_Categories(t *testing.T) {
	vc, err := NewValueCache(DefaultSize)
	require.NoError(t, err)
	defer vc.Close()

	vc.Doubles.Put(math.Float64bits(0.5), 3, 3, 0.5)
	vc.Strings.Put("agra", 3, 3, "agra")
	vec := model.DoubleVectorValue{1, 2}
	vc.Vectors.Put(vec.Key(), VectorID(-20, 3), 3, vec)
	vc.Wait()

	id, ok := vc.Doubles.ID(math.Float64bits(0.5))
	require.True(t, ok)
	assert.Equal(t, int64(3), id)

	s, ok := vc.Strings.Value(3)
	require.True(t, ok)
	assert.Equal(t, "agra", s)

	// Same id in a different category is independent
	_, ok = vc.Prefixes.Value(3)
	assert.False(t, ok)

	got, ok := vc.Vectors.Value(VectorID(-20, 3))
	require.True(t, ok)
	assert.True(t, vec.Equals(got))

	_, ok = vc.Vectors.Value(VectorID(-21, 3))
	assert.False(t, ok)
}

func TestValueCache_InstancesAreIndependent(t *testing.T) {
	a, err := NewValueCache(100)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewValueCache(100)
	require.NoError(t, err)
	defer b.Close()

	a.Suffixes.Put("x", 1, 1, "x")
	a.Wait()

	_, ok := b.Suffixes.ID("x")
	assert.False(t, ok)
}

func TestValueCache_ConcurrentAccess(t *testing.T) {
	vc, err := NewValueCache(1000)
	require.NoError(t, err)
	defer vc.Close()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				id := int64(w*1000 + i)
				vc.Strings.Put(string(rune('a'+w))+string(rune('a'+i%26)), id, id, "v")
				vc.Strings.ID("a")
				vc.Strings.Value(id)
			}
		}(w)
	}
	wg.Wait()
}
