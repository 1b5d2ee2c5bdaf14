// Package cache provides the bounded caches of the value dictionary.
//
// Every dictionary category gets two independent caches, one from value to
// id and one from id to value. Entries are admitted and evicted by
// ristretto's TinyLFU policy; a dropped or evicted entry only costs a
// backend round trip.
package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// DefaultSize is the number of entries each direction of a category holds
const DefaultSize = 10000

// Cache is a bounded concurrent map
type Cache[K ristretto.Key, V any] struct {
	c *ristretto.Cache[K, V]
}

// New creates a cache holding up to size entries
func New[K ristretto.Key, V any](name string, size int64) (*Cache[K, V], error) {
	if size < 1 {
		return nil, fmt.Errorf("cache %s: size must be positive, got %d", name, size)
	}
	c, err := ristretto.NewCache(&ristretto.Config[K, V]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,

		// Cost is an entry count, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	return &Cache[K, V]{c: c}, nil
}

// Get returns the cached value for key
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.c.Get(key)
}

// Set caches value under key. The write is buffered and may be dropped.
func (c *Cache[K, V]) Set(key K, value V) {
	c.c.Set(key, value, 1)
}

// Wait blocks until buffered writes are applied
func (c *Cache[K, V]) Wait() {
	c.c.Wait()
}

// Clear drops every entry
func (c *Cache[K, V]) Clear() {
	c.c.Clear()
}

// Close stops the cache's background goroutines
func (c *Cache[K, V]) Close() {
	c.c.Close()
}

// Mapping is one dictionary category: value keys of type VK to ids, and id
// keys of type IK back to values of type V.
type Mapping[VK, IK ristretto.Key, V any] struct {
	ids    *Cache[VK, int64]
	values *Cache[IK, V]
}

func newMapping[VK, IK ristretto.Key, V any](category string, size int64) (*Mapping[VK, IK, V], error) {
	ids, err := New[VK, int64](category+"_ids", size)
	if err != nil {
		return nil, err
	}
	values, err := New[IK, V](category+"_values", size)
	if err != nil {
		ids.Close()
		return nil, err
	}
	return &Mapping[VK, IK, V]{ids: ids, values: values}, nil
}

// ID looks up the id of a value
func (m *Mapping[VK, IK, V]) ID(key VK) (int64, bool) {
	return m.ids.Get(key)
}

// Value looks up the value of an id
func (m *Mapping[VK, IK, V]) Value(key IK) (V, bool) {
	return m.values.Get(key)
}

// Put caches both directions of a resolved entry
func (m *Mapping[VK, IK, V]) Put(valueKey VK, idKey IK, id int64, value V) {
	m.ids.Set(valueKey, id)
	m.values.Set(idKey, value)
}

func (m *Mapping[VK, IK, V]) wait() {
	m.ids.Wait()
	m.values.Wait()
}

func (m *Mapping[VK, IK, V]) close() {
	m.ids.Close()
	m.values.Close()
}

// VectorID is the id key of a vector: ids are only unique within the table
// of one discriminator.
func VectorID(vectorType int32, id int64) string {
	return fmt.Sprintf("%d:%d", vectorType, id)
}

// ValueCache holds the mappings of every dictionary category. It is owned
// by one dictionary; nothing is shared between instances.
type ValueCache struct {
	// Doubles are keyed by their bit pattern
	Doubles  *Mapping[uint64, int64, float64]
	Strings  *Mapping[string, int64, string]
	Prefixes *Mapping[string, int64, string]
	Suffixes *Mapping[string, int64, string]

	// Vectors are keyed by model.Value.Key and by VectorID
	Vectors *Mapping[string, string, model.VectorValue]
}

// NewValueCache creates the caches of all categories, each direction
// holding up to size entries
func NewValueCache(size int64) (*ValueCache, error) {
	vc := &ValueCache{}
	var err error
	if vc.Doubles, err = newMapping[uint64, int64, float64]("double", size); err != nil {
		return nil, err
	}
	if vc.Strings, err = newMapping[string, int64, string]("string", size); err != nil {
		vc.Close()
		return nil, err
	}
	if vc.Prefixes, err = newMapping[string, int64, string]("prefix", size); err != nil {
		vc.Close()
		return nil, err
	}
	if vc.Suffixes, err = newMapping[string, int64, string]("suffix", size); err != nil {
		vc.Close()
		return nil, err
	}
	if vc.Vectors, err = newMapping[string, string, model.VectorValue]("vector", size); err != nil {
		vc.Close()
		return nil, err
	}
	return vc, nil
}

// Wait blocks until buffered writes of every category are applied
func (vc *ValueCache) Wait() {
	vc.Doubles.wait()
	vc.Strings.wait()
	vc.Prefixes.wait()
	vc.Suffixes.wait()
	vc.Vectors.wait()
}

// Close releases every category that was created
func (vc *ValueCache) Close() {
	if vc.Doubles != nil {
		vc.Doubles.close()
	}
	if vc.Strings != nil {
		vc.Strings.close()
	}
	if vc.Prefixes != nil {
		vc.Prefixes.close()
	}
	if vc.Suffixes != nil {
		vc.Suffixes.close()
	}
	if vc.Vectors != nil {
		vc.Vectors.close()
	}
}
