package store

import (
	"sync"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// BasicQuadSet is an in-memory quad set that answers every query with a
// linear scan. It keeps insertion order, which nearest neighbor results
// rely on, and is the result type of filters on every other set.
type BasicQuadSet struct {
	entries []basicEntry
	index   map[string]int
	byID    map[int64]int
}

type basicEntry struct {
	id   int64
	quad model.Quad
}

// NewBasicQuadSet creates a set of quads identified by their content hash
func NewBasicQuadSet(quads ...model.Quad) *BasicQuadSet {
	s := &BasicQuadSet{
		index: make(map[string]int, len(quads)),
		byID:  make(map[int64]int, len(quads)),
	}
	for _, q := range quads {
		s.add(q)
	}
	return s
}

// NewIdentifiedQuadSet creates a set whose quads carry ids assigned by a
// backend. ids and quads are parallel slices.
func NewIdentifiedQuadSet(ids []int64, quads []model.Quad) *BasicQuadSet {
	s := NewBasicQuadSet()
	for i, q := range quads {
		s.addWithID(ids[i], q)
	}
	return s
}

func (s *BasicQuadSet) add(q model.Quad) bool {
	return s.addWithID(q.ID(), q)
}

func (s *BasicQuadSet) addWithID(id int64, q model.Quad) bool {
	key := q.Key()
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.entries)
	s.byID[id] = len(s.entries)
	s.entries = append(s.entries, basicEntry{id: id, quad: q})
	return true
}

// removeWhere drops the quads whose key satisfies drop and rebuilds the
// lookup maps. It returns the number of removed quads.
func (s *BasicQuadSet) removeWhere(drop func(key string) bool) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if drop(e.quad.Key()) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	s.entries = kept
	s.index = make(map[string]int, len(kept))
	s.byID = make(map[int64]int, len(kept))
	for i, e := range kept {
		s.index[e.quad.Key()] = i
		s.byID[e.id] = i
	}
	return removed
}

func (s *BasicQuadSet) Len() (int, error) {
	return len(s.entries), nil
}

func (s *BasicQuadSet) Quads() ([]model.Quad, error) {
	out := make([]model.Quad, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.quad
	}
	return out, nil
}

func (s *BasicQuadSet) Contains(q model.Quad) (bool, error) {
	_, ok := s.index[q.Key()]
	return ok, nil
}

func (s *BasicQuadSet) GetByID(id int64) (model.Quad, bool, error) {
	i, ok := s.byID[id]
	if !ok {
		return model.Quad{}, false, nil
	}
	return s.entries[i].quad, true, nil
}

func (s *BasicQuadSet) FilterSubject(subject model.Value) (QuadSet, error) {
	return s.scan(func(q model.Quad) bool { return subject.Equals(q.Subject) }), nil
}

func (s *BasicQuadSet) FilterPredicate(predicate model.Value) (QuadSet, error) {
	return s.scan(func(q model.Quad) bool { return predicate.Equals(q.Predicate) }), nil
}

func (s *BasicQuadSet) FilterObject(object model.Value) (QuadSet, error) {
	return s.scan(func(q model.Quad) bool { return object.Equals(q.Object) }), nil
}

func (s *BasicQuadSet) Filter(subjects, predicates, objects []model.Value) (QuadSet, error) {
	if isNoMatch(subjects) || isNoMatch(predicates) || isNoMatch(objects) {
		return NewBasicQuadSet(), nil
	}
	sKeys, pKeys, oKeys := keySet(subjects), keySet(predicates), keySet(objects)
	return s.scan(func(q model.Quad) bool {
		return matches(sKeys, q.Subject) && matches(pKeys, q.Predicate) && matches(oKeys, q.Object)
	}), nil
}

func (s *BasicQuadSet) NearestNeighbor(predicate model.Value, query model.VectorValue, count int, metric DistanceMetric) (QuadSet, error) {
	if err := CheckNeighborQuery(query, count, metric); err != nil {
		return nil, err
	}
	var candidates []model.Quad
	for _, e := range s.entries {
		if predicate.Equals(e.quad.Predicate) {
			candidates = append(candidates, e.quad)
		}
	}
	return scanNearestNeighbors(candidates, query, count), nil
}

func (s *BasicQuadSet) TextFilter(predicate model.Value, text string) (QuadSet, error) {
	quads, _ := s.Quads()
	return scanText(quads, predicate, text), nil
}

func (s *BasicQuadSet) Union(other QuadSet) (QuadSet, error) {
	return union(s, other)
}

func (s *BasicQuadSet) scan(keep func(q model.Quad) bool) *BasicQuadSet {
	result := NewBasicQuadSet()
	for _, e := range s.entries {
		if keep(e.quad) {
			result.addWithID(e.id, e.quad)
		}
	}
	return result
}

func (s *BasicQuadSet) clone() *BasicQuadSet {
	return s.scan(func(model.Quad) bool { return true })
}

// union is the set-union fallback used by every QuadSet implementation
func union(a, b QuadSet) (*BasicQuadSet, error) {
	result := NewBasicQuadSet()
	for _, set := range []QuadSet{a, b} {
		if basic, ok := set.(*BasicQuadSet); ok {
			for _, e := range basic.entries {
				result.addWithID(e.id, e.quad)
			}
			continue
		}
		quads, err := set.Quads()
		if err != nil {
			return nil, err
		}
		for _, q := range quads {
			result.add(q)
		}
	}
	return result, nil
}

// Union returns the set union of a and b
func Union(a, b QuadSet) (QuadSet, error) {
	return union(a, b)
}

func isNoMatch(values []model.Value) bool {
	return values != nil && len(values) == 0
}

// keySet returns nil for an unconstrained position
func keySet(values []model.Value) map[string]struct{} {
	if values == nil {
		return nil
	}
	keys := make(map[string]struct{}, len(values))
	for _, v := range values {
		keys[v.Key()] = struct{}{}
	}
	return keys
}

func matches(keys map[string]struct{}, v model.Value) bool {
	if keys == nil {
		return true
	}
	_, ok := keys[v.Key()]
	return ok
}

// BasicMutableQuadSet is the mutable, linear-scan reference implementation.
// It is safe for concurrent use.
type BasicMutableQuadSet struct {
	mu  sync.RWMutex
	set *BasicQuadSet
}

// NewBasicMutableQuadSet creates an empty mutable set
func NewBasicMutableQuadSet() *BasicMutableQuadSet {
	return &BasicMutableQuadSet{set: NewBasicQuadSet()}
}

// Compile-time interface checks.
var (
	_ QuadSet        = (*BasicQuadSet)(nil)
	_ MutableQuadSet = (*BasicMutableQuadSet)(nil)
)

func (m *BasicMutableQuadSet) Add(q model.Quad) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set.add(q), nil
}

func (m *BasicMutableQuadSet) AddAll(quads []model.Quad) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, q := range quads {
		if m.set.add(q) {
			changed = true
		}
	}
	return changed, nil
}

func (m *BasicMutableQuadSet) Remove(q model.Quad) (bool, error) {
	return m.RemoveAll([]model.Quad{q})
}

func (m *BasicMutableQuadSet) RemoveAll(quads []model.Quad) (bool, error) {
	drop := make(map[string]struct{}, len(quads))
	for _, q := range quads {
		drop[q.Key()] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.set.removeWhere(func(key string) bool {
		_, ok := drop[key]
		return ok
	})
	return removed > 0, nil
}

func (m *BasicMutableQuadSet) RetainAll(quads []model.Quad) (bool, error) {
	keep := make(map[string]struct{}, len(quads))
	for _, q := range quads {
		keep[q.Key()] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.set.removeWhere(func(key string) bool {
		_, ok := keep[key]
		return !ok
	})
	return removed > 0, nil
}

func (m *BasicMutableQuadSet) ContainsAll(quads []model.Quad) (bool, error) {
	return ContainsAll(m, quads)
}

func (m *BasicMutableQuadSet) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = NewBasicQuadSet()
	return nil
}

func (m *BasicMutableQuadSet) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Len()
}

func (m *BasicMutableQuadSet) Quads() ([]model.Quad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Quads()
}

func (m *BasicMutableQuadSet) Contains(q model.Quad) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Contains(q)
}

func (m *BasicMutableQuadSet) GetByID(id int64) (model.Quad, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.GetByID(id)
}

func (m *BasicMutableQuadSet) FilterSubject(subject model.Value) (QuadSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.FilterSubject(subject)
}

func (m *BasicMutableQuadSet) FilterPredicate(predicate model.Value) (QuadSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.FilterPredicate(predicate)
}

func (m *BasicMutableQuadSet) FilterObject(object model.Value) (QuadSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.FilterObject(object)
}

func (m *BasicMutableQuadSet) Filter(subjects, predicates, objects []model.Value) (QuadSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Filter(subjects, predicates, objects)
}

func (m *BasicMutableQuadSet) NearestNeighbor(predicate model.Value, query model.VectorValue, count int, metric DistanceMetric) (QuadSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.NearestNeighbor(predicate, query, count, metric)
}

func (m *BasicMutableQuadSet) TextFilter(predicate model.Value, text string) (QuadSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.TextFilter(predicate, text)
}

func (m *BasicMutableQuadSet) Union(other QuadSet) (QuadSet, error) {
	m.mu.RLock()
	snapshot := m.set.clone()
	m.mu.RUnlock()
	return union(snapshot, other)
}
