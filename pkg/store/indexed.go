package store

import (
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// position is one of the three quad positions an index is kept for
type position int

const (
	positionSubject position = iota
	positionPredicate
	positionObject
)

// filterPlan describes how Filter evaluates a query
type filterPlan int

const (
	planEmpty filterPlan = iota
	planAll
	planPredicate
	planSubject
	planObject
)

// IndexedQuadSet is an in-memory MutableQuadSet with one inverted index
// per quad position. Quads live in numbered slots; each index maps a value
// key to the bitmap of slots holding that value at the position.
// It is safe for concurrent use.
type IndexedQuadSet struct {
	mu sync.RWMutex

	quads []model.Quad
	live  *roaring.Bitmap
	free  []uint32

	slots map[string]uint32
	ids   map[int64]uint32

	indexes [3]map[string]*roaring.Bitmap
}

// NewIndexedQuadSet creates an empty indexed set
func NewIndexedQuadSet() *IndexedQuadSet {
	s := &IndexedQuadSet{
		live:  roaring.New(),
		slots: make(map[string]uint32),
		ids:   make(map[int64]uint32),
	}
	for i := range s.indexes {
		s.indexes[i] = make(map[string]*roaring.Bitmap)
	}
	return s
}

var _ MutableQuadSet = (*IndexedQuadSet)(nil)

func valueAt(q model.Quad, pos position) model.Value {
	switch pos {
	case positionSubject:
		return q.Subject
	case positionPredicate:
		return q.Predicate
	default:
		return q.Object
	}
}

// addLocked stores q in a free slot and indexes it.
// Caller must hold s.mu.Lock().
func (s *IndexedQuadSet) addLocked(q model.Quad) bool {
	key := q.Key()
	if _, ok := s.slots[key]; ok {
		return false
	}

	var slot uint32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.quads[slot] = q
	} else {
		slot = uint32(len(s.quads)) // #nosec G115 - slot count is bounded by memory
		s.quads = append(s.quads, q)
	}

	s.slots[key] = slot
	s.ids[q.ID()] = slot
	s.live.Add(slot)
	for pos := range s.indexes {
		valueKey := valueAt(q, position(pos)).Key()
		bitmap, ok := s.indexes[pos][valueKey]
		if !ok {
			bitmap = roaring.New()
			s.indexes[pos][valueKey] = bitmap
		}
		bitmap.Add(slot)
	}
	return true
}

// removeLocked drops the quad in slot from the slot table and all three
// indexes. Caller must hold s.mu.Lock().
func (s *IndexedQuadSet) removeLocked(slot uint32) {
	q := s.quads[slot]
	for pos := range s.indexes {
		valueKey := valueAt(q, position(pos)).Key()
		bitmap, ok := s.indexes[pos][valueKey]
		if !ok {
			continue
		}
		bitmap.Remove(slot)
		if bitmap.IsEmpty() {
			delete(s.indexes[pos], valueKey)
		}
	}
	delete(s.slots, q.Key())
	delete(s.ids, q.ID())
	s.live.Remove(slot)
	s.quads[slot] = model.Quad{}
	s.free = append(s.free, slot)
}

func (s *IndexedQuadSet) Add(q model.Quad) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(q), nil
}

func (s *IndexedQuadSet) AddAll(quads []model.Quad) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, q := range quads {
		if s.addLocked(q) {
			changed = true
		}
	}
	return changed, nil
}

func (s *IndexedQuadSet) Remove(q model.Quad) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[q.Key()]
	if !ok {
		return false, nil
	}
	s.removeLocked(slot)
	return true, nil
}

func (s *IndexedQuadSet) RemoveAll(quads []model.Quad) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, q := range quads {
		if slot, ok := s.slots[q.Key()]; ok {
			s.removeLocked(slot)
			changed = true
		}
	}
	return changed, nil
}

func (s *IndexedQuadSet) RetainAll(quads []model.Quad) (bool, error) {
	keep := make(map[string]struct{}, len(quads))
	for _, q := range quads {
		keep[q.Key()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var drop []uint32
	for key, slot := range s.slots {
		if _, ok := keep[key]; !ok {
			drop = append(drop, slot)
		}
	}
	for _, slot := range drop {
		s.removeLocked(slot)
	}
	return len(drop) > 0, nil
}

func (s *IndexedQuadSet) ContainsAll(quads []model.Quad) (bool, error) {
	return ContainsAll(s, quads)
}

func (s *IndexedQuadSet) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quads = nil
	s.free = nil
	s.live = roaring.New()
	s.slots = make(map[string]uint32)
	s.ids = make(map[int64]uint32)
	for i := range s.indexes {
		s.indexes[i] = make(map[string]*roaring.Bitmap)
	}
	return nil
}

func (s *IndexedQuadSet) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots), nil
}

func (s *IndexedQuadSet) Quads() ([]model.Quad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(s.live), nil
}

func (s *IndexedQuadSet) Contains(q model.Quad) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[q.Key()]
	return ok, nil
}

func (s *IndexedQuadSet) GetByID(id int64) (model.Quad, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.ids[id]
	if !ok {
		return model.Quad{}, false, nil
	}
	return s.quads[slot], true, nil
}

func (s *IndexedQuadSet) FilterSubject(subject model.Value) (QuadSet, error) {
	return s.filterPosition(positionSubject, subject), nil
}

func (s *IndexedQuadSet) FilterPredicate(predicate model.Value) (QuadSet, error) {
	return s.filterPosition(positionPredicate, predicate), nil
}

func (s *IndexedQuadSet) FilterObject(object model.Value) (QuadSet, error) {
	return s.filterPosition(positionObject, object), nil
}

func (s *IndexedQuadSet) filterPosition(pos position, v model.Value) *BasicQuadSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bitmap, ok := s.indexes[pos][v.Key()]
	if !ok {
		return NewBasicQuadSet()
	}
	return NewBasicQuadSet(s.collectLocked(bitmap)...)
}

// Filter evaluates the query from the most selective index. Only
// predicates constrained: the predicate buckets are returned directly.
// Otherwise the candidates come from whichever of the subject and object
// indexes yields fewer slots, and are post-filtered on the other two
// positions.
func (s *IndexedQuadSet) Filter(subjects, predicates, objects []model.Value) (QuadSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.planLocked(subjects, predicates, objects) {
	case planEmpty:
		return NewBasicQuadSet(), nil
	case planAll:
		return NewBasicQuadSet(s.collectLocked(s.live)...), nil
	case planPredicate:
		return NewBasicQuadSet(s.collectLocked(s.bucketsLocked(positionPredicate, predicates))...), nil
	case planSubject:
		candidates := s.bucketsLocked(positionSubject, subjects)
		return s.postFilterLocked(candidates, nil, keySet(predicates), keySet(objects)), nil
	default:
		candidates := s.bucketsLocked(positionObject, objects)
		return s.postFilterLocked(candidates, keySet(subjects), keySet(predicates), nil), nil
	}
}

// planLocked picks the evaluation strategy for a filter.
// Caller must hold s.mu.RLock().
func (s *IndexedQuadSet) planLocked(subjects, predicates, objects []model.Value) filterPlan {
	if isNoMatch(subjects) || isNoMatch(predicates) || isNoMatch(objects) {
		return planEmpty
	}
	if subjects == nil && objects == nil {
		if predicates == nil {
			return planAll
		}
		return planPredicate
	}
	if s.selectivityLocked(positionObject, objects) < s.selectivityLocked(positionSubject, subjects) {
		return planObject
	}
	return planSubject
}

// selectivityLocked is the number of slots the buckets of values cover at
// pos. An unconstrained position is infinitely unselective.
func (s *IndexedQuadSet) selectivityLocked(pos position, values []model.Value) uint64 {
	if values == nil {
		return math.MaxUint64
	}
	var n uint64
	for _, v := range values {
		if bitmap, ok := s.indexes[pos][v.Key()]; ok {
			n += bitmap.GetCardinality()
		}
	}
	return n
}

// bucketsLocked unions the index buckets of values at pos
func (s *IndexedQuadSet) bucketsLocked(pos position, values []model.Value) *roaring.Bitmap {
	result := roaring.New()
	for _, v := range values {
		if bitmap, ok := s.indexes[pos][v.Key()]; ok {
			result.Or(bitmap)
		}
	}
	return result
}

func (s *IndexedQuadSet) postFilterLocked(candidates *roaring.Bitmap, subjects, predicates, objects map[string]struct{}) *BasicQuadSet {
	result := NewBasicQuadSet()
	it := candidates.Iterator()
	for it.HasNext() {
		q := s.quads[it.Next()]
		if matches(subjects, q.Subject) && matches(predicates, q.Predicate) && matches(objects, q.Object) {
			result.add(q)
		}
	}
	return result
}

// collectLocked returns the quads in the given slots in slot order
func (s *IndexedQuadSet) collectLocked(slots *roaring.Bitmap) []model.Quad {
	out := make([]model.Quad, 0, slots.GetCardinality())
	it := slots.Iterator()
	for it.HasNext() {
		out = append(out, s.quads[it.Next()])
	}
	return out
}

func (s *IndexedQuadSet) NearestNeighbor(predicate model.Value, query model.VectorValue, count int, metric DistanceMetric) (QuadSet, error) {
	if err := CheckNeighborQuery(query, count, metric); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := s.collectLocked(s.bucketsLocked(positionPredicate, []model.Value{predicate}))
	s.mu.RUnlock()
	return scanNearestNeighbors(candidates, query, count), nil
}

func (s *IndexedQuadSet) TextFilter(predicate model.Value, text string) (QuadSet, error) {
	s.mu.RLock()
	var candidates []model.Quad
	if predicate != nil {
		candidates = s.collectLocked(s.bucketsLocked(positionPredicate, []model.Value{predicate}))
	} else {
		candidates = s.collectLocked(s.live)
	}
	s.mu.RUnlock()
	return scanText(candidates, predicate, text), nil
}

func (s *IndexedQuadSet) Union(other QuadSet) (QuadSet, error) {
	quads, err := s.Quads()
	if err != nil {
		return nil, err
	}
	return union(NewBasicQuadSet(quads...), other)
}
