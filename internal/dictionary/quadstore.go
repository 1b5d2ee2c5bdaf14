package dictionary

import (
	"log/slog"

	"github.com/aleksaelezovic/mediakg/internal/cache"
	"github.com/aleksaelezovic/mediakg/internal/metrics"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// QuadStore is a MutableQuadSet persisted in a store.Backend. Values are
// dictionary-encoded on the way in and decoded on the way out; query
// results are materialized as store.BasicQuadSet carrying the backend's
// row ids.
//
// Similarity and text queries are only served if the backend implements
// store.SearchBackend.
type QuadStore struct {
	dict    *Dictionary
	backend store.Backend
	search  store.SearchBackend
	logger  *slog.Logger
}

// Options configures a QuadStore
type Options struct {
	// CacheSize is the number of entries each cache direction holds.
	// Zero selects cache.DefaultSize.
	CacheSize int64
	Logger    *slog.Logger
}

// NewQuadStore creates a store on top of backend. The store owns the
// backend and closes it on Close.
func NewQuadStore(backend store.Backend, opts Options) (*QuadStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = cache.DefaultSize
	}
	dict, err := New(backend, opts.CacheSize, opts.Logger)
	if err != nil {
		return nil, err
	}
	s := &QuadStore{dict: dict, backend: backend, logger: opts.Logger}
	if search, ok := backend.(store.SearchBackend); ok {
		s.search = search
	}
	opts.Logger.Debug("quad store opened", "search", s.search != nil, "cache_size", opts.CacheSize)
	return s, nil
}

// Dictionary returns the value dictionary of the store
func (s *QuadStore) Dictionary() *Dictionary {
	return s.dict
}

// Sync flushes the backend if it buffers writes
func (s *QuadStore) Sync() error {
	if syncer, ok := s.backend.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close releases the caches and closes the backend
func (s *QuadStore) Close() error {
	s.dict.Close()
	return s.backend.Close()
}

func (s *QuadStore) Len() (int, error) {
	return s.backend.CountQuads()
}

func (s *QuadStore) Quads() ([]model.Quad, error) {
	rows, err := s.backend.FilterQuads(nil, nil, nil)
	if err != nil {
		return nil, err
	}
	set, err := s.decodeRows(rows)
	if err != nil {
		return nil, err
	}
	return set.Quads()
}

func (s *QuadStore) Contains(q model.Quad) (bool, error) {
	_, ok, err := s.dict.FindQuadID(q)
	return ok, err
}

func (s *QuadStore) ContainsAll(quads []model.Quad) (bool, error) {
	found, err := s.dict.FindQuadIDs(quads)
	if err != nil {
		return false, err
	}
	for _, q := range quads {
		if _, ok := found[q.Key()]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *QuadStore) GetByID(id int64) (model.Quad, bool, error) {
	row, ok, err := s.backend.GetQuad(id)
	if err != nil || !ok {
		return model.Quad{}, false, err
	}
	set, err := s.decodeRows([]store.EncodedQuad{row})
	if err != nil {
		return model.Quad{}, false, err
	}
	return set.GetByID(id)
}

func (s *QuadStore) FilterSubject(subject model.Value) (store.QuadSet, error) {
	return s.Filter([]model.Value{subject}, nil, nil)
}

func (s *QuadStore) FilterPredicate(predicate model.Value) (store.QuadSet, error) {
	return s.Filter(nil, []model.Value{predicate}, nil)
}

func (s *QuadStore) FilterObject(object model.Value) (store.QuadSet, error) {
	return s.Filter(nil, nil, []model.Value{object})
}

// Filter resolves the constraint values without inserting them. A
// position whose values are all unknown to the dictionary cannot match,
// so the backend is not queried at all.
func (s *QuadStore) Filter(subjects, predicates, objects []model.Value) (store.QuadSet, error) {
	positions := [][]model.Value{subjects, predicates, objects}
	var values []model.Value
	for _, p := range positions {
		if p != nil && len(p) == 0 {
			return store.NewBasicQuadSet(), nil
		}
		values = append(values, p...)
	}

	ids, err := s.dict.ResolveOrInsertIDs(values, false)
	if err != nil {
		return nil, err
	}

	var encoded [3][]store.QuadValueID
	for i, p := range positions {
		if p == nil {
			continue
		}
		encoded[i] = make([]store.QuadValueID, 0, len(p))
		for _, v := range p {
			if id, ok := ids[v.Key()]; ok {
				encoded[i] = append(encoded[i], id)
			}
		}
		if len(encoded[i]) == 0 {
			return store.NewBasicQuadSet(), nil
		}
	}

	rows, err := s.backend.FilterQuads(encoded[0], encoded[1], encoded[2])
	if err != nil {
		return nil, err
	}
	return s.decodeRows(rows)
}

func (s *QuadStore) NearestNeighbor(predicate model.Value, query model.VectorValue, count int, metric store.DistanceMetric) (store.QuadSet, error) {
	if err := store.CheckNeighborQuery(query, count, metric); err != nil {
		return nil, err
	}
	if s.search == nil {
		return nil, kgerr.Wrap(store.ErrUnsupported, kgerr.CodeStoreSearchUnsupported, "backend has no similarity search")
	}

	ids, err := s.dict.ResolveOrInsertIDs([]model.Value{predicate}, false)
	if err != nil {
		return nil, err
	}
	predicateID, ok := ids[predicate.Key()]
	if !ok {
		return store.NewBasicQuadSet(), nil
	}

	neighbors, err := s.search.NearestNeighbor(predicateID, query, count, metric)
	if err != nil {
		return nil, err
	}
	subjectIDs := make([]store.QuadValueID, len(neighbors))
	for i, n := range neighbors {
		subjectIDs[i] = n.Subject
	}
	subjects, err := s.dict.DecodeMany(subjectIDs)
	if err != nil {
		return nil, err
	}

	quads := make([]model.Quad, 0, len(neighbors))
	for _, n := range neighbors {
		subject, ok := subjects[n.Subject]
		if !ok {
			return nil, kgerr.New(kgerr.CodeStoreQuadCorrupt, "neighbor subject is not in the dictionary",
				kgerr.Field("id", n.Subject.String()))
		}
		quads = append(quads, model.NewQuad(subject, model.QueryDistance, model.DoubleValue(n.Distance)))
	}
	return store.NewBasicQuadSet(quads...), nil
}

func (s *QuadStore) TextFilter(predicate model.Value, text string) (store.QuadSet, error) {
	if s.search == nil {
		return nil, kgerr.Wrap(store.ErrUnsupported, kgerr.CodeStoreSearchUnsupported, "backend has no text search")
	}

	var predicateID *store.QuadValueID
	if predicate != nil {
		ids, err := s.dict.ResolveOrInsertIDs([]model.Value{predicate}, false)
		if err != nil {
			return nil, err
		}
		id, ok := ids[predicate.Key()]
		if !ok {
			return store.NewBasicQuadSet(), nil
		}
		predicateID = &id
	}

	rows, err := s.search.TextFilter(predicateID, text)
	if err != nil {
		return nil, err
	}
	return s.decodeRows(rows)
}

func (s *QuadStore) Union(other store.QuadSet) (store.QuadSet, error) {
	return store.Union(s, other)
}

func (s *QuadStore) Add(q model.Quad) (bool, error) {
	_, inserted, err := s.dict.AddQuad(q)
	return inserted, err
}

func (s *QuadStore) AddAll(quads []model.Quad) (bool, error) {
	n, err := s.dict.AddQuads(quads)
	return n > 0, err
}

func (s *QuadStore) Remove(q model.Quad) (bool, error) {
	return s.RemoveAll([]model.Quad{q})
}

func (s *QuadStore) RemoveAll(quads []model.Quad) (bool, error) {
	found, err := s.dict.FindQuadIDs(quads)
	if err != nil || len(found) == 0 {
		return false, err
	}
	ids := make([]int64, 0, len(found))
	for _, id := range found {
		ids = append(ids, id)
	}
	return s.removeIDs(ids)
}

// RetainAll removes every stored quad that is not in quads
func (s *QuadStore) RetainAll(quads []model.Quad) (bool, error) {
	keep, err := s.dict.FindQuadIDs(quads)
	if err != nil {
		return false, err
	}
	kept := make(map[int64]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}

	rows, err := s.backend.FilterQuads(nil, nil, nil)
	if err != nil {
		return false, err
	}
	var drop []int64
	for _, row := range rows {
		if _, ok := kept[row.ID]; !ok {
			drop = append(drop, row.ID)
		}
	}
	if len(drop) == 0 {
		return false, nil
	}
	return s.removeIDs(drop)
}

func (s *QuadStore) removeIDs(ids []int64) (bool, error) {
	n, err := s.backend.RemoveQuads(ids)
	if err != nil {
		return false, err
	}
	metrics.RecordQuadsRemoved(n)
	return n > 0, nil
}

// Clear removes every quad. Dictionary entries stay.
func (s *QuadStore) Clear() error {
	return s.backend.ClearQuads()
}

// decodeRows turns backend rows into a quad set keyed by row id
func (s *QuadStore) decodeRows(rows []store.EncodedQuad) (*store.BasicQuadSet, error) {
	if len(rows) == 0 {
		return store.NewBasicQuadSet(), nil
	}
	ids := make([]store.QuadValueID, 0, 3*len(rows))
	for _, row := range rows {
		ids = append(ids, row.Subject, row.Predicate, row.Object)
	}
	values, err := s.dict.DecodeMany(ids)
	if err != nil {
		return nil, err
	}

	rowIDs := make([]int64, len(rows))
	quads := make([]model.Quad, len(rows))
	for i, row := range rows {
		subject, sok := values[row.Subject]
		predicate, pok := values[row.Predicate]
		object, ook := values[row.Object]
		if !sok || !pok || !ook {
			return nil, kgerr.New(kgerr.CodeStoreQuadCorrupt, "quad references a value that is not in the dictionary",
				kgerr.Field("quad_id", row.ID))
		}
		rowIDs[i] = row.ID
		quads[i] = model.NewQuad(subject, predicate, object)
	}
	return store.NewIdentifiedQuadSet(rowIDs, quads), nil
}
