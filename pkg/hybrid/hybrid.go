// Package hybrid composes a primary quad store with a search store.
//
// The primary store is the system of record: every write goes there and
// every ordinary read is served from it. Quads with a string or vector
// subject or object are mirrored into the search store, which alone
// answers NearestNeighbor and TextFilter. Results of the two stores are
// never merged.
//
// Writes hold an exclusive lock across both stores, so a reader never sees
// a mirrored quad in the search store that the primary store lacks. A
// failed mirror write rolls back the quads it had just added to the
// primary store.
package hybrid

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aleksaelezovic/mediakg/internal/metrics"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

var _ store.MutableQuadSet = (*Store)(nil)

// Store routes quad set operations between a primary and a search store
type Store struct {
	mu      sync.RWMutex
	primary store.MutableQuadSet
	search  store.MutableQuadSet
	logger  *slog.Logger
}

// New creates a hybrid store. Both stores must be empty or consistent
// with each other.
func New(primary, search store.MutableQuadSet, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{primary: primary, search: search, logger: logger}
}

// Mirrored reports whether q belongs in the search store
func Mirrored(q model.Quad) bool {
	return model.IsSearchable(q.Subject) || model.IsSearchable(q.Object)
}

// Primary returns the system of record
func (h *Store) Primary() store.MutableQuadSet {
	return h.primary
}

// Search returns the search store
func (h *Store) Search() store.MutableQuadSet {
	return h.search
}

// Close closes both stores if they can be closed
func (h *Store) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, s := range []store.MutableQuadSet{h.primary, h.search} {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Add writes q to the primary store and mirrors it if searchable. The
// result reports whether the primary store changed.
func (h *Store) Add(q model.Quad) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	added, err := h.primary.Add(q)
	if err != nil {
		return false, err
	}
	if !Mirrored(q) {
		metrics.RecordMirror(false)
		return added, nil
	}
	if _, err := h.search.Add(q); err != nil {
		if added {
			return false, h.rollback(err, []model.Quad{q})
		}
		return false, err
	}
	metrics.RecordMirror(true)
	h.logger.Debug("mirrored quad into search store", "quad", q.String())
	return added, nil
}

// AddAll writes quads to the primary store and mirrors the searchable
// ones. If mirroring fails, the searchable quads that were new to the
// primary store are removed from it again; the others stay written.
func (h *Store) AddAll(quads []model.Quad) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var mirrored []model.Quad
	for _, q := range quads {
		ok := Mirrored(q)
		metrics.RecordMirror(ok)
		if ok {
			mirrored = append(mirrored, q)
		}
	}
	fresh, err := h.missing(mirrored)
	if err != nil {
		return false, err
	}

	added, err := h.primary.AddAll(quads)
	if err != nil {
		return false, err
	}
	if len(mirrored) == 0 {
		return added, nil
	}
	if _, err := h.search.AddAll(mirrored); err != nil {
		return false, h.rollback(err, fresh)
	}
	h.logger.Debug("mirrored quads into search store", "count", len(mirrored), "total", len(quads))
	return added, nil
}

// missing returns the quads the primary store does not hold yet
func (h *Store) missing(quads []model.Quad) ([]model.Quad, error) {
	var out []model.Quad
	for _, q := range quads {
		ok, err := h.primary.Contains(q)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// rollback removes quads from the primary store after a failed mirror
// write and returns the mirror error joined with any removal error
func (h *Store) rollback(cause error, quads []model.Quad) error {
	if len(quads) == 0 {
		return cause
	}
	if _, err := h.primary.RemoveAll(quads); err != nil {
		h.logger.Error("rolling back primary write failed", "count", len(quads), "error", err)
		return errors.Join(cause, err)
	}
	h.logger.Warn("mirror write failed, primary write rolled back", "count", len(quads), "error", cause)
	return cause
}

// both applies a change to the two stores concurrently and reports the
// primary store's result
func (h *Store) both(apply func(s store.MutableQuadSet) (bool, error)) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		eg      errgroup.Group
		changed bool
	)
	eg.Go(func() error {
		var err error
		changed, err = apply(h.primary)
		return err
	})
	eg.Go(func() error {
		_, err := apply(h.search)
		return err
	})
	if err := eg.Wait(); err != nil {
		return false, err
	}
	return changed, nil
}

func (h *Store) Remove(q model.Quad) (bool, error) {
	return h.both(func(s store.MutableQuadSet) (bool, error) { return s.Remove(q) })
}

func (h *Store) RemoveAll(quads []model.Quad) (bool, error) {
	return h.both(func(s store.MutableQuadSet) (bool, error) { return s.RemoveAll(quads) })
}

// RetainAll keeps the search store a subset of the primary store
func (h *Store) RetainAll(quads []model.Quad) (bool, error) {
	return h.both(func(s store.MutableQuadSet) (bool, error) { return s.RetainAll(quads) })
}

func (h *Store) Clear() error {
	_, err := h.both(func(s store.MutableQuadSet) (bool, error) { return false, s.Clear() })
	return err
}

// Reads from the primary store

func (h *Store) Len() (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.Len()
}

func (h *Store) Quads() ([]model.Quad, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.Quads()
}

func (h *Store) Contains(q model.Quad) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.Contains(q)
}

func (h *Store) ContainsAll(quads []model.Quad) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.ContainsAll(quads)
}

func (h *Store) GetByID(id int64) (model.Quad, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.GetByID(id)
}

func (h *Store) FilterSubject(subject model.Value) (store.QuadSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.FilterSubject(subject)
}

func (h *Store) FilterPredicate(predicate model.Value) (store.QuadSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.FilterPredicate(predicate)
}

func (h *Store) FilterObject(object model.Value) (store.QuadSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.FilterObject(object)
}

func (h *Store) Filter(subjects, predicates, objects []model.Value) (store.QuadSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary.Filter(subjects, predicates, objects)
}

func (h *Store) Union(other store.QuadSet) (store.QuadSet, error) {
	return store.Union(h, other)
}

// Reads from the search store

func (h *Store) NearestNeighbor(predicate model.Value, query model.VectorValue, count int, metric store.DistanceMetric) (store.QuadSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.search.NearestNeighbor(predicate, query, count, metric)
}

func (h *Store) TextFilter(predicate model.Value, text string) (store.QuadSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.search.TextFilter(predicate, text)
}
