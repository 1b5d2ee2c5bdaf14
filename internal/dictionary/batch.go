package dictionary

import "github.com/aleksaelezovic/mediakg/internal/metrics"

// group is the pending work for one dictionary table during a batched
// resolution. Items are keyed by their dictionary key so that duplicates
// in the input cost one backend slot.
type group[T any] struct {
	name     string
	items    map[string]T
	resolved map[string]int64

	keyOf    func(item T) string
	cached   func(item T) (int64, bool)
	lookUp   func(items []T) (map[string]int64, error)
	insert   func(items []T) (map[string]int64, error)
	remember func(item T, id int64)
}

func (g *group[T]) add(key string, item T) {
	if g.items == nil {
		g.items = make(map[string]T)
	}
	g.items[key] = item
}

// pending returns the items that are not resolved yet
func (g *group[T]) pending() []T {
	var out []T
	for key, item := range g.items {
		if _, ok := g.resolved[key]; !ok {
			out = append(out, item)
		}
	}
	return out
}

// stripCached resolves every item the cache knows
func (g *group[T]) stripCached() {
	g.resolved = make(map[string]int64, len(g.items))
	hits := 0
	for key, item := range g.items {
		if id, ok := g.cached(item); ok {
			g.resolved[key] = id
			hits++
		}
	}
	if len(g.items) > 0 {
		metrics.RecordCacheHits(g.name, hits)
		metrics.RecordCacheMisses(g.name, len(g.items)-hits)
	}
}

// fetch issues one backend call for the pending items: a lookup, or an
// insert when insert is set. Only ids the backend returned are merged and
// cached; a failed call leaves the group untouched and its error is
// returned as the backend reported it.
func (g *group[T]) fetch(insert bool) error {
	items := g.pending()
	if len(items) == 0 {
		return nil
	}

	op, call := "lookup", g.lookUp
	if insert {
		op, call = "insert", g.insert
	}
	metrics.RecordBackendBatch(g.name, op)

	ids, err := call(items)
	if err != nil {
		return err
	}
	for _, item := range items {
		key := g.keyOf(item)
		id, ok := ids[key]
		if !ok {
			continue
		}
		g.resolved[key] = id
		g.remember(item, id)
	}
	return nil
}

// reverseGroup is the pending work for one table during a batched decode
type reverseGroup[V any] struct {
	name     string
	ids      map[int64]struct{}
	resolved map[int64]V

	cached   func(id int64) (V, bool)
	lookUp   func(ids []int64) (map[int64]V, error)
	remember func(id int64, value V)
}

func (g *reverseGroup[V]) add(id int64) {
	if g.ids == nil {
		g.ids = make(map[int64]struct{})
	}
	g.ids[id] = struct{}{}
}

func (g *reverseGroup[V]) fetch() error {
	g.resolved = make(map[int64]V, len(g.ids))
	var missing []int64
	for id := range g.ids {
		if v, ok := g.cached(id); ok {
			g.resolved[id] = v
			continue
		}
		missing = append(missing, id)
	}
	if len(g.ids) > 0 {
		metrics.RecordCacheHits(g.name, len(g.ids)-len(missing))
		metrics.RecordCacheMisses(g.name, len(missing))
	}
	if len(missing) == 0 {
		return nil
	}

	metrics.RecordBackendBatch(g.name, "decode")
	values, err := g.lookUp(missing)
	if err != nil {
		return err
	}
	for id, v := range values {
		g.resolved[id] = v
		g.remember(id, v)
	}
	return nil
}
