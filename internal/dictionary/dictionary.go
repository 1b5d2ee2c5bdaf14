// Package dictionary encodes values into compact (type, id) references and
// back, on top of any store.Backend.
package dictionary

import (
	"log/slog"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/aleksaelezovic/mediakg/internal/cache"
	"github.com/aleksaelezovic/mediakg/internal/encoding"
	"github.com/aleksaelezovic/mediakg/internal/metrics"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// Dictionary resolves values to QuadValueIDs and decodes them again. The
// backend is the source of truth; the cache only saves round trips and
// never holds negative results.
// It is safe for concurrent use.
type Dictionary struct {
	backend store.Backend
	cache   *cache.ValueCache
	logger  *slog.Logger
}

// New creates a dictionary with caches of cacheSize entries per category
// and direction
func New(backend store.Backend, cacheSize int64, logger *slog.Logger) (*Dictionary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vc, err := cache.NewValueCache(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Dictionary{backend: backend, cache: vc, logger: logger}, nil
}

// Close releases the caches. The backend is not closed.
func (d *Dictionary) Close() {
	d.cache.Close()
}

// PartialID is the result of a probe. For an external URI the type is the
// prefix id and the id is the suffix id, and either may be missing.
type PartialID struct {
	Type    int32
	HasType bool
	ID      int64
	HasID   bool
}

// Resolved returns the complete id if both components are known
func (p PartialID) Resolved() (store.QuadValueID, bool) {
	if !p.HasType || !p.HasID {
		return store.QuadValueID{}, false
	}
	return store.QuadValueID{Type: p.Type, ID: p.ID}, true
}

func doubleKey(f float64) string {
	return strconv.FormatUint(math.Float64bits(f), 16)
}

func identity(s string) string { return s }

func vectorKey(v model.VectorValue) string { return v.Key() }

// batch groups the dictionary work for a set of values by table
type batch struct {
	doubles  *group[float64]
	strings  *group[string]
	prefixes *group[string]
	suffixes *group[string]
	vectors  map[int32]*group[model.VectorValue]
}

func (d *Dictionary) newBatch() *batch {
	b := d.backend
	vc := d.cache
	return &batch{
		doubles: &group[float64]{
			name:   "double",
			keyOf:  doubleKey,
			cached: func(f float64) (int64, bool) { return vc.Doubles.ID(math.Float64bits(f)) },
			lookUp: func(items []float64) (map[string]int64, error) {
				return byDoubleKey(b.LookUpDoubleLiteralIDs(items))
			},
			insert: func(items []float64) (map[string]int64, error) {
				return byDoubleKey(b.InsertDoubleLiterals(items))
			},
			remember: func(f float64, id int64) { vc.Doubles.Put(math.Float64bits(f), id, id, f) },
		},
		strings:  stringGroup("string", vc.Strings, b.LookUpStringLiteralIDs, b.InsertStringLiterals),
		prefixes: stringGroup("prefix", vc.Prefixes, b.LookUpPrefixIDs, b.InsertPrefixes),
		suffixes: stringGroup("suffix", vc.Suffixes, b.LookUpSuffixIDs, b.InsertSuffixes),
		vectors:  make(map[int32]*group[model.VectorValue]),
	}
}

func stringGroup(name string, m *cache.Mapping[string, int64, string], lookUp, insert func([]string) (map[string]int64, error)) *group[string] {
	return &group[string]{
		name:     name,
		keyOf:    identity,
		cached:   m.ID,
		lookUp:   lookUp,
		insert:   insert,
		remember: func(s string, id int64) { m.Put(s, id, id, s) },
	}
}

// byDoubleKey rekeys a double primitive result by doubleKey
func byDoubleKey(ids map[uint64]int64, err error) (map[string]int64, error) {
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(ids))
	for bits, id := range ids {
		out[strconv.FormatUint(bits, 16)] = id
	}
	return out, nil
}

func (d *Dictionary) vectorGroup(bt *batch, vectorType int32) *group[model.VectorValue] {
	if g, ok := bt.vectors[vectorType]; ok {
		return g
	}
	vc := d.cache.Vectors
	g := &group[model.VectorValue]{
		name:   "vector",
		keyOf:  vectorKey,
		cached: func(v model.VectorValue) (int64, bool) { return vc.ID(v.Key()) },
		lookUp: d.backend.LookUpVectorIDs,
		insert: d.backend.InsertVectors,
		remember: func(v model.VectorValue, id int64) {
			vc.Put(v.Key(), cache.VectorID(vectorType, id), id, v)
		},
	}
	bt.vectors[vectorType] = g
	return g
}

// canonical re-splits external URIs so that equal URIs always map to the
// same prefix and suffix rows
func canonical(v model.Value) model.Value {
	if u, ok := v.(model.URIValue); ok {
		return model.NewURIValue(u.URI())
	}
	return v
}

// add partitions v into the groups it needs
func (d *Dictionary) add(bt *batch, v model.Value) {
	switch v := canonical(v).(type) {
	case model.LongValue:
		// inline, no table
	case model.DoubleValue:
		bt.doubles.add(doubleKey(float64(v)), float64(v))
	case model.StringValue:
		bt.strings.add(string(v), string(v))
	case model.URIValue:
		bt.prefixes.add(v.Prefix, v.Prefix)
		bt.suffixes.add(v.Suffix, v.Suffix)
	case model.LocalURIValue:
		bt.suffixes.add(v.Suffix, v.Suffix)
	case model.VectorValue:
		d.vectorGroup(bt, store.VectorTypeOf(v)).add(v.Key(), v)
	}
}

type resolver interface {
	stripCached()
	fetch(insert bool) error
}

func (bt *batch) groups() []resolver {
	out := []resolver{bt.doubles, bt.strings, bt.prefixes, bt.suffixes}
	for _, g := range bt.vectors {
		out = append(out, g)
	}
	return out
}

// run resolves every group: cache first, then one concurrent backend
// lookup per group, then, if insert is set, one insert per group for what
// is still missing
func (bt *batch) run(insert bool) error {
	groups := bt.groups()
	for _, g := range groups {
		g.stripCached()
	}

	var eg errgroup.Group
	for _, g := range groups {
		eg.Go(func() error { return g.fetch(false) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if !insert {
		return nil
	}

	for _, g := range groups {
		eg.Go(func() error { return g.fetch(true) })
	}
	return eg.Wait()
}

// partial assembles the probe result of v from a finished batch
func (bt *batch) partial(v model.Value) PartialID {
	switch v := canonical(v).(type) {
	case model.LongValue:
		return PartialID{Type: store.TypeLong, HasType: true, ID: int64(v), HasID: true}
	case model.DoubleValue:
		id, ok := bt.doubles.resolved[doubleKey(float64(v))]
		return PartialID{Type: store.TypeDouble, HasType: true, ID: id, HasID: ok}
	case model.StringValue:
		id, ok := bt.strings.resolved[string(v)]
		return PartialID{Type: store.TypeString, HasType: true, ID: id, HasID: ok}
	case model.URIValue:
		prefix, hasPrefix := bt.prefixes.resolved[v.Prefix]
		suffix, hasSuffix := bt.suffixes.resolved[v.Suffix]
		if prefix > math.MaxInt32 {
			hasPrefix = false
		}
		return PartialID{Type: int32(prefix), HasType: hasPrefix, ID: suffix, HasID: hasSuffix} // #nosec G115 - checked above
	case model.LocalURIValue:
		id, ok := bt.suffixes.resolved[v.Suffix]
		return PartialID{Type: store.TypeLocalURI, HasType: true, ID: id, HasID: ok}
	case model.VectorValue:
		vectorType := store.VectorTypeOf(v)
		var id int64
		ok := false
		if g, exists := bt.vectors[vectorType]; exists {
			id, ok = g.resolved[v.Key()]
		}
		return PartialID{Type: vectorType, HasType: true, ID: id, HasID: ok}
	default:
		return PartialID{}
	}
}

// ProbeID looks v up without inserting anything
func (d *Dictionary) ProbeID(v model.Value) (PartialID, error) {
	bt := d.newBatch()
	d.add(bt, v)
	if err := bt.run(false); err != nil {
		return PartialID{}, err
	}
	return bt.partial(v), nil
}

// ResolveOrInsertID returns the id of v, inserting it into the dictionary
// if needed. Long values never touch the backend.
func (d *Dictionary) ResolveOrInsertID(v model.Value) (store.QuadValueID, error) {
	if n, ok := v.(model.LongValue); ok {
		return store.QuadValueID{Type: store.TypeLong, ID: int64(n)}, nil
	}
	ids, err := d.ResolveOrInsertIDs([]model.Value{v}, true)
	if err != nil {
		return store.QuadValueID{}, err
	}
	return ids[v.Key()], nil
}

// ResolveOrInsertIDs resolves a batch of values with one backend call per
// table. The result is keyed by model.Value.Key. Without insertRemaining,
// values the dictionary does not know are absent from the result and the
// dictionary is left unchanged; with it, every value resolves.
func (d *Dictionary) ResolveOrInsertIDs(values []model.Value, insertRemaining bool) (map[string]store.QuadValueID, error) {
	bt := d.newBatch()
	for _, v := range values {
		d.add(bt, v)
	}
	if err := bt.run(insertRemaining); err != nil {
		return nil, err
	}

	result := make(map[string]store.QuadValueID, len(values))
	for _, v := range values {
		id, ok := bt.partial(v).Resolved()
		if !ok {
			if insertRemaining {
				return nil, kgerr.New(kgerr.CodeStoreDictionaryFailure, "backend assigned no id",
					kgerr.Field("value", v.String()))
			}
			continue
		}
		result[v.Key()] = id
	}
	return result, nil
}

// Decode returns the value id refers to
func (d *Dictionary) Decode(id store.QuadValueID) (model.Value, bool, error) {
	values, err := d.DecodeMany([]store.QuadValueID{id})
	if err != nil {
		return nil, false, err
	}
	v, ok := values[id]
	return v, ok, nil
}

// DecodeMany decodes a batch of ids with one backend call per table.
// Unknown ids are absent from the result.
func (d *Dictionary) DecodeMany(ids []store.QuadValueID) (map[store.QuadValueID]model.Value, error) {
	vc := d.cache
	b := d.backend

	doubles := &reverseGroup[float64]{
		name:     "double",
		cached:   vc.Doubles.Value,
		lookUp:   b.LookUpDoubleLiterals,
		remember: func(id int64, f float64) { vc.Doubles.Put(math.Float64bits(f), id, id, f) },
	}
	strs := reverseStringGroup("string", vc.Strings, b.LookUpStringLiterals)
	prefixes := reverseStringGroup("prefix", vc.Prefixes, b.LookUpPrefixes)
	suffixes := reverseStringGroup("suffix", vc.Suffixes, b.LookUpSuffixes)
	vectors := make(map[int32]*reverseGroup[model.VectorValue])

	for _, id := range ids {
		switch {
		case id.Type == store.TypeLong:
		case id.Type == store.TypeDouble:
			doubles.add(id.ID)
		case id.Type == store.TypeString:
			strs.add(id.ID)
		case id.Type == store.TypeLocalURI:
			suffixes.add(id.ID)
		case id.IsURI():
			prefixes.add(int64(id.Type))
			suffixes.add(id.ID)
		case id.IsVector():
			g, ok := vectors[id.Type]
			if !ok {
				g = d.reverseVectorGroup(id.Type)
				vectors[id.Type] = g
			}
			g.add(id.ID)
		}
	}

	var eg errgroup.Group
	eg.Go(doubles.fetch)
	eg.Go(strs.fetch)
	eg.Go(prefixes.fetch)
	eg.Go(suffixes.fetch)
	for _, g := range vectors {
		eg.Go(g.fetch)
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result := make(map[store.QuadValueID]model.Value, len(ids))
	for _, id := range ids {
		var (
			v  model.Value
			ok bool
		)
		switch {
		case id.Type == store.TypeLong:
			v, ok = model.LongValue(id.ID), true
		case id.Type == store.TypeDouble:
			var f float64
			f, ok = doubles.resolved[id.ID]
			v = model.DoubleValue(f)
		case id.Type == store.TypeString:
			var s string
			s, ok = strs.resolved[id.ID]
			v = model.StringValue(s)
		case id.Type == store.TypeLocalURI:
			var s string
			s, ok = suffixes.resolved[id.ID]
			v = model.LocalURIValue{Suffix: s}
		case id.IsURI():
			prefix, hasPrefix := prefixes.resolved[int64(id.Type)]
			suffix, hasSuffix := suffixes.resolved[id.ID]
			v, ok = model.URIValue{Prefix: prefix, Suffix: suffix}, hasPrefix && hasSuffix
		case id.IsVector():
			var vec model.VectorValue
			vec, ok = vectors[id.Type].resolved[id.ID]
			v = vec
		}
		if ok {
			result[id] = v
		}
	}
	return result, nil
}

func reverseStringGroup(name string, m *cache.Mapping[string, int64, string], lookUp func([]int64) (map[int64]string, error)) *reverseGroup[string] {
	return &reverseGroup[string]{
		name:     name,
		cached:   m.Value,
		lookUp:   lookUp,
		remember: func(id int64, s string) { m.Put(s, id, id, s) },
	}
}

func (d *Dictionary) reverseVectorGroup(vectorType int32) *reverseGroup[model.VectorValue] {
	vc := d.cache.Vectors
	return &reverseGroup[model.VectorValue]{
		name:   "vector",
		cached: func(id int64) (model.VectorValue, bool) { return vc.Value(cache.VectorID(vectorType, id)) },
		lookUp: func(ids []int64) (map[int64]model.VectorValue, error) {
			return d.backend.LookUpVectors(vectorType, ids)
		},
		remember: func(id int64, v model.VectorValue) { vc.Put(v.Key(), cache.VectorID(vectorType, id), id, v) },
	}
}

// AddQuad stores q and returns its row id. The component values are
// inserted into the dictionary as needed. inserted is false when a row
// with the same identity hash already existed.
func (d *Dictionary) AddQuad(q model.Quad) (id int64, inserted bool, err error) {
	ids, err := d.ResolveOrInsertIDs([]model.Value{q.Subject, q.Predicate, q.Object}, true)
	if err != nil {
		return 0, false, err
	}
	return d.insertEncoded(ids[q.Subject.Key()], ids[q.Predicate.Key()], ids[q.Object.Key()])
}

// AddQuads stores a batch of quads, resolving all their values in one
// batch. It returns the number of rows actually inserted.
func (d *Dictionary) AddQuads(quads []model.Quad) (int, error) {
	values := make([]model.Value, 0, 3*len(quads))
	for _, q := range quads {
		values = append(values, q.Subject, q.Predicate, q.Object)
	}
	ids, err := d.ResolveOrInsertIDs(values, true)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, q := range quads {
		_, inserted, err := d.insertEncoded(ids[q.Subject.Key()], ids[q.Predicate.Key()], ids[q.Object.Key()])
		if err != nil {
			return n, err
		}
		if inserted {
			n++
		}
	}
	return n, nil
}

// insertEncoded probes the identity hash and inserts the row if absent.
// The probe only saves a write; uniqueness is enforced by the backend.
func (d *Dictionary) insertEncoded(s, p, o store.QuadValueID) (int64, bool, error) {
	hash := encoding.IdentityHash(s, p, o)
	if id, ok, err := d.backend.FindQuadID(hash); err != nil {
		return 0, false, err
	} else if ok {
		metrics.RecordQuadCoalesced()
		return id, false, nil
	}

	id, inserted, err := d.backend.InsertQuad(hash, s, p, o)
	if err != nil {
		return 0, false, err
	}
	if inserted {
		metrics.RecordQuadInserted()
	} else {
		metrics.RecordQuadCoalesced()
		d.logger.Debug("duplicate quad absorbed by backend", "id", id)
	}
	return id, inserted, nil
}

// FindQuadID returns the row id of q without inserting anything
func (d *Dictionary) FindQuadID(q model.Quad) (int64, bool, error) {
	ids, err := d.FindQuadIDs([]model.Quad{q})
	if err != nil {
		return 0, false, err
	}
	id, ok := ids[q.Key()]
	return id, ok, nil
}

// FindQuadIDs returns the row ids of the stored quads among quads, keyed
// by model.Quad.Key
func (d *Dictionary) FindQuadIDs(quads []model.Quad) (map[string]int64, error) {
	values := make([]model.Value, 0, 3*len(quads))
	for _, q := range quads {
		values = append(values, q.Subject, q.Predicate, q.Object)
	}
	ids, err := d.ResolveOrInsertIDs(values, false)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(quads))
	for _, q := range quads {
		s, sok := ids[q.Subject.Key()]
		p, pok := ids[q.Predicate.Key()]
		o, ook := ids[q.Object.Key()]
		if !sok || !pok || !ook {
			continue
		}
		id, found, err := d.backend.FindQuadID(encoding.IdentityHash(s, p, o))
		if err != nil {
			return nil, err
		}
		if found {
			result[q.Key()] = id
		}
	}
	return result, nil
}
