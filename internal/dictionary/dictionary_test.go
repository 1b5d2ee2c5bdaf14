package dictionary

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/mediakg/internal/storage"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// countingBackend counts the string and prefix table calls that reach the
// wrapped backend and can be switched into failing them
type countingBackend struct {
	store.Backend

	stringLookUps atomic.Int32
	stringInserts atomic.Int32
	prefixLookUps atomic.Int32
	doubleLookUps atomic.Int32
	fail          atomic.Bool
}

var errBackendDown = errors.New("backend down")

func (b *countingBackend) LookUpStringLiteralIDs(values []string) (map[string]int64, error) {
	b.stringLookUps.Add(1)
	if b.fail.Load() {
		return nil, errBackendDown
	}
	return b.Backend.LookUpStringLiteralIDs(values)
}

func (b *countingBackend) InsertStringLiterals(values []string) (map[string]int64, error) {
	b.stringInserts.Add(1)
	if b.fail.Load() {
		return nil, errBackendDown
	}
	return b.Backend.InsertStringLiterals(values)
}

func (b *countingBackend) LookUpPrefixIDs(prefixes []string) (map[string]int64, error) {
	b.prefixLookUps.Add(1)
	return b.Backend.LookUpPrefixIDs(prefixes)
}

func (b *countingBackend) LookUpDoubleLiteralIDs(values []float64) (map[uint64]int64, error) {
	b.doubleLookUps.Add(1)
	return b.Backend.LookUpDoubleLiteralIDs(values)
}

func (b *countingBackend) calls() int32 {
	return b.stringLookUps.Load() + b.stringInserts.Load() + b.prefixLookUps.Load() + b.doubleLookUps.Load()
}

func newTestDictionary(t *testing.T) (*Dictionary, *countingBackend) {
	t.Helper()
	kv, err := storage.OpenBadger("", nil)
	require.NoError(t, err)
	backend := &countingBackend{Backend: kv}
	d, err := New(backend, 1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Close()
		_ = kv.Close()
	})
	return d, backend
}

func allVariants() []model.Value {
	return []model.Value{
		model.StringValue("agra"),
		model.StringValue(""),
		model.LongValue(-42),
		model.DoubleValue(3.25),
		model.DoubleValue(math.Inf(-1)),
		model.NewURIValue("http://example.org/ns#thing"),
		model.URIValue{Prefix: "", Suffix: "bare"},
		model.NewLocalURIValue("media/1"),
		model.NewDoubleVector(0.5, -1, 2),
		model.NewLongVector(1, 2, 3, 4),
		model.NewDoubleVector(),
	}
}

func TestResolveOrInsertIDRoundTrip(t *testing.T) {
	d, _ := newTestDictionary(t)

	for _, v := range allVariants() {
		t.Run(v.Type().String()+" "+v.String(), func(t *testing.T) {
			first, err := d.ResolveOrInsertID(v)
			require.NoError(t, err)
			second, err := d.ResolveOrInsertID(v)
			require.NoError(t, err)
			assert.Equal(t, first, second)

			decoded, ok, err := d.Decode(first)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, model.Equal(v, decoded), "decoded %s, want %s", decoded, v)
		})
	}
}

func TestDiscriminators(t *testing.T) {
	d, _ := newTestDictionary(t)

	cases := []struct {
		value model.Value
		check func(id store.QuadValueID) bool
	}{
		{model.LongValue(7), func(id store.QuadValueID) bool { return id.Type == store.TypeLong && id.ID == 7 }},
		{model.DoubleValue(1.5), func(id store.QuadValueID) bool { return id.Type == store.TypeDouble && id.ID >= 1 }},
		{model.StringValue("x"), func(id store.QuadValueID) bool { return id.Type == store.TypeString && id.ID >= 1 }},
		{model.NewLocalURIValue("a"), func(id store.QuadValueID) bool { return id.Type == store.TypeLocalURI && id.ID >= 1 }},
		{model.NewURIValue("http://ex.org/a"), func(id store.QuadValueID) bool { return id.IsURI() && id.ID >= 1 }},
		{model.NewLongVector(1, 2), func(id store.QuadValueID) bool { return id.Type == store.VectorType(model.VectorKindLong, 2) }},
	}
	for _, tc := range cases {
		id, err := d.ResolveOrInsertID(tc.value)
		require.NoError(t, err)
		assert.True(t, tc.check(id), "unexpected id %s for %s", id, tc.value)
	}
}

func TestLongValuesSkipTheBackend(t *testing.T) {
	d, backend := newTestDictionary(t)

	id, err := d.ResolveOrInsertID(model.LongValue(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, store.QuadValueID{Type: store.TypeLong, ID: math.MaxInt64}, id)

	ids, err := d.ResolveOrInsertIDs([]model.Value{model.LongValue(1), model.LongValue(2)}, true)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Zero(t, backend.calls())
}

func TestProbeDoesNotInsert(t *testing.T) {
	d, backend := newTestDictionary(t)

	p, err := d.ProbeID(model.StringValue("unknown"))
	require.NoError(t, err)
	assert.False(t, p.HasID)
	_, ok := p.Resolved()
	assert.False(t, ok)

	found, err := backend.Backend.LookUpStringLiteralIDs([]string{"unknown"})
	require.NoError(t, err)
	assert.Empty(t, found)

	// a URI with a known prefix but an unknown suffix is partially resolved
	_, err = d.ResolveOrInsertID(model.NewURIValue("http://ex.org/known"))
	require.NoError(t, err)
	p, err = d.ProbeID(model.NewURIValue("http://ex.org/other"))
	require.NoError(t, err)
	assert.True(t, p.HasType)
	assert.False(t, p.HasID)
	_, ok = p.Resolved()
	assert.False(t, ok)
}

func TestResolveWithoutInsertLeavesDictionaryUnchanged(t *testing.T) {
	d, backend := newTestDictionary(t)

	ids, err := d.ResolveOrInsertIDs([]model.Value{
		model.StringValue("a"),
		model.NewURIValue("http://ex.org/b"),
		model.NewLocalURIValue("c"),
	}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, backend.stringInserts.Load())

	found, err := backend.Backend.LookUpSuffixIDs([]string{"b", "c"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestResolveOrInsertIDsBatchesPerGroup(t *testing.T) {
	d, backend := newTestDictionary(t)

	values := []model.Value{
		model.StringValue("a"), model.StringValue("b"), model.StringValue("c"),
		model.StringValue("a"),
		model.NewURIValue("http://ex.org/x"), model.NewURIValue("http://ex.org/y"),
		model.DoubleValue(1), model.DoubleValue(2),
	}
	ids, err := d.ResolveOrInsertIDs(values, true)
	require.NoError(t, err)
	assert.Len(t, ids, 7)

	assert.Equal(t, int32(1), backend.stringLookUps.Load())
	assert.Equal(t, int32(1), backend.stringInserts.Load())
	assert.Equal(t, int32(1), backend.prefixLookUps.Load())
	assert.Equal(t, int32(1), backend.doubleLookUps.Load())

	// every value is cached now
	d.cache.Wait()
	before := backend.calls()
	again, err := d.ResolveOrInsertIDs(values, true)
	require.NoError(t, err)
	assert.Equal(t, ids, again)
	assert.Equal(t, before, backend.calls())
}

func TestBackendFailureIsNotCached(t *testing.T) {
	d, backend := newTestDictionary(t)

	backend.fail.Store(true)
	_, err := d.ResolveOrInsertIDs([]model.Value{model.StringValue("flaky")}, true)
	require.ErrorIs(t, err, errBackendDown)
	assert.Same(t, errBackendDown, err)

	backend.fail.Store(false)
	id, err := d.ResolveOrInsertID(model.StringValue("flaky"))
	require.NoError(t, err)
	assert.Equal(t, store.TypeString, id.Type)
}

func TestDecodeManyUnknownIDs(t *testing.T) {
	d, _ := newTestDictionary(t)

	known, err := d.ResolveOrInsertID(model.StringValue("known"))
	require.NoError(t, err)

	unknown := []store.QuadValueID{
		{Type: store.TypeString, ID: 999},
		{Type: store.TypeDouble, ID: 1},
		{Type: 77, ID: 1},
		{Type: store.VectorType(model.VectorKindDouble, 3), ID: 5},
	}
	values, err := d.DecodeMany(append(unknown, known, store.QuadValueID{Type: store.TypeLong, ID: 3}))
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Equal(t, model.StringValue("known"), values[known])
	assert.Equal(t, model.LongValue(3), values[store.QuadValueID{Type: store.TypeLong, ID: 3}])
}

func TestAddQuadCoalescesDuplicates(t *testing.T) {
	d, _ := newTestDictionary(t)

	q := model.NewQuad(model.NewURIValue("http://ex.org/1"), model.NewURIValue("http://ex.org/hasName"), model.StringValue("agra"))
	id, inserted, err := d.AddQuad(q)
	require.NoError(t, err)
	assert.True(t, inserted)

	again, inserted, err := d.AddQuad(q)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id, again)

	found, ok, err := d.FindQuadID(q)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, found)

	_, ok, err = d.FindQuadID(model.NewQuad(q.Subject, q.Predicate, model.StringValue("unknown")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentAddQuad(t *testing.T) {
	d, backend := newTestDictionary(t)

	q := model.NewQuad(model.NewLocalURIValue("m"), model.NewLocalURIValue("p"), model.DoubleValue(0.5))
	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		ids      sync.Map
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok, err := d.AddQuad(q)
			assert.NoError(t, err)
			if ok {
				inserted.Add(1)
			}
			ids.Store(id, struct{}{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
	distinct := 0
	ids.Range(func(any, any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)

	n, err := backend.CountQuads()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAddQuadsCountsNewRows(t *testing.T) {
	d, _ := newTestDictionary(t)

	p := model.NewURIValue("http://ex.org/p")
	quads := []model.Quad{
		model.NewQuad(model.NewLocalURIValue("a"), p, model.LongValue(1)),
		model.NewQuad(model.NewLocalURIValue("b"), p, model.LongValue(2)),
		model.NewQuad(model.NewLocalURIValue("a"), p, model.LongValue(1)),
	}
	n, err := d.AddQuads(quads)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.AddQuads(quads)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestURISplitDoesNotChangeIdentity(t *testing.T) {
	d, _ := newTestDictionary(t)

	slash := model.URIValue{Prefix: "http://ex.org/", Suffix: "a"}
	host := model.URIValue{Prefix: "http://ex.org", Suffix: "/a"}
	whole := model.URIValue{Prefix: "", Suffix: "http://ex.org/a"}

	id, err := d.ResolveOrInsertID(slash)
	require.NoError(t, err)
	for _, v := range []model.Value{host, whole} {
		other, err := d.ResolveOrInsertID(v)
		require.NoError(t, err)
		assert.Equal(t, id, other, "%#v", v)
	}

	p, err := d.ProbeID(host)
	require.NoError(t, err)
	resolved, ok := p.Resolved()
	require.True(t, ok)
	assert.Equal(t, id, resolved)

	decoded, ok, err := d.Decode(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, slash, decoded)
}
