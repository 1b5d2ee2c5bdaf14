package storage

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aleksaelezovic/mediakg/internal/encoding"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

func newTestBackend(t *testing.T) *KVBackend {
	t.Helper()
	backend, err := OpenBadger(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestBadgerStorageTransactions(t *testing.T) {
	storage, err := NewBadgerStorage("", nil)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer storage.Close()

	txn, err := storage.Begin(true)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	if err := txn.Set(store.TableStringLiteral, []byte("a1"), []byte("x")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := txn.Set(store.TableStringLiteral, []byte("a2"), []byte("y")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := txn.Set(store.TableStringLiteral, []byte("b1"), []byte("z")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := txn.Set(store.TablePrefix, []byte("a3"), []byte("other table")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	ro, err := storage.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer ro.Rollback()

	if err := ro.Set(store.TableStringLiteral, []byte("c"), nil); !errors.Is(err, store.ErrTransactionRO) {
		t.Errorf("expected ErrTransactionRO, got %v", err)
	}
	if _, err := ro.Get(store.TableStringLiteral, []byte("missing")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	it, err := ro.Scan(store.TableStringLiteral, []byte("a"))
	if err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if len(keys) != 2 || keys[0] != "a1" || keys[1] != "a2" {
		t.Errorf("expected [a1 a2], got %v", keys)
	}
}

func TestBadgerStorageConflict(t *testing.T) {
	storage, err := NewBadgerStorage("", nil)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer storage.Close()

	first, _ := storage.Begin(true)
	second, _ := storage.Begin(true)

	for _, txn := range []store.Transaction{first, second} {
		if _, err := txn.Get(store.TableQuadHash, []byte("h")); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := txn.Set(store.TableQuadHash, []byte("h"), []byte("1")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
	}

	if err := first.Commit(); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if err := second.Commit(); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

// conflictingStorage fails every write commit with ErrConflict
type conflictingStorage struct {
	store.Storage
	commits atomic.Int32
}

type conflictingTxn struct {
	store.Transaction
	storage *conflictingStorage
}

func (s *conflictingStorage) Begin(writable bool) (store.Transaction, error) {
	txn, err := s.Storage.Begin(writable)
	if err != nil || !writable {
		return txn, err
	}
	return &conflictingTxn{Transaction: txn, storage: s}, nil
}

func (t *conflictingTxn) Commit() error {
	t.storage.commits.Add(1)
	_ = t.Transaction.Rollback()
	return store.ErrConflict
}

func TestPersistentConflictIsCoded(t *testing.T) {
	inner, err := NewBadgerStorage("", nil)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	storage := &conflictingStorage{Storage: inner}
	backend := NewKVBackend(storage, nil)
	defer backend.Close()

	_, err = backend.InsertStringLiterals([]string{"agra"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !kgerr.HasCode(err, kgerr.CodeStoreConflict) {
		t.Errorf("expected code %s, got %q", kgerr.CodeStoreConflict, kgerr.CodeOf(err))
	}
	if got := storage.commits.Load(); got != maxConflictAttempts {
		t.Errorf("expected %d commit attempts, got %d", maxConflictAttempts, got)
	}
}

func TestBadgerStorageSequences(t *testing.T) {
	storage, err := NewBadgerStorage("", nil)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer storage.Close()

	for want := int64(1); want <= 3; want++ {
		id, err := storage.NextID(store.TableQuad)
		if err != nil {
			t.Fatalf("failed to get id: %v", err)
		}
		if id != want {
			t.Errorf("expected id %d, got %d", want, id)
		}
	}

	id, err := storage.NextID(store.TableStringLiteral)
	if err != nil {
		t.Fatalf("failed to get id: %v", err)
	}
	if id != 1 {
		t.Errorf("expected independent sequence to start at 1, got %d", id)
	}
}

func TestDictionaryInsertIsDeduplicated(t *testing.T) {
	backend := newTestBackend(t)

	first, err := backend.InsertStringLiterals([]string{"agra", "delhi"})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	second, err := backend.InsertStringLiterals([]string{"delhi", "mumbai"})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if first["delhi"] != second["delhi"] {
		t.Errorf("expected delhi to keep id %d, got %d", first["delhi"], second["delhi"])
	}
	if second["mumbai"] == first["agra"] || second["mumbai"] == first["delhi"] {
		t.Errorf("mumbai reused an existing id: %d", second["mumbai"])
	}

	found, err := backend.LookUpStringLiteralIDs([]string{"agra", "unknown"})
	if err != nil {
		t.Fatalf("failed to look up: %v", err)
	}
	if len(found) != 1 || found["agra"] != first["agra"] {
		t.Errorf("expected only agra to resolve, got %v", found)
	}

	values, err := backend.LookUpStringLiterals([]int64{first["agra"], 9999})
	if err != nil {
		t.Fatalf("failed to look up values: %v", err)
	}
	if len(values) != 1 || values[first["agra"]] != "agra" {
		t.Errorf("unexpected reverse lookup: %v", values)
	}
}

func TestDoubleLiteralsKeepSignedZero(t *testing.T) {
	backend := newTestBackend(t)

	negZero := math.Copysign(0, -1)
	ids, err := backend.InsertDoubleLiterals([]float64{0, negZero})
	if err != nil {
		t.Fatalf("failed to insert doubles: %v", err)
	}
	if len(ids) != 2 || ids[math.Float64bits(0)] == ids[math.Float64bits(negZero)] {
		t.Fatalf("expected distinct ids for 0 and -0, got %v", ids)
	}

	found, err := backend.LookUpDoubleLiteralIDs([]float64{negZero})
	if err != nil {
		t.Fatalf("failed to look up doubles: %v", err)
	}
	if found[math.Float64bits(negZero)] != ids[math.Float64bits(negZero)] {
		t.Errorf("expected -0 to resolve to %d, got %v", ids[math.Float64bits(negZero)], found)
	}
}

func TestDictionaryLongStringsAndVectors(t *testing.T) {
	backend := newTestBackend(t)

	long := "a caption that is well beyond the inline key size of the dictionary"
	ids, err := backend.InsertSuffixes([]string{long})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	values, err := backend.LookUpSuffixes([]int64{ids[long]})
	if err != nil {
		t.Fatalf("failed to look up: %v", err)
	}
	if values[ids[long]] != long {
		t.Errorf("expected %q, got %q", long, values[ids[long]])
	}

	vectors := []model.VectorValue{
		model.DoubleVectorValue{0.1, 0.2, 0.3, 0.4},
		model.DoubleVectorValue{1, 0, 0, 0},
	}
	vectorIDs, err := backend.InsertVectors(vectors)
	if err != nil {
		t.Fatalf("failed to insert vectors: %v", err)
	}
	vectorType := store.VectorTypeOf(vectors[0])
	decoded, err := backend.LookUpVectors(vectorType, []int64{vectorIDs[vectors[0].Key()]})
	if err != nil {
		t.Fatalf("failed to look up vectors: %v", err)
	}
	if got := decoded[vectorIDs[vectors[0].Key()]]; got == nil || !got.Equals(vectors[0]) {
		t.Errorf("expected %v, got %v", vectors[0], got)
	}

	if _, err := backend.InsertVectors([]model.VectorValue{model.DoubleVectorValue{1}, model.LongVectorValue{1}}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for mixed shapes, got %v", err)
	}

	doubles, err := backend.InsertDoubleLiterals([]float64{0.5, -2})
	if err != nil {
		t.Fatalf("failed to insert doubles: %v", err)
	}
	minusTwo := doubles[math.Float64bits(-2)]
	reverse, err := backend.LookUpDoubleLiterals([]int64{minusTwo})
	if err != nil {
		t.Fatalf("failed to look up doubles: %v", err)
	}
	if reverse[minusTwo] != -2 {
		t.Errorf("expected -2, got %v", reverse[minusTwo])
	}
}

func TestQuadInsertFilterAndRemove(t *testing.T) {
	backend := newTestBackend(t)

	alice := store.QuadValueID{Type: 1, ID: 1}
	bob := store.QuadValueID{Type: 1, ID: 2}
	name := store.QuadValueID{Type: 1, ID: 3}
	age := store.QuadValueID{Type: 1, ID: 4}
	aliceName := store.QuadValueID{Type: store.TypeString, ID: 1}
	bobName := store.QuadValueID{Type: store.TypeString, ID: 2}
	thirty := store.QuadValueID{Type: store.TypeLong, ID: 30}

	rows := [][3]store.QuadValueID{
		{alice, name, aliceName},
		{bob, name, bobName},
		{alice, age, thirty},
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		id, inserted, err := backend.InsertQuad(encoding.IdentityHash(r[0], r[1], r[2]), r[0], r[1], r[2])
		if err != nil {
			t.Fatalf("failed to insert quad: %v", err)
		}
		if !inserted {
			t.Errorf("expected quad %d to be inserted", i)
		}
		ids[i] = id
	}

	// Duplicate insert returns the existing row
	id, inserted, err := backend.InsertQuad(encoding.IdentityHash(alice, name, aliceName), alice, name, aliceName)
	if err != nil {
		t.Fatalf("failed to insert duplicate: %v", err)
	}
	if inserted || id != ids[0] {
		t.Errorf("expected duplicate to return id %d, got %d (inserted=%v)", ids[0], id, inserted)
	}

	count, err := backend.CountQuads()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	bySubject, err := backend.FilterQuads([]store.QuadValueID{alice}, nil, nil)
	if err != nil {
		t.Fatalf("failed to filter: %v", err)
	}
	if len(bySubject) != 2 {
		t.Errorf("expected 2 quads for alice, got %d", len(bySubject))
	}

	byBoth, err := backend.FilterQuads([]store.QuadValueID{alice, bob}, []store.QuadValueID{name}, nil)
	if err != nil {
		t.Fatalf("failed to filter: %v", err)
	}
	if len(byBoth) != 2 {
		t.Errorf("expected 2 name quads, got %d", len(byBoth))
	}

	none, err := backend.FilterQuads([]store.QuadValueID{}, nil, nil)
	if err != nil {
		t.Fatalf("failed to filter: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty constraint to match nothing, got %d", len(none))
	}

	removed, err := backend.RemoveQuads([]int64{ids[0], 9999})
	if err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	if _, found, _ := backend.FindQuadID(encoding.IdentityHash(alice, name, aliceName)); found {
		t.Error("identity hash of removed quad should be gone")
	}
	byObject, err := backend.FilterQuads(nil, nil, []store.QuadValueID{aliceName})
	if err != nil {
		t.Fatalf("failed to filter: %v", err)
	}
	if len(byObject) != 0 {
		t.Errorf("object index still references removed quad: %v", byObject)
	}

	if err := backend.ClearQuads(); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	count, err = backend.CountQuads()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store after clear, got %d", count)
	}

	// Dictionary rows survive a clear
	if _, err := backend.InsertStringLiterals([]string{"kept"}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
}

func TestConcurrentDuplicateInserts(t *testing.T) {
	backend := newTestBackend(t)

	s := store.QuadValueID{Type: store.TypeLocalURI, ID: 1}
	p := store.QuadValueID{Type: store.TypeLocalURI, ID: 2}
	o := store.QuadValueID{Type: store.TypeString, ID: 3}
	hash := encoding.IdentityHash(s, p, o)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ids      = map[int64]bool{}
		inserted int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok, err := backend.InsertQuad(hash, s, p, o)
			if err != nil {
				t.Errorf("insert failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[id] = true
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Errorf("expected all inserts to agree on one id, got %v", ids)
	}
	if inserted != 1 {
		t.Errorf("expected exactly one insert to win, got %d", inserted)
	}
	count, err := backend.CountQuads()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one row, got %d", count)
	}
}

func TestBackendReopen(t *testing.T) {
	dir := t.TempDir()
	backend, err := OpenBadger(dir, nil)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	ids, err := backend.InsertPrefixes([]string{"http://example.org/"})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	backend, err = OpenBadger(dir, nil)
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer backend.Close()

	found, err := backend.LookUpPrefixIDs([]string{"http://example.org/"})
	if err != nil {
		t.Fatalf("failed to look up: %v", err)
	}
	if found["http://example.org/"] != ids["http://example.org/"] {
		t.Errorf("expected id %d after reopen, got %d", ids["http://example.org/"], found["http://example.org/"])
	}

	more, err := backend.InsertPrefixes([]string{"http://example.com/"})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if more["http://example.com/"] == ids["http://example.org/"] {
		t.Error("id handed out twice across reopen")
	}
}
