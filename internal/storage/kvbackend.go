package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/aleksaelezovic/mediakg/internal/encoding"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// maxConflictAttempts bounds how often a write transaction that lost a
// race is replayed. A replay re-reads the keys, so it finds the rows the
// winning transaction wrote.
const maxConflictAttempts = 16

// KVBackend implements store.Backend on an ordered key-value Storage.
//
// Every dictionary category has a value -> id table and an id -> value
// table. Quads live in three kinds of tables: the row table keyed by quad
// id, the identity hash table that makes rows unique, and one index table
// per position keyed by (value id, quad id).
type KVBackend struct {
	storage store.Storage
	logger  *slog.Logger
}

// NewKVBackend creates a backend on storage. The backend owns storage and
// closes it on Close.
func NewKVBackend(storage store.Storage, logger *slog.Logger) *KVBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVBackend{storage: storage, logger: logger}
}

// OpenBadger opens a Badger database at path (in memory if path is empty)
// and returns a backend on it
func OpenBadger(path string, logger *slog.Logger) (*KVBackend, error) {
	storage, err := NewBadgerStorage(path, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("opened badger backend", "path", path)
	return NewKVBackend(storage, logger), nil
}

var _ store.Backend = (*KVBackend)(nil)

// view runs fn in a read-only transaction
func (b *KVBackend) view(fn func(txn store.Transaction) error) error {
	txn, err := b.storage.Begin(false)
	if err != nil {
		return err
	}
	defer func() { _ = txn.Rollback() }()
	return fn(txn)
}

// update runs fn in a write transaction, replaying it when the commit
// conflicts with a concurrent writer
func (b *KVBackend) update(fn func(txn store.Transaction) error) error {
	for attempt := 1; ; attempt++ {
		txn, err := b.storage.Begin(true)
		if err != nil {
			return err
		}
		if err := fn(txn); err != nil {
			_ = txn.Rollback()
			return err
		}
		err = txn.Commit()
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}
		if attempt == maxConflictAttempts {
			return kgerr.Wrap(err, kgerr.CodeStoreConflict, "write transaction kept conflicting",
				kgerr.Field("attempts", attempt))
		}
		b.logger.Debug("replaying conflicted transaction", "attempt", attempt)
	}
}

// dictEntry is one value of a dictionary insert: its value -> id key and
// the payload stored under its id
type dictEntry struct {
	key     []byte
	payload []byte
}

// lookUpKeys resolves value -> id keys of table. Missing keys yield 0.
func (b *KVBackend) lookUpKeys(table store.Table, keys [][]byte) ([]int64, error) {
	ids := make([]int64, len(keys))
	err := b.view(func(txn store.Transaction) error {
		for i, key := range keys {
			id, err := getID(txn, table, key)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	return ids, err
}

// insertEntries returns the id of every entry, assigning new ids to the
// entries that are not in valueTable yet. idKey builds the id -> value key.
func (b *KVBackend) insertEntries(valueTable, idTable store.Table, entries []dictEntry, idKey func(id int64) []byte) ([]int64, error) {
	ids := make([]int64, len(entries))
	err := b.update(func(txn store.Transaction) error {
		for i, e := range entries {
			id, err := getID(txn, valueTable, e.key)
			if err != nil {
				return err
			}
			if id == 0 {
				if id, err = b.storage.NextID(valueTable); err != nil {
					return err
				}
				if err := txn.Set(valueTable, e.key, encoding.EncodeID(id)); err != nil {
					return err
				}
				if err := txn.Set(idTable, idKey(id), e.payload); err != nil {
					return err
				}
			}
			ids[i] = id
		}
		return nil
	})
	return ids, err
}

// lookUpPayloads resolves id -> value keys. Missing ids are absent.
func (b *KVBackend) lookUpPayloads(idTable store.Table, ids []int64, idKey func(id int64) []byte) (map[int64][]byte, error) {
	payloads := make(map[int64][]byte, len(ids))
	err := b.view(func(txn store.Transaction) error {
		for _, id := range ids {
			payload, err := txn.Get(idTable, idKey(id))
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			payloads[id] = payload
		}
		return nil
	})
	return payloads, err
}

func getID(txn store.Transaction, table store.Table, key []byte) (int64, error) {
	raw, err := txn.Get(table, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return encoding.DecodeID(raw)
}

// String-valued categories

func stringEntries(values []string) []dictEntry {
	entries := make([]dictEntry, len(values))
	for i, v := range values {
		entries[i] = dictEntry{key: encoding.ContentKey([]byte(v)), payload: []byte(v)}
	}
	return entries
}

func (b *KVBackend) lookUpStrings(table store.Table, values []string) (map[string]int64, error) {
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = encoding.ContentKey([]byte(v))
	}
	ids, err := b.lookUpKeys(table, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(values))
	for i, id := range ids {
		if id != 0 {
			result[values[i]] = id
		}
	}
	return result, nil
}

func (b *KVBackend) insertStrings(valueTable, idTable store.Table, values []string) (map[string]int64, error) {
	ids, err := b.insertEntries(valueTable, idTable, stringEntries(values), encoding.EncodeID)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(values))
	for i, id := range ids {
		result[values[i]] = id
	}
	return result, nil
}

func (b *KVBackend) reverseStrings(idTable store.Table, ids []int64) (map[int64]string, error) {
	payloads, err := b.lookUpPayloads(idTable, ids, encoding.EncodeID)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]string, len(payloads))
	for id, payload := range payloads {
		result[id] = string(payload)
	}
	return result, nil
}

func (b *KVBackend) LookUpStringLiteralIDs(values []string) (map[string]int64, error) {
	return b.lookUpStrings(store.TableStringLiteral, values)
}

func (b *KVBackend) InsertStringLiterals(values []string) (map[string]int64, error) {
	return b.insertStrings(store.TableStringLiteral, store.TableStringLiteralID, values)
}

func (b *KVBackend) LookUpStringLiterals(ids []int64) (map[int64]string, error) {
	return b.reverseStrings(store.TableStringLiteralID, ids)
}

func (b *KVBackend) LookUpPrefixIDs(prefixes []string) (map[string]int64, error) {
	return b.lookUpStrings(store.TablePrefix, prefixes)
}

func (b *KVBackend) InsertPrefixes(prefixes []string) (map[string]int64, error) {
	return b.insertStrings(store.TablePrefix, store.TablePrefixID, prefixes)
}

func (b *KVBackend) LookUpPrefixes(ids []int64) (map[int64]string, error) {
	return b.reverseStrings(store.TablePrefixID, ids)
}

func (b *KVBackend) LookUpSuffixIDs(suffixes []string) (map[string]int64, error) {
	return b.lookUpStrings(store.TableSuffix, suffixes)
}

func (b *KVBackend) InsertSuffixes(suffixes []string) (map[string]int64, error) {
	return b.insertStrings(store.TableSuffix, store.TableSuffixID, suffixes)
}

func (b *KVBackend) LookUpSuffixes(ids []int64) (map[int64]string, error) {
	return b.reverseStrings(store.TableSuffixID, ids)
}

// Doubles

func (b *KVBackend) LookUpDoubleLiteralIDs(values []float64) (map[uint64]int64, error) {
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = encoding.EncodeDouble(v)
	}
	ids, err := b.lookUpKeys(store.TableDoubleLiteral, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[uint64]int64, len(values))
	for i, id := range ids {
		if id != 0 {
			result[math.Float64bits(values[i])] = id
		}
	}
	return result, nil
}

func (b *KVBackend) InsertDoubleLiterals(values []float64) (map[uint64]int64, error) {
	entries := make([]dictEntry, len(values))
	for i, v := range values {
		raw := encoding.EncodeDouble(v)
		entries[i] = dictEntry{key: raw, payload: raw}
	}
	ids, err := b.insertEntries(store.TableDoubleLiteral, store.TableDoubleLiteralID, entries, encoding.EncodeID)
	if err != nil {
		return nil, err
	}
	result := make(map[uint64]int64, len(values))
	for i, id := range ids {
		result[math.Float64bits(values[i])] = id
	}
	return result, nil
}

func (b *KVBackend) LookUpDoubleLiterals(ids []int64) (map[int64]float64, error) {
	payloads, err := b.lookUpPayloads(store.TableDoubleLiteralID, ids, encoding.EncodeID)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]float64, len(payloads))
	for id, payload := range payloads {
		f, err := encoding.DecodeDouble(payload)
		if err != nil {
			return nil, fmt.Errorf("double literal %d: %w", id, err)
		}
		result[id] = f
	}
	return result, nil
}

// Vectors

func (b *KVBackend) LookUpVectorIDs(vectors []model.VectorValue) (map[string]int64, error) {
	keys := make([][]byte, len(vectors))
	for i, v := range vectors {
		keys[i] = encoding.VectorKey(v)
	}
	ids, err := b.lookUpKeys(store.TableVector, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(vectors))
	for i, id := range ids {
		if id != 0 {
			result[vectors[i].Key()] = id
		}
	}
	return result, nil
}

func (b *KVBackend) InsertVectors(vectors []model.VectorValue) (map[string]int64, error) {
	if len(vectors) == 0 {
		return map[string]int64{}, nil
	}
	vectorType := store.VectorTypeOf(vectors[0])
	entries := make([]dictEntry, len(vectors))
	for i, v := range vectors {
		if store.VectorTypeOf(v) != vectorType {
			return nil, fmt.Errorf("%w: mixed vector shapes in one insert", store.ErrInvalidArgument)
		}
		entries[i] = dictEntry{key: encoding.VectorKey(v), payload: encoding.EncodeVector(v)}
	}
	ids, err := b.insertEntries(store.TableVector, store.TableVectorID, entries, func(id int64) []byte {
		return encoding.VectorIDKey(vectorType, id)
	})
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(vectors))
	for i, id := range ids {
		result[vectors[i].Key()] = id
	}
	return result, nil
}

func (b *KVBackend) LookUpVectors(vectorType int32, ids []int64) (map[int64]model.VectorValue, error) {
	kind, _, ok := store.VectorShape(vectorType)
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a vector type", store.ErrInvalidArgument, vectorType)
	}
	payloads, err := b.lookUpPayloads(store.TableVectorID, ids, func(id int64) []byte {
		return encoding.VectorIDKey(vectorType, id)
	})
	if err != nil {
		return nil, err
	}
	result := make(map[int64]model.VectorValue, len(payloads))
	for id, payload := range payloads {
		v, err := encoding.DecodeVector(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", id, err)
		}
		result[id] = v
	}
	return result, nil
}

// Quads

var indexTables = [3]store.Table{store.TableSubjectIndex, store.TablePredicateIndex, store.TableObjectIndex}

func (b *KVBackend) FindQuadID(hash int64) (int64, bool, error) {
	var id int64
	err := b.view(func(txn store.Transaction) error {
		var err error
		id, err = getID(txn, store.TableQuadHash, encoding.EncodeID(hash))
		return err
	})
	return id, id != 0, err
}

// InsertQuad writes the row, its identity hash and its index entries in one
// transaction. The hash key is read first, so two racing inserts of the
// same triple conflict and the replay returns the winner's id.
func (b *KVBackend) InsertQuad(hash int64, subject, predicate, object store.QuadValueID) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := b.update(func(txn store.Transaction) error {
		hashKey := encoding.EncodeID(hash)
		existing, err := getID(txn, store.TableQuadHash, hashKey)
		if err != nil {
			return err
		}
		if existing != 0 {
			id, inserted = existing, false
			return nil
		}

		if id, err = b.storage.NextID(store.TableQuad); err != nil {
			return err
		}
		inserted = true
		idKey := encoding.EncodeID(id)
		if err := txn.Set(store.TableQuadHash, hashKey, idKey); err != nil {
			return err
		}
		if err := txn.Set(store.TableQuad, idKey, encoding.EncodeQuadRow(subject, predicate, object)); err != nil {
			return err
		}
		for i, v := range [3]store.QuadValueID{subject, predicate, object} {
			if err := txn.Set(indexTables[i], encoding.EncodeIndexKey(v, id), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	return id, inserted, err
}

func (b *KVBackend) GetQuad(id int64) (store.EncodedQuad, bool, error) {
	var (
		quad  store.EncodedQuad
		found bool
	)
	err := b.view(func(txn store.Transaction) error {
		var err error
		quad, found, err = getQuad(txn, id)
		return err
	})
	return quad, found, err
}

func getQuad(txn store.Transaction, id int64) (store.EncodedQuad, bool, error) {
	raw, err := txn.Get(store.TableQuad, encoding.EncodeID(id))
	if errors.Is(err, store.ErrNotFound) {
		return store.EncodedQuad{}, false, nil
	}
	if err != nil {
		return store.EncodedQuad{}, false, err
	}
	s, p, o, err := encoding.DecodeQuadRow(raw)
	if err != nil {
		return store.EncodedQuad{}, false, fmt.Errorf("quad %d: %w", id, err)
	}
	return store.EncodedQuad{ID: id, Subject: s, Predicate: p, Object: o}, true, nil
}

// FilterQuads scans the index of the constrained position with the fewest
// values and checks the other positions against the decoded rows
func (b *KVBackend) FilterQuads(subjects, predicates, objects []store.QuadValueID) ([]store.EncodedQuad, error) {
	constraints := [3][]store.QuadValueID{subjects, predicates, objects}
	driving := -1
	for i, c := range constraints {
		if c == nil {
			continue
		}
		if len(c) == 0 {
			return nil, nil
		}
		if driving == -1 || len(c) < len(constraints[driving]) {
			driving = i
		}
	}

	var result []store.EncodedQuad
	err := b.view(func(txn store.Transaction) error {
		if driving == -1 {
			var err error
			result, err = scanQuads(txn)
			return err
		}

		sets := [3]map[store.QuadValueID]struct{}{}
		for i, c := range constraints {
			sets[i] = idSet(c)
		}
		for v := range sets[driving] {
			ids, err := scanIndex(txn, indexTables[driving], v)
			if err != nil {
				return err
			}
			for _, id := range ids {
				quad, ok, err := getQuad(txn, id)
				if err != nil {
					return err
				}
				if ok && inSet(sets[0], quad.Subject) && inSet(sets[1], quad.Predicate) && inSet(sets[2], quad.Object) {
					result = append(result, quad)
				}
			}
		}
		return nil
	})
	return result, err
}

func idSet(ids []store.QuadValueID) map[store.QuadValueID]struct{} {
	if ids == nil {
		return nil
	}
	set := make(map[store.QuadValueID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func inSet(set map[store.QuadValueID]struct{}, id store.QuadValueID) bool {
	if set == nil {
		return true
	}
	_, ok := set[id]
	return ok
}

func scanQuads(txn store.Transaction) ([]store.EncodedQuad, error) {
	it, err := txn.Scan(store.TableQuad, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var quads []store.EncodedQuad
	for it.Next() {
		id, err := encoding.DecodeID(it.Key())
		if err != nil {
			return nil, err
		}
		raw, err := it.Value()
		if err != nil {
			return nil, err
		}
		s, p, o, err := encoding.DecodeQuadRow(raw)
		if err != nil {
			return nil, fmt.Errorf("quad %d: %w", id, err)
		}
		quads = append(quads, store.EncodedQuad{ID: id, Subject: s, Predicate: p, Object: o})
	}
	return quads, nil
}

func scanIndex(txn store.Transaction, table store.Table, value store.QuadValueID) ([]int64, error) {
	it, err := txn.Scan(table, encoding.EncodeValueID(value))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []int64
	for it.Next() {
		id, err := encoding.DecodeIndexKey(it.Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveQuads deletes the rows and every key derived from them
func (b *KVBackend) RemoveQuads(ids []int64) (int, error) {
	var removed int
	err := b.update(func(txn store.Transaction) error {
		removed = 0
		for _, id := range ids {
			quad, ok, err := getQuad(txn, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			idKey := encoding.EncodeID(id)
			hash := encoding.IdentityHash(quad.Subject, quad.Predicate, quad.Object)
			if err := txn.Delete(store.TableQuad, idKey); err != nil {
				return err
			}
			if err := txn.Delete(store.TableQuadHash, encoding.EncodeID(hash)); err != nil {
				return err
			}
			for i, v := range [3]store.QuadValueID{quad.Subject, quad.Predicate, quad.Object} {
				if err := txn.Delete(indexTables[i], encoding.EncodeIndexKey(v, id)); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// ClearQuads drops every quad. Dictionary tables are kept.
func (b *KVBackend) ClearQuads() error {
	return b.storage.Truncate(store.TableQuad, store.TableQuadHash,
		store.TableSubjectIndex, store.TablePredicateIndex, store.TableObjectIndex)
}

func (b *KVBackend) CountQuads() (int, error) {
	var n int
	err := b.view(func(txn store.Transaction) error {
		it, err := txn.Scan(store.TableQuad, nil)
		if err != nil {
			return err
		}
		defer it.Close()
		for it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Sync flushes the underlying storage
func (b *KVBackend) Sync() error {
	return b.storage.Sync()
}

func (b *KVBackend) Close() error {
	return b.storage.Close()
}
