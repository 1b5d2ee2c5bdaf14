package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// sequenceBandwidth is the number of ids a badger sequence leases at once
const sequenceBandwidth = 1000

// BadgerStorage implements Storage using BadgerDB
type BadgerStorage struct {
	db *badger.DB

	mu        sync.Mutex
	sequences map[store.Table]*badger.Sequence
}

// NewBadgerStorage creates a new BadgerDB-backed storage. An empty path
// opens an in-memory database.
func NewBadgerStorage(path string, logger *slog.Logger) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	if logger != nil {
		opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	} else {
		opts.Logger = nil // Disable default logger
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{
		db:        db,
		sequences: make(map[store.Table]*badger.Sequence),
	}, nil
}

// Begin starts a new transaction
func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{
		txn:      txn,
		writable: writable,
	}, nil
}

// NextID hands out the next id of table's sequence
func (s *BadgerStorage) NextID(table store.Table) (int64, error) {
	s.mu.Lock()
	seq, ok := s.sequences[table]
	if !ok {
		var err error
		seq, err = s.db.GetSequence(store.PrefixKey(store.TableSequence, []byte{byte(table)}), sequenceBandwidth)
		if err != nil {
			s.mu.Unlock()
			return 0, fmt.Errorf("failed to open %s sequence: %w", table, err)
		}
		s.sequences[table] = seq
	}
	s.mu.Unlock()

	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", table, err)
	}
	// Badger sequences start at 0, ids start at 1
	return int64(n) + 1, nil // #nosec G115 - sequences stay far below 2^63
}

// Truncate drops every key of the given tables
func (s *BadgerStorage) Truncate(tables ...store.Table) error {
	prefixes := make([][]byte, len(tables))
	for i, table := range tables {
		prefixes[i] = store.TablePrefixKey(table)
	}
	return s.db.DropPrefix(prefixes...)
}

// Close releases the sequences and closes the storage
func (s *BadgerStorage) Close() error {
	s.mu.Lock()
	var errs []error
	for _, seq := range s.sequences {
		if err := seq.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	s.sequences = nil
	s.mu.Unlock()

	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// BadgerTransaction implements Transaction using BadgerDB
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key
func (t *BadgerTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	prefixedKey := store.PrefixKey(table, key)
	item, err := t.txn.Get(prefixedKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return item.ValueCopy(nil)
}

// Set stores a key-value pair
func (t *BadgerTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}

	return t.txn.Set(store.PrefixKey(table, key), value)
}

// Delete removes a key
func (t *BadgerTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}

	return t.txn.Delete(store.PrefixKey(table, key))
}

// Scan iterates over the keys of table that start with prefix
func (t *BadgerTransaction) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	scanPrefix := store.PrefixKey(table, prefix)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = scanPrefix

	return &BadgerIterator{
		it:         t.txn.NewIterator(opts),
		tableLen:   len(store.TablePrefixKey(table)),
		scanPrefix: scanPrefix,
	}, nil
}

// Commit commits the transaction
func (t *BadgerTransaction) Commit() error {
	err := t.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	}
	return err
}

// Rollback rolls back the transaction
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements Iterator using BadgerDB
type BadgerIterator struct {
	it         *badger.Iterator
	tableLen   int    // length of the table prefix stripped from keys
	scanPrefix []byte // full prefix used for seeking and bounds
	started    bool
	hasValue   bool
}

// Next advances to the next item
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.scanPrefix)
		i.started = true
	} else {
		i.it.Next()
	}

	i.hasValue = i.it.ValidForPrefix(i.scanPrefix)
	return i.hasValue
}

// Key returns the current key (without the table prefix)
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}

	return i.it.Item().KeyCopy(nil)[i.tableLen:]
}

// Value returns the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, store.ErrNotFound
	}

	return i.it.Item().ValueCopy(nil)
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}

// badgerLogger forwards badger's log output to slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
