package store

// Storage is the interface for an underlying ordered key-value store. The
// KV dictionary backend lays its tables out on top of it.
type Storage interface {
	// Begin starts a new transaction
	Begin(writable bool) (Transaction, error)

	// NextID returns the next value of the sequence that belongs to table.
	// Values start at 1 and are never handed out twice.
	NextID(table Table) (int64, error)

	// Truncate removes every key of the given tables
	Truncate(tables ...Table) error

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Transaction represents a database transaction with snapshot isolation
type Transaction interface {
	// Get retrieves a value by key, or ErrNotFound
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates over all keys of table that start with prefix.
	// A nil prefix scans the whole table.
	Scan(table Table, prefix []byte) (Iterator, error)

	// Commit commits the transaction. A write that raced with another
	// transaction on the same keys fails with ErrConflict.
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Iterator iterates over key-value pairs
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical table/column family in the storage
type Table byte

const (
	// Dictionary tables, value -> id and id -> value
	TableDoubleLiteral Table = iota
	TableDoubleLiteralID
	TableStringLiteral
	TableStringLiteralID
	TablePrefix
	TablePrefixID
	TableSuffix
	TableSuffixID

	// Vector tables are keyed by the vector discriminator first, so every
	// (kind, length) pair gets its own key range
	TableVector
	TableVectorID

	// Quad rows: id -> encoded triple, identity hash -> id
	TableQuad
	TableQuadHash

	// Position indexes: encoded value + quad id -> empty
	TableSubjectIndex
	TablePredicateIndex
	TableObjectIndex

	// Sequence state
	TableSequence

	// Total number of tables
	TableCount
)

func (t Table) String() string {
	switch t {
	case TableDoubleLiteral:
		return "double_literal"
	case TableDoubleLiteralID:
		return "double_literal_id"
	case TableStringLiteral:
		return "string_literal"
	case TableStringLiteralID:
		return "string_literal_id"
	case TablePrefix:
		return "prefix"
	case TablePrefixID:
		return "prefix_id"
	case TableSuffix:
		return "suffix"
	case TableSuffixID:
		return "suffix_id"
	case TableVector:
		return "vector"
	case TableVectorID:
		return "vector_id"
	case TableQuad:
		return "quad"
	case TableQuadHash:
		return "quad_hash"
	case TableSubjectIndex:
		return "s_index"
	case TablePredicateIndex:
		return "p_index"
	case TableObjectIndex:
		return "o_index"
	case TableSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// TablePrefixKey returns a byte prefix for a table to namespace keys
func TablePrefixKey(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	prefix := TablePrefixKey(table)
	result := make([]byte, len(prefix)+len(key))
	copy(result, prefix)
	copy(result[len(prefix):], key)
	return result
}
