package store

import "github.com/aleksaelezovic/mediakg/pkg/model"

// EncodedQuad is a quad row of a dictionary-encoded backend
type EncodedQuad struct {
	ID        int64
	Subject   QuadValueID
	Predicate QuadValueID
	Object    QuadValueID
}

// Neighbor is one result row of a similarity search
type Neighbor struct {
	Subject  QuadValueID
	Distance float64
}

// DictionaryBackend persists the append-only dictionary tables. Every call
// works on a set of keys and returns the subset that resolved; missing keys
// are simply absent from the result. Insert calls return the ids of all
// given values, reusing the id of a value that already exists.
//
// Double results are keyed by math.Float64bits of the value, so 0 and -0
// are distinct entries.
type DictionaryBackend interface {
	LookUpDoubleLiteralIDs(values []float64) (map[uint64]int64, error)
	InsertDoubleLiterals(values []float64) (map[uint64]int64, error)

	LookUpStringLiteralIDs(values []string) (map[string]int64, error)
	InsertStringLiterals(values []string) (map[string]int64, error)

	LookUpPrefixIDs(prefixes []string) (map[string]int64, error)
	InsertPrefixes(prefixes []string) (map[string]int64, error)

	LookUpSuffixIDs(suffixes []string) (map[string]int64, error)
	InsertSuffixes(suffixes []string) (map[string]int64, error)

	// Vector calls take vectors of a single kind and length and key the
	// result by model.Value.Key.
	LookUpVectorIDs(vectors []model.VectorValue) (map[string]int64, error)
	InsertVectors(vectors []model.VectorValue) (map[string]int64, error)

	// Reverse lookups used for decoding
	LookUpDoubleLiterals(ids []int64) (map[int64]float64, error)
	LookUpStringLiterals(ids []int64) (map[int64]string, error)
	LookUpPrefixes(ids []int64) (map[int64]string, error)
	LookUpSuffixes(ids []int64) (map[int64]string, error)
	LookUpVectors(vectorType int32, ids []int64) (map[int64]model.VectorValue, error)
}

// QuadBackend persists the quad table. Rows are unique by identity hash;
// the backend enforces that as a constraint, so a racing duplicate insert
// returns the existing row's id with inserted == false.
type QuadBackend interface {
	FindQuadID(hash int64) (int64, bool, error)
	InsertQuad(hash int64, subject, predicate, object QuadValueID) (id int64, inserted bool, err error)
	GetQuad(id int64) (EncodedQuad, bool, error)

	// FilterQuads follows the nil / empty convention of QuadSet.Filter
	FilterQuads(subjects, predicates, objects []QuadValueID) ([]EncodedQuad, error)

	RemoveQuads(ids []int64) (int, error)
	ClearQuads() error
	CountQuads() (int, error)
}

// Backend is a complete persistence engine for dictionary-encoded quads
type Backend interface {
	DictionaryBackend
	QuadBackend
	Close() error
}

// SearchBackend is a Backend that can also answer similarity and full text
// queries.
type SearchBackend interface {
	Backend

	NearestNeighbor(predicate QuadValueID, query model.VectorValue, count int, metric DistanceMetric) ([]Neighbor, error)

	// TextFilter matches the string objects of quads. A nil predicate
	// searches all predicates.
	TextFilter(predicate *QuadValueID, text string) ([]EncodedQuad, error)
}
