package sqlite

import (
	"database/sql"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/aleksaelezovic/mediakg/internal/encoding"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// Text tables share one shape: id and a unique value

func (b *Backend) lookUpText(table string, values []string) (map[string]int64, error) {
	result := make(map[string]int64, len(values))
	if len(values) == 0 {
		return result, nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	query := fmt.Sprintf("SELECT id, value FROM %s WHERE value IN (%s)", table, placeholders(len(values)))
	err := queryRows(b.db, query, args, func(rows *sql.Rows) error {
		var (
			id    int64
			value string
		)
		if err := rows.Scan(&id, &value); err != nil {
			return err
		}
		result[value] = id
		return nil
	})
	if err != nil {
		return nil, b.fail(err, table, "looking up ids")
	}
	return result, nil
}

func (b *Backend) insertText(table string, values []string) (map[string]int64, error) {
	result := make(map[string]int64, len(values))
	insert := fmt.Sprintf("INSERT INTO %s(value) VALUES (?) ON CONFLICT(value) DO NOTHING", table)
	lookUp := fmt.Sprintf("SELECT id FROM %s WHERE value = ?", table)
	err := b.withTx(func(tx *sql.Tx) error {
		for _, v := range values {
			if _, err := tx.Exec(insert, v); err != nil {
				return err
			}
			var id int64
			if err := tx.QueryRow(lookUp, v).Scan(&id); err != nil {
				return err
			}
			result[v] = id
		}
		return nil
	})
	if err != nil {
		return nil, b.fail(err, table, "inserting values")
	}
	return result, nil
}

func (b *Backend) reverseText(table string, ids []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := fmt.Sprintf("SELECT id, value FROM %s WHERE id IN (%s)", table, placeholders(len(ids)))
	err := queryRows(b.db, query, int64Args(ids), func(rows *sql.Rows) error {
		var (
			id    int64
			value string
		)
		if err := rows.Scan(&id, &value); err != nil {
			return err
		}
		result[id] = value
		return nil
	})
	if err != nil {
		return nil, b.fail(err, table, "looking up values")
	}
	return result, nil
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (b *Backend) LookUpStringLiteralIDs(values []string) (map[string]int64, error) {
	return b.lookUpText("string_literal", values)
}

func (b *Backend) InsertStringLiterals(values []string) (map[string]int64, error) {
	return b.insertText("string_literal", values)
}

func (b *Backend) LookUpStringLiterals(ids []int64) (map[int64]string, error) {
	return b.reverseText("string_literal", ids)
}

func (b *Backend) LookUpPrefixIDs(prefixes []string) (map[string]int64, error) {
	return b.lookUpText("prefix", prefixes)
}

func (b *Backend) InsertPrefixes(prefixes []string) (map[string]int64, error) {
	return b.insertText("prefix", prefixes)
}

func (b *Backend) LookUpPrefixes(ids []int64) (map[int64]string, error) {
	return b.reverseText("prefix", ids)
}

func (b *Backend) LookUpSuffixIDs(suffixes []string) (map[string]int64, error) {
	return b.lookUpText("suffix", suffixes)
}

func (b *Backend) InsertSuffixes(suffixes []string) (map[string]int64, error) {
	return b.insertText("suffix", suffixes)
}

func (b *Backend) LookUpSuffixes(ids []int64) (map[int64]string, error) {
	return b.reverseText("suffix", ids)
}

// Doubles

func doubleBits(f float64) int64 {
	return int64(math.Float64bits(f)) // #nosec G115 - bit pattern stored as signed integer
}

func (b *Backend) LookUpDoubleLiteralIDs(values []float64) (map[uint64]int64, error) {
	result := make(map[uint64]int64, len(values))
	if len(values) == 0 {
		return result, nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = doubleBits(v)
	}
	query := "SELECT id, bits FROM double_literal WHERE bits IN (" + placeholders(len(values)) + ")"
	err := queryRows(b.db, query, args, func(rows *sql.Rows) error {
		var id, bits int64
		if err := rows.Scan(&id, &bits); err != nil {
			return err
		}
		result[uint64(bits)] = id // #nosec G115 - bit pattern
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "double_literal", "looking up ids")
	}
	return result, nil
}

func (b *Backend) InsertDoubleLiterals(values []float64) (map[uint64]int64, error) {
	result := make(map[uint64]int64, len(values))
	err := b.withTx(func(tx *sql.Tx) error {
		for _, v := range values {
			bits := doubleBits(v)
			if _, err := tx.Exec("INSERT INTO double_literal(bits) VALUES (?) ON CONFLICT(bits) DO NOTHING", bits); err != nil {
				return err
			}
			var id int64
			if err := tx.QueryRow("SELECT id FROM double_literal WHERE bits = ?", bits).Scan(&id); err != nil {
				return err
			}
			result[math.Float64bits(v)] = id
		}
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "double_literal", "inserting values")
	}
	return result, nil
}

func (b *Backend) LookUpDoubleLiterals(ids []int64) (map[int64]float64, error) {
	result := make(map[int64]float64, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := "SELECT id, bits FROM double_literal WHERE id IN (" + placeholders(len(ids)) + ")"
	err := queryRows(b.db, query, int64Args(ids), func(rows *sql.Rows) error {
		var id, bits int64
		if err := rows.Scan(&id, &bits); err != nil {
			return err
		}
		result[id] = math.Float64frombits(uint64(bits)) // #nosec G115 - bit pattern
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "double_literal", "looking up values")
	}
	return result, nil
}

// Vectors keep their exact elements in data and a float32 copy for
// sqlite-vec in embedding

func embedding(v model.VectorValue) ([]byte, error) {
	elements := v.Float64s()
	f32 := make([]float32, len(elements))
	for i, e := range elements {
		f32[i] = float32(e)
	}
	blob, err := sqlite_vec.SerializeFloat32(f32)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		// a nil blob binds as NULL
		blob = []byte{}
	}
	return blob, nil
}

func vectorShape(vectors []model.VectorValue) (int32, error) {
	vectorType := store.VectorTypeOf(vectors[0])
	for _, v := range vectors[1:] {
		if store.VectorTypeOf(v) != vectorType {
			return 0, fmt.Errorf("%w: mixed vector shapes in one call", store.ErrInvalidArgument)
		}
	}
	return vectorType, nil
}

func (b *Backend) LookUpVectorIDs(vectors []model.VectorValue) (map[string]int64, error) {
	result := make(map[string]int64, len(vectors))
	if len(vectors) == 0 {
		return result, nil
	}
	vectorType, err := vectorShape(vectors)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(vectors))
	args := []any{vectorType}
	for _, v := range vectors {
		data := encoding.EncodeVector(v)
		keys[string(data)] = v.Key()
		args = append(args, data)
	}
	query := "SELECT id, data FROM vector WHERE type = ? AND data IN (" + placeholders(len(vectors)) + ")"
	err = queryRows(b.db, query, args, func(rows *sql.Rows) error {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return err
		}
		result[keys[string(data)]] = id
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "vector", "looking up ids")
	}
	return result, nil
}

func (b *Backend) InsertVectors(vectors []model.VectorValue) (map[string]int64, error) {
	result := make(map[string]int64, len(vectors))
	if len(vectors) == 0 {
		return result, nil
	}
	vectorType, err := vectorShape(vectors)
	if err != nil {
		return nil, err
	}

	err = b.withTx(func(tx *sql.Tx) error {
		for _, v := range vectors {
			data := encoding.EncodeVector(v)
			blob, err := embedding(v)
			if err != nil {
				return err
			}
			if _, err := tx.Exec("INSERT INTO vector(type, data, embedding) VALUES (?, ?, ?) ON CONFLICT(type, data) DO NOTHING",
				vectorType, data, blob); err != nil {
				return err
			}
			var id int64
			if err := tx.QueryRow("SELECT id FROM vector WHERE type = ? AND data = ?", vectorType, data).Scan(&id); err != nil {
				return err
			}
			result[v.Key()] = id
		}
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "vector", "inserting values")
	}
	return result, nil
}

func (b *Backend) LookUpVectors(vectorType int32, ids []int64) (map[int64]model.VectorValue, error) {
	kind, _, ok := store.VectorShape(vectorType)
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a vector type", store.ErrInvalidArgument, vectorType)
	}
	result := make(map[int64]model.VectorValue, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := append([]any{vectorType}, int64Args(ids)...)
	query := "SELECT id, data FROM vector WHERE type = ? AND id IN (" + placeholders(len(ids)) + ")"
	err := queryRows(b.db, query, args, func(rows *sql.Rows) error {
		var (
			id   int64
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return err
		}
		v, err := encoding.DecodeVector(kind, data)
		if err != nil {
			return fmt.Errorf("vector %d: %w", id, err)
		}
		result[id] = v
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "vector", "looking up values")
	}
	return result, nil
}
