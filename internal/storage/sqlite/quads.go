package sqlite

import (
	"database/sql"
	"strings"

	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

const quadColumns = "id, s_type, s_id, p_type, p_id, o_type, o_id"

func scanQuad(rows interface{ Scan(dest ...any) error }) (store.EncodedQuad, error) {
	var q store.EncodedQuad
	err := rows.Scan(&q.ID,
		&q.Subject.Type, &q.Subject.ID,
		&q.Predicate.Type, &q.Predicate.ID,
		&q.Object.Type, &q.Object.ID)
	return q, err
}

func (b *Backend) selectQuads(where string, args []any) ([]store.EncodedQuad, error) {
	query := "SELECT " + quadColumns + " FROM quad"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY id"

	var quads []store.EncodedQuad
	err := queryRows(b.db, query, args, func(rows *sql.Rows) error {
		q, err := scanQuad(rows)
		if err != nil {
			return err
		}
		quads = append(quads, q)
		return nil
	})
	if err != nil {
		return nil, b.fail(err, "quad", "selecting quads")
	}
	return quads, nil
}

func (b *Backend) FindQuadID(hash int64) (int64, bool, error) {
	var id int64
	err := b.db.QueryRow("SELECT id FROM quad WHERE hash = ?", hash).Scan(&id)
	if isNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, b.fail(err, "quad", "finding quad")
	}
	return id, true, nil
}

// InsertQuad relies on the UNIQUE hash column: a duplicate insert is
// ignored and the existing row's id returned
func (b *Backend) InsertQuad(hash int64, subject, predicate, object store.QuadValueID) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := b.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO quad(hash, s_type, s_id, p_type, p_id, o_type, o_id)
VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(hash) DO NOTHING`,
			hash, subject.Type, subject.ID, predicate.Type, predicate.ID, object.Type, object.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			inserted = true
			id, err = res.LastInsertId()
			return err
		}
		return tx.QueryRow("SELECT id FROM quad WHERE hash = ?", hash).Scan(&id)
	})
	if err != nil {
		return 0, false, b.fail(err, "quad", "inserting quad")
	}
	return id, inserted, nil
}

func (b *Backend) GetQuad(id int64) (store.EncodedQuad, bool, error) {
	q, err := scanQuad(b.db.QueryRow("SELECT "+quadColumns+" FROM quad WHERE id = ?", id))
	if isNoRows(err) {
		return store.EncodedQuad{}, false, nil
	}
	if err != nil {
		return store.EncodedQuad{}, false, b.fail(err, "quad", "getting quad")
	}
	return q, true, nil
}

// positionMatch builds "(x_type, x_id) IN (VALUES (?, ?), ...)"
func positionMatch(column string, ids []store.QuadValueID, args []any) (string, []any) {
	rows := make([]string, len(ids))
	for i, id := range ids {
		rows[i] = "(?, ?)"
		args = append(args, id.Type, id.ID)
	}
	return "(" + column + "_type, " + column + "_id) IN (VALUES " + strings.Join(rows, ", ") + ")", args
}

func (b *Backend) FilterQuads(subjects, predicates, objects []store.QuadValueID) ([]store.EncodedQuad, error) {
	var (
		clauses []string
		args    []any
	)
	for _, p := range []struct {
		column string
		ids    []store.QuadValueID
	}{{"s", subjects}, {"p", predicates}, {"o", objects}} {
		if p.ids == nil {
			continue
		}
		if len(p.ids) == 0 {
			return nil, nil
		}
		var clause string
		clause, args = positionMatch(p.column, p.ids, args)
		clauses = append(clauses, clause)
	}
	return b.selectQuads(strings.Join(clauses, " AND "), args)
}

func (b *Backend) RemoveQuads(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := b.db.Exec("DELETE FROM quad WHERE id IN ("+placeholders(len(ids))+")", int64Args(ids)...)
	if err != nil {
		return 0, b.fail(err, "quad", "removing quads")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, b.fail(err, "quad", "removing quads")
	}
	return int(n), nil
}

func (b *Backend) ClearQuads() error {
	if _, err := b.db.Exec("DELETE FROM quad"); err != nil {
		return b.fail(err, "quad", "clearing quads")
	}
	return nil
}

func (b *Backend) CountQuads() (int, error) {
	var n int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM quad").Scan(&n); err != nil {
		return 0, b.fail(err, "quad", "counting quads")
	}
	return n, nil
}

// NearestNeighbor ranks the vector objects under predicate that have the
// shape of query. Zero-magnitude vectors, for which sqlite-vec yields no
// distance, rank at distance 1.
func (b *Backend) NearestNeighbor(predicate store.QuadValueID, query model.VectorValue, count int, metric store.DistanceMetric) ([]store.Neighbor, error) {
	if err := store.CheckNeighborQuery(query, count, metric); err != nil {
		return nil, err
	}
	blob, err := embedding(query)
	if err != nil {
		return nil, b.fail(err, "vector", "serializing query vector")
	}

	const q = `SELECT q.s_type, q.s_id, COALESCE(vec_distance_cosine(v.embedding, ?), 1.0) AS distance
FROM quad q
JOIN vector v ON v.id = q.o_id AND v.type = q.o_type
WHERE q.p_type = ? AND q.p_id = ? AND q.o_type = ?
ORDER BY distance, q.id
LIMIT ?`

	var neighbors []store.Neighbor
	args := []any{blob, predicate.Type, predicate.ID, store.VectorTypeOf(query), count}
	err = queryRows(b.db, q, args, func(rows *sql.Rows) error {
		var n store.Neighbor
		if err := rows.Scan(&n.Subject.Type, &n.Subject.ID, &n.Distance); err != nil {
			return err
		}
		neighbors = append(neighbors, n)
		return nil
	})
	if err != nil {
		return nil, kgerr.Wrap(err, kgerr.CodeStoreSearchFailure, "nearest neighbor query", kgerr.FieldBackend("sqlite"))
	}
	return neighbors, nil
}

// ftsQuery quotes every token so FTS operators in the text are taken
// literally. Adjacent phrases are combined with AND.
func ftsQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func (b *Backend) TextFilter(predicate *store.QuadValueID, text string) ([]store.EncodedQuad, error) {
	tokens := store.Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	where := "id IN (SELECT docid FROM quad_text WHERE quad_text MATCH ?)"
	args := []any{ftsQuery(tokens)}
	if predicate != nil {
		where += " AND p_type = ? AND p_id = ?"
		args = append(args, predicate.Type, predicate.ID)
	}
	quads, err := b.selectQuads(where, args)
	if err != nil {
		return nil, kgerr.Wrap(err, kgerr.CodeStoreSearchFailure, "text query", kgerr.FieldBackend("sqlite"))
	}
	return quads, nil
}
