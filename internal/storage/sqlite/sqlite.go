// Package sqlite implements store.SearchBackend on SQLite. Vector
// similarity uses the sqlite-vec extension and text search an FTS4 index
// that triggers keep in sync with the quad table.
package sqlite

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

func init() {
	sqlite_vec.Auto()
}

var _ store.SearchBackend = (*Backend)(nil)

// Backend is a dictionary-encoded quad store in one SQLite database
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and migrates its schema.
// An empty path opens a private in-memory database.
func Open(path string, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	if path == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, kgerr.Wrap(err, kgerr.CodeStoreOpenFailure, "opening sqlite db", kgerr.FieldPath(path))
	}
	if path == "" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, kgerr.Wrap(err, kgerr.CodeStoreOpenFailure, "pinging sqlite db", kgerr.FieldPath(path))
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, kgerr.Wrap(err, kgerr.CodeStoreSchemaFailure, "migrating sqlite schema", kgerr.FieldPath(path))
	}

	logger.Debug("sqlite backend opened", "path", path)
	return &Backend{db: db, logger: logger}, nil
}

// Doubles are stored by bit pattern: SQLite turns NaN into NULL and does
// not keep the sign of zero.
const schema = `
CREATE TABLE IF NOT EXISTS double_literal (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	bits INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS string_literal (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS prefix (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS suffix (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS vector (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	type      INTEGER NOT NULL,
	data      BLOB NOT NULL,
	embedding BLOB NOT NULL,
	UNIQUE(type, data)
);

CREATE TABLE IF NOT EXISTS quad (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	hash   INTEGER NOT NULL UNIQUE,
	s_type INTEGER NOT NULL,
	s_id   INTEGER NOT NULL,
	p_type INTEGER NOT NULL,
	p_id   INTEGER NOT NULL,
	o_type INTEGER NOT NULL,
	o_id   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quad_s ON quad(s_type, s_id);
CREATE INDEX IF NOT EXISTS idx_quad_p ON quad(p_type, p_id, o_type);
CREATE INDEX IF NOT EXISTS idx_quad_o ON quad(o_type, o_id);

CREATE VIRTUAL TABLE IF NOT EXISTS quad_text USING fts4(content, tokenize=unicode61 "remove_diacritics=0");

CREATE TRIGGER IF NOT EXISTS quad_text_insert AFTER INSERT ON quad WHEN new.o_type = -3
BEGIN
	INSERT INTO quad_text(docid, content) SELECT new.id, value FROM string_literal WHERE id = new.o_id;
END;

CREATE TRIGGER IF NOT EXISTS quad_text_delete AFTER DELETE ON quad WHEN old.o_type = -3
BEGIN
	DELETE FROM quad_text WHERE docid = old.id;
END;
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) fail(err error, table, msg string) error {
	return kgerr.Wrap(err, kgerr.CodeStoreDatabaseFailure, msg, kgerr.FieldBackend("sqlite"), kgerr.FieldTable(table))
}

// placeholders returns "?,?,...,?" with n markers
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// withTx runs fn in a transaction and commits it if fn succeeds
func (b *Backend) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// queryRows runs query and hands every row to scan. The rows are drained
// before returning so no connection stays busy.
func queryRows(q interface {
	Query(query string, args ...any) (*sql.Rows, error)
}, query string, args []any, scan func(rows *sql.Rows) error) error {
	rows, err := q.Query(query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
