/*
Package sqlite provides a SQLite-backed implementation of docstore.Store.

PURPOSE:
  The default persistent store. Documents from every collection live in a
  single table keyed by (collection, id) with the body stored as JSON;
  equality predicates are evaluated with the JSON1 extension.

SCHEMA:
  documents(collection, id, data, created_at) with PK (collection, id).
  There is one secondary index on the userId field, since every domain
  query starts from a user.

ATOMICITY:
  - IncrementField runs a read-modify-write inside one database
    transaction, with the arithmetic done in Go on decimal values so money
    never passes through floats. The store-level mutex plus SQLite's single
    writer make the add commutative with respect to concurrent increments
    through any handle on the same file.
  - ConditionalUpdate is a single UPDATE guarded by a json_extract
    comparison; RowsAffected == 0 means the guard failed.

WAL MODE:
  Opened with _journal_mode=WAL so readers do not block the writer.

USAGE:
  store, err := sqlite.New("./data/budget.db")   // or ":memory:"
  defer store.Close()

SEE ALSO:
  - docstore/docstore.go: the contract this implements
  - docstore/postgres: the same contract on JSONB
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// Store implements docstore.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) a SQLite-backed store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer anyway, and a ":memory:"
	// database exists per connection, so a pool would see different data.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	-- Every domain query filters on userId first.
	CREATE INDEX IF NOT EXISTS idx_documents_user
		ON documents(collection, json_extract(data, '$.userId'));
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeRecord(data)
}

func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Where) ([]docstore.Record, error) {
	query := `SELECT data FROM documents WHERE collection = ?`
	args := []any{collection}

	// json_extract(json(?), '$') normalizes the bound value to the same SQL
	// representation json_extract produces for the stored field (booleans
	// become 0/1, strings stay text), so one comparison shape covers both.
	for _, p := range preds {
		query += ` AND json_extract(data, ?) = json_extract(json(?), '$')`
		encoded, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode predicate %q: %w", p.Field, err)
		}
		args = append(args, "$."+p.Field, string(encoded))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []docstore.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) Create(ctx context.Context, collection string, rec docstore.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.ID()
	if id == "" {
		id = uuid.New().String()
	}
	stored := rec.Clone()
	stored["id"] = id

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, ?, ?)`,
		collection, id, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", docstore.ErrDuplicateID
		}
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	// json_patch merges the fields into the stored body. Field values here
	// are scalars, so RFC 7386 merge semantics equal a plain field merge.
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = json_patch(data, ?) WHERE collection = ? AND id = ?`,
		string(patch), collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireRow(res)
}

// IncrementField adds delta to a decimal-string field. The arithmetic runs
// in Go so amounts keep exact decimal precision; the surrounding
// transaction plus the store mutex make the read-modify-write atomic.
func (s *Store) IncrementField(ctx context.Context, collection, id, field string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT json_extract(data, ?) FROM documents WHERE collection = ? AND id = ?`,
		"$."+field, collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read field %q: %w", field, err)
	}

	current := decimal.Zero
	if raw.Valid && raw.String != "" {
		current, err = decimal.NewFromString(raw.String)
		if err != nil {
			return fmt.Errorf("field %q is not numeric: %w", field, err)
		}
	}

	next := current.Add(delta).String()
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data = json_set(data, ?, ?) WHERE collection = ? AND id = ?`,
		"$."+field, next, collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment field %q: %w", field, err)
	}
	return tx.Commit()
}

// ConditionalUpdate applies fields only while the guard field still equals
// expected. RowsAffected distinguishes "guard failed" from "applied".
func (s *Store) ConditionalUpdate(ctx context.Context, collection, id, field string, expected any, fields docstore.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patch, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("failed to encode fields: %w", err)
	}
	guard, err := json.Marshal(expected)
	if err != nil {
		return false, fmt.Errorf("failed to encode guard value: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = json_patch(data, ?)
		 WHERE collection = ? AND id = ?
		   AND json_extract(data, ?) = json_extract(json(?), '$')`,
		string(patch), collection, id, "$."+field, string(guard),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// Guard failed, or the document never existed. Tell them apart so a
	// missing document is not mistaken for a lost race.
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, docstore.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeRecord(data string) (docstore.Record, error) {
	var rec docstore.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
