/*
Package docstore defines the document-collection abstraction the budget
engine persists through.

PURPOSE:
  The engine never talks to a database directly. Everything it needs is a
  small set of per-document operations plus equality-filtered queries, the
  same surface a hosted document store (Firestore, DynamoDB) would offer.
  Keeping the seam this narrow lets the same engine run against SQLite,
  PostgreSQL, or an in-memory map.

OPERATIONS:
  Get / Query / Create / Update / Delete   plain per-document CRUD
  IncrementField                           commutative numeric add
  ConditionalUpdate                        compare-and-swap on one field

WHY IncrementField:
  Category spent totals are mutated by concurrent expense writes. A
  read-modify-write of the total loses updates under concurrency; a relative
  add is commutative and order-independent, so every implementation performs
  the add store-side (or under its own write lock).

WHY ConditionalUpdate:
  Month rollover must happen once per (user, month) even when two sessions
  race. The rollover engine swings the user marker with a CAS on the stored
  month; the losing session observes success=false and skips accrual.

ID CONVENTION:
  Create honors an "id" field already present on the record and fails with
  ErrDuplicateID when that id exists. Deterministic ids are how callers make
  appends idempotent. Absent an id, the store assigns one.

IMPLEMENTATIONS:
  - docstore/memory:   map-backed, for tests and dev
  - docstore/sqlite:   single-file production store (JSON1)
  - docstore/postgres: server deployment (JSONB)

SEE ALSO:
  - budget/: the domain ledgers built on this interface
*/
package docstore

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORDS AND PREDICATES
// =============================================================================

// Record is one document. Field values are strings, bools, or decimal
// strings for amounts; nested documents are not used.
type Record map[string]any

// Clone returns a shallow copy. Records handed out by stores are already
// defensive copies; Clone is for callers that mutate.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the record's document id, or "" when unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns a string field, or "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Bool returns a bool field, false when absent.
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Decimal parses a decimal-string field. Absent or malformed fields
// return zero; amounts are validated at the domain layer before writes.
func (r Record) Decimal(field string) decimal.Decimal {
	s, ok := r[field].(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Where is a single equality predicate. Queries AND their predicates
// together; that is the only filter shape the engine needs.
type Where struct {
	Field string
	Value any
}

// Eq builds a predicate.
func Eq(field string, value any) Where { return Where{Field: field, Value: value} }

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence contract.
//
// CONTRACT:
//   - Get returns ErrNotFound for missing documents.
//   - Query with no predicates returns the whole collection. Result order is
//     unspecified; callers sort by domain keys.
//   - Create uses rec["id"] when present and returns ErrDuplicateID if that
//     id already exists in the collection. Otherwise it assigns an id.
//   - Update merges fields into an existing document (ErrNotFound if absent).
//     It never removes fields.
//   - IncrementField adds delta to a numeric (decimal-string) field,
//     atomically with respect to concurrent increments on the same field.
//   - ConditionalUpdate applies fields only if the guard field currently
//     equals expected. Returns (false, nil) when the guard fails; that is an
//     outcome, not an error.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Query(ctx context.Context, collection string, preds ...Where) ([]Record, error)
	Create(ctx context.Context, collection string, rec Record) (string, error)
	Update(ctx context.Context, collection, id string, fields Record) error
	Delete(ctx context.Context, collection, id string) error
	IncrementField(ctx context.Context, collection, id, field string, delta decimal.Decimal) error
	ConditionalUpdate(ctx context.Context, collection, id, field string, expected any, fields Record) (bool, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateID is returned by Create when the supplied id already
	// exists. Callers using deterministic ids treat this as "already
	// applied".
	ErrDuplicateID = errors.New("duplicate document id")
)

// IsNotFound reports whether err indicates a missing document.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
