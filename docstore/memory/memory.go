// Package memory provides an in-memory docstore.Store for tests and dev.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// Store keeps every collection in a map. All operations take the same
// mutex, which also makes IncrementField and ConditionalUpdate atomic.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Record
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Record)}
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Query(_ context.Context, collection string, preds ...docstore.Where) ([]docstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Record
	for _, rec := range s.collections[collection] {
		if matches(rec, preds) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, collection string, rec docstore.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	if coll == nil {
		coll = make(map[string]docstore.Record)
		s.collections[collection] = coll
	}

	id := rec.ID()
	if id == "" {
		id = uuid.New().String()
	} else if _, exists := coll[id]; exists {
		return "", docstore.ErrDuplicateID
	}

	stored := rec.Clone()
	stored["id"] = id
	coll[id] = stored
	return id, nil
}

func (s *Store) Update(_ context.Context, collection, id string, fields docstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// IncrementField adds delta to a decimal-string field under the write lock,
// so concurrent increments through this store never lose an update.
func (s *Store) IncrementField(_ context.Context, collection, id, field string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}

	current := decimal.Zero
	if raw, ok := rec[field].(string); ok && raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("field %q is not numeric: %w", field, err)
		}
		current = parsed
	}
	rec[field] = current.Add(delta).String()
	return nil
}

// ConditionalUpdate applies fields only while the guard field still holds
// the expected value. Guard failure is an outcome, not an error.
func (s *Store) ConditionalUpdate(_ context.Context, collection, id, field string, expected any, fields docstore.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return false, docstore.ErrNotFound
	}
	if rec[field] != expected {
		return false, nil
	}
	for k, v := range fields {
		rec[k] = v
	}
	return true, nil
}

func matches(rec docstore.Record, preds []docstore.Where) bool {
	for _, p := range preds {
		if rec[p.Field] != p.Value {
			return false
		}
	}
	return true
}
