package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/docstore"
	"github.com/warp/budget-engine/docstore/memory"
)

func TestCreate_GeneratesIDWhenAbsent(t *testing.T) {
	store := memory.New()

	id, err := store.Create(context.Background(), "things", docstore.Record{"name": "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec, err := store.Get(context.Background(), "things", id)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.String("name"))
}

func TestCreate_HonorsCallerIDAndRejectsDuplicates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	id, err := store.Create(ctx, "things", docstore.Record{"id": "thing-1", "name": "a"})
	require.NoError(t, err)
	assert.Equal(t, "thing-1", id)

	_, err = store.Create(ctx, "things", docstore.Record{"id": "thing-1", "name": "b"})
	assert.ErrorIs(t, err, docstore.ErrDuplicateID)
}

func TestGet_ReturnsCopies(t *testing.T) {
	// Mutating a returned record must not leak back into the store.
	store := memory.New()
	ctx := context.Background()
	_, err := store.Create(ctx, "things", docstore.Record{"id": "thing-1", "name": "a"})
	require.NoError(t, err)

	rec, err := store.Get(ctx, "things", "thing-1")
	require.NoError(t, err)
	rec["name"] = "mutated"

	again, err := store.Get(ctx, "things", "thing-1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.String("name"))
}

func TestQuery_EqualityPredicates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seed := []docstore.Record{
		{"id": "1", "userId": "usr-1", "month": "2026-01"},
		{"id": "2", "userId": "usr-1", "month": "2026-02"},
		{"id": "3", "userId": "usr-2", "month": "2026-01"},
	}
	for _, rec := range seed {
		_, err := store.Create(ctx, "income", rec)
		require.NoError(t, err)
	}

	recs, err := store.Query(ctx, "income", docstore.Eq("userId", "usr-1"), docstore.Eq("month", "2026-01"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].ID())

	all, err := store.Query(ctx, "income")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdate_MissingRecord(t *testing.T) {
	err := memory.New().Update(context.Background(), "things", "ghost", docstore.Record{"name": "x"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestIncrementField_ConcurrentIncrementsNeverLose(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.Create(ctx, "categories", docstore.Record{"id": "cat-1", "spent": "0"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.IncrementField(ctx, "categories", "cat-1", "spent", decimal.NewFromInt(1)))
		}()
	}
	wg.Wait()

	rec, err := store.Get(ctx, "categories", "cat-1")
	require.NoError(t, err)
	assert.True(t, rec.Decimal("spent").Equal(decimal.NewFromInt(50)), "got %s", rec.String("spent"))
}

func TestIncrementField_InitializesAbsentField(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.Create(ctx, "categories", docstore.Record{"id": "cat-1"})
	require.NoError(t, err)

	require.NoError(t, store.IncrementField(ctx, "categories", "cat-1", "spent", decimal.RequireFromString("12.50")))

	rec, err := store.Get(ctx, "categories", "cat-1")
	require.NoError(t, err)
	assert.Equal(t, "12.5", rec.String("spent"))
}

func TestConditionalUpdate_GuardSemantics(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.Create(ctx, "users", docstore.Record{"id": "usr-1", "currentMonth": "2026-01"})
	require.NoError(t, err)

	// Guard holds: update applies
	ok, err := store.ConditionalUpdate(ctx, "users", "usr-1", "currentMonth", "2026-01",
		docstore.Record{"currentMonth": "2026-02"})
	require.NoError(t, err)
	assert.True(t, ok)

	// Guard stale: (false, nil), record untouched
	ok, err = store.ConditionalUpdate(ctx, "users", "usr-1", "currentMonth", "2026-01",
		docstore.Record{"currentMonth": "2026-03"})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := store.Get(ctx, "users", "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-02", rec.String("currentMonth"))

	// Missing record is an error, not a failed guard
	_, err = store.ConditionalUpdate(ctx, "users", "ghost", "currentMonth", "2026-01",
		docstore.Record{"currentMonth": "2026-02"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestConditionalUpdate_OnlyOneConcurrentWinner(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.Create(ctx, "users", docstore.Record{"id": "usr-1", "currentMonth": "2026-01"})
	require.NoError(t, err)

	wins := make(chan bool, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ConditionalUpdate(ctx, "users", "usr-1", "currentMonth", "2026-01",
				docstore.Record{"currentMonth": "2026-02"})
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)
}
