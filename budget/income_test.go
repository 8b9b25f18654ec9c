package budget_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore"
	"github.com/warp/budget-engine/docstore/memory"
)

func TestIncome_AbsentIsZeroNotError(t *testing.T) {
	ledger := budget.NewIncomeLedger(memory.New())

	inc, err := ledger.Income(context.Background(), "usr-1", "2026-01")
	require.NoError(t, err)
	assert.Nil(t, inc)
}

func TestSetIncome_UpsertKeepsOneRecordPerMonth(t *testing.T) {
	// GIVEN: Income set twice for the same month
	// WHEN: Querying the month's records directly
	// THEN: Exactly one record exists and it carries the last amount
	store := memory.New()
	ledger := budget.NewIncomeLedger(store)
	ctx := context.Background()

	require.NoError(t, ledger.SetIncome(ctx, "usr-1", "2026-01", dec("3000")))
	require.NoError(t, ledger.SetIncome(ctx, "usr-1", "2026-01", dec("3200")))

	recs, err := store.Query(ctx, budget.CollectionIncome,
		docstore.Eq("userId", "usr-1"), docstore.Eq("month", "2026-01"))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	inc, err := ledger.Income(ctx, "usr-1", "2026-01")
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.True(t, inc.Amount.Equal(dec("3200")), "got %s", inc.Amount)
}

func TestAddIncome_CreatesThenAccumulates(t *testing.T) {
	ledger := budget.NewIncomeLedger(memory.New())
	ctx := context.Background()

	require.NoError(t, ledger.AddIncome(ctx, "usr-1", "2026-01", dec("500")))
	require.NoError(t, ledger.AddIncome(ctx, "usr-1", "2026-01", dec("250.75")))

	inc, err := ledger.Income(ctx, "usr-1", "2026-01")
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.True(t, inc.Amount.Equal(dec("750.75")), "got %s", inc.Amount)
}

func TestAddIncome_AfterSet(t *testing.T) {
	ledger := budget.NewIncomeLedger(memory.New())
	ctx := context.Background()

	require.NoError(t, ledger.SetIncome(ctx, "usr-1", "2026-01", dec("3000")))
	require.NoError(t, ledger.AddIncome(ctx, "usr-1", "2026-01", dec("150")))

	inc, err := ledger.Income(ctx, "usr-1", "2026-01")
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.True(t, inc.Amount.Equal(dec("3150")), "got %s", inc.Amount)
}

func TestAddIncome_ConcurrentAddsAllLand(t *testing.T) {
	// The increments go through the store's atomic field increment, so
	// parallel adds never overwrite each other.
	store := memory.New()
	ledger := budget.NewIncomeLedger(store)
	ctx := context.Background()
	require.NoError(t, ledger.SetIncome(ctx, "usr-1", "2026-01", dec("100")))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.AddIncome(ctx, "usr-1", "2026-01", dec("10")))
		}()
	}
	wg.Wait()

	inc, err := ledger.Income(ctx, "usr-1", "2026-01")
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.True(t, inc.Amount.Equal(dec("200")), "got %s", inc.Amount)
}

func TestIncomeHistory_NewestMonthFirstWithLimit(t *testing.T) {
	ledger := budget.NewIncomeLedger(memory.New())
	ctx := context.Background()

	for _, m := range []budget.Month{"2025-11", "2026-01", "2025-12"} {
		require.NoError(t, ledger.SetIncome(ctx, "usr-1", m, dec("3000")))
	}

	history, err := ledger.History(ctx, "usr-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, budget.Month("2026-01"), history[0].Month)
	assert.Equal(t, budget.Month("2025-12"), history[1].Month)
}

func TestIncome_RejectsBlankUser(t *testing.T) {
	ledger := budget.NewIncomeLedger(memory.New())

	err := ledger.SetIncome(context.Background(), "", "2026-01", dec("100"))
	assert.ErrorIs(t, err, budget.ErrNotAuthenticated)
}
