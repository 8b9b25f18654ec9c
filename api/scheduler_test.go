package api_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore"
	"github.com/warp/budget-engine/docstore/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScheduler_RunNowRollsOverStaleUsers(t *testing.T) {
	store := memory.New()
	engine := budget.NewEngine(store, zerolog.Nop())
	ctx := context.Background()

	_, err := engine.InitializeUser(ctx, "usr-1", "a@example.com")
	require.NoError(t, err)
	_, err = budget.NewRuleSet(store).CreateRule(ctx, "usr-1", "Emergency fund", dec("300"))
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, budget.CollectionUsers, "usr-1",
		docstore.Record{"currentMonth": "2019-01"}))

	scheduler := api.NewRolloverScheduler(store, engine, zerolog.Nop())
	scheduler.RunNow()

	marker, err := engine.Marker(ctx, "usr-1")
	require.NoError(t, err)
	assert.NotEqual(t, budget.Month("2019-01"), marker.CurrentMonth)

	total, err := budget.NewSavingsLedger(store).Total(ctx, "usr-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("300")), "got %s", total)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	scheduler := api.NewRolloverScheduler(memory.New(), budget.NewEngine(memory.New(), zerolog.Nop()), zerolog.Nop())
	scheduler.Enabled = false

	// Start is a no-op; Stop must not block or panic without a ticker
	scheduler.Start()
	scheduler.Stop()
}
