/*
scheduler.go - Background rollover sweep

PURPOSE:
  Periodically scans user markers whose stored month lags the real current
  month and runs the rollover for each. Session-start checks already cover
  active users; the sweep covers users who have not opened the app since
  the month changed, so their mandatory savings accrue on time.

DESIGN:
  - A single goroutine sweeps on a ticker, plus once right at startup
  - Reads markers straight from the users collection
  - Safe to race with session-start rollovers: the marker CAS lets exactly
    one caller win, and losing is reported as success
  - One user's failure never aborts the sweep

CONFIGURATION:
  - CheckInterval: sweep period, 1 hour unless overridden
  - Enabled: set false to make Start a no-op

USAGE:
  scheduler := NewRolloverScheduler(store, handler.Engine, log)
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - budget/rollover.go: Engine.PerformRollover
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/docstore"
)

// RolloverScheduler runs periodic rollover sweeps.
type RolloverScheduler struct {
	Store         docstore.Store
	Engine        *budget.Engine
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(store docstore.Store, engine *budget.Engine, log zerolog.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		Store:         store,
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log.With().Str("component", "scheduler").Logger(),
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.log.Info().Msg("scheduler stopped")
	}
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// First pass right away so a restart does not wait a full interval.
	rs.sweep()

	for {
		select {
		case <-rs.ticker.C:
			rs.sweep()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RolloverScheduler) sweep() {
	result := sweepOnce(context.Background(), rs.Store, rs.Engine, rs.log)
	if result.RolledOver > 0 || result.Failed > 0 {
		rs.log.Info().
			Int("checked", result.Checked).
			Int("rolled_over", result.RolledOver).
			Int("failed", result.Failed).
			Msg("rollover sweep completed")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RolloverScheduler) RunNow() {
	rs.sweep()
}

// SweepResult summarizes one pass over the user markers.
type SweepResult struct {
	Checked    int
	RolledOver int
	Failed     int
}

// sweepOnce scans every user marker and rolls over the stale ones. Shared
// by the scheduler and the admin endpoint.
func sweepOnce(ctx context.Context, store docstore.Store, engine *budget.Engine, log zerolog.Logger) SweepResult {
	var result SweepResult

	markers, err := store.Query(ctx, budget.CollectionUsers)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed to list users")
		result.Failed++
		return result
	}

	current := budget.CurrentMonth(time.Now())
	for _, rec := range markers {
		result.Checked++
		if rec.String("currentMonth") == string(current) {
			continue
		}

		userID := rec.ID()
		res, err := engine.PerformRollover(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("sweep rollover failed")
			result.Failed++
			continue
		}
		if !res.Lost {
			result.RolledOver++
		}
	}
	return result
}
