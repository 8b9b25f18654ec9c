/*
rollover.go - Month rollover engine

PURPOSE:
  Detects that the wall clock has moved past a user's recorded active month
  and executes the transition exactly once: swing the user marker to the
  real current month, then accrue one mandatory savings entry per active
  rule for the new month.

STATE MACHINE (per user):
  States are months. The only transition is forward, to the real current
  month, triggered by observation at session start (or by the background
  sweeper). Never backward, never month-by-month replay: a user absent for
  three months transitions in one step and the skipped months accrue
  nothing. That gap is a documented design choice carried over from the
  original application, not something to silently repair.

IDEMPOTENCE:
  Two layers make the transition safe under races and crashes:

  1. The marker update is a compare-and-swap on the stored month. When two
     sessions race, exactly one CAS succeeds; the loser reports Lost and
     skips accrual. Losing is an outcome, not an error.

  2. Accrual entries carry deterministic ids keyed by (user, month, rule).
     A crash after the CAS but before accrual completes used to mean
     silently skipped savings (the marker already matches, so the check
     never re-triggers). Here re-running PerformRollover when the marker is
     already current re-attempts the accrual, and the id collisions turn
     already-written entries into no-ops. At-most-once becomes retriable
     without ever double-counting.

ERROR POLICY:
  NeedsRollover on a store failure returns (false, err): the boolean keeps
  the original availability-over-correctness behavior for callers that
  ignore the error, while the error stays distinguishable and is logged at
  warn level rather than conflated with "not needed".

SEE ALSO:
  - savings.go: the append-only ledger the accrual writes into
  - api/scheduler.go: the background sweep over stale markers
*/
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates month transitions. All collaborators are injected;
// there is no package-level store.
type Engine struct {
	store   docstore.Store
	rules   *RuleSet
	savings *SavingsLedger
	log     zerolog.Logger

	// Now supplies wall-clock time. Overridable for tests.
	Now func() time.Time
}

// NewEngine wires an engine over the given store.
func NewEngine(store docstore.Store, log zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		rules:   NewRuleSet(store),
		savings: NewSavingsLedger(store),
		log:     log.With().Str("component", "rollover").Logger(),
		Now:     time.Now,
	}
}

// RolloverResult reports what a PerformRollover call did.
type RolloverResult struct {
	// Month is the target month the user now operates in.
	Month Month

	// Lost is true when another session won the marker CAS. The caller
	// treats this as success; the winner did (or is doing) the accrual.
	Lost bool

	// AlreadyCurrent is true when the marker already matched the target
	// month; only the accrual repair ran.
	AlreadyCurrent bool

	// EntriesWritten counts mandatory savings entries appended by this
	// call. EntriesSkipped counts id collisions (already accrued).
	EntriesWritten int
	EntriesSkipped int
}

// =============================================================================
// ONBOARDING
// =============================================================================

// InitializeUser stamps the user marker with the real current month. This
// is a one-time seed at signup, not a rollover.
func (e *Engine) InitializeUser(ctx context.Context, userID, email string) (UserMarker, error) {
	if err := requireUser(userID); err != nil {
		return UserMarker{}, err
	}

	marker := UserMarker{
		ID:           userID,
		Email:        email,
		CurrentMonth: CurrentMonth(e.Now()),
		CreatedAt:    e.Now().UTC(),
	}
	if _, err := e.store.Create(ctx, CollectionUsers, marker.record()); err != nil {
		return UserMarker{}, err
	}
	return marker, nil
}

// Marker loads the user's marker.
func (e *Engine) Marker(ctx context.Context, userID string) (UserMarker, error) {
	if err := requireUser(userID); err != nil {
		return UserMarker{}, err
	}
	rec, err := e.store.Get(ctx, CollectionUsers, userID)
	if err != nil {
		return UserMarker{}, err
	}
	return userFromRecord(rec), nil
}

// =============================================================================
// ROLLOVER
// =============================================================================

// NeedsRollover reports whether the stored month differs from the real
// current month. A missing marker or store failure returns (false, err):
// no rollover is attempted, and the caller can still distinguish "unknown"
// from "not needed".
func (e *Engine) NeedsRollover(ctx context.Context, userID string) (bool, error) {
	marker, err := e.Marker(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user", userID).
			Msg("rollover check failed; treating as not needed")
		return false, err
	}
	return marker.CurrentMonth != CurrentMonth(e.Now()), nil
}

// PerformRollover transitions the user to the real current month.
//
// Steps: re-read the marker, recompute the target month (tolerating a gap
// since the NeedsRollover call), CAS the marker from the observed month to
// the target, then append one mandatory savings entry per active rule.
// Safe to call when no rollover is needed: the accrual repair runs and
// id collisions keep it from double-counting.
func (e *Engine) PerformRollover(ctx context.Context, userID string) (RolloverResult, error) {
	marker, err := e.Marker(ctx, userID)
	if err != nil {
		return RolloverResult{}, fmt.Errorf("failed to load user marker: %w", err)
	}

	target := CurrentMonth(e.Now())
	result := RolloverResult{Month: target}

	if marker.CurrentMonth == target {
		// Marker already current: either a redundant call or recovery from
		// a crash between the CAS and the accrual. Re-run the accrual; the
		// deterministic ids make it a no-op when everything was written.
		result.AlreadyCurrent = true
	} else {
		// Marker first, accrual second: a crash after this point leaves the
		// month advanced rather than stuck, and the accrual stays
		// repairable by re-invocation.
		ok, err := e.store.ConditionalUpdate(ctx, CollectionUsers, userID,
			"currentMonth", string(marker.CurrentMonth),
			docstore.Record{"currentMonth": string(target)})
		if err != nil {
			return RolloverResult{}, fmt.Errorf("failed to update user marker: %w", err)
		}
		if !ok {
			// Another session moved the marker between our read and the
			// CAS. It owns the accrual; report Lost and write nothing.
			e.log.Debug().Str("user", userID).Str("month", string(target)).
				Msg("rollover lost to concurrent session")
			result.Lost = true
			return result, nil
		}
	}

	written, skipped, err := e.accrueMandatory(ctx, userID, target)
	result.EntriesWritten = written
	result.EntriesSkipped = skipped
	if err != nil {
		// Partial accrual: the marker is already advanced, so a retry goes
		// through the AlreadyCurrent repair path and completes the rest.
		return result, fmt.Errorf("rollover accrual incomplete: %w", err)
	}

	e.log.Info().Str("user", userID).Str("month", string(target)).
		Int("entries", written).Int("skipped", skipped).
		Msg("month rollover completed")
	return result, nil
}

// accrueMandatory appends one savings entry per active rule for the month.
// Entry ids are keyed by (user, month, rule) so replays collide instead of
// double-counting.
func (e *Engine) accrueMandatory(ctx context.Context, userID string, month Month) (written, skipped int, err error) {
	rules, err := e.rules.ActiveRules(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	for _, rule := range rules {
		entry := SavingsEntry{
			ID:     accrualEntryID(userID, month, rule.ID),
			UserID: userID,
			Month:  month,
			Amount: rule.Amount,
			Source: SourceMandatory,
		}
		_, err := e.savings.AddEntry(ctx, entry)
		if errors.Is(err, docstore.ErrDuplicateID) {
			skipped++
			continue
		}
		if err != nil {
			return written, skipped, err
		}
		written++
	}
	return written, skipped, nil
}

func accrualEntryID(userID string, month Month, ruleID string) string {
	return fmt.Sprintf("sav-%s-%s-%s", userID, month, ruleID)
}

// =============================================================================
// SESSION START
// =============================================================================

// SessionStart is the check-then-act sequence run when an authenticated
// user opens the app. Store failures during the check degrade to "no
// rollover needed" (availability over strictness); they are logged by
// NeedsRollover and swallowed here.
func (e *Engine) SessionStart(ctx context.Context, userID string) (RolloverResult, error) {
	needed, err := e.NeedsRollover(ctx, userID)
	if err != nil || !needed {
		return RolloverResult{Month: CurrentMonth(e.Now())}, nil
	}
	return e.PerformRollover(ctx, userID)
}
