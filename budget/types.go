/*
Package budget implements the month-rollover and savings-accrual engine of a
personal budgeting application.

PURPOSE:
  Users record monthly income, recurring mandatory deductions, discretionary
  category budgets, and expenses. This package owns the state transitions
  between calendar months and the accounting invariants that keep category
  spent totals and the append-only savings ledger correct.

KEY CONCEPTS:
  - UserMarker:    the single source of truth for a user's active month
  - MandatoryRule: a recurring fixed deduction, applied fresh each month
  - Category:      a per-month spending envelope with a running spent total
  - SavingsEntry:  an append-only accrual record, summed on every read
  - Engine:        detects and executes the month rollover exactly once

DESIGN PRINCIPLES:
  1. Precision: amounts are decimal.Decimal, never floats
  2. Append-only savings: totals are recomputed from entries, no cached
     aggregate exists to corrupt
  3. Injection: everything takes a docstore.Store, no global client
  4. Commutative mutation: spent totals change only via relative increments

SEE ALSO:
  - rollover.go: the engine and its idempotence guarantees
  - docstore/:   the persistence seam
*/
package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

const (
	CollectionUsers      = "users"
	CollectionIncome     = "monthlyIncome"
	CollectionRules      = "mandatoryRules"
	CollectionCategories = "categories"
	CollectionExpenses   = "expenses"
	CollectionSavings    = "savings"
)

// =============================================================================
// DOMAIN RECORDS
// =============================================================================

// UserMarker pins a user's active month. CurrentMonth is mutated only by
// Engine.PerformRollover and stamped once by Engine.InitializeUser.
type UserMarker struct {
	ID           string
	Email        string
	CurrentMonth Month
	CreatedAt    time.Time
}

// Income is the single income record for a (user, month) pair.
type Income struct {
	ID       string
	UserID   string
	Month    Month
	Amount   decimal.Decimal
	LockedAt time.Time
}

// MandatoryRule is a recurring fixed deduction. Rules are not month-scoped;
// only active rules contribute to totals and to rollover accrual.
type MandatoryRule struct {
	ID        string
	UserID    string
	Name      string
	Amount    decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
}

// Category is a per-month spending envelope. Spent starts at zero and is
// mutated only through expense create/delete, never by budget edits.
type Category struct {
	ID        string
	UserID    string
	Month     Month
	Name      string
	Budgeted  decimal.Decimal
	Spent     decimal.Decimal
	CreatedAt time.Time
}

// Remaining is budgeted minus spent. Negative means overspent, which is
// permitted and surfaced, never clamped.
func (c Category) Remaining() decimal.Decimal { return c.Budgeted.Sub(c.Spent) }

// Overspent reports whether spent exceeds budgeted.
func (c Category) Overspent() bool { return c.Spent.GreaterThan(c.Budgeted) }

// Expense is an individual spend record referencing a category.
type Expense struct {
	ID         string
	UserID     string
	Month      Month
	CategoryID string
	Amount     decimal.Decimal
	Note       string
	Date       time.Time
	CreatedAt  time.Time
}

// SavingsSource tags where a savings entry came from.
type SavingsSource string

const (
	SourceMandatory SavingsSource = "mandatory"
	SourceLeftover  SavingsSource = "leftover"
)

// Valid reports whether the source is one of the known tags.
func (s SavingsSource) Valid() bool {
	return s == SourceMandatory || s == SourceLeftover
}

// SavingsEntry is one append-only accrual record. Entries are never updated
// or deleted; every total is a sum over entries.
type SavingsEntry struct {
	ID        string
	UserID    string
	Month     Month
	Amount    decimal.Decimal
	Source    SavingsSource
	CreatedAt time.Time
}

// =============================================================================
// RECORD CODECS
// =============================================================================
// Documents keep the original application's field names (userId, isActive,
// lockedAt, ...) so the collections stay recognizable. Amounts travel as
// decimal strings, times as RFC3339.

func (u UserMarker) record() docstore.Record {
	return docstore.Record{
		"id":           u.ID,
		"email":        u.Email,
		"currentMonth": string(u.CurrentMonth),
		"createdAt":    u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func userFromRecord(r docstore.Record) UserMarker {
	return UserMarker{
		ID:           r.ID(),
		Email:        r.String("email"),
		CurrentMonth: Month(r.String("currentMonth")),
		CreatedAt:    parseTime(r.String("createdAt")),
	}
}

func (i Income) record() docstore.Record {
	return docstore.Record{
		"id":       i.ID,
		"userId":   i.UserID,
		"month":    string(i.Month),
		"amount":   i.Amount.String(),
		"lockedAt": i.LockedAt.UTC().Format(time.RFC3339),
	}
}

func incomeFromRecord(r docstore.Record) Income {
	return Income{
		ID:       r.ID(),
		UserID:   r.String("userId"),
		Month:    Month(r.String("month")),
		Amount:   r.Decimal("amount"),
		LockedAt: parseTime(r.String("lockedAt")),
	}
}

func (m MandatoryRule) record() docstore.Record {
	return docstore.Record{
		"id":        m.ID,
		"userId":    m.UserID,
		"name":      m.Name,
		"amount":    m.Amount.String(),
		"isActive":  m.IsActive,
		"createdAt": m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ruleFromRecord(r docstore.Record) MandatoryRule {
	return MandatoryRule{
		ID:        r.ID(),
		UserID:    r.String("userId"),
		Name:      r.String("name"),
		Amount:    r.Decimal("amount"),
		IsActive:  r.Bool("isActive"),
		CreatedAt: parseTime(r.String("createdAt")),
	}
}

func (c Category) record() docstore.Record {
	return docstore.Record{
		"id":        c.ID,
		"userId":    c.UserID,
		"month":     string(c.Month),
		"name":      c.Name,
		"budgeted":  c.Budgeted.String(),
		"spent":     c.Spent.String(),
		"createdAt": c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func categoryFromRecord(r docstore.Record) Category {
	return Category{
		ID:        r.ID(),
		UserID:    r.String("userId"),
		Month:     Month(r.String("month")),
		Name:      r.String("name"),
		Budgeted:  r.Decimal("budgeted"),
		Spent:     r.Decimal("spent"),
		CreatedAt: parseTime(r.String("createdAt")),
	}
}

func (e Expense) record() docstore.Record {
	return docstore.Record{
		"id":         e.ID,
		"userId":     e.UserID,
		"month":      string(e.Month),
		"categoryId": e.CategoryID,
		"amount":     e.Amount.String(),
		"note":       e.Note,
		"date":       e.Date.UTC().Format(time.RFC3339),
		"createdAt":  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func expenseFromRecord(r docstore.Record) Expense {
	return Expense{
		ID:         r.ID(),
		UserID:     r.String("userId"),
		Month:      Month(r.String("month")),
		CategoryID: r.String("categoryId"),
		Amount:     r.Decimal("amount"),
		Note:       r.String("note"),
		Date:       parseTime(r.String("date")),
		CreatedAt:  parseTime(r.String("createdAt")),
	}
}

func (s SavingsEntry) record() docstore.Record {
	return docstore.Record{
		"id":        s.ID,
		"userId":    s.UserID,
		"month":     string(s.Month),
		"amount":    s.Amount.String(),
		"source":    string(s.Source),
		"createdAt": s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func savingsFromRecord(r docstore.Record) SavingsEntry {
	return SavingsEntry{
		ID:        r.ID(),
		UserID:    r.String("userId"),
		Month:     Month(r.String("month")),
		Amount:    r.Decimal("amount"),
		Source:    SavingsSource(r.String("source")),
		CreatedAt: parseTime(r.String("createdAt")),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
