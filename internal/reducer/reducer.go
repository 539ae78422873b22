// Package reducer implements the budget state machine: a pure function
// from the current state and an intent to the next state.
//
// Every intent that touches budgets or expenses is followed by a single
// archive recompute, so archive status is current when Reduce returns.
// Configuration intents skip it; SetArchivedColor repaints instead.
package reducer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"several/internal/archive"
	"several/internal/core"
	"several/internal/ledger"
)

type (
	Clock       func() time.Time
	IDGenerator func() string
)

// Reducer applies intents. The zero value is not usable; call New.
type Reducer struct {
	now   Clock
	newID IDGenerator
}

type Option func(*Reducer)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(r *Reducer) { r.now = c }
}

// WithIDGenerator replaces the UUID generator used for new records.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Reducer) { r.newID = g }
}

func New(opts ...Option) *Reducer {
	r := &Reducer{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reduce returns the state that results from applying in to s.
// s is never modified. Reduce panics on an unknown intent type.
func (r *Reducer) Reduce(s ledger.State, in Intent) ledger.State {
	now := r.now()
	next, mutated := r.apply(s, in, now)
	if mutated {
		next.Budgets = archive.Recompute(next.Budgets, next.Expenses, next.Settings.ArchivedBudgetColor, now)
	}
	return next
}

func (r *Reducer) apply(s ledger.State, in Intent, now time.Time) (ledger.State, bool) {
	switch in := in.(type) {
	case AddBudget:
		b := core.Budget{ID: r.newID(), CreatedAt: now, ModifiedAt: now}.Apply(in.Draft)
		s.Budgets = ledger.AddBudget(s.Budgets, b)
		s.ManualOrder = ledger.AppendToOrder(s.ManualOrder, b.ID)
		return s, true

	case UpdateBudget:
		current, ok := s.Budget(in.Budget.ID)
		if !ok {
			return s, false
		}
		updated := current.Apply(in.Budget.Draft())
		updated.ModifiedAt = now
		s.Budgets = ledger.UpdateBudget(s.Budgets, updated)
		return s, true

	case DeleteBudget:
		s.Budgets = ledger.DeleteBudget(s.Budgets, in.ID)
		s.Expenses = ledger.DeleteExpensesOf(s.Expenses, in.ID)
		s.ManualOrder = ledger.PruneOrder(s.ManualOrder, in.ID)
		if s.LastDeleted != nil && s.LastDeleted.BudgetID == in.ID {
			s.LastDeleted = nil
		}
		return s, true

	case ReassignAndDeleteBudget:
		s.Expenses = ledger.ReassignExpenses(s.Expenses, in.SourceID, in.TargetID)
		s.Budgets = ledger.DeleteBudget(s.Budgets, in.SourceID)
		s.ManualOrder = ledger.PruneOrder(s.ManualOrder, in.SourceID)
		if s.LastDeleted != nil && s.LastDeleted.BudgetID == in.SourceID {
			moved := *s.LastDeleted
			moved.BudgetID = in.TargetID
			s.LastDeleted = &moved
		}
		return s, true

	case AddExpense:
		e := core.Expense{ID: r.newID(), CreatedAt: now}.Apply(in.Draft)
		s.Expenses = ledger.AddExpense(s.Expenses, e)
		return s, true

	case UpdateExpense:
		current, ok := s.Expense(in.Expense.ID)
		if !ok {
			return s, false
		}
		updated := current.Apply(core.ExpenseDraft{
			ReferenceNumber: in.Expense.ReferenceNumber,
			Description:     in.Expense.Description,
			Amount:          in.Expense.Amount,
			BudgetID:        in.Expense.BudgetID,
		})
		s.Expenses = ledger.UpdateExpense(s.Expenses, updated)
		return s, true

	case DeleteExpense:
		expenses, removed := ledger.DeleteExpense(s.Expenses, in.ID)
		if removed == nil {
			return s, false
		}
		s.Expenses = expenses
		s.LastDeleted = removed
		return s, true

	case UndoDeleteExpense:
		if s.LastDeleted == nil {
			return s, false
		}
		s.Expenses = ledger.SortByDateDesc(ledger.AddExpense(s.Expenses, *s.LastDeleted))
		s.LastDeleted = nil
		return s, true

	case MoveExpense:
		s.Expenses = ledger.MoveExpense(s.Expenses, in.ExpenseID, in.TargetBudgetID)
		return s, true

	case SetManualOrder:
		s.ManualOrder = append([]string(nil), in.Order...)
		return s, false

	case SetArchivedColor:
		s.Settings.ArchivedBudgetColor = in.Color
		s.Budgets = archive.Repaint(s.Budgets, in.Color)
		return s, false

	case SetAutoDistributionStrategy:
		s.Settings.AutoDistributionStrategy = in.Strategy
		return s, false

	case SetTheme:
		s.Settings.Theme = in.Theme
		return s, false

	case SetBudgetSortOrder:
		s.Settings.BudgetSortOrder = in.Order
		return s, false

	case SetExpenseSortOrder:
		s.Settings.ExpenseSortOrder = in.Order
		return s, false

	case ImportBackup:
		s.Settings = s.Settings.Merge(in.Config)
		s.Budgets = archive.Repaint(in.Data.Budgets, s.Settings.ArchivedBudgetColor)
		s.Expenses = append([]core.Expense(nil), in.Data.Expenses...)
		s.ManualOrder = ledger.NormalizeOrder(in.Data.ManualOrder, s.Budgets)
		s.LastDeleted = nil
		return s, true

	case ClearData:
		s.Budgets = nil
		s.Expenses = nil
		s.ManualOrder = nil
		s.LastDeleted = nil
		return s, true

	default:
		panic(fmt.Sprintf("reducer: unknown intent %T", in))
	}
}
