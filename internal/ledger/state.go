// Package ledger holds the application state and the immutable
// collection operations the reducer is built from.
//
// Every function returns fresh slices and never mutates its arguments.
package ledger

import (
	"sort"

	"several/internal/core"
)

// Snapshot is the persisted data set: budgets, expenses and manual order.
type Snapshot struct {
	Budgets     []core.Budget
	Expenses    []core.Expense
	ManualOrder []string
}

// State is the whole application state owned by the controller.
type State struct {
	Budgets     []core.Budget
	Expenses    []core.Expense
	ManualOrder []string
	LastDeleted *core.Expense
	Settings    core.Settings
}

// NewState returns an empty state with default settings.
func NewState() State {
	return State{Settings: core.DefaultSettings()}
}

// Snapshot returns the persisted part of s.
func (s State) Snapshot() Snapshot {
	return Snapshot{Budgets: s.Budgets, Expenses: s.Expenses, ManualOrder: s.ManualOrder}
}

// Budget looks up a budget by id.
func (s State) Budget(id string) (core.Budget, bool) {
	if i := core.FindBudget(s.Budgets, id); i >= 0 {
		return s.Budgets[i], true
	}
	return core.Budget{}, false
}

// Expense looks up an expense by id.
func (s State) Expense(id string) (core.Expense, bool) {
	if i := core.FindExpense(s.Expenses, id); i >= 0 {
		return s.Expenses[i], true
	}
	return core.Expense{}, false
}

// CanUndo reports whether a deleted expense can be restored.
func (s State) CanUndo() bool {
	return s.LastDeleted != nil
}

// AddBudget appends b.
func AddBudget(budgets []core.Budget, b core.Budget) []core.Budget {
	out := make([]core.Budget, 0, len(budgets)+1)
	out = append(out, budgets...)
	return append(out, b)
}

// UpdateBudget replaces the budget with b.ID. Unknown ids leave the
// collection unchanged.
func UpdateBudget(budgets []core.Budget, b core.Budget) []core.Budget {
	out := make([]core.Budget, len(budgets))
	copy(out, budgets)
	if i := core.FindBudget(out, b.ID); i >= 0 {
		out[i] = b
	}
	return out
}

// DeleteBudget removes the budget with id.
func DeleteBudget(budgets []core.Budget, id string) []core.Budget {
	out := make([]core.Budget, 0, len(budgets))
	for _, b := range budgets {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

// AddExpense appends e.
func AddExpense(expenses []core.Expense, e core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(expenses)+1)
	out = append(out, expenses...)
	return append(out, e)
}

// UpdateExpense replaces the expense with e.ID.
func UpdateExpense(expenses []core.Expense, e core.Expense) []core.Expense {
	out := make([]core.Expense, len(expenses))
	copy(out, expenses)
	if i := core.FindExpense(out, e.ID); i >= 0 {
		out[i] = e
	}
	return out
}

// DeleteExpense removes the expense with id and returns it, if present.
func DeleteExpense(expenses []core.Expense, id string) ([]core.Expense, *core.Expense) {
	out := make([]core.Expense, 0, len(expenses))
	var removed *core.Expense
	for _, e := range expenses {
		if e.ID == id {
			removed = &e
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

// DeleteExpensesOf removes every expense charged to budgetID.
func DeleteExpensesOf(expenses []core.Expense, budgetID string) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.BudgetID != budgetID {
			out = append(out, e)
		}
	}
	return out
}

// ReassignExpenses moves every expense of fromID onto toID.
func ReassignExpenses(expenses []core.Expense, fromID, toID string) []core.Expense {
	out := make([]core.Expense, len(expenses))
	copy(out, expenses)
	for i := range out {
		if out[i].BudgetID == fromID {
			out[i].BudgetID = toID
		}
	}
	return out
}

// MoveExpense charges the expense with id to toID.
func MoveExpense(expenses []core.Expense, id, toID string) []core.Expense {
	out := make([]core.Expense, len(expenses))
	copy(out, expenses)
	if i := core.FindExpense(out, id); i >= 0 {
		out[i].BudgetID = toID
	}
	return out
}

// SortByDateDesc orders expenses newest first, keeping the relative order
// of expenses created at the same instant.
func SortByDateDesc(expenses []core.Expense) []core.Expense {
	out := make([]core.Expense, len(expenses))
	copy(out, expenses)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ExpenseCount returns how many expenses are charged to budgetID.
func ExpenseCount(expenses []core.Expense, budgetID string) int {
	n := 0
	for _, e := range expenses {
		if e.BudgetID == budgetID {
			n++
		}
	}
	return n
}
