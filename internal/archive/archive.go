// Package archive keeps every budget's archival status in line with its
// remaining balance.
package archive

import (
	"strings"
	"time"

	"several/internal/core"
)

// Recompute returns a copy of budgets where a budget is archived exactly
// when its remaining balance is zero or below.
//
// Newly exhausted budgets take archivedColor. Budgets that regained a
// positive balance are unarchived, flagged IsRestored and given the first
// palette color no other budget currently holds, or Palette[0] when every
// color is taken. Only changed budgets get ModifiedAt = now. Running
// Recompute on its own output changes nothing.
func Recompute(budgets []core.Budget, expenses []core.Expense, archivedColor string, now time.Time) []core.Budget {
	spent := core.SpentByBudget(expenses)
	out := make([]core.Budget, len(budgets))
	copy(out, budgets)

	for i := range out {
		b := out[i]
		remaining := core.UsableAmount(b).Sub(spent[b.ID])
		exhausted := remaining.Sign() <= 0

		switch {
		case exhausted && !b.IsArchived:
			b.IsArchived = true
			b.Color = archivedColor
			b.ModifiedAt = now
		case !exhausted && b.IsArchived:
			b.IsArchived = false
			b.IsRestored = true
			b.Color = freeColor(out, i)
			b.ModifiedAt = now
		default:
			continue
		}
		out[i] = b
	}
	return out
}

// freeColor picks a palette color held by no budget other than out[self].
// Colors assigned earlier in the same pass count as taken.
func freeColor(out []core.Budget, self int) string {
	used := make(map[string]bool, len(out))
	for i, b := range out {
		if i != self {
			used[strings.ToUpper(b.Color)] = true
		}
	}
	for _, c := range core.Palette {
		if !used[c] {
			return c
		}
	}
	return core.Palette[0]
}

// Repaint gives every archived budget the new archived color. Active
// budgets and timestamps are left as they are.
func Repaint(budgets []core.Budget, archivedColor string) []core.Budget {
	out := make([]core.Budget, len(budgets))
	copy(out, budgets)
	for i := range out {
		if out[i].IsArchived {
			out[i].Color = archivedColor
		}
	}
	return out
}

// Transition describes a budget whose archive status flipped.
type Transition struct {
	BudgetID    string
	Description string
	Archived    bool
}

// Diff lists the budgets whose IsArchived differs between before and after.
// Budgets missing from before are reported only when created archived.
func Diff(before, after []core.Budget) []Transition {
	prev := make(map[string]bool, len(before))
	for _, b := range before {
		prev[b.ID] = b.IsArchived
	}
	var out []Transition
	for _, b := range after {
		was, ok := prev[b.ID]
		if (ok && was != b.IsArchived) || (!ok && b.IsArchived) {
			out = append(out, Transition{BudgetID: b.ID, Description: b.Description, Archived: b.IsArchived})
		}
	}
	return out
}
