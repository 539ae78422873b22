package ledger

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"several/internal/core"
)

// BudgetSummary is a budget with its derived balances.
type BudgetSummary struct {
	core.Budget
	Usable          decimal.Decimal `json:"usable"`
	Spent           decimal.Decimal `json:"spent"`
	Remaining       decimal.Decimal `json:"remaining"`
	SpentPercentage float64         `json:"spentPercentage"`
	ExpenseCount    int             `json:"expenseCount"`
}

// ArchivedYear groups archived budgets by the year they were last modified.
type ArchivedYear struct {
	Year    int             `json:"year"`
	Budgets []BudgetSummary `json:"budgets"`
}

// ExpenseView is an expense annotated with its budget for history lists.
type ExpenseView struct {
	core.Expense
	BudgetDescription string `json:"budgetDescription"`
	BudgetColor       string `json:"budgetColor"`
}

// Summarize derives the balances of every budget in budgets.
func Summarize(budgets []core.Budget, expenses []core.Expense) []BudgetSummary {
	spent := core.SpentByBudget(expenses)
	counts := make(map[string]int, len(budgets))
	for _, e := range expenses {
		counts[e.BudgetID]++
	}
	out := make([]BudgetSummary, 0, len(budgets))
	for _, b := range budgets {
		usable := core.UsableAmount(b)
		s := BudgetSummary{
			Budget:       b,
			Usable:       usable,
			Spent:        spent[b.ID],
			Remaining:    usable.Sub(spent[b.ID]),
			ExpenseCount: counts[b.ID],
		}
		if usable.IsPositive() {
			s.SpentPercentage = s.Spent.Div(usable).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		out = append(out, s)
	}
	return out
}

// ActiveBudgets lists the active budgets in the configured sort order.
func ActiveBudgets(s State) []BudgetSummary {
	var active []core.Budget
	for _, b := range s.Budgets {
		if !b.IsArchived {
			active = append(active, b)
		}
	}
	return SortBudgets(Summarize(active, s.Expenses), s.Settings.BudgetSortOrder, s.ManualOrder)
}

// ArchivedBudgets groups archived budgets by year, newest year first.
// Within a year the most recently archived budget comes first.
func ArchivedBudgets(s State) []ArchivedYear {
	var archived []core.Budget
	for _, b := range s.Budgets {
		if b.IsArchived {
			archived = append(archived, b)
		}
	}
	summaries := Summarize(archived, s.Expenses)
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].ModifiedAt.After(summaries[j].ModifiedAt)
	})

	var out []ArchivedYear
	for _, b := range summaries {
		year := b.ModifiedAt.Year()
		if n := len(out); n > 0 && out[n-1].Year == year {
			out[n-1].Budgets = append(out[n-1].Budgets, b)
			continue
		}
		out = append(out, ArchivedYear{Year: year, Budgets: []BudgetSummary{b}})
	}
	return out
}

// SortBudgets orders summaries by order. In manual mode budgets follow
// manualOrder and budgets it does not mention come last.
func SortBudgets(summaries []BudgetSummary, order core.BudgetSortOrder, manualOrder []string) []BudgetSummary {
	out := make([]BudgetSummary, len(summaries))
	copy(out, summaries)

	var less func(a, b BudgetSummary) bool
	switch order {
	case core.BudgetDateAsc:
		less = func(a, b BudgetSummary) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case core.BudgetRemainingDesc:
		less = func(a, b BudgetSummary) bool { return a.Remaining.GreaterThan(b.Remaining) }
	case core.BudgetRemainingAsc:
		less = func(a, b BudgetSummary) bool { return a.Remaining.LessThan(b.Remaining) }
	case core.BudgetExpensesDesc:
		less = func(a, b BudgetSummary) bool { return a.ExpenseCount > b.ExpenseCount }
	case core.BudgetExpensesAsc:
		less = func(a, b BudgetSummary) bool { return a.ExpenseCount < b.ExpenseCount }
	case core.BudgetManual:
		pos := make(map[string]int, len(manualOrder))
		for i, id := range manualOrder {
			pos[id] = i
		}
		rank := func(id string) int {
			if p, ok := pos[id]; ok {
				return p
			}
			return len(manualOrder)
		}
		less = func(a, b BudgetSummary) bool { return rank(a.ID) < rank(b.ID) }
	default:
		less = func(a, b BudgetSummary) bool { return a.CreatedAt.After(b.CreatedAt) }
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// History returns expenses matching query in the configured sort order.
// The query matches description, reference number or budget description,
// ignoring case. An empty query matches everything.
func History(s State, query string) []ExpenseView {
	budgets := make(map[string]core.Budget, len(s.Budgets))
	for _, b := range s.Budgets {
		budgets[b.ID] = b
	}
	q := strings.ToLower(strings.TrimSpace(query))

	var out []ExpenseView
	for _, e := range s.Expenses {
		b := budgets[e.BudgetID]
		v := ExpenseView{Expense: e, BudgetDescription: b.Description, BudgetColor: b.Color}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Description), q) &&
			!strings.Contains(strings.ToLower(e.ReferenceNumber), q) &&
			!strings.Contains(strings.ToLower(b.Description), q) {
			continue
		}
		out = append(out, v)
	}
	return SortExpenses(out, s.Settings.ExpenseSortOrder)
}

// SortExpenses orders expense views by order.
func SortExpenses(views []ExpenseView, order core.ExpenseSortOrder) []ExpenseView {
	out := make([]ExpenseView, len(views))
	copy(out, views)

	var less func(a, b ExpenseView) bool
	switch order {
	case core.ExpenseDateAsc:
		less = func(a, b ExpenseView) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case core.ExpenseAmountDesc:
		less = func(a, b ExpenseView) bool { return a.Amount.GreaterThan(b.Amount) }
	case core.ExpenseAmountAsc:
		less = func(a, b ExpenseView) bool { return a.Amount.LessThan(b.Amount) }
	case core.ExpenseDescriptionAsc:
		less = func(a, b ExpenseView) bool { return strings.ToLower(a.Description) < strings.ToLower(b.Description) }
	case core.ExpenseDescriptionDesc:
		less = func(a, b ExpenseView) bool { return strings.ToLower(a.Description) > strings.ToLower(b.Description) }
	default:
		less = func(a, b ExpenseView) bool { return a.CreatedAt.After(b.CreatedAt) }
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
