package ledger

import "several/internal/core"

// AppendToOrder adds id at the end of the manual order unless present.
func AppendToOrder(order []string, id string) []string {
	for _, o := range order {
		if o == id {
			return cloneOrder(order)
		}
	}
	out := make([]string, 0, len(order)+1)
	out = append(out, order...)
	return append(out, id)
}

// PruneOrder drops id from the manual order.
func PruneOrder(order []string, id string) []string {
	out := make([]string, 0, len(order))
	for _, o := range order {
		if o != id {
			out = append(out, o)
		}
	}
	return out
}

// NormalizeOrder keeps the ids of order that name an existing budget,
// without duplicates, and appends the budgets order does not mention in
// collection order.
func NormalizeOrder(order []string, budgets []core.Budget) []string {
	known := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		known[b.ID] = true
	}
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(budgets))
	for _, id := range order {
		if known[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, b := range budgets {
		if !seen[b.ID] {
			seen[b.ID] = true
			out = append(out, b.ID)
		}
	}
	return out
}

// OrderFromBudgets synthesizes a manual order from collection order.
func OrderFromBudgets(budgets []core.Budget) []string {
	out := make([]string, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, b.ID)
	}
	return out
}

func cloneOrder(order []string) []string {
	out := make([]string, len(order))
	copy(out, order)
	return out
}
