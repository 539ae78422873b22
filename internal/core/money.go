// Package core provides money parsing and handling utilities.
//
// Amounts are carried as shopspring decimals with two fractional digits,
// which keeps capital and expense arithmetic exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user supplied decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs, empty strings and
// non-positive values are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// UsableAmount is the spendable part of a budget's capital.
func UsableAmount(b Budget) decimal.Decimal {
	return b.CapitalTotal.Mul(decimal.NewFromInt(int64(b.UsablePercentage))).Div(hundred)
}

// Spent sums the amounts of the expenses charged to budgetID.
func Spent(budgetID string, expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		if e.BudgetID == budgetID {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Remaining is the usable amount minus everything already spent.
func Remaining(b Budget, expenses []Expense) decimal.Decimal {
	return UsableAmount(b).Sub(Spent(b.ID, expenses))
}

// SpentByBudget indexes the spent total of every budget referenced by expenses.
func SpentByBudget(expenses []Expense) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		out[e.BudgetID] = out[e.BudgetID].Add(e.Amount)
	}
	return out
}

// FormatAmount renders an amount with two decimals for messages.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
