package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"several/internal/core"
	"several/internal/ledger"
	"several/internal/services"
)

func budgetsCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "List budgets with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(svc *services.BudgetService) error {
				st := svc.State()
				if archived {
					for _, y := range ledger.ArchivedBudgets(st) {
						fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprint(y.Year)))
						printBudgets(cmd.OutOrStdout(), y.Budgets)
					}
					return nil
				}
				printBudgets(cmd.OutOrStdout(), ledger.ActiveBudgets(st))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "list archived budgets grouped by year")
	return cmd
}

func printBudgets(out io.Writer, budgets []ledger.BudgetSummary) {
	if len(budgets) == 0 {
		fmt.Fprintln(out, SubtleStyle.Render("No budgets."))
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("ID"), headerStyle.Render("Ref"), headerStyle.Render("Description"),
		headerStyle.Render("Usable"), headerStyle.Render("Remaining"), headerStyle.Render("Used"))
	for _, b := range budgets {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%.0f%%\n",
			b.ID, b.ReferenceNumber, swatch(b.Color), b.Description,
			core.FormatAmount(b.Usable), core.FormatAmount(b.Remaining), b.SpentPercentage)
	}
}

func expensesCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List expenses, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(svc *services.BudgetService) error {
				printExpenses(cmd.OutOrStdout(), ledger.History(svc.State(), query))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search description, reference or budget")
	return cmd
}

func printExpenses(out io.Writer, expenses []ledger.ExpenseView) {
	if len(expenses) == 0 {
		fmt.Fprintln(out, SubtleStyle.Render("No expenses."))
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Date"), headerStyle.Render("Ref"), headerStyle.Render("Description"),
		headerStyle.Render("Amount"), headerStyle.Render("Budget"))
	for _, e := range expenses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02"), e.ReferenceNumber,
			truncate(e.Description, 40), core.FormatAmount(e.Amount), e.BudgetDescription)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
