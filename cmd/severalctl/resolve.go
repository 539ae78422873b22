package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"several/internal/core"
	"several/internal/services"
)

func resolveCmd() *cobra.Command {
	var (
		strategy string
		exclude  string
	)
	cmd := &cobra.Command{
		Use:   "resolve <amount>",
		Short: "Preview which budget automatic distribution would pick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}
			s := core.Strategy(strategy)
			if s != "" && !s.IsValid() {
				return fmt.Errorf("unknown strategy %q", strategy)
			}

			var b core.Budget
			err = withService(cmd.Context(), func(svc *services.BudgetService) error {
				b, err = svc.Resolve(cmd.Context(), amount, s, exclude)
				return err
			})
			var resolution *services.ResolutionError
			if errors.As(err, &resolution) {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render(fmt.Sprintf(
					"No budget can take %s with %s; pick one manually.", core.FormatAmount(amount), resolution.Strategy)))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", swatch(b.Color), b.Description, b.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "distribution strategy (default: configured)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "budget id to leave out")
	return cmd
}
