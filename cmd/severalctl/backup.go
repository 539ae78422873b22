package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"several/internal/backup"
	"several/internal/services"
)

var errStdinNeedsYes = errors.New("importing from stdin needs --yes: stdin carries the backup and cannot answer the confirmation")

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup of all data and settings",
		Long:  `Write a JSON backup. Without --out the file is named several_backup_YYYY-MM-DD.json; use --out - for stdout.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var b backup.Backup
			err := withService(cmd.Context(), func(svc *services.BudgetService) error {
				b = svc.Export()
				return nil
			})
			if err != nil {
				return err
			}

			if out == "-" {
				return backup.Export(cmd.OutOrStdout(), b)
			}
			if out == "" {
				out = backup.FileName(time.Now())
			}
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := backup.Export(f, b); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", out, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf(
				"Exported %d budgets and %d expenses to %s", len(b.Data.Budgets), len(b.Data.Expenses), out)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func importCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace all data with a backup",
		Long:  `Replace all data with a backup file. Reading the backup from stdin (-) requires --yes, since stdin cannot also answer the confirmation.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" && !yes {
				return errStdinNeedsYes
			}
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, "This replaces every budget and expense. Continue?") {
				return fmt.Errorf("import cancelled")
			}

			var res services.ImportResult
			err = withService(cmd.Context(), func(svc *services.BudgetService) error {
				res, err = svc.Import(cmd.Context(), raw)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf(
				"Imported %d budgets and %d expenses", res.Budgets, res.Expenses)))
			if res.Migrated > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), SubtleStyle.Render(fmt.Sprintf("%d records used legacy field names", res.Migrated)))
			}
			for _, w := range res.Warnings() {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("Warning: "+w))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every budget and expense, keeping settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd, "Delete all budgets and expenses?") {
				return fmt.Errorf("clear cancelled")
			}
			err := withService(cmd.Context(), func(svc *services.BudgetService) error {
				return svc.Clear(cmd.Context())
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("All budgets and expenses deleted"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return raw, nil
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprint(cmd.OutOrStdout(), WarningStyle.Render(question)+" [y/N] ")
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
