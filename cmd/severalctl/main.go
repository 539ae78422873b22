package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"several/internal/cli"
	"several/internal/config"
	"several/internal/core"
	"several/internal/log"
	"several/internal/services"
)

var (
	envFile  string
	logLevel string

	openStore = cli.OpenStore
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "severalctl",
		Short: "Offline administration for several budgets",
		Long: `severalctl works directly on the configured storage backend: it exports
and imports backups, lists budgets and expenses, and previews automatic
distribution. Stop the server before importing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(exportCmd())
	root.AddCommand(importCmd())
	root.AddCommand(budgetsCmd())
	root.AddCommand(expensesCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(clearCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// openService loads the persisted state behind a BudgetService. The
// returned close function flushes pending saves and closes the store.
func openService(ctx context.Context) (*services.BudgetService, func() error, error) {
	if envFile != "" {
		cli.LoadEnvFile(envFile)
	} else {
		cli.LoadEnvFile()
	}

	cfg := config.Load()
	cfg.LogLevel = logLevel
	cfg.LogFormat = "text"
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	store, closeStore := openStore(ctx, logger, cfg)
	svc := services.NewBudgetService(store, services.Options{
		Logger:      logger,
		Version:     core.Version,
		SaveTimeout: cfg.SaveTimeout,
	})
	closeAll := func() error {
		return errors.Join(svc.Close(), closeStore())
	}
	if err := svc.Load(ctx); err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}

// withService runs fn against a loaded service and then closes it. A save
// that fails while closing is returned even when fn succeeded.
func withService(ctx context.Context, fn func(*services.BudgetService) error) (err error) {
	svc, closeSvc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeSvc())
	}()
	return fn(svc)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "severalctl %s\n", core.Version)
		},
	}
}
