package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"finbot/internal/cli"
	"finbot/internal/config"
	applog "finbot/internal/log"
)

// overrides are flag values applied on top of the loaded configuration.
type overrides struct {
	backend  string
	dataFile string
	timezone string
}

type opener func(ctx context.Context, o overrides) (*cli.App, error)

// openFromConfig opens the ledger the same way the bot does, logging only
// warnings to stderr so command output stays clean.
func openFromConfig(ctx context.Context, o overrides) (*cli.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		cfg.DataBackend = o.backend
	}
	if o.dataFile != "" {
		cfg.DataFile = o.dataFile
	}
	if o.timezone != "" {
		cfg.Timezone = o.timezone
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := applog.New(applog.Config{
		Level:     slog.LevelWarn,
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	return cli.OpenApp(ctx, cfg, logger)
}

type root struct {
	open      opener
	user      string
	overrides overrides
}

// withApp opens the ledger for the duration of fn.
func (r *root) withApp(cmd *cobra.Command, fn func(app *cli.App) error) (err error) {
	app, err := r.open(cmd.Context(), r.overrides)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()
	return fn(app)
}

func (r *root) requireUser() error {
	if strings.TrimSpace(r.user) == "" {
		return fmt.Errorf("no user: pass --user or set LEDGER_USER")
	}
	return nil
}

func newRootCommand(open opener) *cobra.Command {
	r := &root{open: open}

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Operate on finbot ledgers from the command line",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&r.user, "user", "u", os.Getenv("LEDGER_USER"), "user id whose ledger to use")
	flags.StringVar(&r.overrides.backend, "backend", "", "override DATA_BACKEND")
	flags.StringVar(&r.overrides.dataFile, "data-file", "", "override DATA_FILE")
	flags.StringVar(&r.overrides.timezone, "timezone", "", "override TIMEZONE")

	rootCmd.AddCommand(
		newAddCommand(r),
		newLoanCommand(r, "borrow"),
		newLoanCommand(r, "lend"),
		newBalanceCommand(r),
		newRecentCommand(r),
		newPendingCommand(r),
		newSettleCommand(r),
		newTodayCommand(r),
		newTotalCommand(r),
		newReportCommand(r),
		newTailReportsCommand(r),
	)
	return rootCmd
}
