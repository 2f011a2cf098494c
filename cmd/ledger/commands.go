package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finbot/internal/amqp"
	"finbot/internal/cli"
	"finbot/internal/core"
	"finbot/internal/report"
	"finbot/internal/services"
)

func newAddCommand(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <income|expense|saving> <amount> [note...]",
		Short: "Record income, an expense or savings",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			kind, err := core.ParseKind(args[0])
			if err != nil {
				return err
			}
			if kind.IsLoan() {
				return fmt.Errorf("use the %s command for loans", kind)
			}
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q", err, args[1])
			}
			note := strings.Join(args[2:], " ")

			return r.withApp(cmd, func(app *cli.App) error {
				tx, err := app.Service.Record(cmd.Context(), r.user, kind, amount, note, "")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Recorded(tx))
				return nil
			})
		},
	}
	// Negative amounts reach ParseAmount instead of the flag parser.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// newLoanCommand builds "borrow" and "lend", which share their shape.
func newLoanCommand(r *root, name string) *cobra.Command {
	kind, who := core.Borrow, "from"
	if name == "lend" {
		kind, who = core.Lend, "to"
	}
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <amount> <%s> [note...]", name, who),
		Short: fmt.Sprintf("Record money you %s", map[core.Kind]string{core.Borrow: "borrowed", core.Lend: "lent"}[kind]),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", err, args[0])
			}
			return r.withApp(cmd, func(app *cli.App) error {
				tx, err := app.Service.Record(cmd.Context(), r.user, kind, amount, strings.Join(args[2:], " "), args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Recorded(tx))
				return nil
			})
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newBalanceCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show income minus expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			return r.withApp(cmd, func(app *cli.App) error {
				b, err := app.Store.Balance(cmd.Context(), r.user)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Balance(b))
				return nil
			})
		},
	}
}

func newRecentCommand(r *root) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent income and expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			window := time.Duration(days) * 24 * time.Hour
			return r.withApp(cmd, func(app *cli.App) error {
				txs, err := app.Store.Windowed(cmd.Context(), r.user, window)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Transactions(txs, window))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window in days")
	return cmd
}

func parseLoanKind(s string) (core.Kind, error) {
	kind, err := core.ParseKind(s)
	if err != nil {
		return "", err
	}
	if !kind.IsLoan() {
		return "", fmt.Errorf("%w: %q is not borrow or lend", core.ErrInvalidKind, s)
	}
	return kind, nil
}

func newPendingCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <borrow|lend>",
		Short: "List unsettled loans with the IDs settle takes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			kind, err := parseLoanKind(args[0])
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(app *cli.App) error {
				txs, err := app.Store.Pending(cmd.Context(), r.user, kind)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.PendingWithIDs(kind, txs))
				return nil
			})
		},
	}
}

func newSettleCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "settle <transaction-id>",
		Short: "Mark a pending loan as settled; IDs are listed by pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			txID := strings.TrimSpace(args[0])
			return r.withApp(cmd, func(app *cli.App) error {
				if err := app.Service.Settle(cmd.Context(), r.user, txID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s settled.\n", txID)
				return nil
			})
		},
	}
}

func newTodayCommand(r *root) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Summarise income and expense of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			return r.withApp(cmd, func(app *cli.App) error {
				title, day := "Today", app.Store.Now()
				if date != "" {
					d, err := time.ParseInLocation("2006-01-02", date, app.Store.Location())
					if err != nil {
						return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
					}
					title, day = "Summary", d
				}
				s, err := app.Store.DailySummary(cmd.Context(), r.user, day)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Summary(title, s))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to summarise (YYYY-MM-DD)")
	return cmd
}

func newTotalCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Show the sum of every kind over the whole ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireUser(); err != nil {
				return err
			}
			return r.withApp(cmd, func(app *cli.App) error {
				t, err := app.Store.Totals(cmd.Context(), r.user)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Totals(t))
				return nil
			})
		},
	}
}

func newReportCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Send yesterday's daily report to every user now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(app *cli.App) error {
				processor := services.NewReportProcessor(app.Store, app.Notifier())
				n, err := processor.Run(cmd.Context(), app.Store.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Daily report sent to %d users.\n", n)
				return nil
			})
		},
	}
}

func newTailReportsCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "tail-reports",
		Short: "Print daily reports from the AMQP report queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(app *cli.App) error {
				if app.Publishers == nil || app.Publishers.AMQP == nil {
					return errors.New("tail-reports needs AMQP_URL")
				}
				out := cmd.OutOrStdout()
				err := app.Publishers.AMQP.ConsumeDailyReports(cmd.Context(), func(_ context.Context, msg *amqp.DailyReportMessage) error {
					_, err := fmt.Fprintf(out, "[%s] user %s\n%s\n\n", msg.Date, msg.UserID, msg.Text)
					return err
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
