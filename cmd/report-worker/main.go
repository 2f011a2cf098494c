package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"finbot/internal/cli"
	applog "finbot/internal/log"
	"finbot/internal/scheduler"
	"finbot/internal/services"
)

// report-worker sends the daily report on schedule without serving the
// webhook. Setting REPORT_ON_START=true also runs one pass at start-up.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentReport)
	logger.Info("Starting report-worker")

	if err := run(logger); err != nil {
		cli.Fatal(logger, "report-worker stopped with error", err)
	}
	logger.Info("report-worker shutdown complete")
}

func run(logger *applog.Logger) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	hour, minute, err := cfg.ReportClock()
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	app, err := cli.OpenApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer app.Close()

	if app.Publishers.AMQP == nil {
		logger.Info("AMQP disabled - daily reports will only be logged")
	}
	processor := services.NewReportProcessor(app.Store, app.Notifier())

	if os.Getenv("REPORT_ON_START") == "true" {
		logger.Info("Running initial daily report pass...")
		if count, err := processor.Run(ctx, time.Now()); err != nil {
			logger.Error("Initial report pass failed", applog.FieldError, err)
		} else {
			logger.Info("Initial report pass complete", "sent", count)
		}
	}

	daily, err := scheduler.NewDaily(hour, minute, app.Store.Location(), func(ctx context.Context, at time.Time) error {
		count, err := processor.Run(ctx, at)
		if err != nil {
			return err
		}
		logger.Info("Scheduled report pass complete", "sent", count, "scheduled_at", at.Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return fmt.Errorf("daily report schedule: %w", err)
	}

	logger.Info("Daily report scheduler configured",
		"time", cfg.DailyReportTime,
		"timezone", cfg.Timezone,
		"backend", cfg.DataBackend)

	if err := daily.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
