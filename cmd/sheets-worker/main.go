package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/cli"
	"finbot/internal/events"
	applog "finbot/internal/log"
	gsheet "finbot/internal/sheets/google"
	"finbot/internal/worker"
)

// sheets-worker consumes ledger events from the AMQP event queue and
// mirrors them as rows in the configured Google Sheet.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSheets)
	logger.Info("Starting sheets-worker")

	if err := run(logger); err != nil {
		cli.Fatal(logger, "sheets-worker stopped with error", err)
	}
	logger.Info("sheets-worker shutdown complete")
}

func run(logger *applog.Logger) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required")
	}
	if cfg.GoogleSpreadsheetID == "" {
		return errors.New("GOOGLE_SPREADSHEET_ID is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	sheets, err := gsheet.NewClient(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, gsheet.Credentials{
		JSON:            cfg.GoogleServiceAccountJSON,
		File:            cfg.GoogleServiceAccountFile,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return fmt.Errorf("google sheets client: %w", err)
	}
	if err := sheets.EnsureHeader(ctx, time.Now().In(loc).Year()); err != nil {
		// Not fatal: Publish still appends rows.
		logger.Error("Failed to write sheet header", applog.FieldError, err)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", sheets.SheetName(time.Now().In(loc).Year()))

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPReportQueue, cfg.AMQPEventQueue)
	if err != nil {
		return fmt.Errorf("amqp client: %w", err)
	}
	defer client.Close()

	mirror := worker.NewMirrorWorker(sheets, events.TransactionRecorded, events.TransactionSettled)

	logger.Info("Consuming ledger events", "queue", cfg.AMQPEventQueue)
	if err := client.ConsumeEvents(ctx, mirror.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume events: %w", err)
	}
	return nil
}
