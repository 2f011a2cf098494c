package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"finbot/internal/bot"
	"finbot/internal/cache"
	"finbot/internal/cli"
	apphttp "finbot/internal/http"
	applog "finbot/internal/log"
	"finbot/internal/scheduler"
	"finbot/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)

	if err := run(logger); err != nil {
		cli.Fatal(logger, "finbot stopped with error", err)
	}
	logger.Info("finbot shutdown complete")
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
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close ledger", applog.FieldError, err)
		}
	}()

	reports := services.NewReportProcessor(app.Store, app.Notifier())

	dispatcher := bot.NewDispatcher(app.Service,
		bot.WithReportRunner(reports),
		bot.WithRecentWindow(cfg.RecentWindow),
		bot.WithConversationTimeout(cfg.ConversationTimeout),
		bot.WithLogger(logger.WithComponent(applog.ComponentBot)))

	caches := cache.NewManager()
	caches.Register(dispatcher)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	server := apphttp.NewServer(":"+cfg.Port, dispatcher,
		apphttp.WithBotToken(cfg.BotToken),
		apphttp.WithReportRunner(reports),
		apphttp.WithRateLimit(cfg.RateLimit, cfg.RateLimitWindow),
		apphttp.WithReadinessCheck("storage", app.Ping),
		apphttp.WithLogger(logger.WithComponent(applog.ComponentHTTP)))

	daily, err := scheduler.NewDaily(hour, minute, app.Store.Location(), func(ctx context.Context, at time.Time) error {
		_, err := reports.Run(ctx, at)
		return err
	})
	if err != nil {
		return fmt.Errorf("daily report schedule: %w", err)
	}

	if cfg.BotToken == "" {
		logger.Warn("BOT_TOKEN not set - the webhook accepts unauthenticated messages")
	}
	logger.Info("Starting finbot",
		"port", cfg.Port,
		"daily_report_time", cfg.DailyReportTime,
		"timezone", cfg.Timezone)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := daily.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
