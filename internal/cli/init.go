// Package cli provides the start-up wiring shared by cmd/finbot,
// cmd/report-worker, cmd/sheets-worker and cmd/ledger.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"finbot/internal/backend"
	"finbot/internal/config"
	"finbot/internal/ledger"
	applog "finbot/internal/log"
	"finbot/internal/services"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.ConfigFromEnv()
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig resolves and validates the configuration.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fatal logs err and exits with status 1.
func Fatal(logger *applog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{applog.FieldError, err}, args...)...)
	os.Exit(1)
}

// App bundles the ledger, its backend and the event sinks.
type App struct {
	Config     *config.Config
	Store      *ledger.Store
	Service    *services.LedgerService
	Backend    *backend.BackendResult
	Publishers *backend.PublisherResult
}

// OpenApp connects the configured backend and event sinks. Close releases
// both.
func OpenApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	return openApp(ctx, cfg, logger, backend.NewFactory(logger.Logger))
}

func openApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, factory backend.Factory) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	be, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}
	pubs, err := factory.CreatePublisher(ctx, bcfg)
	if err != nil {
		_ = be.Cleanup.Close()
		return nil, fmt.Errorf("create publishers: %w", err)
	}

	store := ledger.New(be.Backend, ledger.WithLocation(bcfg.Location))
	logger.Info("Ledger ready",
		"backend", bcfg.Type,
		"timezone", bcfg.Location.String(),
		"sinks", pubs.Sinks)

	return &App{
		Config:     cfg,
		Store:      store,
		Service:    services.NewLedgerService(store, pubs.Publisher, pubs.Cleanup, be.Cleanup),
		Backend:    be,
		Publishers: pubs,
	}, nil
}

// Notifier delivers daily reports over AMQP when a broker is connected and
// logs them otherwise.
func (a *App) Notifier() services.Notifier {
	if a.Publishers != nil && a.Publishers.AMQP != nil {
		return services.NewAMQPNotifier(a.Publishers.AMQP)
	}
	return services.LogNotifier{}
}

// Ping checks the backend, for readiness checks.
func (a *App) Ping(ctx context.Context) error {
	if a.Backend == nil || a.Backend.Ping == nil {
		return nil
	}
	return a.Backend.Ping(ctx)
}

func (a *App) Close() error {
	return a.Service.Close()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
