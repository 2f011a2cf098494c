package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/events"
	"finbot/internal/events/kafka"
	gsheet "finbot/internal/sheets/google"
	"finbot/internal/storage"
	"finbot/internal/storage/dynamo"
	"finbot/internal/storage/jsonfile"
	"finbot/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case JSONBackend:
		return f.createJSONBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(config)
	case DynamoBackend:
		return f.createDynamoBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")
	return &BackendResult{Backend: memory.New()}, nil
}

func (f *DefaultFactory) createJSONBackend(config Config) (*BackendResult, error) {
	store, err := jsonfile.Open(config.DataFile, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	f.logger.Info("Initialized JSON file backend", "data_file", config.DataFile)
	return &BackendResult{Backend: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{
		Backend: repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewPostgresRepository(config.PostgresDSN, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")
	return &BackendResult{
		Backend: repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createDynamoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := dynamo.NewClient(ctx, config.AWSRegion, config.DynamoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	repo := dynamo.NewRepository(
		dynamo.WithClient(client),
		dynamo.WithTableName(config.DynamoTable),
		dynamo.WithLocation(config.Location),
	)
	if err := repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare DynamoDB table: %w", err)
	}

	f.logger.Info("Initialized DynamoDB backend",
		"table", config.DynamoTable,
		"region", config.AWSRegion,
		"endpoint", config.DynamoEndpoint)
	return &BackendResult{
		Backend: repo,
		Ping:    repo.Ping,
	}, nil
}

// CreatePublisher implements Factory.CreatePublisher. Sinks that fail to
// initialize are logged and skipped; the ledger works without them.
func (f *DefaultFactory) CreatePublisher(ctx context.Context, config Config) (*PublisherResult, error) {
	var (
		multi   events.Multi
		sinks   []string
		closers []func() error
		result  PublisherResult
	)

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPReportQueue, config.AMQPEventQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without it", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"report_queue", config.AMQPReportQueue,
				"event_queue", config.AMQPEventQueue)
			result.AMQP = client
			multi = append(multi, client)
			sinks = append(sinks, "amqp")
			closers = append(closers, client.Close)
		}
	}

	if len(config.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		f.logger.Info("Initialized Kafka publisher", "brokers", config.KafkaBrokers, "topic", config.KafkaTopic)
		multi = append(multi, pub)
		sinks = append(sinks, "kafka")
		closers = append(closers, pub.Close)
	}

	switch {
	case config.GoogleSpreadsheetID == "":
	case result.AMQP != nil:
		// The sheets worker mirrors from the event queue.
		f.logger.Info("Google Sheets mirror fed by the event queue", "queue", config.AMQPEventQueue)
	default:
		cli, err := gsheet.NewClient(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName, gsheet.Credentials{
			JSON:            config.GoogleServiceAccountJSON,
			File:            config.GoogleServiceAccountFile,
			OAuthClientFile: config.GoogleOAuthClientFile,
			OAuthTokenFile:  config.GoogleOAuthTokenFile,
		})
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets mirror, continuing without it", "error", err)
		} else {
			if err := cli.EnsureHeader(ctx, time.Now().In(locationOrLocal(config.Location)).Year()); err != nil {
				f.logger.Warn("Failed to write Google Sheets header", "error", err)
			}
			f.logger.Info("Initialized Google Sheets mirror", "sheet", config.GoogleSheetName)
			multi = append(multi, cli)
			sinks = append(sinks, "sheets")
		}
	}

	result.Sinks = sinks
	result.Cleanup = func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	switch len(multi) {
	case 0:
		result.Publisher = events.Nop{}
	case 1:
		result.Publisher = multi[0]
	default:
		result.Publisher = multi
	}
	return &result, nil
}

func locationOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
