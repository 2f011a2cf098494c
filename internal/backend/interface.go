package backend

import (
	"context"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/events"
	"finbot/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Close makes a CleanupFunc an io.Closer. A nil func is a no-op.
func (f CleanupFunc) Close() error {
	if f == nil {
		return nil
	}
	return f()
}

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend ledger.Backend
	// Ping reports reachability for readiness checks. Nil for local backends.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// PublisherResult holds the configured event sinks. AMQP is nil when no
// broker is configured; it also carries the daily report queue.
type PublisherResult struct {
	Publisher events.Publisher
	AMQP      *amqp.Client
	Sinks     []string
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a ledger backend based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreatePublisher connects every configured event sink
	CreatePublisher(ctx context.Context, config Config) (*PublisherResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type     BackendType
	Location *time.Location

	// JSON file specific
	DataFile string

	// SQL specific
	SQLiteDBPath string
	PostgresDSN  string

	// DynamoDB specific
	DynamoTable    string
	DynamoEndpoint string
	AWSRegion      string

	// Event sinks, all optional
	AMQPURL         string
	AMQPExchange    string
	AMQPReportQueue string
	AMQPEventQueue  string

	KafkaBrokers []string
	KafkaTopic   string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	JSONBackend     BackendType = "json"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	DynamoBackend   BackendType = "dynamodb"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, JSONBackend, SQLiteBackend, PostgresBackend, DynamoBackend:
		return true
	default:
		return false
	}
}
