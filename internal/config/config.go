package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is resolved from defaults, then the optional YAML file named by
// FINBOT_CONFIG_FILE, then environment variables.
type Config struct {
	// HTTP Server
	Port     string `yaml:"port"`
	BotToken string `yaml:"bot_token"`

	// Backend selection
	DataBackend string `yaml:"data_backend"`

	// JSON file
	DataFile string `yaml:"data_file"`

	// Database
	SQLiteDBPath string `yaml:"sqlite_db_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`

	// DynamoDB
	DynamoTable    string `yaml:"dynamo_table"`
	DynamoEndpoint string `yaml:"dynamo_endpoint"`
	AWSRegion      string `yaml:"aws_region"`

	// AMQP
	AMQPURL         string `yaml:"amqp_url"`
	AMQPExchange    string `yaml:"amqp_exchange"`
	AMQPReportQueue string `yaml:"amqp_report_queue"`
	AMQPEventQueue  string `yaml:"amqp_event_queue"`

	// Kafka
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	// Google Sheets mirror
	GoogleSpreadsheetID      string `yaml:"google_spreadsheet_id"`
	GoogleSheetName          string `yaml:"google_sheet_name"`
	GoogleServiceAccountFile string `yaml:"google_service_account_file"`
	GoogleServiceAccountJSON string `yaml:"-"`
	GoogleOAuthClientFile    string `yaml:"google_oauth_client_file"`
	GoogleOAuthTokenFile     string `yaml:"google_oauth_token_file"`

	// Bot behaviour
	Timezone            string        `yaml:"timezone"`
	DailyReportTime     string        `yaml:"daily_report_time"`
	RecentWindow        time.Duration `yaml:"recent_window"`
	ConversationTimeout time.Duration `yaml:"conversation_timeout"`

	// Rate limiting
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

var validBackends = []string{"memory", "json", "sqlite", "postgres", "dynamodb"}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                "8080",
		DataBackend:         "json",
		DataFile:            "data.json",
		SQLiteDBPath:        "./data/finbot.db",
		DynamoTable:         "finbot-ledger",
		AWSRegion:           "us-east-1",
		AMQPExchange:        "finbot",
		AMQPReportQueue:     "daily_reports",
		AMQPEventQueue:      "ledger_events",
		KafkaTopic:          "finbot.ledger",
		GoogleSheetName:     "Ledger",
		Timezone:            "Asia/Kolkata",
		DailyReportTime:     "08:00",
		RecentWindow:        30 * 24 * time.Hour,
		ConversationTimeout: 10 * time.Minute,
		RateLimit:           60,
		RateLimitWindow:     time.Minute,
	}
}

// Load resolves the configuration. Only an unreadable or malformed config
// file is an error; call Validate for semantic checks.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("FINBOT_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.BotToken = getEnv("BOT_TOKEN", cfg.BotToken)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.DataFile = getEnv("DATA_FILE", cfg.DataFile)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.DynamoTable = getEnv("DYNAMO_TABLE", cfg.DynamoTable)
	cfg.DynamoEndpoint = getEnv("DYNAMO_ENDPOINT", cfg.DynamoEndpoint)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPReportQueue = getEnv("AMQP_REPORT_QUEUE", cfg.AMQPReportQueue)
	cfg.AMQPEventQueue = getEnv("AMQP_EVENT_QUEUE", cfg.AMQPEventQueue)

	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", cfg.GoogleServiceAccountFile)
	cfg.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", cfg.GoogleServiceAccountJSON)
	cfg.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", cfg.GoogleOAuthClientFile)
	cfg.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", cfg.GoogleOAuthTokenFile)

	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.DailyReportTime = getEnv("DAILY_REPORT_TIME", cfg.DailyReportTime)
	cfg.RecentWindow = getEnvDuration("RECENT_WINDOW", cfg.RecentWindow)
	cfg.ConversationTimeout = getEnvDuration("CONVERSATION_TIMEOUT", cfg.ConversationTimeout)

	cfg.RateLimit = getEnvInt("RATE_LIMIT", cfg.RateLimit)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ReportClock returns the hour and minute of DAILY_REPORT_TIME.
func (c *Config) ReportClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.DailyReportTime))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily report time %q: want HH:MM", c.DailyReportTime)
	}
	return t.Hour(), t.Minute(), nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "json":
		if c.DataFile == "" {
			errors = append(errors, "data file cannot be empty when using json backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case "dynamodb":
		if c.DynamoTable == "" {
			errors = append(errors, "DynamoDB table name cannot be empty when using dynamodb backend")
		}
		if c.DynamoEndpoint != "" {
			if u, err := url.Parse(c.DynamoEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid DynamoDB endpoint '%s'", c.DynamoEndpoint))
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPReportQueue == "" {
			errors = append(errors, "AMQP report queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventQueue == "" {
			errors = append(errors, "AMQP event queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errors = append(errors, "Kafka topic cannot be empty when KAFKA_BROKERS is set")
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" && c.GoogleOAuthTokenFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "one of GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_OAUTH_TOKEN_FILE must be provided for the sheets mirror")
		}
		if c.GoogleOAuthTokenFile != "" && c.GoogleOAuthClientFile == "" {
			errors = append(errors, "GOOGLE_OAUTH_CLIENT_FILE is required with GOOGLE_OAUTH_TOKEN_FILE")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if _, _, err := c.ReportClock(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.RecentWindow <= 0 {
		errors = append(errors, fmt.Sprintf("invalid recent window %v: must be positive", c.RecentWindow))
	}
	if c.ConversationTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid conversation timeout %v: must be at least 1 second", c.ConversationTimeout))
	}
	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimit))
	}
	if c.RateLimitWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rate limit window %v: must be at least 1 second", c.RateLimitWindow))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
