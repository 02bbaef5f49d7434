package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string
	RedisURL       string

	HTTPAddr           string
	CORSAllowedOrigins []string

	TelegramToken   string // empty disables the chat channel and the operator bot
	AdminTelegramID int64

	LogLevel    string
	Environment string

	CronSpecDispatch  string
	CronSpecAggregate string

	DispatchBatchSize     int
	SendTimeout           time.Duration
	ClaimLease            time.Duration
	SendRatePerSecond     float64
	DisabledChannelRetry  time.Duration
	DisabledChannelMaxAge time.Duration

	AnalysisWindowDays int
	MinHourSampleSize  int
	CohortChannels     []string
	ReportCacheTTL     time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SMSGatewayURL   string
	SMSGatewayToken string

	KafkaBrokers         []string
	KafkaEngagementTopic string
	KafkaGroupID         string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres))
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case DriverSQLite:
		cfg.SQLitePath = getEnv("SQLITE_PATH", "./data/notifier.db")
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.CORSAllowedOrigins = getList("CORS_ALLOWED_ORIGINS", "*")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	cfg.CronSpecDispatch = getEnv("CRON_SPEC_DISPATCH", "* * * * *")    // every minute
	cfg.CronSpecAggregate = getEnv("CRON_SPEC_AGGREGATE", "15 0 * * *") // 00:15 daily

	if cfg.DispatchBatchSize, err = getInt("DISPATCH_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ClaimLease, err = getDuration("CLAIM_LEASE", 10*time.Minute); err != nil {
		return nil, err
	}
	// A cycle stops starting sends once 2*SEND_TIMEOUT of its lease is left.
	if cfg.ClaimLease <= 2*cfg.SendTimeout {
		return nil, fmt.Errorf("invalid CLAIM_LEASE: %s must exceed twice SEND_TIMEOUT (%s)", cfg.ClaimLease, cfg.SendTimeout)
	}
	if cfg.SendRatePerSecond, err = getFloat("SEND_RATE_PER_SECOND", 20); err != nil {
		return nil, err
	}
	if cfg.DisabledChannelRetry, err = getDuration("DISABLED_CHANNEL_RECHECK", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DisabledChannelMaxAge, err = getDuration("DISABLED_CHANNEL_MAX_AGE", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AnalysisWindowDays, err = getInt("ANALYSIS_WINDOW_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.MinHourSampleSize, err = getInt("MIN_HOUR_SAMPLE_SIZE", 100); err != nil {
		return nil, err
	}
	cfg.CohortChannels = getList("COHORT_CHANNELS", "email")
	if cfg.ReportCacheTTL, err = getDuration("REPORT_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 465); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")

	cfg.SMSGatewayURL = os.Getenv("SMS_GATEWAY_URL")
	cfg.SMSGatewayToken = os.Getenv("SMS_GATEWAY_TOKEN")

	cfg.KafkaBrokers = getList("KAFKA_BROKERS", "")
	cfg.KafkaEngagementTopic = getEnv("KAFKA_ENGAGEMENT_TOPIC", "notification-engagement")
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", "sendtime-notifier")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, v)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %v", key, v)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %s", key, v)
	}
	return v, nil
}

// getList splits a comma separated value, dropping empty items.
func getList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	out := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
