package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Relay        RelayConfig
	Gateway      GatewayConfig
	Conversation ConversationConfig
	Entitlement  EntitlementConfig
	Lock         LockConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines relay webhook authentication.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
}

// RelayConfig points at the chat-platform relay that owns channels, roles
// and message delivery.
type RelayConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration
	MailboxCapacity int
}

// GatewayConfig configures the payment gateway client.
type GatewayConfig struct {
	StripeSecretKey    string
	AcceptableStatuses []string
}

// ConversationConfig bounds each conversation step.
type ConversationConfig struct {
	CurrencyTimeout  time.Duration
	AmountTimeout    time.Duration
	OrderIDTimeout   time.Duration
	ArtifactTimeout  time.Duration
	PresetAmounts    []decimal.Decimal
	OrderIDMaxLength int
}

// EntitlementConfig controls granted premium periods.
type EntitlementConfig struct {
	DurationDays int
}

// LockConfig selects the per-user ticket lock.
type LockConfig struct {
	Backend       string
	TTL           time.Duration
	RetryInterval time.Duration
}

// NotificationConfig tunes admin notification delivery.
type NotificationConfig struct {
	QueueCapacity int
	Attempts      int
	Backoff       time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	presets, err := parseAmounts(getEnv("CONVERSATION_PRESET_AMOUNTS", "59.95,168.95,666.95"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONVERSATION_PRESET_AMOUNTS: %w", err)
	}

	lockBackend := strings.ToLower(getEnv("LOCK_BACKEND", "redis"))
	if lockBackend != "redis" && lockBackend != "local" {
		return nil, fmt.Errorf("invalid LOCK_BACKEND %q", lockBackend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "premium-verification"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 5),
		},
		Relay: RelayConfig{
			BaseURL:         strings.TrimRight(getEnv("RELAY_BASE_URL", "http://127.0.0.1:9000"), "/"),
			RequestTimeout:  getEnvAsDuration("RELAY_REQUEST_TIMEOUT", 10*time.Second),
			MailboxCapacity: getEnvAsInt("RELAY_MAILBOX_CAPACITY", 32),
		},
		Gateway: GatewayConfig{
			StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
			AcceptableStatuses: splitList(getEnv("GATEWAY_ACCEPTABLE_STATUSES", "succeeded,processing,requires_capture")),
		},
		Conversation: ConversationConfig{
			CurrencyTimeout:  getEnvAsDuration("CONVERSATION_CURRENCY_TIMEOUT", 3*time.Minute),
			AmountTimeout:    getEnvAsDuration("CONVERSATION_AMOUNT_TIMEOUT", 3*time.Minute),
			OrderIDTimeout:   getEnvAsDuration("CONVERSATION_ORDER_ID_TIMEOUT", 5*time.Minute),
			ArtifactTimeout:  getEnvAsDuration("CONVERSATION_ARTIFACT_TIMEOUT", 5*time.Minute),
			PresetAmounts:    presets,
			OrderIDMaxLength: getEnvAsInt("CONVERSATION_ORDER_ID_MAX_LENGTH", 50),
		},
		Entitlement: EntitlementConfig{
			DurationDays: getEnvAsInt("ENTITLEMENT_DURATION_DAYS", 30),
		},
		Lock: LockConfig{
			Backend:       lockBackend,
			TTL:           getEnvAsDuration("LOCK_TTL", 30*time.Second),
			RetryInterval: getEnvAsDuration("LOCK_RETRY_INTERVAL", 50*time.Millisecond),
		},
		Notification: NotificationConfig{
			QueueCapacity: getEnvAsInt("NOTIFICATION_QUEUE_CAPACITY", 64),
			Attempts:      getEnvAsInt("NOTIFICATION_ATTEMPTS", 3),
			Backoff:       getEnvAsDuration("NOTIFICATION_BACKOFF", 500*time.Millisecond),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Duration returns the entitlement period.
func (e EntitlementConfig) Duration() time.Duration {
	if e.DurationDays <= 0 {
		return 0
	}
	return time.Duration(e.DurationDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAmounts(val string) ([]decimal.Decimal, error) {
	parts := splitList(val)
	amounts := make([]decimal.Decimal, 0, len(parts))
	for _, part := range parts {
		amount, err := decimal.NewFromString(part)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}
