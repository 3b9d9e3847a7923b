package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file found, using process environment")
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv parses values such as "30m" or "24h".
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type ServerConfig struct {
	Port         string
	AllowOrigins string
	RateLimit    int
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the key/value connection string understood by lib/pq.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

type LedgerConfig struct {
	// Store selects the ledger backend: "postgres" or "memory".
	Store      string
	MaxRetries int
	RetryDelay time.Duration
}

type OperatorConfig struct {
	// FeeRates holds per-operator overrides such as "moov=0.02,yas-togo=0.015".
	FeeRates map[string]string
	// WebhookKeys maps an operator name to the bcrypt hash of its API key.
	WebhookKeys map[string]string
}

type SweeperConfig struct {
	Enabled       bool
	Schedule      string
	HoldTTL       time.Duration
	DepositTTL    time.Duration
	WithdrawalTTL time.Duration
	BatchSize     int
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
}

type MongoConfig struct {
	URI      string
	Database string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type JWTConfig struct {
	Secret string
}

// Config is the full runtime configuration assembled from the environment.
type Config struct {
	Env       string
	LogLevel  string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ledger    LedgerConfig
	Operators OperatorConfig
	Sweeper   SweeperConfig
	RabbitMQ  RabbitMQConfig
	Mongo     MongoConfig
	Stripe    StripeConfig
	JWT       JWTConfig
}

// DevJWTSecret signs tokens when JWT_SECRET is unset. It is refused in production.
const DevJWTSecret = "medipay-dev-secret"

// ErrInsecureJWTSecret is returned by Validate for a production config
// still signing with DevJWTSecret.
var ErrInsecureJWTSecret = errors.New("JWT_SECRET must be set in production")

// Load reads the configuration. Call LoadEnv first to pick up a .env file.
func Load() *Config {
	return &Config{
		Env:      GetEnv("ENV", "development"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         GetEnv("PORT", "3000"),
			AllowOrigins: GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
			RateLimit:    GetIntEnv("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "medipay"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  GetBoolEnv("REDIS_ENABLED", true),
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
			TTL:      GetDurationEnv("BALANCE_CACHE_TTL", 5*time.Minute),
		},
		Ledger: LedgerConfig{
			Store:      GetEnv("LEDGER_STORE", "postgres"),
			MaxRetries: GetIntEnv("LEDGER_MAX_RETRIES", 3),
			RetryDelay: GetDurationEnv("LEDGER_RETRY_DELAY", 10*time.Millisecond),
		},
		Operators: OperatorConfig{
			FeeRates:    ParseMap(GetEnv("OPERATOR_FEE_RATES", "")),
			WebhookKeys: ParseMap(GetEnv("OPERATOR_WEBHOOK_KEYS", "")),
		},
		Sweeper: SweeperConfig{
			Enabled:       GetBoolEnv("SWEEPER_ENABLED", true),
			Schedule:      GetEnv("SWEEP_SCHEDULE", "@every 1m"),
			HoldTTL:       GetDurationEnv("HOLD_TTL", 0),
			DepositTTL:    GetDurationEnv("DEPOSIT_TTL", 24*time.Hour),
			WithdrawalTTL: GetDurationEnv("WITHDRAWAL_TTL", 72*time.Hour),
			BatchSize:     GetIntEnv("SWEEP_BATCH_SIZE", 100),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      GetEnv("RABBITMQ_URL", ""),
			Exchange: GetEnv("RABBITMQ_EXCHANGE", "ledger_events"),
			Queue:    GetEnv("RABBITMQ_AUDIT_QUEUE", "ledger_audit_queue"),
		},
		Mongo: MongoConfig{
			URI:      GetEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: GetEnv("MONGO_DATABASE", "medipay_audit"),
		},
		Stripe: StripeConfig{
			SecretKey:     GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		JWT: JWTConfig{
			Secret: GetEnv("JWT_SECRET", DevJWTSecret),
		},
	}
}

// Validate rejects settings that are only acceptable outside production.
func (c *Config) Validate() error {
	if c.Env != "production" {
		return nil
	}
	if c.JWT.Secret == "" || c.JWT.Secret == DevJWTSecret {
		return ErrInsecureJWTSecret
	}
	return nil
}

// ParseMap parses "a=1,b=2" into a map. Malformed pairs are skipped.
func ParseMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
