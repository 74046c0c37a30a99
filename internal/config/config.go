package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration. Loaded once at startup and
// passed explicitly; fields are never mutated afterwards.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// MetricsFile is the YAML registry of billable metrics.
	MetricsFile string

	// Workers is the billing worker pool size.
	Workers int
	// ShutdownGrace bounds the queue drain on shutdown before workers
	// are cancelled outright.
	ShutdownGrace time.Duration
	// Precision is the decimal-place count credit balances are rounded to.
	Precision int32
	// WarnThreshold is the granted-credits fraction that triggers the
	// low-credits notification when crossed from above.
	WarnThreshold decimal.Decimal
	// Allowlist restricts billing to the named projects when non-empty.
	Allowlist map[string]struct{}

	Mail      MailConfig
	RateLimit RateLimitConfig
}

type MailConfig struct {
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	From           string
	GovernanceAddr string
	// ToOverwrite replaces every recipient when set. Used in staging to
	// keep test notifications away from real project contacts.
	ToOverwrite string
}

func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.SMTPHost) != ""
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	WriteRate     float64
	WriteBurst    int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "credits"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		OtelEnabled:          getenvBool("OTEL_ENABLED", false),
		OtelExporterEndpoint: getenv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		OtelExporterProtocol: getenv("OTEL_EXPORTER_PROTOCOL", "grpc"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "credits"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		MetricsFile: getenv("CREDITS_METRICS_FILE", "metrics.yml"),

		Workers:       getenvInt("CREDITS_WORKERS", 10),
		ShutdownGrace: getenvDuration("CREDITS_SHUTDOWN_GRACE", 120*time.Second),
		Precision:     int32(getenvInt("CREDITS_PRECISION", 2)),
		WarnThreshold: getenvDecimal("CREDITS_WARN_THRESHOLD", "0.5"),
		Allowlist:     parseAllowlist(os.Getenv("CREDITS_PROJECT_ALLOWLIST")),

		Mail: MailConfig{
			SMTPHost:       getenv("MAIL_SMTP_HOST", ""),
			SMTPPort:       getenvInt("MAIL_SMTP_PORT", 25),
			SMTPUser:       getenv("MAIL_SMTP_USER", ""),
			SMTPPassword:   getenv("MAIL_SMTP_PASSWORD", ""),
			From:           getenv("MAIL_FROM", "credits@localhost"),
			GovernanceAddr: getenv("MAIL_GOVERNANCE_ADDR", ""),
			ToOverwrite:    getenv("CREDITS_NOTIFICATION_TO_OVERWRITE", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			WriteRate:     getenvFloat("RATE_LIMIT_WRITE_RATE", 100),
			WriteBurst:    getenvInt("RATE_LIMIT_WRITE_BURST", 200),
		},
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Precision < 0 {
		cfg.Precision = 2
	}

	return cfg
}

// parseAllowlist splits a semicolon-separated project list. An empty
// result means every project is billed.
func parseAllowlist(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(raw, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out[p] = struct{}{}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDecimal(key, def string) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.RequireFromString(def)
	}
	return parsed
}
