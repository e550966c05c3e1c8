package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr                      string        `env:"APP_ADDR" envDefault:":8080"`
	Environment               string        `env:"APP_ENV" envDefault:"development"`
	DatabaseDriver            string        `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL               string        `env:"DATABASE_URL"`
	SQLitePath                string        `env:"SQLITE_PATH" envDefault:"evalhub.db"`
	JWTSecret                 string        `env:"JWT_SECRET"`
	TokenTTL                  time.Duration `env:"TOKEN_TTL" envDefault:"8h"`
	DataEncryptionKey         string        `env:"DATA_ENCRYPTION_KEY"`
	RunMigrations             bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	RunSeed                   bool          `env:"RUN_SEED" envDefault:"true"`
	SeedFile                  string        `env:"SEED_FILE"`
	SeedManagerName           string        `env:"SEED_MANAGER_NAME" envDefault:"Grand Manager"`
	SeedManagerEmail          string        `env:"SEED_MANAGER_EMAIL"`
	SeedManagerPassword       string        `env:"SEED_MANAGER_PASSWORD"`
	EvaluationsEnabledDefault bool          `env:"EVALUATIONS_ENABLED_DEFAULT" envDefault:"true"`
	PeriodTimezone            string        `env:"PERIOD_TIMEZONE" envDefault:"UTC"`
	AllowedEmailDomain        string        `env:"ALLOWED_EMAIL_DOMAIN"`
	DefaultSupervisorPassword string        `env:"DEFAULT_SUPERVISOR_PASSWORD" envDefault:"password123"`
	EmailEnabled              bool          `env:"EMAIL_ENABLED" envDefault:"false"`
	EmailFrom                 string        `env:"EMAIL_FROM" envDefault:"no-reply@example.com"`
	SMTPHost                  string        `env:"SMTP_HOST"`
	SMTPPort                  int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser                  string        `env:"SMTP_USER"`
	SMTPPassword              string        `env:"SMTP_PASSWORD"`
	SMTPUseTLS                bool          `env:"SMTP_USE_TLS" envDefault:"true"`
	MaxBodyBytes              int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitPerMinute        int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	ExportRateLimitPerMinute  int           `env:"EXPORT_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	MetricsEnabled            bool          `env:"METRICS_ENABLED" envDefault:"true"`
	CORSAllowedOrigins        []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.AllowedEmailDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.AllowedEmailDomain), "@"))
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves PERIOD_TIMEZONE, falling back to UTC.
func (c Config) Location() *time.Location {
	if strings.TrimSpace(c.PeriodTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.PeriodTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATABASE_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && (strings.TrimSpace(c.SeedManagerPassword) == "" || c.SeedManagerPassword == c.DefaultSupervisorPassword) {
			return fmt.Errorf("SEED_MANAGER_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if _, err := time.LoadLocation(c.PeriodTimezone); err != nil {
		return fmt.Errorf("PERIOD_TIMEZONE is invalid: %w", err)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
