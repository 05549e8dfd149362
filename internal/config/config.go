package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Service modes select which half of the platform a process serves.
const (
	ModeAll      = "all"
	ModeLoans    = "loans"
	ModePayments = "payments"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Auth      AuthConfig      `mapstructure:",squash"`
	Loans     LoansConfig     `mapstructure:",squash"`
	Payments  PaymentsConfig  `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	SMTP      SMTPConfig      `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"SERVER_HOST"`
	Port            string        `mapstructure:"SERVER_PORT"`
	Env             string        `mapstructure:"ENV"`
	Mode            string        `mapstructure:"SERVICE_MODE"`
	ReadTimeout     time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"DATABASE_DRIVER"`
	URL             string        `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `mapstructure:"DATABASE_AUTO_MIGRATE"`
}

// RedisConfig is optional; an empty URL disables the schedule cache and idempotency.
type RedisConfig struct {
	URL            string        `mapstructure:"REDIS_URL"`
	ScheduleTTL    time.Duration `mapstructure:"SCHEDULE_CACHE_TTL"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	InternalKey string `mapstructure:"INTERNAL_API_KEY"`
}

type LoansConfig struct {
	ServiceURL     string        `mapstructure:"LOANS_SERVICE_URL"`
	ServiceTimeout time.Duration `mapstructure:"LOANS_SERVICE_TIMEOUT"`
}

type PaymentsConfig struct {
	Policy string `mapstructure:"PAYMENT_POLICY"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type SchedulerConfig struct {
	Spec      string `mapstructure:"SCHEDULER_SPEC"`
	Timezone  string `mapstructure:"SCHEDULER_TIMEZONE"`
	GraceDays int    `mapstructure:"OVERDUE_GRACE_DAYS"`
}

type SMTPConfig struct {
	Host       string `mapstructure:"SMTP_HOST"`
	Port       string `mapstructure:"SMTP_PORT"`
	Username   string `mapstructure:"SMTP_USERNAME"`
	Password   string `mapstructure:"SMTP_PASSWORD"`
	From       string `mapstructure:"SMTP_FROM"`
	Recipients string `mapstructure:"DIGEST_RECIPIENTS"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_HOST":                "0.0.0.0",
	"SERVER_PORT":                "8080",
	"ENV":                        "development",
	"SERVICE_MODE":               ModeAll,
	"SERVER_READ_TIMEOUT":        "15s",
	"SERVER_WRITE_TIMEOUT":       "15s",
	"SHUTDOWN_TIMEOUT":           "30s",
	"DATABASE_DRIVER":            "postgres",
	"DATABASE_URL":               "",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "5m",
	"DATABASE_AUTO_MIGRATE":      true,
	"REDIS_URL":                  "",
	"SCHEDULE_CACHE_TTL":         "10m",
	"IDEMPOTENCY_TTL":            "24h",
	"JWT_SECRET":                 "",
	"INTERNAL_API_KEY":           "",
	"LOANS_SERVICE_URL":          "",
	"LOANS_SERVICE_TIMEOUT":      "5s",
	"PAYMENT_POLICY":             "exact",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "json",
	"SCHEDULER_SPEC":             "0 6 * * *",
	"SCHEDULER_TIMEZONE":         "UTC",
	"OVERDUE_GRACE_DAYS":         3,
	"SMTP_HOST":                  "",
	"SMTP_PORT":                  "587",
	"SMTP_USERNAME":              "",
	"SMTP_PASSWORD":              "",
	"SMTP_FROM":                  "",
	"DIGEST_RECIPIENTS":          "",
	"HEALTH_CHECK_TIMEOUT":       "5s",
}

// Load reads configuration from environment variables, after loading the
// given dotenv files (".env" when none). Missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to read %s: %w", file, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Server.Mode {
	case ModeAll, ModeLoans, ModePayments:
	default:
		return fmt.Errorf("SERVICE_MODE must be one of all, loans, payments: got %q", c.Server.Mode)
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite3: got %q", c.Database.Driver)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Server.Mode == ModePayments {
		if c.Loans.ServiceURL == "" {
			return fmt.Errorf("LOANS_SERVICE_URL is required when SERVICE_MODE is payments")
		}
		if c.Auth.InternalKey == "" {
			return fmt.Errorf("INTERNAL_API_KEY is required when SERVICE_MODE is payments")
		}
	}

	switch c.Payments.Policy {
	case "exact", "overpay":
	default:
		return fmt.Errorf("PAYMENT_POLICY must be exact or overpay: got %q", c.Payments.Policy)
	}

	if c.Scheduler.GraceDays < 0 {
		return fmt.Errorf("OVERDUE_GRACE_DAYS must not be negative")
	}

	if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
		return fmt.Errorf("SCHEDULER_SPEC must be a valid cron expression: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be greater than 0")
	}

	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c LoggingConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// ServesLoans reports whether the loan routes are mounted in this process.
func (c *Config) ServesLoans() bool {
	return c.Server.Mode == ModeAll || c.Server.Mode == ModeLoans
}

// ServesPayments reports whether the payment routes are mounted in this process.
func (c *Config) ServesPayments() bool {
	return c.Server.Mode == ModeAll || c.Server.Mode == ModePayments
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Location returns the scheduler time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DigestRecipients splits DIGEST_RECIPIENTS on commas.
func (c *Config) DigestRecipients() []string {
	var recipients []string
	for _, r := range strings.Split(c.SMTP.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}
