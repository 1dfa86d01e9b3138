// Package config loads corral configuration from CORRAL_* environment
// variables with typed getters, defaults, and a validation pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Slack      SlackConfig
	Supervisor SupervisorConfig
}

// DatabaseConfig holds PostgreSQL connection settings. An empty Host
// disables persistence; the core runs with in-memory records only.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// Enabled reports whether a database sink is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN assembles the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// pub/sub bridge.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether the pub/sub bridge is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// SlackConfig holds the approval notification channel settings. An empty
// BotToken disables Slack notifications.
type SlackConfig struct {
	BotToken  string
	ChannelID string
}

// Enabled reports whether Slack notifications are configured.
func (c SlackConfig) Enabled() bool {
	return c.BotToken != ""
}

// SupervisorConfig holds process lifecycle settings.
type SupervisorConfig struct {
	GracePeriod   time.Duration // SIGTERM-to-SIGKILL window on cancel
	SweepInterval time.Duration // approval timeout sweep tick
	WorkDir       string        // default working directory for sessions
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("CORRAL_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CORRAL_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CORRAL_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	gracePeriod, err := getEnvDuration("CORRAL_GRACE_PERIOD", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sweepInterval, err := getEnvDuration("CORRAL_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("CORRAL_DB_HOST", ""),
			Port:     dbPort,
			User:     getEnv("CORRAL_DB_USER", "corral"),
			Password: getEnv("CORRAL_DB_PASSWORD", ""),
			DBName:   getEnv("CORRAL_DB_NAME", "corral_dev"),
			SSLMode:  getEnv("CORRAL_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CORRAL_REDIS_ADDR", ""),
			Password: getEnv("CORRAL_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Slack: SlackConfig{
			BotToken:  getEnv("CORRAL_SLACK_BOT_TOKEN", ""),
			ChannelID: getEnv("CORRAL_SLACK_CHANNEL", ""),
		},
		Supervisor: SupervisorConfig{
			GracePeriod:   gracePeriod,
			SweepInterval: sweepInterval,
			WorkDir:       getEnv("CORRAL_WORKDIR", "."),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Database.Enabled() {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("CORRAL_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("CORRAL_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
	}

	if c.Slack.Enabled() && c.Slack.ChannelID == "" {
		return fmt.Errorf("CORRAL_SLACK_CHANNEL is required when CORRAL_SLACK_BOT_TOKEN is set")
	}

	if c.Supervisor.GracePeriod <= 0 {
		return fmt.Errorf("CORRAL_GRACE_PERIOD must be positive, got %s", c.Supervisor.GracePeriod)
	}
	if c.Supervisor.SweepInterval <= 0 {
		return fmt.Errorf("CORRAL_SWEEP_INTERVAL must be positive, got %s", c.Supervisor.SweepInterval)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}

	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}

	return d, nil
}
