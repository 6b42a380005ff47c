package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the application's configuration values.
type Config struct {
	HTTPPort       string
	DatabaseDriver string
	DatabaseURL    string

	ProbeTimeout          time.Duration
	ProbeUserAgent        string
	SweepConcurrency      int
	AlternateCheckTTL     time.Duration
	AlternateProbeTimeout time.Duration
	AlternateSymptoms     string

	ExportTimezone   string
	ScheduleTimezone string
	ArchiveAt        string
	ArchiveWindow    time.Duration

	SchedulerEnabled bool
	SweepSchedule    string
	ArchiveSchedule  string

	CronSecret    string
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookies bool
	AdminUsername string
	AdminPassword string
	CORSOrigins   []string

	LogLevel      string
	LogFormat     string
	ShutdownGrace time.Duration
	TargetsFile   string
}

// LoadDotEnv reads key=value pairs from path into the environment when the
// file exists. Variables already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    getEnv("DATABASE_URL", "uptimewatch.db"),

		ProbeTimeout:          getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
		ProbeUserAgent:        getEnv("PROBE_USER_AGENT", "uptimewatch/1.0"),
		SweepConcurrency:      getEnvInt("SWEEP_CONCURRENCY", 1),
		AlternateCheckTTL:     getEnvDuration("ALTERNATE_CHECK_TTL", 15*time.Minute),
		AlternateProbeTimeout: getEnvDuration("ALTERNATE_PROBE_TIMEOUT", 8*time.Second),
		AlternateSymptoms:     getEnv("PROBE_ALTERNATE_SYMPTOMS", "timeout,abort,dns,connection-refused,transport"),

		ExportTimezone:   getEnv("EXPORT_TIMEZONE", "America/Chicago"),
		ScheduleTimezone: getEnv("SCHEDULE_TIMEZONE", "America/Chicago"),
		ArchiveAt:        getEnv("ARCHIVE_AT", "07:50"),
		ArchiveWindow:    getEnvDuration("ARCHIVE_WINDOW", 5*time.Minute),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", false),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "0 8,14,20 * * *"),
		ArchiveSchedule:  getEnv("ARCHIVE_SCHEDULE", "50 7 * * *"),

		CronSecret:    getEnv("CRON_SECRET", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		SecureCookies: getEnvBool("SECURE_COOKIES", false),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		CORSOrigins:   getEnvList("CORS_ORIGINS", nil),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),
		TargetsFile:   getEnv("TARGETS_FILE", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %q", c.DatabaseDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.ProbeTimeout <= 0 {
		return errors.New("PROBE_TIMEOUT must be positive")
	}
	if c.SweepConcurrency < 1 {
		return errors.New("SWEEP_CONCURRENCY must be at least 1")
	}
	if c.AlternateCheckTTL <= 0 || c.AlternateProbeTimeout <= 0 {
		return errors.New("alternate check durations must be positive")
	}
	if _, err := time.LoadLocation(c.ExportTimezone); err != nil {
		return fmt.Errorf("EXPORT_TIMEZONE: %w", err)
	}
	if _, err := time.LoadLocation(c.ScheduleTimezone); err != nil {
		return fmt.Errorf("SCHEDULE_TIMEZONE: %w", err)
	}
	if _, _, err := c.ArchiveTimeOfDay(); err != nil {
		return err
	}
	if c.ArchiveWindow < 0 {
		return errors.New("ARCHIVE_WINDOW must not be negative")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

// ArchiveTimeOfDay parses ARCHIVE_AT as HH:MM.
func (c *Config) ArchiveTimeOfDay() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.ArchiveAt)
	if err != nil {
		return 0, 0, fmt.Errorf("ARCHIVE_AT must be HH:MM: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

// ExportLocation returns the time zone used for archive exports.
func (c *Config) ExportLocation() *time.Location {
	loc, err := time.LoadLocation(c.ExportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScheduleLocation returns the time zone used by the clock-driven triggers.
func (c *Config) ScheduleLocation() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
