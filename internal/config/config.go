// Package config handles application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Vacation VacationConfig `yaml:"vacation"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	NATS     NATSConfig     `yaml:"nats"`

	// Timezone is the IANA zone used for children without an explicit one.
	Timezone string `yaml:"timezone"`
	// DatabasePath is the SQLite file (":memory:" for throwaway runs).
	DatabasePath string `yaml:"database_path"`
	// Metrics exposes /metrics when true.
	Metrics bool `yaml:"metrics"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// VacationConfig points at the school calendar collaborator.
type VacationConfig struct {
	APIURL   string        `yaml:"api_url"`
	ICSURL   string        `yaml:"ics_url"` // Takes precedence over APIURL when set
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type RefreshConfig struct {
	Cron        string `yaml:"cron"`
	HorizonDays int    `yaml:"horizon_days"`
}

type NATSConfig struct {
	URL           string `yaml:"url"` // Empty disables publishing
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultAPIURL is the French national school calendar dataset.
const DefaultAPIURL = "https://data.education.gouv.fr/api/records/1.0/search/"

// Default returns an in-memory default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Load reads the YAML file at path (if any), then applies .env and CUSTODY_*
// environment overrides, fills defaults and validates.
// A missing file is not an error: defaults and environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Paris"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "custody.db"
	}
	if c.Vacation.APIURL == "" {
		c.Vacation.APIURL = DefaultAPIURL
	}
	if c.Vacation.CacheDir == "" {
		c.Vacation.CacheDir = "./var/vacation-cache"
	}
	if c.Vacation.CacheTTL <= 0 {
		c.Vacation.CacheTTL = 12 * time.Hour
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = "*/15 * * * *"
	}
	if c.Refresh.HorizonDays <= 0 {
		c.Refresh.HorizonDays = 90
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "custody"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.Refresh.Cron); err != nil {
		errs = append(errs, fmt.Errorf("refresh.cron %q: %w", c.Refresh.Cron, err))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}

	return errors.Join(errs...)
}

// Location returns the configured default zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyEnv() {
	if v := getEnvInt("CUSTODY_PORT", 0); v != 0 {
		c.Server.Port = v
	}
	if v := os.Getenv("CUSTODY_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	setString(&c.Log.Level, "CUSTODY_LOG_LEVEL")
	setString(&c.Log.Format, "CUSTODY_LOG_FORMAT")
	setString(&c.Timezone, "CUSTODY_TIMEZONE")
	setString(&c.DatabasePath, "CUSTODY_DATABASE_PATH")
	setString(&c.Vacation.APIURL, "CUSTODY_VACATION_API_URL")
	setString(&c.Vacation.ICSURL, "CUSTODY_VACATION_ICS_URL")
	setString(&c.Vacation.CacheDir, "CUSTODY_VACATION_CACHE_DIR")
	if v := os.Getenv("CUSTODY_VACATION_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Vacation.CacheTTL = d
		}
	}
	setString(&c.Refresh.Cron, "CUSTODY_REFRESH_CRON")
	if v := getEnvInt("CUSTODY_HORIZON_DAYS", 0); v != 0 {
		c.Refresh.HorizonDays = v
	}
	setString(&c.NATS.URL, "CUSTODY_NATS_URL")
	setString(&c.NATS.SubjectPrefix, "CUSTODY_NATS_SUBJECT_PREFIX")
	if v := os.Getenv("CUSTODY_METRICS"); v != "" {
		c.Metrics, _ = strconv.ParseBool(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
