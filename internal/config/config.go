package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Postgres struct {
		URL         string `yaml:"url"`
		AutoMigrate *bool  `yaml:"auto_migrate"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Leaderboard struct {
		DefaultLimit int    `yaml:"default_limit"`
		MaxLimit     int    `yaml:"max_limit"`
		CacheTTL     string `yaml:"cache_ttl"`
	} `yaml:"leaderboard"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StorageDriver resolves the configured driver. Without an explicit driver,
// a Postgres URL wins over a SQLite path, and memory is the fallback.
func (c Config) StorageDriver() string {
	switch {
	case c.Storage.Driver != "":
		return c.Storage.Driver
	case c.Postgres.URL != "":
		return DriverPostgres
	case c.SQLite.Path != "":
		return DriverSQLite
	}
	return DriverMemory
}

// MigrateOnStart reports whether start should apply Postgres migrations. Defaults to true.
func (c Config) MigrateOnStart() bool {
	return c.Postgres.AutoMigrate == nil || *c.Postgres.AutoMigrate
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver() {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("storage driver postgres requires postgres.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Leaderboard.DefaultLimit < 0 {
		errs = append(errs, errors.New("leaderboard.default_limit must not be negative"))
	}
	if c.Leaderboard.MaxLimit < 0 {
		errs = append(errs, errors.New("leaderboard.max_limit must not be negative"))
	}
	if c.Leaderboard.MaxLimit > 0 && c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		errs = append(errs, errors.New("leaderboard.default_limit exceeds leaderboard.max_limit"))
	}
	for name, raw := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"leaderboard.cache_ttl":   c.Leaderboard.CacheTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
