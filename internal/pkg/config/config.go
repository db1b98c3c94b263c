// Package config loads tracker settings from an optional YAML file
// with environment variable overrides on top (TRACKER_* names).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreFilesystem = "filesystem"
	StorePostgres   = "postgres"
)

// Duration adds YAML support for Go duration strings ("90s", "2m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	DataDir     string        `yaml:"dataDir"`
	Store       string        `yaml:"store"`
	PostgresDSN string        `yaml:"postgresDsn"`
	Redis       RedisConfig   `yaml:"redis"`
	Archive     ArchiveConfig `yaml:"archive"`
	Log         LogConfig     `yaml:"log"`
	Schedule    string        `yaml:"schedule"`
}

// RedisConfig configures the snapshot content cache. An empty Addr
// disables redis and historical runs fall back to an in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ArchiveConfig struct {
	BaseURL           string   `yaml:"baseUrl"`
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	UserAgent         string   `yaml:"userAgent"`
	CacheTTL          Duration `yaml:"cacheTtl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		DataDir: "data",
		Store:   StoreFilesystem,
		Archive: ArchiveConfig{
			Timeout:           Duration(60 * time.Second),
			RequestsPerSecond: 1,
			UserAgent:         "mortgagelab-tracker/1.0",
		},
		Log:      LogConfig{Level: "info"},
		Schedule: "0 7 * * *",
	}
}

// Load reads the YAML file at path (skipped when empty or missing),
// overlays environment variables and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Store != StoreFilesystem && cfg.Store != StorePostgres {
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.Store == StorePostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("store %q requires a postgres DSN", StorePostgres)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DataDir = envString("TRACKER_DATA_DIR", cfg.DataDir)
	cfg.Store = envString("TRACKER_STORE", cfg.Store)
	cfg.PostgresDSN = envString("TRACKER_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Redis.Addr = envString("TRACKER_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envString("TRACKER_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("TRACKER_REDIS_DB", cfg.Redis.DB)
	cfg.Archive.BaseURL = envString("TRACKER_ARCHIVE_BASE_URL", cfg.Archive.BaseURL)
	cfg.Archive.Timeout = envDuration("TRACKER_ARCHIVE_TIMEOUT", cfg.Archive.Timeout)
	cfg.Archive.RequestsPerSecond = envFloat("TRACKER_ARCHIVE_RPS", cfg.Archive.RequestsPerSecond)
	cfg.Archive.UserAgent = envString("TRACKER_ARCHIVE_USER_AGENT", cfg.Archive.UserAgent)
	cfg.Archive.CacheTTL = envDuration("TRACKER_ARCHIVE_CACHE_TTL", cfg.Archive.CacheTTL)
	cfg.Log.Level = envString("TRACKER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envString("TRACKER_LOG_FILE", cfg.Log.File)
	cfg.Schedule = envString("TRACKER_SCHEDULE", cfg.Schedule)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback Duration) Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
