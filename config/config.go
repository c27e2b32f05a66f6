/*
Package config loads server settings.

SOURCES (later wins):
  1. Built-in defaults
  2. .env file in the working directory, if present (never overrides
     variables already set in the environment)
  3. Environment variables
  4. Command-line flags

ENVIRONMENT:
  PORT            HTTP port (8080)
  DB_DRIVER       sqlite3 | postgres (sqlite3)
  DATABASE_URL    SQLite path or PostgreSQL DSN (enrollment.db)
  REDIS_ADDR      host:port; empty disables roster caching
  REDIS_PASSWORD
  REDIS_DB        (0)
  CACHE_TTL       Go duration (5m)
  LOG_LEVEL       debug | info | warn | error (info)
  LOG_FORMAT      json | console (json)
  CORS_ORIGINS    comma-separated (*)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	DBDriver      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	LogLevel      string
	LogFormat     string
	CORSOrigins   []string
}

// LoadDotEnv loads path (".env" when empty). A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the environment, then parses args (without the program name).
func Load(args []string) (*Config, error) {
	port, err := envInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	ttl, err := envDuration("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	var origins string

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.Port, "port", port, "HTTP server port")
	fs.StringVar(&cfg.DBDriver, "db-driver", env("DB_DRIVER", "sqlite3"), "database driver: sqlite3 or postgres")
	fs.StringVar(&cfg.DatabaseURL, "db", env("DATABASE_URL", "enrollment.db"), "SQLite path or PostgreSQL DSN")
	fs.StringVar(&cfg.RedisAddr, "redis", env("REDIS_ADDR", ""), "Redis address; empty disables caching")
	fs.StringVar(&cfg.RedisPassword, "redis-password", env("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", redisDB, "Redis database number")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", ttl, "roster cache TTL")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", env("LOG_FORMAT", "json"), "json or console")
	fs.StringVar(&origins, "cors-origins", env("CORS_ORIGINS", "*"), "comma-separated allowed origins")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = splitList(origins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.DBDriver {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("database url is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
