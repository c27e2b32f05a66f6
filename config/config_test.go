package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DB_DRIVER", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "CACHE_TTL", "LOG_LEVEL", "LOG_FORMAT", "CORS_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "enrollment.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvThenFlags(t *testing.T) {
	// GIVEN: Environment sets port, driver and TTL
	// WHEN: A flag also sets the port
	// THEN: The flag wins, the rest come from the environment
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/enroll?sslmode=disable")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load([]string{"-port", "9100", "-redis", "localhost:6379"})

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := Load(nil)
	assert.Error(t, err)

	clearEnv(t)
	_, err = Load([]string{"-db-driver", "mysql"})
	assert.Error(t, err)

	_, err = Load([]string{"-cache-ttl", "0s"})
	assert.Error(t, err)

	_, err = Load([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7001\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "error")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("PORT") })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, "error", cfg.LogLevel, "existing environment wins over .env")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
