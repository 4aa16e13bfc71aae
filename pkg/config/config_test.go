package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "never", cfg.Allocation.RestockOnReturn)
	assert.Equal(t, 3, cfg.Allocation.ConflictRetries)
	assert.Equal(t, 10.0, cfg.Stock.DefaultCriticalThreshold)
	assert.Equal(t, "@every 1h", cfg.Jobs.ReconcileCron)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ReportTTL)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
allocation:
  restock_on_return: usable_only
cache:
  report_ttl: 90s
`), 0o600))

	t.Setenv("CANTEIRO_APP_PORT", "9090")
	t.Setenv("CANTEIRO_ALLOCATION_CONFLICT_RETRIES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "usable_only", cfg.Allocation.RestockOnReturn)
	assert.Equal(t, 90*time.Second, cfg.Cache.ReportTTL)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, ":9090", cfg.App.Addr())
	assert.Equal(t, 5, cfg.Allocation.ConflictRetries)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	t.Setenv("CANTEIRO_STORAGE_DRIVER", "sqlite")
	_, err = Load("")
	assert.ErrorContains(t, err, "storage.driver")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			App:      AppConfig{Port: 8080},
			Storage:  StorageConfig{Driver: DriverMemory},
			Database: DatabaseConfig{},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"memory without dsn", func(*Config) {}, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, false},
		{"auth required without secret", func(c *Config) { c.Auth.Required = true }, false},
		{"negative retries", func(c *Config) { c.Allocation.ConflictRetries = -1 }, false},
		{"bad port", func(c *Config) { c.App.Port = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}
