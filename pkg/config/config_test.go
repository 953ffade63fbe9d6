package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, time.Second, cfg.API.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.API.ThrottleSleep)
	assert.Equal(t, 1000, cfg.API.BatchSize)
	assert.Equal(t, 1000, cfg.API.InlineResolveCap)

	assert.Equal(t, "file", cfg.Tenants.Backend)
	assert.Equal(t, "snowflake", cfg.Warehouse.Kind)

	assert.Equal(t, "0 1 * * *", cfg.Schedule.Nightly)
	assert.Equal(t, "5 * * * *", cfg.Schedule.Hourly)
	assert.Equal(t, "America/Denver", cfg.Schedule.Timezone)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	content := `
api:
  max_retries: 5
  throttle_sleep: 250ms
tenants:
  backend: postgres
  dsn: postgres://fieldpipe@localhost/fieldpipe
warehouse:
  kind: bigquery
  database: my-project
  schema: fieldroutes
`
	path := filepath.Join(t.TempDir(), "fieldpipe.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.API.ThrottleSleep)
	// defaults fill what the file omits
	assert.Equal(t, 1000, cfg.API.BatchSize)

	assert.Equal(t, "postgres", cfg.Tenants.Backend)
	assert.Equal(t, "bigquery", cfg.Warehouse.Kind)
	assert.Equal(t, "my-project", cfg.Warehouse.Database)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative retries", func(c *Config) { c.API.MaxRetries = -1 }, "max_retries"},
		{"zero batch size", func(c *Config) { c.API.BatchSize = 0 }, "batch_size"},
		{"file backend without path", func(c *Config) { c.Tenants.Path = "" }, "tenants.path"},
		{"postgres backend without dsn", func(c *Config) { c.Tenants.Backend = "postgres" }, "tenants.dsn"},
		{"unknown tenant backend", func(c *Config) { c.Tenants.Backend = "redis" }, "tenants.backend"},
		{"unknown warehouse kind", func(c *Config) { c.Warehouse.Kind = "duckdb" }, "warehouse.kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FP_TEST_KEY", "abc123")

	assert.Equal(t, "auth_key: abc123", ExpandEnv("auth_key: ${FP_TEST_KEY}"))
	assert.Equal(t, "plain text", ExpandEnv("plain text"))
	// unset variables expand to empty, matching os.Getenv
	assert.Equal(t, "x: ", ExpandEnv("x: ${FP_TEST_UNSET_VAR}"))
}
