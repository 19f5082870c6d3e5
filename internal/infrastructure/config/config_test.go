package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAgencyEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "AGENCY_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearAgencyEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "agency-agent", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "default", cfg.Tenant.Default)
		assert.Equal(t, SnapshotBackendFile, cfg.Snapshot.Backend)
		assert.Equal(t, "none", cfg.Snapshot.Compression)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, 8*time.Second, cfg.Remote.Timeout)
		assert.Equal(t, 3*time.Minute, cfg.Remote.TokenLeeway)
		assert.Equal(t, SeedFirstSync, cfg.Sync.PaymentPlanSeed)
		assert.False(t, cfg.Sync.RollbackOnPushFailure)
		assert.True(t, cfg.Sync.NotifyPullErrors, "server errors are surfaced by default")
		assert.Equal(t, "chromedp", cfg.Printing.Measurer)
		assert.Equal(t, "local", cfg.Storage.Type)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
	})

	t.Run("loads values from environment variables with AGENCY prefix", func(t *testing.T) {
		clearAgencyEnv(t)
		t.Setenv("AGENCY_APP_PORT", "9000")
		t.Setenv("AGENCY_TENANT_DEFAULT", "lima")
		t.Setenv("AGENCY_SNAPSHOT_BACKEND", "redis")
		t.Setenv("AGENCY_SNAPSHOT_MAX_BYTES", "5242880")
		t.Setenv("AGENCY_SNAPSHOT_COMPRESSION", "snappy")
		t.Setenv("AGENCY_REMOTE_BASE_URL", "https://api.example.com/v1")
		t.Setenv("AGENCY_REMOTE_TIMEOUT", "3s")
		t.Setenv("AGENCY_SYNC_PAYMENT_PLAN_SEED", "never")
		t.Setenv("AGENCY_SYNC_ROLLBACK_ON_PUSH_FAILURE", "true")
		t.Setenv("AGENCY_SYNC_NOTIFY_PULL_ERRORS", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "lima", cfg.Tenant.Default)
		assert.Equal(t, SnapshotBackendRedis, cfg.Snapshot.Backend)
		assert.Equal(t, int64(5242880), cfg.Snapshot.MaxBytes)
		assert.Equal(t, "snappy", cfg.Snapshot.Compression)
		assert.Equal(t, "https://api.example.com/v1", cfg.Remote.BaseURL)
		assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
		assert.Equal(t, SeedNever, cfg.Sync.PaymentPlanSeed)
		assert.True(t, cfg.Sync.RollbackOnPushFailure)
		assert.False(t, cfg.Sync.NotifyPullErrors)
	})

	t.Run("rejects unknown snapshot backend", func(t *testing.T) {
		clearAgencyEnv(t)
		t.Setenv("AGENCY_SNAPSHOT_BACKEND", "localStorage")

		_, err := Load()
		assert.ErrorContains(t, err, "snapshot.backend")
	})

	t.Run("production requires a strong jwt secret", func(t *testing.T) {
		clearAgencyEnv(t)
		t.Setenv("AGENCY_APP_ENV", "production")
		t.Setenv("AGENCY_JWT_SECRET", "short")

		_, err := Load()
		assert.ErrorContains(t, err, "jwt.secret")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad compression", func(c *Config) { c.Snapshot.Compression = "gzip" }, "snapshot.compression"},
		{"negative quota", func(c *Config) { c.Snapshot.MaxBytes = -1 }, "snapshot.max_bytes"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"idle exceeds open", func(c *Config) { c.Database.MaxIdleConns = 50 }, "max_idle_conns"},
		{"bad seed policy", func(c *Config) { c.Sync.PaymentPlanSeed = "always" }, "payment_plan_seed"},
		{"bad measurer", func(c *Config) { c.Printing.Measurer = "dom" }, "printing.measurer"},
		{"bad storage", func(c *Config) { c.Storage.Type = "gcs" }, "storage.type"},
		{"bad remote url", func(c *Config) { c.Remote.BaseURL = "::nope" }, "remote.base_url"},
		{"wildcard cors in production", func(c *Config) {
			c.App.Env = "production"
			c.JWT.Secret = strings.Repeat("x", 32)
			c.Auth.AdminPassword = "secret"
			c.HTTP.CORSAllowOrigins = []string{"*"}
		}, "cors_allow_origins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "agent", Password: "p@ss word", DBName: "agency", SSLMode: "require"}
	assert.Equal(t, "postgres://agent:p%40ss%20word@db:5432/agency?sslmode=require", d.DSN())
}
