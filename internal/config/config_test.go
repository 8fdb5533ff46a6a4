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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "stockledger", cfg.Database.Name)
	assert.Equal(t, 7, cfg.Audit.StatsWindowDays)
	assert.Equal(t, 0, cfg.Audit.RetentionDays, "retention disabled by default")
	assert.Equal(t, "audit:read", cfg.Auth.AuditReadScope)
	assert.True(t, cfg.Security.RateLimiting.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9090, cfg.Telemetry.Metrics.PrometheusPort)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SLG_SERVER_PORT", "9999")
	t.Setenv("SLG_DATABASE_HOST", "db.internal")
	t.Setenv("SLG_AUDIT_RETENTION_DAYS", "365")
	t.Setenv("SLG_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExpandsSecretReferences(t *testing.T) {
	t.Setenv("DB_SECRET", "hunter2")
	t.Setenv("SLG_DATABASE_PASSWORD", "${DB_SECRET}")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Database.Password)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 8181
audit:
  stats_window_days: 14
  shippers:
    - enabled: true
      type: file
      file:
        path: /var/log/stockledger/audit.jsonl
        max_size_mb: 64
        max_backups: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 14*24*time.Hour, cfg.Audit.StatsWindow())
	require.Len(t, cfg.Audit.Shippers, 1)

	shipper := cfg.Audit.Shippers[0]
	assert.True(t, shipper.Enabled)
	assert.Equal(t, "file", shipper.Type)
	require.NotNil(t, shipper.File)
	assert.Equal(t, 64, shipper.File.MaxSizeMB)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db host", func(c *Config) { c.Database.Host = "" }},
		{"empty db name", func(c *Config) { c.Database.Name = "" }},
		{"zero max connections", func(c *Config) { c.Database.MaxConnections = 0 }},
		{"zero stats window", func(c *Config) { c.Audit.StatsWindowDays = 0 }},
		{"negative retention", func(c *Config) { c.Audit.RetentionDays = -1 }},
		{"file shipper without path", func(c *Config) {
			c.Audit.Shippers = []ShipperConfig{{Enabled: true, Type: "file", File: &FileShipperConfig{}}}
		}},
		{"webhook shipper without url", func(c *Config) {
			c.Audit.Shippers = []ShipperConfig{{Enabled: true, Type: "webhook", Webhook: &WebhookShipperConfig{}}}
		}},
		{"unknown shipper type", func(c *Config) {
			c.Audit.Shippers = []ShipperConfig{{Enabled: true, Type: "syslog"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled shipper is not validated", func(t *testing.T) {
		cfg := base()
		cfg.Audit.Shippers = []ShipperConfig{{Enabled: false, Type: "syslog"}}
		assert.NoError(t, cfg.Validate())
	})
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "localhost", Port: 5432, Name: "stockledger",
		User: "app", Password: "pw", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=app password=pw dbname=stockledger sslmode=disable",
		c.GetDSN())
}

func TestGetAddress(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", s.GetAddress())
}
