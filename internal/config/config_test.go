package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "autoboard.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, time.Minute, cfg.Poller.Interval)
	assert.Equal(t, 12*time.Hour, cfg.Poller.DedupWindow)
	assert.Equal(t, 10*time.Second, cfg.Engine.ActionTimeout)
	assert.Zero(t, cfg.Engine.RuleCacheTTL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "autoboard", cfg.Redis.Namespace)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/autoboard/board.db
log:
  level: debug
  format: json
poller:
  interval: 30s
  dedup_window: 6h
engine:
  rule_cache_ttl: 5s
redis:
  addr: localhost:6379
`), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/autoboard/board.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 6*time.Hour, cfg.Poller.DedupWindow)
	assert.Equal(t, 5*time.Second, cfg.Engine.RuleCacheTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AUTOBOARD_POLLER_INTERVAL", "15s")
	t.Setenv("AUTOBOARD_DB", "env.db")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Poller.Interval)
	assert.Equal(t, "env.db", cfg.DBPath)
}

func TestBindFlags_FlagWins(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().String("db", "autoboard.db", "")
	cmd.Flags().Duration("dedup-window", 12*time.Hour, "")
	require.NoError(t, cmd.ParseFlags([]string{"--db", "flag.db", "--dedup-window", "1h"}))

	v := New()
	require.NoError(t, BindFlags(v, cmd))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.Poller.DedupWindow)
}

func TestValidate(t *testing.T) {
	base, err := Load(New(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db", func(c *Config) { c.DBPath = "" }},
		{"zero interval", func(c *Config) { c.Poller.Interval = 0 }},
		{"zero dedup", func(c *Config) { c.Poller.DedupWindow = 0 }},
		{"zero timeout", func(c *Config) { c.Engine.ActionTimeout = 0 }},
		{"negative cache", func(c *Config) { c.Engine.RuleCacheTTL = -time.Second }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
