// Package config resolves autoboard settings from flags, an optional config
// file and AUTOBOARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// AUTOBOARD_POLLER_INTERVAL=30s.
const EnvPrefix = "AUTOBOARD"

// Config is the resolved runtime configuration.
type Config struct {
	DBPath   string
	HTTPAddr string
	Log      LogConfig
	Poller   PollerConfig
	Engine   EngineConfig
	Redis    RedisConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type PollerConfig struct {
	Interval    time.Duration
	DedupWindow time.Duration
}

type EngineConfig struct {
	ActionTimeout time.Duration
	RuleCacheTTL  time.Duration
}

// RedisConfig enables the shared poll lease when Addr is set.
type RedisConfig struct {
	Addr      string
	Namespace string
	LeaseTTL  time.Duration
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"db":              "db",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"http-addr":       "http.addr",
	"poll-interval":   "poller.interval",
	"dedup-window":    "poller.dedup_window",
	"action-timeout":  "engine.action_timeout",
	"rule-cache-ttl":  "engine.rule_cache_ttl",
	"redis-addr":      "redis.addr",
	"redis-namespace": "redis.namespace",
	"redis-lease-ttl": "redis.lease_ttl",
}

// New returns a viper instance with defaults and env binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the built-in default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", "autoboard.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("poller.interval", time.Minute)
	v.SetDefault("poller.dedup_window", 12*time.Hour)
	v.SetDefault("engine.action_timeout", 10*time.Second)
	v.SetDefault("engine.rule_cache_ttl", time.Duration(0))
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.namespace", "autoboard")
	v.SetDefault("redis.lease_ttl", 2*time.Minute)
}

// BindFlags binds whichever known flags cmd defines (local or persistent)
// to their config keys. Unknown flags are ignored.
func BindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(name)
		}
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile (if non-empty) and resolves the configuration.
// A named config file that does not exist is an error.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config file %s not found", configFile)
			}
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		DBPath:   v.GetString("db"),
		HTTPAddr: v.GetString("http.addr"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Poller: PollerConfig{
			Interval:    v.GetDuration("poller.interval"),
			DedupWindow: v.GetDuration("poller.dedup_window"),
		},
		Engine: EngineConfig{
			ActionTimeout: v.GetDuration("engine.action_timeout"),
			RuleCacheTTL:  v.GetDuration("engine.rule_cache_ttl"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Namespace: v.GetString("redis.namespace"),
			LeaseTTL:  v.GetDuration("redis.lease_ttl"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db path is required")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive, got %s", c.Poller.Interval)
	}
	if c.Poller.DedupWindow <= 0 {
		return fmt.Errorf("poller.dedup_window must be positive, got %s", c.Poller.DedupWindow)
	}
	if c.Engine.ActionTimeout <= 0 {
		return fmt.Errorf("engine.action_timeout must be positive, got %s", c.Engine.ActionTimeout)
	}
	if c.Engine.RuleCacheTTL < 0 {
		return fmt.Errorf("engine.rule_cache_ttl must not be negative, got %s", c.Engine.RuleCacheTTL)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
