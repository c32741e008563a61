// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the typed server configuration. Keys are read from the
// environment (after .env autoload) and an optional config file.
type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	StoreBackend   string `mapstructure:"store_backend"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisDB        int    `mapstructure:"redis_db"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
	DatabaseURL    string `mapstructure:"database_url"`

	MismatchDelay   time.Duration `mapstructure:"mismatch_delay"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	DeckPairs       int           `mapstructure:"deck_pairs"`

	ThemeFetchTimeout time.Duration `mapstructure:"theme_fetch_timeout"`
	ThemeCacheTTL     time.Duration `mapstructure:"theme_cache_ttl"`

	IdentitySecret  string `mapstructure:"identity_secret"`
	TokenExpireTime string `mapstructure:"token_expire_time"`
	AllowedOrigins  string `mapstructure:"allowed_origins"`

	ActionRate  float64 `mapstructure:"action_rate"`
	ActionBurst int     `mapstructure:"action_burst"`
}

var defaults = map[string]interface{}{
	"port":                8080,
	"log_level":           "info",
	"store_backend":       BackendMemory,
	"redis_addr":          "localhost:6379",
	"redis_db":            0,
	"redis_password":      "",
	"redis_key_prefix":    "memorymatch",
	"database_url":        "",
	"mismatch_delay":      "1.5s",
	"disconnect_grace":    "30s",
	"deck_pairs":          8,
	"theme_fetch_timeout": "5s",
	"theme_cache_ttl":     "1h",
	"identity_secret":     "",
	"token_expire_time":   "never",
	"allowed_origins":     "*",
	"action_rate":         10.0,
	"action_burst":        20,
}

// New returns a viper instance with defaults set and environment binding
// enabled. A non-empty file is read as an additional source.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}
	return v, nil
}

// Load builds and validates the configuration.
func Load(file string) (*Config, error) {
	v, err := New(file)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates a prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes fields and rejects unusable combinations.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis store")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MismatchDelay <= 0 {
		return fmt.Errorf("MISMATCH_DELAY must be positive, got %s", c.MismatchDelay)
	}
	if c.DisconnectGrace < 0 {
		return fmt.Errorf("DISCONNECT_GRACE must not be negative, got %s", c.DisconnectGrace)
	}
	if c.ActionRate <= 0 || c.ActionBurst <= 0 {
		return errors.New("ACTION_RATE and ACTION_BURST must be positive")
	}
	if _, err := c.TokenExpiry(); err != nil {
		return err
	}
	switch {
	case c.DeckPairs < 2:
		c.DeckPairs = 2
	case c.DeckPairs > 12:
		c.DeckPairs = 12
	}
	return nil
}

// TokenExpiry parses TOKEN_EXPIRE_TIME. "never", "0" and "" mean tokens do
// not expire.
func (c *Config) TokenExpiry() (time.Duration, error) {
	switch c.TokenExpireTime {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(c.TokenExpireTime)
	if err != nil {
		return 0, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
	}
	return d, nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
