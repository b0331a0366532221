// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	CookieDomain string        `yaml:"cookie_domain"`
}

type StoreConfig struct {
	Backend   string        `yaml:"backend"` // redis|bolt|memory
	RecordTTL time.Duration `yaml:"record_ttl"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig enables the Postgres usage audit mirror when URL is set.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type CodesConfig struct {
	SourceURL       string        `yaml:"source_url"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Prefix          string        `yaml:"prefix"`
	MonthlyDays     int           `yaml:"monthly_days"`
	YearlyDays      int           `yaml:"yearly_days"`
	PersistRemovals *bool         `yaml:"persist_removals"`
}

type LedgerConfig struct {
	PruneLegacyDeviceKey bool `yaml:"prune_legacy_device_key"`
}

type RateLimitConfig struct {
	ActivatePerMinute int `yaml:"activate_per_minute"` // 0 disables
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	AdminIDs []int64 `yaml:"admin_ids"`
	Workers  int     `yaml:"workers"` // notification workers
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Bolt      BoltConfig      `yaml:"bolt"`
	Database  DatabaseConfig  `yaml:"database"`
	Codes     CodesConfig     `yaml:"codes"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Bot       BotConfig       `yaml:"bot"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. ${VAR} references are expanded
// from the environment before parsing.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes, defaults and validates raw YAML.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(b), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} only. Bare $ is left alone so bcrypt hashes
// survive.
func expandEnv(b []byte) []byte {
	return envRef.ReplaceAllFunc(b, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 15 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Admin.SessionTTL <= 0 {
		c.Admin.SessionTTL = 12 * time.Hour
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = "redis"
	}
	if c.Store.RecordTTL <= 0 {
		c.Store.RecordTTL = 400 * 24 * time.Hour
	}
	if c.Bolt.Path == "" {
		c.Bolt.Path = "./data/activations.db"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 4
	}
	if c.Codes.CacheTTL <= 0 {
		c.Codes.CacheTTL = 600 * time.Second
	}
	if c.Codes.FetchTimeout <= 0 {
		c.Codes.FetchTimeout = 10 * time.Second
	}
	if c.Codes.Prefix == "" {
		c.Codes.Prefix = "RY"
	}
	if c.Codes.MonthlyDays <= 0 {
		c.Codes.MonthlyDays = 30
	}
	if c.Codes.YearlyDays <= 0 {
		c.Codes.YearlyDays = 365
	}
	if c.Codes.PersistRemovals == nil {
		on := true
		c.Codes.PersistRemovals = &on
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 2
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis store")
		}
	case "bolt", "memory":
	default:
		return fmt.Errorf("store.backend %q is not one of redis|bolt|memory", c.Store.Backend)
	}
	if c.Codes.SourceURL == "" {
		return errors.New("codes.source_url is required")
	}
	if len(c.Codes.Prefix) != 2 {
		return errors.New("codes.prefix must be two characters")
	}
	if c.Admin.PasswordHash != "" && len(c.Admin.JWTSecret) < 32 {
		return errors.New("admin.jwt_secret must be at least 32 bytes when the admin API is enabled")
	}
	if c.RateLimit.ActivatePerMinute < 0 {
		return errors.New("rate_limit.activate_per_minute must be >= 0")
	}
	return nil
}

// AdminEnabled reports whether the admin HTTP API should be mounted.
func (c *Config) AdminEnabled() bool { return c.Admin.PasswordHash != "" }
