// Package config loads process configuration from an optional YAML file,
// an optional .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Directory backends.
const (
	DirectoryHTTP   = "http"
	DirectoryMemory = "memory"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionSQLite = "sqlite"
	SessionRedis  = "redis"
)

type Config struct {
	Port     int    `yaml:"port"`
	LogMode  string `yaml:"log_mode"`
	LogLevel string `yaml:"log_level"`

	Directory DirectoryConfig `yaml:"directory"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`

	// DatabaseURL is a SQLite DSN. Empty keeps activity and sessions in memory.
	DatabaseURL   string `yaml:"database_url"`
	TemplatesFile string `yaml:"templates_file"`

	AdminIDs    []string `yaml:"admin_ids"`
	OperatorIDs []string `yaml:"operator_ids"`

	// AllowedOrigins lists browser origin hosts, besides the server's own,
	// that may open the chat console.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DirectoryConfig struct {
	Mode    string        `yaml:"mode"`
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SessionConfig struct {
	Backend     string        `yaml:"backend"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	RedisAddr   string        `yaml:"redis_addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:     8080,
		LogMode:  "dev",
		LogLevel: "info",
		Directory: DirectoryConfig{
			Mode:    DirectoryMemory,
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           300 * time.Second,
			SweepInterval: 60 * time.Second,
		},
		Session: SessionConfig{
			Backend:     SessionMemory,
			IdleTimeout: 30 * time.Minute,
		},
	}
}

// Load reads envFile (ignored when missing), then the YAML file named by
// ACCOUNTDESK_CONFIG, then applies environment overrides and validates.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path := os.Getenv("ACCOUNTDESK_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = p
	}
	str("LOG_MODE", &cfg.LogMode)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("DIRECTORY_MODE", &cfg.Directory.Mode)
	str("DIRECTORY_URL", &cfg.Directory.URL)
	str("DIRECTORY_TOKEN", &cfg.Directory.Token)
	str("SESSION_BACKEND", &cfg.Session.Backend)
	str("REDIS_ADDR", &cfg.Session.RedisAddr)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("TEMPLATES_FILE", &cfg.TemplatesFile)
	list("ADMIN_IDS", &cfg.AdminIDs)
	list("OPERATOR_IDS", &cfg.OperatorIDs)
	list("WS_ALLOWED_ORIGINS", &cfg.AllowedOrigins)

	for key, dst := range map[string]*time.Duration{
		"DIRECTORY_TIMEOUT":    &cfg.Directory.Timeout,
		"CACHE_TTL":            &cfg.Cache.TTL,
		"SWEEP_INTERVAL":       &cfg.Cache.SweepInterval,
		"SESSION_IDLE_TIMEOUT": &cfg.Session.IdleTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// parseDuration accepts Go durations ("5m") and bare second counts ("300").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Directory.Mode {
	case DirectoryMemory:
	case DirectoryHTTP:
		if c.Directory.URL == "" {
			return errors.New("config: directory url is required in http mode")
		}
	default:
		return fmt.Errorf("config: unknown directory mode %q", c.Directory.Mode)
	}
	switch c.Session.Backend {
	case SessionMemory:
	case SessionSQLite:
		if c.DatabaseURL == "" {
			return errors.New("config: sqlite session backend needs DATABASE_URL")
		}
	case SessionRedis:
		if c.Session.RedisAddr == "" {
			return errors.New("config: redis session backend needs REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("config: cache ttl must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return errors.New("config: sweep interval must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}
