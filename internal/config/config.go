// Package config loads portal configuration from defaults, an optional
// YAML file and ECP_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"ecportal.org/internal/clientip"
)

const (
	EnvPrefix     = "ECP_"
	ConfigPathEnv = "ECP_CONFIG"

	minSecretLength = 32
)

type Config struct {
	Env       string          `koanf:"env"`
	HTTP      HTTPConfig      `koanf:"http"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Log       LogConfig       `koanf:"log"`
	Session   SessionConfig   `koanf:"session"`
	Database  DatabaseConfig  `koanf:"database"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Audit     AuditConfig     `koanf:"audit"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
}

type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type SessionConfig struct {
	Secret       string        `koanf:"secret"`
	CookieName   string        `koanf:"cookie_name"`
	Issuer       string        `koanf:"issuer"`
	TTL          time.Duration `koanf:"ttl"`
	SecureCookie bool          `koanf:"secure_cookie"`
}

type DatabaseConfig struct {
	// DSN selects PostgreSQL; empty keeps users and audit entries in memory.
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RateLimitConfig struct {
	Backend       string        `koanf:"backend"`
	RedisURL      string        `koanf:"redis_url"`
	Limit         int           `koanf:"limit"`
	Window        time.Duration `koanf:"window"`
	LoginLimit    int           `koanf:"login_limit"`
	LoginWindow   time.Duration `koanf:"login_window"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// TrustedProxies lists peers (addresses or CIDRs) whose
	// X-Forwarded-For and X-Real-IP headers name the client.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

type AuditConfig struct {
	FailureLogInterval time.Duration `koanf:"failure_log_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		GRPC: GRPCConfig{Addr: ":9090"},
		Log:  LogConfig{Level: "info", Format: "json"},
		Session: SessionConfig{
			CookieName: "ecp_session",
			Issuer:     "ecportal",
			TTL:        8 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Backend:       "memory",
			Limit:         100,
			Window:        time.Minute,
			LoginLimit:    5,
			LoginWindow:   15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Audit: AuditConfig{FailureLogInterval: 30 * time.Second},
	}
}

// Load reads .env (when present), then layers defaults, the file named by
// ECP_CONFIG and ECP_* variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(os.Getenv(ConfigPathEnv))
}

// LoadFile is Load without the .env step; path may be empty.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitListValues(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envAliases = map[string]string{
	"ECP_REDIS_URL": "ratelimit.redis_url",
	"ECP_CONFIG":    "",
}

// listKeys are settings that arrive from the environment as
// comma-separated strings.
var listKeys = []string{"ratelimit.trusted_proxies"}

func splitListValues(k *koanf.Koanf) error {
	for _, key := range listKeys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// envKey maps ECP_SECTION_FIELD_NAME to section.field_name.
func envKey(key string) string {
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return section
	}
	return section + "." + field
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(strings.TrimSpace(c.Session.Secret)) < minSecretLength {
		return fmt.Errorf("config: session.secret must be at least %d bytes (ECP_SESSION_SECRET)", minSecretLength)
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session.ttl must be positive")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("config: ratelimit.limit and ratelimit.window must be positive")
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("config: ratelimit.login_limit and ratelimit.login_window must be positive")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RateLimit.RedisURL) == "" {
			return errors.New("config: ratelimit.redis_url is required for the redis backend (ECP_REDIS_URL)")
		}
	default:
		return fmt.Errorf("config: unknown ratelimit.backend %q", c.RateLimit.Backend)
	}
	if _, err := clientip.NewResolver(c.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("config: ratelimit.trusted_proxies: %w", err)
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	return nil
}

// Production reports whether the service runs with production defaults.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}
