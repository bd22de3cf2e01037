package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/miniapp/internal/shared/utils"
)

// MaxDownloadConcurrency caps simultaneous asset transfers per download
const MaxDownloadConcurrency = 4

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Platform PlatformConfig `yaml:"platform" toml:"platform"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Download DownloadConfig `yaml:"download" toml:"download"`
	Store    StoreConfig    `yaml:"store" toml:"store"`
	Host     HostConfig     `yaml:"host" toml:"host"`
	Logging  LogConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string   `envconfig:"MINIAPP_HOST" yaml:"host" toml:"host"`
	Port        string   `envconfig:"MINIAPP_PORT" yaml:"port" toml:"port"`
	CORSOrigins []string `envconfig:"MINIAPP_CORS_ORIGINS" yaml:"cors_origins" toml:"cors_origins"`
}

// PlatformConfig holds the bundle backend connection settings.
type PlatformConfig struct {
	BaseURL         string   `envconfig:"MINIAPP_PLATFORM_URL" yaml:"base_url" toml:"base_url"`
	HostID          string   `envconfig:"MINIAPP_HOST_ID" yaml:"host_id" toml:"host_id"`
	SubscriptionKey string   `envconfig:"MINIAPP_SUBSCRIPTION_KEY" yaml:"subscription_key" toml:"subscription_key"`
	Preview         bool     `envconfig:"MINIAPP_PREVIEW" yaml:"preview" toml:"preview"`
	Timeout         Duration `envconfig:"MINIAPP_PLATFORM_TIMEOUT" yaml:"timeout" toml:"timeout"`
	RateLimit       float64  `envconfig:"MINIAPP_PLATFORM_RPS" yaml:"rate_limit" toml:"rate_limit"`
	Burst           int      `envconfig:"MINIAPP_PLATFORM_BURST" yaml:"burst" toml:"burst"`
	BreakerFailures uint32   `envconfig:"MINIAPP_BREAKER_FAILURES" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerCooldown Duration `envconfig:"MINIAPP_BREAKER_COOLDOWN" yaml:"breaker_cooldown" toml:"breaker_cooldown"`
}

// CacheConfig holds the on-disk bundle cache settings.
type CacheConfig struct {
	Dir           string   `envconfig:"MINIAPP_CACHE_DIR" yaml:"dir" toml:"dir"`
	HashAlgorithm string   `envconfig:"MINIAPP_HASH" yaml:"hash_algorithm" toml:"hash_algorithm"`
	Ignore        []string `envconfig:"MINIAPP_HASH_IGNORE" yaml:"ignore" toml:"ignore"`
	RootEntry     string   `envconfig:"MINIAPP_ROOT_ENTRY" yaml:"root_entry" toml:"root_entry"`
}

// DownloadConfig holds the asset transfer policy.
type DownloadConfig struct {
	Concurrency     int      `envconfig:"MINIAPP_DOWNLOAD_CONCURRENCY" yaml:"concurrency" toml:"concurrency"`
	RetryBase       Duration `envconfig:"MINIAPP_RETRY_BASE" yaml:"retry_base" toml:"retry_base"`
	RetryMultiplier float64  `envconfig:"MINIAPP_RETRY_MULTIPLIER" yaml:"retry_multiplier" toml:"retry_multiplier"`
	MaxAttempts     int      `envconfig:"MINIAPP_RETRY_ATTEMPTS" yaml:"max_attempts" toml:"max_attempts"`
	SignatureMode   string   `envconfig:"MINIAPP_SIGNATURE" yaml:"signature" toml:"signature"`
}

// StoreConfig holds the grant store backend and cipher.
type StoreConfig struct {
	Backend  string `envconfig:"MINIAPP_STORE" yaml:"backend" toml:"backend"`
	RedisURL string `envconfig:"MINIAPP_REDIS_URL" yaml:"redis_url" toml:"redis_url"`
	Cipher   string `envconfig:"MINIAPP_STORE_CIPHER" yaml:"cipher" toml:"cipher"`
	Secret   string `envconfig:"MINIAPP_STORE_SECRET" yaml:"secret" toml:"secret"`
}

// HostConfig describes the local capability set served to bridge clients.
type HostConfig struct {
	Name         string `envconfig:"MINIAPP_HOST_NAME" yaml:"name" toml:"name"`
	Locale       string `envconfig:"MINIAPP_HOST_LOCALE" yaml:"locale" toml:"locale"`
	UserName     string `envconfig:"MINIAPP_USER_NAME" yaml:"user_name" toml:"user_name"`
	ProfilePhoto string `envconfig:"MINIAPP_PROFILE_PHOTO" yaml:"profile_photo" toml:"profile_photo"`
	Points       int    `envconfig:"MINIAPP_POINTS" yaml:"points" toml:"points"`
	// AutoGrant answers custom permission prompts with ALLOWED instead of DENIED
	AutoGrant bool `envconfig:"MINIAPP_AUTO_GRANT" yaml:"auto_grant" toml:"auto_grant"`
	// DevicePermissions lists the OS-level permissions the device grants
	DevicePermissions []string `envconfig:"MINIAPP_DEVICE_PERMISSIONS" yaml:"device_permissions" toml:"device_permissions"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// Signature verification modes
const (
	SignatureOff      = "off"
	SignatureOptional = "optional"
	SignatureRequired = "required"
)

// Store backends and ciphers
const (
	BackendFile  = "file"
	BackendRedis = "redis"

	CipherXChaCha = "xchacha"
	CipherAge     = "age"
)

// Load builds configuration from defaults, then the optional file at path
// (YAML or TOML by extension), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config %s: unsupported format %q", path, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8040",
		},
		Platform: PlatformConfig{
			Timeout:         Duration{30 * time.Second},
			RateLimit:       20,
			Burst:           40,
			BreakerFailures: 5,
			BreakerCooldown: Duration{30 * time.Second},
		},
		Cache: CacheConfig{
			Dir:           defaultCacheDir(),
			HashAlgorithm: string(utils.SHA256),
			RootEntry:     "index.html",
		},
		Download: DownloadConfig{
			Concurrency:     MaxDownloadConcurrency,
			RetryBase:       Duration{500 * time.Millisecond},
			RetryMultiplier: 2,
			MaxAttempts:     5,
			SignatureMode:   SignatureOptional,
		},
		Store: StoreConfig{
			Backend: BackendFile,
			Cipher:  CipherXChaCha,
		},
		Host: HostConfig{
			Name:   "miniapp-host",
			Locale: "en-US",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	if c.Platform.BaseURL != "" {
		u, err := url.Parse(c.Platform.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("platform base url %q is not an absolute URL", c.Platform.BaseURL)
		}
	}
	if _, err := utils.ParseHashAlgorithm(c.Cache.HashAlgorithm); err != nil {
		return err
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache dir is required")
	}
	if c.Download.Concurrency < 1 || c.Download.Concurrency > MaxDownloadConcurrency {
		return fmt.Errorf("download concurrency must be between 1 and %d, got %d", MaxDownloadConcurrency, c.Download.Concurrency)
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download attempts must be at least 1, got %d", c.Download.MaxAttempts)
	}
	if c.Download.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1, got %v", c.Download.RetryMultiplier)
	}
	switch c.Download.SignatureMode {
	case SignatureOff, SignatureOptional, SignatureRequired:
	default:
		return fmt.Errorf("unknown signature mode %q", c.Download.SignatureMode)
	}
	switch c.Store.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis store requires a redis url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Store.Cipher {
	case CipherXChaCha, CipherAge:
	default:
		return fmt.Errorf("unknown store cipher %q", c.Store.Cipher)
	}
	return nil
}

// Addr returns host:port for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "miniapp")
	}
	return filepath.Join(os.TempDir(), "miniapp")
}

// Duration is a time.Duration read from "500ms"-style strings in env vars
// and config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
