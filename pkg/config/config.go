package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

// Config captures gateway-level configuration knobs. Feature packages (auth,
// ratelimit, dispatch, providers) pull from these nested structs.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Auth      AuthConfig      `mapstructure:"auth" json:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" json:"dispatch"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	Storage   StorageConfig   `mapstructure:"storage" json:"storage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address     string        `mapstructure:"address" json:"address"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// AuthConfig holds the admin credential plus token acceptance windows.
type AuthConfig struct {
	AdminSecret string        `mapstructure:"admin_secret" json:"admin_secret"`
	AdminIssuer string        `mapstructure:"admin_issuer" json:"admin_issuer"`
	TokenMaxAge time.Duration `mapstructure:"token_max_age" json:"token_max_age"`
	// KeyringKey seals per-service signing secrets at rest, hex encoded.
	KeyringKey string `mapstructure:"keyring_key" json:"keyring_key"`
}

// RateLimitConfig scopes the fixed-window admission counters.
type RateLimitConfig struct {
	Limit        int           `mapstructure:"limit" json:"limit"`
	Window       time.Duration `mapstructure:"window" json:"window"`
	StoreTimeout time.Duration `mapstructure:"store_timeout" json:"store_timeout"`
	// OnStoreError is "closed" or "open".
	OnStoreError string `mapstructure:"on_store_error" json:"on_store_error"`
	RedisURL     string `mapstructure:"redis_url" json:"redis_url"`
}

// DispatchConfig governs retry behavior for provider sends.
type DispatchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" json:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" json:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" json:"backoff_max"`
}

// ProvidersConfig selects default providers per channel and carries
// provider credentials.
type ProvidersConfig struct {
	SMSDefault   string        `mapstructure:"sms_default" json:"sms_default"`
	EmailDefault string        `mapstructure:"email_default" json:"email_default"`
	SNS          SNSConfig     `mapstructure:"sns" json:"sns"`
	SES          SESConfig     `mapstructure:"ses" json:"ses"`
	Twilio       TwilioConfig  `mapstructure:"twilio" json:"twilio"`
	Console      ConsoleConfig `mapstructure:"console" json:"console"`
}

// SNSConfig configures the AWS SNS SMS adapter.
type SNSConfig struct {
	Region    string `mapstructure:"region" json:"region"`
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
	SenderID  string `mapstructure:"sender_id" json:"sender_id"`
	DryRun    bool   `mapstructure:"dry_run" json:"dry_run"`
}

// SESConfig configures the AWS SES email adapter.
type SESConfig struct {
	Region string `mapstructure:"region" json:"region"`
	Source string `mapstructure:"source" json:"source"`
}

// TwilioConfig configures the Twilio SMS adapter.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid" json:"account_sid"`
	AuthToken  string `mapstructure:"auth_token" json:"auth_token"`
	From       string `mapstructure:"from" json:"from"`
}

// ConsoleConfig enables the development adapter that logs instead of sending.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// StorageConfig picks the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `mapstructure:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Address:     ":8080",
			ReadTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			AdminIssuer: "notify-admin",
			TokenMaxAge: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Limit:        5,
			Window:       30 * time.Second,
			StoreTimeout: 3 * time.Second,
			OnStoreError: "closed",
		},
		Dispatch: DispatchConfig{
			MaxAttempts:    3,
			AttemptTimeout: 10 * time.Second,
			BackoffBase:    100 * time.Millisecond,
			BackoffMax:     5 * time.Second,
		},
		Providers: ProvidersConfig{
			SMSDefault:   "console",
			EmailDefault: "console",
			Console:      ConsoleConfig{Enabled: true},
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if c.Auth.AdminSecret == "" {
		return errors.New("auth.admin_secret is required")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be > 0")
	}
	switch c.RateLimit.OnStoreError {
	case "closed", "open":
	default:
		return fmt.Errorf("rate_limit.on_store_error must be closed or open, got %q", c.RateLimit.OnStoreError)
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.max_attempts must be > 0")
	}
	if c.Dispatch.AttemptTimeout <= 0 {
		return fmt.Errorf("dispatch.attempt_timeout must be > 0")
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be memory or sqlite, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		return errors.New("storage.dsn is required for sqlite")
	}
	return nil
}

// Load decodes arbitrary input (struct, map, cfg struct) using cfgx helpers.
// While cfgx.Build still returns zero values, we fallback to a lightweight
// decoder to keep smoke tests meaningful. Once cfgx is fully implemented we
// can drop the fallback.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := cfgx.Build(input, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}

	if isZero(cfg) {
		if err := decodeFallback(input, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if c.Auth.AdminIssuer == "" {
		c.Auth.AdminIssuer = defaults.Auth.AdminIssuer
	}
	if c.Auth.TokenMaxAge == 0 {
		c.Auth.TokenMaxAge = defaults.Auth.TokenMaxAge
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = defaults.RateLimit.Limit
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = defaults.RateLimit.Window
	}
	if c.RateLimit.StoreTimeout == 0 {
		c.RateLimit.StoreTimeout = defaults.RateLimit.StoreTimeout
	}
	if c.RateLimit.OnStoreError == "" {
		c.RateLimit.OnStoreError = defaults.RateLimit.OnStoreError
	}
	if c.Dispatch.MaxAttempts == 0 {
		c.Dispatch.MaxAttempts = defaults.Dispatch.MaxAttempts
	}
	if c.Dispatch.AttemptTimeout == 0 {
		c.Dispatch.AttemptTimeout = defaults.Dispatch.AttemptTimeout
	}
	if c.Dispatch.BackoffBase == 0 {
		c.Dispatch.BackoffBase = defaults.Dispatch.BackoffBase
	}
	if c.Dispatch.BackoffMax == 0 {
		c.Dispatch.BackoffMax = defaults.Dispatch.BackoffMax
	}
	if c.Providers.SMSDefault == "" {
		c.Providers.SMSDefault = defaults.Providers.SMSDefault
	}
	if c.Providers.EmailDefault == "" {
		c.Providers.EmailDefault = defaults.Providers.EmailDefault
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	return c
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, cfg)
}
