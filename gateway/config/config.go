package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RateLimitConfig struct {
	ID                string         `yaml:"id"`
	RequestsPerMinute float64        `yaml:"requestsPerMinute"`
	RatePerSecond     float64        `yaml:"ratePerSecond"`
	Burst             int            `yaml:"burst"`
	DefaultTokens     int            `yaml:"defaultTokens"`
	Tokens            map[string]int `yaml:"tokens"`
}

type ObservabilityConfig struct {
	ServiceName  string `yaml:"serviceName"`
	Metrics      bool   `yaml:"metrics"`
	Tracing      bool   `yaml:"tracing"`
	LogRequests  bool   `yaml:"logRequests"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
}

// LoggingConfig controls the daemon's slog output. When File is set the JSON
// stream is also written to a rotated file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// IndexerConfig selects the event history store. Driver is sqlite or postgres.
type IndexerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
}

// WebhookConfig forwards committed event batches to an external endpoint.
type WebhookConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Secret      string `yaml:"secret"`
	MaxAttempts int           `yaml:"maxAttempts"`
	QueueSize   int           `yaml:"queueSize"`
	Timeout     time.Duration `yaml:"timeout"`
}

// GRPCConfig enables the staking gRPC listener when Listen is set. It shares
// the HTTP listener's TLS material and token settings.
type GRPCConfig struct {
	Listen string `yaml:"listen"`
}

// Config captures the runtime settings for vestakingd.
type Config struct {
	ListenAddress string              `yaml:"listen"`
	NodeConfig    string              `yaml:"nodeConfig"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
	Indexer       IndexerConfig       `yaml:"indexer"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	GRPC          GRPCConfig          `yaml:"grpc"`
	Auth          AuthConfig          `yaml:"auth"`
	Security      SecurityConfig      `yaml:"security"`
	CORS          CORSConfig          `yaml:"cors"`
}

type AuthConfig struct {
	Enabled           bool          `yaml:"enabled"`
	HMACSecret        string        `yaml:"hmacSecret"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	OptionalPaths     []string      `yaml:"optionalPaths"`
	AllowAnonymous    bool          `yaml:"allowAnonymous"`
	ClockSkew         time.Duration `yaml:"clockSkew"`
	allowAnonymousSet bool          `yaml:"-"`
	enabledSet        bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool         `yaml:"enabled"`
		HMACSecret     string        `yaml:"hmacSecret"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		OptionalPaths  []string      `yaml:"optionalPaths"`
		AllowAnonymous *bool         `yaml:"allowAnonymous"`
		ClockSkew      time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.enabledSet = raw.Enabled != nil
	a.Enabled = raw.Enabled != nil && *raw.Enabled
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.OptionalPaths = raw.OptionalPaths
	a.allowAnonymousSet = raw.AllowAnonymous != nil
	a.AllowAnonymous = raw.AllowAnonymous != nil && *raw.AllowAnonymous
	a.ClockSkew = raw.ClockSkew
	return nil
}

type SecurityConfig struct {
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

var (
	ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set when TLS is configured")
	ErrAuthSecretMissing        = errors.New("auth.hmacSecret is required when auth is enabled")
)

func defaults() Config {
	return Config{
		ListenAddress: ":8080",
		NodeConfig:    "config.toml",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Observability: ObservabilityConfig{
			ServiceName: "vestakingd",
			Metrics:     true,
			Tracing:     true,
			LogRequests: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Indexer: IndexerConfig{
			Driver: "sqlite",
			DSN:    "file::memory:?cache=shared",
		},
		Auth: AuthConfig{
			Enabled:    true,
			ClockSkew:  2 * time.Minute,
			enabledSet: true,
		},
	}
}

// Load reads the YAML configuration at path. An empty path yields the defaults,
// which still require an auth secret to validate.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	cfg.NodeConfig = strings.TrimSpace(cfg.NodeConfig)
	if !cfg.Auth.enabledSet && !cfg.Security.enabled() {
		cfg.Auth.Enabled = true
		cfg.Auth.enabledSet = true
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	if !cfg.Auth.allowAnonymousSet {
		cfg.Auth.AllowAnonymous = false
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	cfg.Webhook.Endpoint = strings.TrimSpace(cfg.Webhook.Endpoint)
	cfg.Webhook.Secret = strings.TrimSpace(cfg.Webhook.Secret)
	cfg.GRPC.Listen = strings.TrimSpace(cfg.GRPC.Listen)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "vestakingd"
	}
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.NodeConfig == "" {
		return fmt.Errorf("nodeConfig is required")
	}
	if cfg.Security.enabled() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if (cfg.Security.TLSCertFile == "") != (cfg.Security.TLSKeyFile == "") {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return ErrAuthSecretMissing
	}
	if cfg.Auth.AllowAnonymous && !cfg.Auth.allowAnonymousSet {
		return fmt.Errorf("auth.allowAnonymous must be explicitly set to true to enable anonymous access")
	}
	trimmed := make([]string, len(cfg.Auth.OptionalPaths))
	for i, path := range cfg.Auth.OptionalPaths {
		trimmedPath := strings.TrimSpace(path)
		if trimmedPath == "" {
			return fmt.Errorf("auth.optionalPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(trimmedPath, "/") {
			return fmt.Errorf("auth.optionalPaths[%d] must start with '/'", i)
		}
		trimmed[i] = trimmedPath
	}
	cfg.Auth.OptionalPaths = trimmed
	if cfg.Auth.Enabled && cfg.Auth.AllowAnonymous && len(cfg.Auth.OptionalPaths) == 0 {
		return fmt.Errorf("auth.optionalPaths must list at least one entry when auth.allowAnonymous is true")
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for i, limit := range cfg.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rateLimits[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if limit.RatePerSecond < 0 || limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rateLimits[%d]: rates and burst must not be negative", i)
		}
		cfg.RateLimits[i].ID = id
	}
	if cfg.Indexer.Enabled {
		switch cfg.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer.driver %q is not supported", cfg.Indexer.Driver)
		}
		if cfg.Indexer.DSN == "" {
			return fmt.Errorf("indexer.dsn is required when the indexer is enabled")
		}
	}
	if cfg.Webhook.Endpoint != "" {
		parsed, err := url.Parse(cfg.Webhook.Endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("webhook.endpoint must be an absolute http(s) URL")
		}
		if cfg.Webhook.Secret == "" {
			return fmt.Errorf("webhook.secret is required when webhook.endpoint is set")
		}
		if cfg.Webhook.Timeout < 0 {
			return fmt.Errorf("webhook.timeout must not be negative")
		}
	}
	if cfg.GRPC.Listen != "" && cfg.GRPC.Listen == cfg.ListenAddress {
		return fmt.Errorf("grpc.listen must differ from listen")
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", cfg.Logging.Level)
	}
	return nil
}

func (s SecurityConfig) enabled() bool {
	return strings.TrimSpace(s.TLSCertFile) != "" || strings.TrimSpace(s.TLSKeyFile) != ""
}

// TLSEnabled reports whether the HTTP listener should serve TLS.
func (cfg Config) TLSEnabled() bool {
	return cfg.Security.enabled()
}

// RateLimit returns the limit configured under id.
func (cfg Config) RateLimit(id string) (RateLimitConfig, bool) {
	for _, limit := range cfg.RateLimits {
		if limit.ID == id {
			return limit, true
		}
	}
	return RateLimitConfig{}, false
}
