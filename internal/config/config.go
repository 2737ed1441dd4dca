package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names understood by the factory.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// KnownProviders lists the provider names in registration order.
var KnownProviders = []string{ProviderOpenAI, ProviderGemini, ProviderAnthropic}

const (
	defaultPort        = 8080
	defaultHTTPTimeout = 60 * time.Second
	defaultCacheTTL    = 24 * time.Hour
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server          ServerConfig    `yaml:"server"`
	Logging         LoggingConfig   `yaml:"logging"`
	DefaultProvider string          `yaml:"default_provider"`
	HTTPTimeout     time.Duration   `yaml:"http_timeout"`
	Providers       ProvidersConfig `yaml:"providers"`
	Cache           CacheConfig     `yaml:"cache"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig selects the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProvidersConfig catalogues the upstream AI vendors.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Gemini    ProviderConfig `yaml:"gemini"`
	Anthropic ProviderConfig `yaml:"anthropic"`
}

// ByName returns the provider block for a known provider name.
func (p ProvidersConfig) ByName(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderOpenAI:
		return p.OpenAI, true
	case ProviderGemini:
		return p.Gemini, true
	case ProviderAnthropic:
		return p.Anthropic, true
	}
	return ProviderConfig{}, false
}

func (p *ProvidersConfig) ptr(name string) *ProviderConfig {
	switch name {
	case ProviderOpenAI:
		return &p.OpenAI
	case ProviderGemini:
		return &p.Gemini
	case ProviderAnthropic:
		return &p.Anthropic
	}
	return nil
}

// ProviderConfig captures authentication and routing info for a provider.
// APIKey is normally filled from the environment variable named by APIKeyEnv.
type ProviderConfig struct {
	Disabled              bool    `yaml:"disabled"`
	APIKey                string  `yaml:"api_key"`
	APIKeyEnv             string  `yaml:"api_key_env"`
	BaseURL               string  `yaml:"base_url"`
	DefaultModel          string  `yaml:"default_model"`
	DefaultEmbeddingModel string  `yaml:"default_embedding_model"`
	Headers               Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// CacheConfig configures the optional Redis embedding cache.
type CacheConfig struct {
	RedisAddr   string        `yaml:"redis_addr"`
	Password    string        `yaml:"-"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:          ServerConfig{Port: defaultPort},
		Logging:         LoggingConfig{Level: "info", Format: "text"},
		DefaultProvider: ProviderOpenAI,
		HTTPTimeout:     defaultHTTPTimeout,
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKeyEnv:             "OPENAI_API_KEY",
				BaseURL:               "https://api.openai.com/v1",
				DefaultModel:          "gpt-4o",
				DefaultEmbeddingModel: "text-embedding-ada-002",
			},
			Gemini: ProviderConfig{
				APIKeyEnv:             "GEMINI_API_KEY",
				BaseURL:               "https://generativelanguage.googleapis.com/v1beta",
				DefaultModel:          "gemini-2.0-flash-exp",
				DefaultEmbeddingModel: "text-embedding-004",
			},
			Anthropic: ProviderConfig{
				APIKeyEnv:    "ANTHROPIC_API_KEY",
				BaseURL:      "https://api.anthropic.com",
				DefaultModel: "claude-3-5-sonnet-20241022",
			},
		},
		Cache: CacheConfig{
			PasswordEnv: "REDIS_PASSWORD",
			TTL:         defaultCacheTTL,
		},
	}
}

// Load reads YAML configuration on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
// Missing API keys are not errors here: an unconfigured provider is simply
// left out of the registry.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers.ByName(c.DefaultProvider); !ok {
			return fmt.Errorf("default_provider %q must be one of %s", c.DefaultProvider, strings.Join(KnownProviders, ", "))
		}
	}

	if c.HTTPTimeout < 0 {
		return errors.New("http_timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	for _, name := range KnownProviders {
		p, _ := c.Providers.ByName(name)
		if err := validateProvider(name, p); err != nil {
			return err
		}
	}

	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	if c.Cache.DB < 0 {
		return fmt.Errorf("cache.db must not be negative, got %d", c.Cache.DB)
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if provider.Disabled {
		return nil
	}
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	u, err := url.Parse(provider.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("provider %s: base_url %q must be an absolute URL", name, provider.BaseURL)
	}
	if strings.TrimSpace(provider.DefaultModel) == "" {
		return fmt.Errorf("provider %s: default_model must be provided", name)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
