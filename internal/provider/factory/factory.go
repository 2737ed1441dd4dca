package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"stockai-router/internal/config"
	"stockai-router/internal/provider"
	anthropicProvider "stockai-router/internal/provider/anthropic"
	geminiProvider "stockai-router/internal/provider/gemini"
	openaiProvider "stockai-router/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// constructor builds an adapter for one vendor.
type constructor func(name string, cfg config.ProviderConfig, client *http.Client) (provider.Adapter, error)

var constructors = map[string]constructor{
	config.ProviderOpenAI: func(name string, cfg config.ProviderConfig, client *http.Client) (provider.Adapter, error) {
		return openaiProvider.New(name, cfg, client)
	},
	config.ProviderGemini: func(name string, cfg config.ProviderConfig, client *http.Client) (provider.Adapter, error) {
		return geminiProvider.New(name, cfg, client)
	},
	config.ProviderAnthropic: func(name string, cfg config.ProviderConfig, client *http.Client) (provider.Adapter, error) {
		return anthropicProvider.New(name, cfg, client)
	},
}

// Unavailable names a provider that was left out of the registry.
type Unavailable struct {
	Name string
	Err  error
}

// Summary reports the outcome of RegisterConfiguredProviders.
type Summary struct {
	Registered  []string
	Unavailable []Unavailable
	Selected    string
}

// RegisterConfiguredProviders constructs providers from configuration and stores them in the registry.
//
// A provider whose credentials are missing or still placeholders is logged
// and skipped. The configured default provider is selected when it
// registered, otherwise the first available one. Ending with no providers at
// all is not an error.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) (Summary, error) {
	var summary Summary
	if registry == nil {
		return summary, errors.New("registry must not be nil")
	}

	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}

	for _, name := range config.KnownProviders {
		providerCfg, _ := cfg.Providers.ByName(name)
		if providerCfg.Disabled {
			slog.Debug("provider disabled in configuration", "provider", name)
			continue
		}

		adapter, err := constructors[name](name, providerCfg, newHTTPClient(timeout))
		if err != nil {
			return summary, fmt.Errorf("initialise %s provider: %w", name, err)
		}

		if err := registry.Register(name, adapter); err != nil {
			if errors.Is(err, provider.ErrConfiguration) {
				slog.Warn("provider not available", "provider", name, "err", err)
				summary.Unavailable = append(summary.Unavailable, Unavailable{Name: name, Err: err})
				continue
			}
			return summary, err
		}
		summary.Registered = append(summary.Registered, name)
	}

	if len(summary.Registered) == 0 {
		slog.Warn("no AI providers available; set at least one API key")
		return summary, nil
	}

	selected := summary.Registered[0]
	if slices.Contains(summary.Registered, cfg.DefaultProvider) {
		selected = cfg.DefaultProvider
	} else if cfg.DefaultProvider != "" {
		slog.Warn("default provider not available, falling back",
			"requested", cfg.DefaultProvider,
			"selected", selected,
		)
	}

	if err := registry.SetDefault(selected); err != nil {
		return summary, err
	}
	if err := registry.SetCurrent(selected); err != nil {
		return summary, err
	}
	summary.Selected = selected

	slog.Info("AI providers initialised", "providers", summary.Registered, "current", selected)
	return summary, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
