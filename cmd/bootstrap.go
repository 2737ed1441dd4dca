package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"stockai-router/internal/config"
	"stockai-router/internal/console"
	"stockai-router/internal/dispatch"
	"stockai-router/internal/provider"
	providerfactory "stockai-router/internal/provider/factory"
)

// runtime bundles what every command needs after startup.
type runtime struct {
	cfg      config.Config
	registry *provider.Registry
}

// bootstrap loads configuration, installs the logger and registers every
// provider whose credentials are present. Skipped providers are reported on
// the console.
func bootstrap(cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(os.Stderr, cfg.Logging))

	registry := provider.NewRegistry()
	summary, err := providerfactory.RegisterConfiguredProviders(cfg, registry)
	if err != nil {
		return nil, err
	}
	for _, skipped := range summary.Unavailable {
		console.PrintProviderUnavailable(os.Stderr, skipped.Name, skipped.Err)
	}

	return &runtime{cfg: cfg, registry: registry}, nil
}

func (rt *runtime) dispatcher(opts ...dispatch.Option) *dispatch.Dispatcher {
	return dispatch.New(rt.registry, opts...)
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func consoleProviders(d *dispatch.Dispatcher) []console.Provider {
	current := d.CurrentProvider()
	def := d.DefaultProvider()

	catalog := d.Catalog()
	out := make([]console.Provider, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, console.Provider{
			Name:            info.Name,
			DefaultModel:    info.DefaultModel,
			ChatModels:      info.Models.Chat,
			EmbeddingModels: info.Models.Embedding,
			Current:         info.Name == current,
			Default:         info.Name == def,
		})
	}
	return out
}
