// Package dispatch is the single entry point for issuing AI requests. It picks
// the adapter for each call, folds legacy request shapes into messages and
// records logs and metrics around the provider call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockai-router/internal/cache"
	"stockai-router/internal/metrics"
	"stockai-router/internal/models"
	"stockai-router/internal/provider"
)

// ErrInvalidRequest indicates a request with nothing to send.
var ErrInvalidRequest = errors.New("invalid request")

// EmbeddingCache stores embedding responses between calls.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) (*models.EmbeddingResponse, bool, error)
	Set(ctx context.Context, key string, resp *models.EmbeddingResponse) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEmbeddingCache enables caching of embedding responses.
func WithEmbeddingCache(c EmbeddingCache) Option {
	return func(d *Dispatcher) {
		d.cache = c
	}
}

// Dispatcher routes canonical requests to registered adapters.
type Dispatcher struct {
	registry *provider.Registry
	cache    EmbeddingCache
}

// New constructs a dispatcher backed by the provided registry.
func New(registry *provider.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SubmitChat sends a chat request to the override provider, or to the current
// provider when no override is set. The override applies to this call only;
// the registry's current provider is left as it was whether the call succeeds
// or fails. Adapter errors are returned unchanged.
func (d *Dispatcher) SubmitChat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	adapter, err := d.registry.Resolve(req.ProviderOverride)
	if err != nil {
		return nil, err
	}

	label := req.RequestLabel
	prepared, err := normalizeChatRequest(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID, "provider", adapter.Name(), "operation", metrics.OperationChat)
	if label != "" {
		logger = logger.With("label", label)
	}
	logger.Info("dispatching chat request", "model", prepared.Model, "messages", len(prepared.Messages))

	metrics.ActiveDispatches.Inc()
	defer metrics.ActiveDispatches.Dec()

	start := time.Now()
	resp, err := adapter.Chat(ctx, prepared)
	elapsed := time.Since(start)
	metrics.ObserveDispatch(adapter.Name(), metrics.OperationChat, err, elapsed)
	if err != nil {
		logger.Error("chat request failed", "err", err, "elapsed", elapsed)
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %s returned no chat response", provider.ErrMalformedResponse, adapter.Name())
	}

	if resp.Provider == "" {
		resp.Provider = adapter.Name()
	}
	metrics.RecordTokens(adapter.Name(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	logger.Info("chat request completed",
		"model", resp.ModelUsed,
		"total_tokens", resp.Usage.TotalTokens,
		"elapsed", elapsed,
	)
	return resp, nil
}

// SubmitEmbedding sends an embedding request using the same provider
// resolution as SubmitChat. When a cache is configured, providers that
// advertise embedding models are looked up before the call and stored after
// it. Cache failures are logged and otherwise ignored.
func (d *Dispatcher) SubmitEmbedding(ctx context.Context, req models.EmbeddingRequest) (*models.EmbeddingResponse, error) {
	adapter, err := d.registry.Resolve(req.ProviderOverride)
	if err != nil {
		return nil, err
	}

	if len(req.Input) == 0 {
		return nil, fmt.Errorf("%w: embedding input must not be empty", ErrInvalidRequest)
	}

	label := req.RequestLabel
	prepared := models.EmbeddingRequest{
		Input: append([]string(nil), req.Input...),
		Model: req.Model,
	}

	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID, "provider", adapter.Name(), "operation", metrics.OperationEmbedding)
	if label != "" {
		logger = logger.With("label", label)
	}

	// The key names the model Embed will call.
	var cacheKey string
	model := prepared.Model
	if model == "" {
		model = adapter.DefaultEmbeddingModel()
	}
	if d.cache != nil && model != "" && adapter.ListModels().SupportsEmbeddings() {
		cacheKey = cache.Key(adapter.Name(), model, prepared.Input)

		cached, ok, err := d.cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			metrics.RecordCacheLookup("error")
			logger.Warn("embedding cache lookup failed", "err", err)
		case ok:
			metrics.RecordCacheLookup("hit")
			metrics.ObserveCacheHit(adapter.Name())
			logger.Info("embedding served from cache", "inputs", len(prepared.Input))
			return cached, nil
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	logger.Info("dispatching embedding request", "model", prepared.Model, "inputs", len(prepared.Input))

	metrics.ActiveDispatches.Inc()
	defer metrics.ActiveDispatches.Dec()

	start := time.Now()
	resp, err := adapter.Embed(ctx, prepared)
	elapsed := time.Since(start)
	metrics.ObserveDispatch(adapter.Name(), metrics.OperationEmbedding, err, elapsed)
	if err != nil {
		logger.Error("embedding request failed", "err", err, "elapsed", elapsed)
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %s returned no embedding response", provider.ErrMalformedResponse, adapter.Name())
	}

	if resp.Provider == "" {
		resp.Provider = adapter.Name()
	}
	metrics.RecordTokens(adapter.Name(), resp.Usage.TotalTokens, 0)
	logger.Info("embedding request completed",
		"model", resp.ModelUsed,
		"vectors", len(resp.Data),
		"elapsed", elapsed,
	)

	if cacheKey != "" {
		if err := d.cache.Set(ctx, cacheKey, resp); err != nil {
			logger.Warn("embedding cache store failed", "err", err)
		}
	}
	return resp, nil
}

// ListProviders returns registered provider names in registration order.
func (d *Dispatcher) ListProviders() []string {
	return d.registry.List()
}

// SwitchProvider permanently changes the current provider.
func (d *Dispatcher) SwitchProvider(name string) error {
	if err := d.registry.SetCurrent(strings.TrimSpace(name)); err != nil {
		return err
	}
	metrics.ProviderSwitchesTotal.Inc()
	return nil
}

// CurrentProvider returns the name requests go to when no override is given.
func (d *Dispatcher) CurrentProvider() string {
	return d.registry.CurrentName()
}

// DefaultProvider returns the fallback provider name.
func (d *Dispatcher) DefaultProvider() string {
	return d.registry.DefaultName()
}

// ProviderInfo describes one registered provider.
type ProviderInfo struct {
	Name         string
	DefaultModel string
	Models       models.ModelCatalog
}

// Catalog describes every registered provider in registration order.
func (d *Dispatcher) Catalog() []ProviderInfo {
	records := d.registry.Records()
	out := make([]ProviderInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, ProviderInfo{
			Name:         rec.Name,
			DefaultModel: rec.DefaultModel,
			Models:       rec.Adapter.ListModels(),
		})
	}
	return out
}

// normalizeChatRequest folds the legacy Input field and the System/User
// shorthand into Messages and drops the routing-only fields. Explicit
// Messages take precedence over Input; the shorthand is used only when both
// are empty.
func normalizeChatRequest(req models.ChatRequest) (models.ChatRequest, error) {
	messages := req.Messages
	if len(messages) == 0 {
		messages = req.Input
	}
	if len(messages) == 0 {
		if req.System != "" {
			messages = append(messages, models.Message{Role: models.RoleSystem, Content: req.System})
		}
		if req.User != "" {
			messages = append(messages, models.Message{Role: models.RoleUser, Content: req.User})
		}
	}
	if len(messages) == 0 {
		return models.ChatRequest{}, fmt.Errorf("%w: chat request requires at least one message", ErrInvalidRequest)
	}

	for i, msg := range messages {
		if !msg.Role.Valid() {
			return models.ChatRequest{}, fmt.Errorf("%w: message %d has unsupported role %q", ErrInvalidRequest, i, msg.Role)
		}
	}

	return models.ChatRequest{
		Messages:         append([]models.Message(nil), messages...),
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}, nil
}
