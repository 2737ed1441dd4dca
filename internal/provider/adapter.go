package provider

import (
	"context"
	"strings"

	"stockai-router/internal/models"
)

// Adapter translates canonical requests into one vendor's API and normalises
// the vendor response back into the canonical shape.
type Adapter interface {
	Name() string

	// ValidateConfig fails with a ConfigurationError when the credential is
	// missing or still a placeholder. Called once at registration.
	ValidateConfig() error

	DefaultModel() string

	// DefaultEmbeddingModel is the model Embed uses when the request names
	// none, or "" when the vendor has no embedding API.
	DefaultEmbeddingModel() string

	ListModels() models.ModelCatalog

	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)

	// Embed fails with ErrUnsupportedOperation, without touching the
	// network, when the vendor has no embedding API.
	Embed(ctx context.Context, req models.EmbeddingRequest) (*models.EmbeddingResponse, error)
}

var placeholderKeys = map[string]struct{}{
	"changeme":      {},
	"your_key_here": {},
	"your-api-key":  {},
	"xxx":           {},
	"todo":          {},
}

// ValidateAPIKey returns a ConfigurationError when key is empty or a placeholder.
func ValidateAPIKey(providerName, envKey, key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return &ConfigurationError{Provider: providerName, EnvKey: envKey, Reason: "api key is not set"}
	}
	if IsPlaceholderKey(trimmed) {
		return &ConfigurationError{Provider: providerName, EnvKey: envKey, Reason: "api key is a placeholder value"}
	}
	return nil
}

// IsPlaceholderKey reports values such as YOUR_GEMINI_API_KEY_HERE or <api-key>.
func IsPlaceholderKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if _, ok := placeholderKeys[lower]; ok {
		return true
	}
	if strings.HasPrefix(lower, "<") && strings.HasSuffix(lower, ">") {
		return true
	}
	return strings.HasPrefix(lower, "your_") && strings.HasSuffix(lower, "_here")
}
