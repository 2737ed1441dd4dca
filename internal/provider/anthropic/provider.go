package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"stockai-router/internal/config"
	"stockai-router/internal/models"
	"stockai-router/internal/provider"
)

const (
	apiVersion       = "2023-06-01"
	defaultChatModel = "claude-3-5-sonnet-20241022"

	// defaultMaxTokens is sent when the caller leaves MaxTokens unset; the
	// Messages API rejects requests without max_tokens.
	defaultMaxTokens = 4096
)

var catalog = models.ModelCatalog{
	Chat: []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
	},
}

// Provider implements Anthropic Messages API interactions.
type Provider struct {
	name         string
	apiKey       string
	envKey       string
	headers      map[string]string
	client       *http.Client
	defaultModel string
	messagesURL  string
}

// New constructs an Anthropic provider instance.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	p := &Provider{
		name:         name,
		apiKey:       cfg.APIKey,
		envKey:       cfg.APIKeyEnv,
		headers:      cfg.Headers,
		client:       client,
		defaultModel: cfg.DefaultModel,
		messagesURL:  baseURL + "/v1/messages",
	}
	if p.defaultModel == "" {
		p.defaultModel = defaultChatModel
	}
	return p, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) ValidateConfig() error {
	return provider.ValidateAPIKey(p.name, p.envKey, p.apiKey)
}

func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

func (p *Provider) DefaultEmbeddingModel() string {
	return ""
}

func (p *Provider) ListModels() models.ModelCatalog {
	return models.ModelCatalog{
		Chat:      append([]string(nil), catalog.Chat...),
		Embedding: []string{},
	}
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	payload, err := buildMessagePayload(req, p.defaultModel)
	if err != nil {
		return nil, err
	}

	var providerResp messageResponse
	if err := provider.DoJSON(ctx, p.client, p.endpoint(), payload, &providerResp); err != nil {
		return nil, err
	}

	resp := providerResp.toCanonical(payload.Model)
	resp.Provider = p.name
	return resp, nil
}

// Embed always fails: Anthropic offers no embedding API.
func (p *Provider) Embed(ctx context.Context, req models.EmbeddingRequest) (*models.EmbeddingResponse, error) {
	return nil, fmt.Errorf("%s does not support embeddings; use openai or gemini: %w", p.name, provider.ErrUnsupportedOperation)
}

func (p *Provider) endpoint() provider.Endpoint {
	headers := make(map[string]string, len(p.headers)+2)
	for k, v := range p.headers {
		headers[k] = v
	}
	headers["x-api-key"] = p.apiKey
	headers["anthropic-version"] = apiVersion

	return provider.Endpoint{
		Provider:     p.name,
		EnvKey:       p.envKey,
		URL:          p.messagesURL,
		Headers:      headers,
		ErrorMessage: errorMessage,
	}
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessagePayload hoists system messages into the top-level system field.
// When several system messages are present the last one wins.
func buildMessagePayload(req models.ChatRequest, defaultModel string) (messagePayload, error) {
	messages := make([]message, 0, len(req.Messages))
	var system string

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			system = msg.Content
		case models.RoleUser, models.RoleAssistant:
			messages = append(messages, message{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		default:
			return messagePayload{}, fmt.Errorf("anthropic provider does not support role %q", msg.Role)
		}
	}

	if len(messages) == 0 {
		return messagePayload{}, errors.New("anthropic request requires at least one user or assistant message")
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	return messagePayload{
		Model:       model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}, nil
}

type messageResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	Usage      *usageBlock    `json:"usage,omitempty"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// toCanonical always yields exactly one choice; non-text blocks are skipped
// and a reply without text becomes an empty message.
func (r messageResponse) toCanonical(requestedModel string) *models.ChatResponse {
	var text strings.Builder
	for _, block := range r.Content {
		if block.Type != "text" {
			continue
		}
		text.WriteString(block.Text)
	}

	finishReason := r.StopReason
	if finishReason == "" {
		finishReason = "stop"
	}

	modelUsed := r.Model
	if modelUsed == "" {
		modelUsed = requestedModel
	}

	var usage models.Usage
	if r.Usage != nil {
		usage.PromptTokens = r.Usage.InputTokens
		usage.CompletionTokens = r.Usage.OutputTokens
		usage.TotalTokens = r.Usage.InputTokens + r.Usage.OutputTokens
	}

	return &models.ChatResponse{
		ID: r.ID,
		Choices: []models.Choice{{
			Index:        0,
			Message:      models.Message{Role: models.RoleAssistant, Content: text.String()},
			FinishReason: finishReason,
		}},
		ModelUsed: modelUsed,
		Usage:     usage,
	}
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return ""
	}
	if apiErr.Error.Type == "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("%s (%s)", apiErr.Error.Message, apiErr.Error.Type)
}
