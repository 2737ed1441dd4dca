package openai

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
	defaultChatModel      = "gpt-4o"
	defaultEmbeddingModel = "text-embedding-ada-002"
)

// reasoningMarkers identify models that take max_completion_tokens instead of max_tokens.
var reasoningMarkers = []string{"o1", "o3"}

var catalog = models.ModelCatalog{
	Chat: []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-4",
		"gpt-3.5-turbo",
		"o1",
		"o1-mini",
		"o3-mini",
	},
	Embedding: []string{"text-embedding-ada-002", "text-embedding-3-small", "text-embedding-3-large"},
}

// Provider implements provider.Adapter for OpenAI-compatible APIs.
type Provider struct {
	name           string
	apiKey         string
	envKey         string
	headers        map[string]string
	client         *http.Client
	defaultModel   string
	embeddingModel string
	chatURL        string
	embeddingsURL  string
}

// New creates a new OpenAI provider.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	p := &Provider{
		name:           name,
		apiKey:         cfg.APIKey,
		envKey:         cfg.APIKeyEnv,
		headers:        cfg.Headers,
		client:         client,
		defaultModel:   cfg.DefaultModel,
		embeddingModel: cfg.DefaultEmbeddingModel,
		chatURL:        baseURL + "/chat/completions",
		embeddingsURL:  baseURL + "/embeddings",
	}
	if p.defaultModel == "" {
		p.defaultModel = defaultChatModel
	}
	if p.embeddingModel == "" {
		p.embeddingModel = defaultEmbeddingModel
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
	return p.embeddingModel
}

func (p *Provider) ListModels() models.ModelCatalog {
	return models.ModelCatalog{
		Chat:      append([]string(nil), catalog.Chat...),
		Embedding: append([]string(nil), catalog.Embedding...),
	}
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	payload, err := buildChatPayload(req, p.defaultModel)
	if err != nil {
		return nil, err
	}

	var providerResp chatResponse
	if err := provider.DoJSON(ctx, p.client, p.endpoint(p.chatURL), payload, &providerResp); err != nil {
		return nil, err
	}

	resp, err := providerResp.toCanonical(payload.Model)
	if err != nil {
		return nil, err
	}
	resp.Provider = p.name
	return resp, nil
}

func (p *Provider) Embed(ctx context.Context, req models.EmbeddingRequest) (*models.EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, errors.New("embedding input must not be empty")
	}

	model := req.Model
	if model == "" {
		model = p.embeddingModel
	}

	payload := embeddingPayload{Model: model, Input: req.Input}

	var providerResp embeddingResponse
	if err := provider.DoJSON(ctx, p.client, p.endpoint(p.embeddingsURL), payload, &providerResp); err != nil {
		return nil, err
	}

	resp := providerResp.toCanonical(model)
	resp.Provider = p.name
	return resp, nil
}

func (p *Provider) endpoint(url string) provider.Endpoint {
	headers := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + p.apiKey

	return provider.Endpoint{
		Provider:     p.name,
		EnvKey:       p.envKey,
		URL:          url,
		Headers:      headers,
		ErrorMessage: errorMessage,
	}
}

type chatPayload struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	FrequencyPenalty    *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64        `json:"presence_penalty,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// usesCompletionTokenLimit reports whether model is a reasoning model.
func usesCompletionTokenLimit(model string) bool {
	for _, marker := range reasoningMarkers {
		if strings.Contains(model, marker) {
			return true
		}
	}
	return false
}

func buildChatPayload(req models.ChatRequest, defaultModel string) (chatPayload, error) {
	if len(req.Messages) == 0 {
		return chatPayload{}, errors.New("openai request requires at least one message")
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if !msg.Role.Valid() {
			return chatPayload{}, fmt.Errorf("openai provider does not support role %q", msg.Role)
		}
		messages = append(messages, openAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}

	payload := chatPayload{
		Model:            model,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		v := *req.MaxTokens
		if usesCompletionTokenLimit(model) {
			payload.MaxCompletionTokens = &v
		} else {
			payload.MaxTokens = &v
		}
	}

	return payload, nil
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *usageBlock  `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// responseMessage tolerates a null content, which OpenAI sends for refusals and tool calls.
type responseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (r chatResponse) toCanonical(requestedModel string) (*models.ChatResponse, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai response did not include choices", provider.ErrMalformedResponse)
	}

	choices := make([]models.Choice, 0, len(r.Choices))
	for _, choice := range r.Choices {
		role := models.Role(choice.Message.Role)
		if role == "" {
			role = models.RoleAssistant
		}
		content := ""
		if choice.Message.Content != nil {
			content = *choice.Message.Content
		}
		choices = append(choices, models.Choice{
			Index:        choice.Index,
			Message:      models.Message{Role: role, Content: content},
			FinishReason: choice.FinishReason,
		})
	}

	modelUsed := r.Model
	if modelUsed == "" {
		modelUsed = requestedModel
	}

	usage := models.Usage{
		PromptTokens:     valueOrZero(r.Usage, func(u *usageBlock) int { return u.PromptTokens }),
		CompletionTokens: valueOrZero(r.Usage, func(u *usageBlock) int { return u.CompletionTokens }),
		TotalTokens:      valueOrZero(r.Usage, func(u *usageBlock) int { return u.TotalTokens }),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &models.ChatResponse{
		ID:        r.ID,
		Choices:   choices,
		ModelUsed: modelUsed,
		Usage:     usage,
	}, nil
}

type embeddingPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage *usageBlock `json:"usage,omitempty"`
}

func (r embeddingResponse) toCanonical(requestedModel string) *models.EmbeddingResponse {
	data := make([]models.Embedding, 0, len(r.Data))
	for _, item := range r.Data {
		data = append(data, models.Embedding{Index: item.Index, Vector: item.Embedding})
	}

	modelUsed := r.Model
	if modelUsed == "" {
		modelUsed = requestedModel
	}

	return &models.EmbeddingResponse{
		Data:      data,
		ModelUsed: modelUsed,
		Usage: models.EmbeddingUsage{
			TotalTokens: valueOrZero(r.Usage, func(u *usageBlock) int { return u.TotalTokens }),
		},
	}
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
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

func valueOrZero[T any, R any](ptr *T, getter func(*T) R) R {
	var zero R
	if ptr == nil {
		return zero
	}
	return getter(ptr)
}
