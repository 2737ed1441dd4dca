package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"stockai-router/internal/config"
	"stockai-router/internal/models"
	"stockai-router/internal/provider"
)

const (
	defaultChatModel      = "gemini-2.0-flash-exp"
	defaultEmbeddingModel = "text-embedding-004"
)

var catalog = models.ModelCatalog{
	Chat: []string{
		"gemini-1.5-flash",
		"gemini-1.5-flash-8b",
		"gemini-1.5-pro",
		"gemini-2.0-flash-exp",
	},
	Embedding: []string{"text-embedding-004"},
}

// Provider implements provider.Adapter for the Gemini generateContent API.
type Provider struct {
	name           string
	apiKey         string
	envKey         string
	baseURL        string
	headers        map[string]string
	client         *http.Client
	defaultModel   string
	embeddingModel string
}

// New creates a Gemini provider.
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
		baseURL:        baseURL,
		headers:        cfg.Headers,
		client:         client,
		defaultModel:   cfg.DefaultModel,
		embeddingModel: cfg.DefaultEmbeddingModel,
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
	model, payload, err := buildGeneratePayload(req, p.defaultModel)
	if err != nil {
		return nil, err
	}

	var providerResp generateResponse
	if err := provider.DoJSON(ctx, p.client, p.endpoint(model, "generateContent"), payload, &providerResp); err != nil {
		return nil, err
	}

	resp, err := providerResp.toCanonical(model)
	if err != nil {
		return nil, err
	}
	resp.Provider = p.name
	return resp, nil
}

// Embed issues one embedContent call per input text. Calls run one after
// another so a batch never bursts the per-minute rate limit.
func (p *Provider) Embed(ctx context.Context, req models.EmbeddingRequest) (*models.EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, errors.New("embedding input must not be empty")
	}

	model := req.Model
	if model == "" {
		model = p.embeddingModel
	}

	data := make([]models.Embedding, 0, len(req.Input))
	for i, text := range req.Input {
		payload := embedPayload{
			Model:   "models/" + model,
			Content: content{Parts: []part{{Text: text}}},
		}

		var providerResp embedResponse
		if err := provider.DoJSON(ctx, p.client, p.endpoint(model, "embedContent"), payload, &providerResp); err != nil {
			return nil, fmt.Errorf("embed input %d: %w", i, err)
		}
		data = append(data, models.Embedding{Index: i, Vector: providerResp.Embedding.Values})
	}

	return &models.EmbeddingResponse{
		Data:      data,
		ModelUsed: model,
		Provider:  p.name,
		Usage:     models.EmbeddingUsage{TotalTokens: approximateTokens(req.Input)},
	}, nil
}

func (p *Provider) endpoint(model, method string) provider.Endpoint {
	headers := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		headers[k] = v
	}
	headers["x-goog-api-key"] = p.apiKey

	return provider.Endpoint{
		Provider:     p.name,
		EnvKey:       p.envKey,
		URL:          fmt.Sprintf("%s/models/%s:%s", p.baseURL, url.PathEscape(model), method),
		Headers:      headers,
		ErrorMessage: errorMessage,
	}
}

// approximateTokens counts whitespace-separated words; embedContent reports no usage.
func approximateTokens(texts []string) int {
	total := 0
	for _, text := range texts {
		total += len(strings.Fields(text))
	}
	return total
}

type generatePayload struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

// buildGeneratePayload maps assistant to the vendor's "model" role and folds
// the system prompt (last one wins) into the first user message, because the
// request carries no dedicated system slot here.
func buildGeneratePayload(req models.ChatRequest, defaultModel string) (string, generatePayload, error) {
	contents := make([]content, 0, len(req.Messages))
	var system string

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			system = msg.Content
		case models.RoleUser:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		case models.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			return "", generatePayload{}, fmt.Errorf("gemini provider does not support role %q", msg.Role)
		}
	}

	if system != "" {
		prepended := false
		for i := range contents {
			if contents[i].Role == "user" {
				contents[i].Parts[0].Text = system + "\n\n" + contents[i].Parts[0].Text
				prepended = true
				break
			}
		}
		if !prepended {
			contents = append([]content{{Role: "user", Parts: []part{{Text: system}}}}, contents...)
		}
	}

	if len(contents) == 0 {
		return "", generatePayload{}, errors.New("gemini request requires at least one message")
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}

	payload := generatePayload{Contents: contents}

	cfg := generationConfig{Temperature: req.Temperature, TopP: req.TopP}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		v := *req.MaxTokens
		cfg.MaxOutputTokens = &v
	}
	if cfg.Temperature != nil || cfg.TopP != nil || cfg.MaxOutputTokens != nil {
		payload.GenerationConfig = &cfg
	}

	return model, payload, nil
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string          `json:"modelVersion"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Index        int     `json:"index"`
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

func (r generateResponse) toCanonical(requestedModel string) (*models.ChatResponse, error) {
	if len(r.Candidates) == 0 {
		reason := "none"
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			reason = r.PromptFeedback.BlockReason
		}
		return nil, fmt.Errorf("%w: gemini response had no candidates (block reason: %s)", provider.ErrMalformedResponse, reason)
	}

	choices := make([]models.Choice, 0, len(r.Candidates))
	for i, c := range r.Candidates {
		var text strings.Builder
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		choices = append(choices, models.Choice{
			Index:        i,
			Message:      models.Message{Role: models.RoleAssistant, Content: text.String()},
			FinishReason: finishReason(c.FinishReason),
		})
	}

	modelUsed := r.ModelVersion
	if modelUsed == "" {
		modelUsed = requestedModel
	}

	var usage models.Usage
	if r.UsageMetadata != nil {
		usage.PromptTokens = r.UsageMetadata.PromptTokenCount
		usage.CompletionTokens = r.UsageMetadata.CandidatesTokenCount
		usage.TotalTokens = r.UsageMetadata.TotalTokenCount
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	return &models.ChatResponse{
		Choices:   choices,
		ModelUsed: modelUsed,
		Usage:     usage,
	}, nil
}

func finishReason(reason string) string {
	switch reason {
	case "", "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

type embedPayload struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return ""
	}
	if apiErr.Error.Status == "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("%s (%s)", apiErr.Error.Message, apiErr.Error.Status)
}
