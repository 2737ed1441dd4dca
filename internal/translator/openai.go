package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stockai-router/internal/models"
)

var (
	errConflictingField = errors.New("conflicting field values")
	errInvalidRole      = errors.New("invalid role")
	errInvalidContent   = errors.New("invalid message content")
	errInvalidInput     = errors.New("invalid embedding input")
)

// ChatRequest models the POST /v1/chat payload. Besides OpenAI-style
// messages it accepts the legacy input field, the system/user shorthand and
// camelCase spellings of the sampling options.
type ChatRequest struct {
	Model            string
	Messages         []ChatMessage
	Input            []ChatMessage
	System           string
	User             string
	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Provider         string
	Label            string
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model            string        `json:"model"`
		Messages         []ChatMessage `json:"messages"`
		Input            []ChatMessage `json:"input"`
		System           string        `json:"system"`
		User             string        `json:"user"`
		MaxTokens        *int          `json:"max_tokens"`
		MaxTokensCamel   *int          `json:"maxTokens"`
		Temperature      *float64      `json:"temperature"`
		TopP             *float64      `json:"top_p"`
		TopPCamel        *float64      `json:"topP"`
		FrequencyPenalty *float64      `json:"frequency_penalty"`
		PresencePenalty  *float64      `json:"presence_penalty"`
		Provider         string        `json:"provider"`
		Label            string        `json:"label"`
		FnName           string        `json:"fnName"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	maxTokens, err := pickInt("max_tokens", raw.MaxTokens, raw.MaxTokensCamel)
	if err != nil {
		return err
	}
	topP, err := pickFloat("top_p", raw.TopP, raw.TopPCamel)
	if err != nil {
		return err
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.Input = raw.Input
	r.System = raw.System
	r.User = raw.User
	r.MaxTokens = maxTokens
	r.Temperature = raw.Temperature
	r.TopP = topP
	r.FrequencyPenalty = raw.FrequencyPenalty
	r.PresencePenalty = raw.PresencePenalty
	r.Provider = strings.ToLower(strings.TrimSpace(raw.Provider))
	r.Label = strings.TrimSpace(raw.Label)
	if r.Label == "" {
		r.Label = strings.TrimSpace(raw.FnName)
	}

	return r.validate()
}

func (r *ChatRequest) validate() error {
	for i, msg := range r.Messages {
		if err := msg.validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	for i, msg := range r.Input {
		if err := msg.validate(); err != nil {
			return fmt.Errorf("input[%d]: %w", i, err)
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 0 {
		return errors.New("max_tokens must not be negative")
	}
	return nil
}

// ToCanonical converts the wire request into the canonical format. Folding
// the legacy fields into messages is left to the dispatcher.
func (r ChatRequest) ToCanonical() models.ChatRequest {
	return models.ChatRequest{
		Messages:         toMessages(r.Messages),
		Input:            toMessages(r.Input),
		System:           r.System,
		User:             r.User,
		Model:            r.Model,
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		TopP:             r.TopP,
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		ProviderOverride: r.Provider,
		RequestLabel:     r.Label,
	}
}

func toMessages(in []ChatMessage) []models.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Message, 0, len(in))
	for _, m := range in {
		out = append(out, models.Message{Role: models.Role(m.Role), Content: m.Content})
	}
	return out
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = strings.ToLower(strings.TrimSpace(raw.Role))
	m.Content = content

	return m.validate()
}

func (m *ChatMessage) validate() error {
	if !models.Role(m.Role).Valid() {
		return fmt.Errorf("%w: %q", errInvalidRole, m.Role)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: message content must not be empty", errInvalidContent)
	}
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

func pickInt(field string, snake, camel *int) (*int, error) {
	if snake != nil && camel != nil && *snake != *camel {
		return nil, fmt.Errorf("%w: %s given twice with different values", errConflictingField, field)
	}
	if snake != nil {
		return snake, nil
	}
	return camel, nil
}

func pickFloat(field string, snake, camel *float64) (*float64, error) {
	if snake != nil && camel != nil && *snake != *camel {
		return nil, fmt.Errorf("%w: %s given twice with different values", errConflictingField, field)
	}
	if snake != nil {
		return snake, nil
	}
	return camel, nil
}

// ChatCompletionResponse models the OpenAI-compatible chat response.
type ChatCompletionResponse struct {
	ID       string       `json:"id"`
	Object   string       `json:"object"`
	Created  int64        `json:"created"`
	Model    string       `json:"model"`
	Provider string       `json:"provider"`
	Choices  []ChatChoice `json:"choices"`
	Usage    OpenAIUsage  `json:"usage"`
}

// ChatChoice represents a single choice in the response payload.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// OpenAIUsage mirrors the token usage block in OpenAI responses.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FromCanonicalChat constructs the OpenAI response shape from the canonical
// response. fallbackID is used when the vendor returned no id.
func FromCanonicalChat(fallbackID string, createdUnix int64, resp *models.ChatResponse) ChatCompletionResponse {
	choices := make([]ChatChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, ChatChoice{
			Index: c.Index,
			Message: ChatMessage{
				Role:    string(c.Message.Role),
				Content: c.Message.Content,
			},
			FinishReason: c.FinishReason,
		})
	}

	id := resp.ID
	if id == "" {
		id = fallbackID
	}

	return ChatCompletionResponse{
		ID:       id,
		Object:   "chat.completion",
		Created:  createdUnix,
		Model:    resp.ModelUsed,
		Provider: resp.Provider,
		Choices:  choices,
		Usage: OpenAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}
