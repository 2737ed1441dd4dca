package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"stockai-router/internal/models"
)

// EmbeddingsRequest models the POST /v1/embeddings payload. Input may be a
// single string or an array of strings.
type EmbeddingsRequest struct {
	Model    string
	Input    []string
	Provider string
	Label    string
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *EmbeddingsRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model    string          `json:"model"`
		Input    json.RawMessage `json:"input"`
		Provider string          `json:"provider"`
		Label    string          `json:"label"`
		FnName   string          `json:"fnName"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode embeddings request: %w", err)
	}

	input, err := parseInput(raw.Input)
	if err != nil {
		return err
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Input = input
	r.Provider = strings.ToLower(strings.TrimSpace(raw.Provider))
	r.Label = strings.TrimSpace(raw.Label)
	if r.Label == "" {
		r.Label = strings.TrimSpace(raw.FnName)
	}
	return nil
}

func parseInput(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: input is required", errInvalidInput)
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil, fmt.Errorf("%w: input must not be empty", errInvalidInput)
		}
		return []string{single}, nil
	}

	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		if len(multi) == 0 {
			return nil, fmt.Errorf("%w: input must not be empty", errInvalidInput)
		}
		for i, item := range multi {
			if strings.TrimSpace(item) == "" {
				return nil, fmt.Errorf("%w: input[%d] must not be empty", errInvalidInput, i)
			}
		}
		return multi, nil
	}

	return nil, fmt.Errorf("%w: input must be a string or an array of strings", errInvalidInput)
}

// ToCanonical converts the wire request into the canonical format.
func (r EmbeddingsRequest) ToCanonical() models.EmbeddingRequest {
	return models.EmbeddingRequest{
		Input:            append([]string(nil), r.Input...),
		Model:            r.Model,
		ProviderOverride: r.Provider,
		RequestLabel:     r.Label,
	}
}

// EmbeddingsResponse models the OpenAI-compatible embeddings response.
type EmbeddingsResponse struct {
	Object   string          `json:"object"`
	Data     []EmbeddingItem `json:"data"`
	Model    string          `json:"model"`
	Provider string          `json:"provider"`
	Usage    EmbeddingsUsage `json:"usage"`
}

// EmbeddingItem is one vector in the response.
type EmbeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingsUsage mirrors the usage block of OpenAI embedding responses.
type EmbeddingsUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// FromCanonicalEmbeddings constructs the OpenAI response shape.
func FromCanonicalEmbeddings(resp *models.EmbeddingResponse) EmbeddingsResponse {
	data := make([]EmbeddingItem, 0, len(resp.Data))
	for _, e := range resp.Data {
		data = append(data, EmbeddingItem{
			Object:    "embedding",
			Embedding: e.Vector,
			Index:     e.Index,
		})
	}
	return EmbeddingsResponse{
		Object:   "list",
		Data:     data,
		Model:    resp.ModelUsed,
		Provider: resp.Provider,
		Usage: EmbeddingsUsage{
			PromptTokens: resp.Usage.TotalTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
}
