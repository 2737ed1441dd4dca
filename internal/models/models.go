package models

// Role identifies the author of a conversational message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single conversational message in the canonical schema.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest is the canonical representation of a chat completion.
//
// Optional numeric fields are pointers; nil means the caller left the value
// undefined and adapters must not send it. Input, System and User are legacy
// request shapes the dispatcher folds into Messages before an adapter sees the
// request. ProviderOverride and RequestLabel never reach an adapter.
type ChatRequest struct {
	Messages         []Message
	Input            []Message
	System           string
	User             string
	Model            string
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	ProviderOverride string
	RequestLabel     string
}

// Choice is one generated alternative of a chat response.
type Choice struct {
	Index        int
	Message      Message
	FinishReason string
}

// ChatResponse captures a provider response in the canonical schema.
type ChatResponse struct {
	ID        string
	Choices   []Choice
	ModelUsed string
	Provider  string
	Usage     Usage
}

// Content returns the text of the first choice, or an empty string.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// EmbeddingRequest asks a provider to embed one or more texts.
type EmbeddingRequest struct {
	Input            []string
	Model            string
	ProviderOverride string
	RequestLabel     string
}

// Embedding is the vector computed for Input[Index].
type Embedding struct {
	Index  int
	Vector []float32
}

// EmbeddingResponse captures the vectors returned for an EmbeddingRequest.
type EmbeddingResponse struct {
	Data      []Embedding
	ModelUsed string
	Provider  string
	Usage     EmbeddingUsage
}

// EmbeddingUsage records token accounting for embeddings.
type EmbeddingUsage struct {
	TotalTokens int
}

// ModelCatalog advertises the models a provider can serve.
type ModelCatalog struct {
	Chat      []string
	Embedding []string
}

// SupportsEmbeddings reports whether any embedding model is advertised.
func (c ModelCatalog) SupportsEmbeddings() bool {
	return len(c.Embedding) > 0
}
