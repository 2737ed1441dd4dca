package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"stockai-router/internal/config"
	"stockai-router/internal/models"
	"stockai-router/internal/provider"
	"stockai-router/internal/provider/openai"
)

type fakeAdapter struct {
	name      string
	embedding []string
	chatErr   error
	embedErr  error

	mu        sync.Mutex
	chatReqs  []models.ChatRequest
	embedReqs []models.EmbeddingRequest
}

func (f *fakeAdapter) Name() string          { return f.name }
func (f *fakeAdapter) ValidateConfig() error { return nil }
func (f *fakeAdapter) DefaultModel() string  { return f.name + "-chat" }
func (f *fakeAdapter) DefaultEmbeddingModel() string {
	if len(f.embedding) == 0 {
		return ""
	}
	return f.embedding[0]
}
func (f *fakeAdapter) ListModels() models.ModelCatalog {
	return models.ModelCatalog{Chat: []string{f.name + "-chat"}, Embedding: f.embedding}
}

func (f *fakeAdapter) Chat(_ context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &models.ChatResponse{
		Choices:   []models.Choice{{Message: models.Message{Role: models.RoleAssistant, Content: "from " + f.name}, FinishReason: "stop"}},
		ModelUsed: f.DefaultModel(),
		Usage:     models.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
	}, nil
}

func (f *fakeAdapter) Embed(_ context.Context, req models.EmbeddingRequest) (*models.EmbeddingResponse, error) {
	f.mu.Lock()
	f.embedReqs = append(f.embedReqs, req)
	f.mu.Unlock()
	if len(f.embedding) == 0 {
		return nil, provider.ErrUnsupportedOperation
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	data := make([]models.Embedding, len(req.Input))
	for i := range req.Input {
		data[i] = models.Embedding{Index: i, Vector: []float32{float32(i)}}
	}
	return &models.EmbeddingResponse{Data: data, ModelUsed: f.embedding[0], Provider: f.name}, nil
}

func (f *fakeAdapter) chatCalls() []models.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatRequest(nil), f.chatReqs...)
}

func (f *fakeAdapter) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embedReqs)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.EmbeddingResponse
	getErr  error
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*models.EmbeddingResponse)}
}

func (m *memoryCache) Get(_ context.Context, key string) (*models.EmbeddingResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	resp, ok := m.entries[key]
	return resp, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, resp *models.EmbeddingResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = resp
	m.sets++
	return nil
}

type fixture struct {
	registry  *provider.Registry
	openai    *fakeAdapter
	gemini    *fakeAdapter
	anthropic *fakeAdapter
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		registry:  provider.NewRegistry(),
		openai:    &fakeAdapter{name: "openai", embedding: []string{"text-embedding-ada-002"}},
		gemini:    &fakeAdapter{name: "gemini", embedding: []string{"text-embedding-004"}},
		anthropic: &fakeAdapter{name: "anthropic"},
	}
	for _, a := range []*fakeAdapter{f.openai, f.gemini, f.anthropic} {
		if err := f.registry.Register(a.name, a); err != nil {
			t.Fatalf("Register(%s) error = %v", a.name, err)
		}
	}
	if err := f.registry.SetDefault("openai"); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.SetCurrent("openai"); err != nil {
		t.Fatal(err)
	}
	return f
}

func userRequest(text string) models.ChatRequest {
	return models.ChatRequest{Messages: []models.Message{{Role: models.RoleUser, Content: text}}}
}

func TestSubmitChat_UsesCurrentProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	resp, err := d.SubmitChat(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("SubmitChat() error = %v", err)
	}
	if resp.Content() != "from openai" || resp.Provider != "openai" {
		t.Errorf("resp = %+v, want openai response", resp)
	}
	if len(f.openai.chatCalls()) != 1 || len(f.gemini.chatCalls()) != 0 {
		t.Error("request did not go to the current provider only")
	}
}

func TestSubmitChat_OverrideLeavesCurrentUnchanged(t *testing.T) {
	t.Parallel()

	vendorErr := provider.NewVendorCallError("gemini", "GEMINI_API_KEY", 500, "boom")

	tests := []struct {
		name    string
		chatErr error
	}{
		{name: "success"},
		{name: "failure", chatErr: vendorErr},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.gemini.chatErr = tt.chatErr
			d := New(f.registry)

			req := userRequest("hi")
			req.ProviderOverride = "gemini"
			resp, err := d.SubmitChat(context.Background(), req)

			if tt.chatErr != nil {
				if !errors.Is(err, tt.chatErr) {
					t.Errorf("SubmitChat() error = %v, want adapter error unchanged", err)
				}
			} else {
				if err != nil {
					t.Fatalf("SubmitChat() error = %v", err)
				}
				if resp.Provider != "gemini" {
					t.Errorf("Provider = %q, want gemini", resp.Provider)
				}
			}

			if got := d.CurrentProvider(); got != "openai" {
				t.Errorf("CurrentProvider() = %q, want openai", got)
			}
			if len(f.gemini.chatCalls()) != 1 || len(f.openai.chatCalls()) != 0 {
				t.Error("override did not route to gemini only")
			}
		})
	}
}

func TestSubmitChat_UnknownOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	req := userRequest("hi")
	req.ProviderOverride = "mistral"
	if _, err := d.SubmitChat(context.Background(), req); !errors.Is(err, provider.ErrUnknownProvider) {
		t.Fatalf("SubmitChat() error = %v, want ErrUnknownProvider", err)
	}
	if got := d.CurrentProvider(); got != "openai" {
		t.Errorf("CurrentProvider() = %q, want openai", got)
	}
}

func TestSubmitChat_ConcurrentOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			req := userRequest("a")
			req.ProviderOverride = "gemini"
			resp, err := d.SubmitChat(context.Background(), req)
			if err != nil || resp.Provider != "gemini" {
				t.Errorf("override call = %+v, %v", resp, err)
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := d.SubmitChat(context.Background(), userRequest("b"))
			if err != nil || resp.Provider != "openai" {
				t.Errorf("default call = %+v, %v", resp, err)
			}
		}()
	}
	wg.Wait()

	if len(f.gemini.chatCalls()) != 20 || len(f.openai.chatCalls()) != 20 {
		t.Errorf("calls gemini=%d openai=%d, want 20 each", len(f.gemini.chatCalls()), len(f.openai.chatCalls()))
	}
}

func TestSubmitChat_NormalizesLegacyShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  models.ChatRequest
		want []models.Message
	}{
		{
			name: "input becomes messages",
			req:  models.ChatRequest{Input: []models.Message{{Role: models.RoleUser, Content: "legacy"}}},
			want: []models.Message{{Role: models.RoleUser, Content: "legacy"}},
		},
		{
			name: "messages win over input",
			req: models.ChatRequest{
				Messages: []models.Message{{Role: models.RoleUser, Content: "new"}},
				Input:    []models.Message{{Role: models.RoleUser, Content: "old"}},
			},
			want: []models.Message{{Role: models.RoleUser, Content: "new"}},
		},
		{
			name: "system and user shorthand",
			req:  models.ChatRequest{System: "sys", User: "question"},
			want: []models.Message{
				{Role: models.RoleSystem, Content: "sys"},
				{Role: models.RoleUser, Content: "question"},
			},
		},
		{
			name: "user shorthand only",
			req:  models.ChatRequest{User: "question"},
			want: []models.Message{{Role: models.RoleUser, Content: "question"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			d := New(f.registry)
			if _, err := d.SubmitChat(context.Background(), tt.req); err != nil {
				t.Fatalf("SubmitChat() error = %v", err)
			}

			calls := f.openai.chatCalls()
			if len(calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(calls))
			}
			if !reflect.DeepEqual(calls[0].Messages, tt.want) {
				t.Errorf("Messages = %+v, want %+v", calls[0].Messages, tt.want)
			}
			if calls[0].Input != nil || calls[0].System != "" || calls[0].User != "" {
				t.Errorf("legacy fields reached the adapter: %+v", calls[0])
			}
		})
	}
}

func TestSubmitChat_StripsRoutingFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	temp := 0.2
	req := userRequest("hi")
	req.ProviderOverride = "openai"
	req.RequestLabel = "summarizeStock"
	req.Temperature = &temp
	req.Model = "gpt-4o-mini"

	if _, err := d.SubmitChat(context.Background(), req); err != nil {
		t.Fatalf("SubmitChat() error = %v", err)
	}

	got := f.openai.chatCalls()[0]
	if got.ProviderOverride != "" || got.RequestLabel != "" {
		t.Errorf("routing fields reached the adapter: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 || got.Model != "gpt-4o-mini" {
		t.Errorf("options not forwarded: %+v", got)
	}
}

func TestSubmitChat_InvalidRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	tests := []models.ChatRequest{
		{},
		{Messages: []models.Message{{Role: "tool", Content: "x"}}},
	}
	for _, req := range tests {
		if _, err := d.SubmitChat(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("SubmitChat(%+v) error = %v, want ErrInvalidRequest", req, err)
		}
	}
	if len(f.openai.chatCalls()) != 0 {
		t.Error("invalid request reached the adapter")
	}
}

func TestSubmitEmbedding_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry, WithEmbeddingCache(newMemoryCache()))

	_, err := d.SubmitEmbedding(context.Background(), models.EmbeddingRequest{
		Input:            []string{"hello"},
		ProviderOverride: "anthropic",
	})
	if !errors.Is(err, provider.ErrUnsupportedOperation) {
		t.Fatalf("SubmitEmbedding() error = %v, want ErrUnsupportedOperation", err)
	}
	if got := d.CurrentProvider(); got != "openai" {
		t.Errorf("CurrentProvider() = %q, want openai", got)
	}
}

func TestSubmitEmbedding_EmptyInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	if _, err := d.SubmitEmbedding(context.Background(), models.EmbeddingRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("SubmitEmbedding() error = %v, want ErrInvalidRequest", err)
	}
}

func TestSubmitEmbedding_CacheHit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := newMemoryCache()
	d := New(f.registry, WithEmbeddingCache(c))

	req := models.EmbeddingRequest{Input: []string{"a", "b"}, RequestLabel: "getEmbeddings"}
	first, err := d.SubmitEmbedding(context.Background(), req)
	if err != nil {
		t.Fatalf("first SubmitEmbedding() error = %v", err)
	}
	second, err := d.SubmitEmbedding(context.Background(), req)
	if err != nil {
		t.Fatalf("second SubmitEmbedding() error = %v", err)
	}

	if got := f.openai.embedCalls(); got != 1 {
		t.Errorf("adapter calls = %d, want 1", got)
	}
	if c.sets != 1 {
		t.Errorf("cache sets = %d, want 1", c.sets)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached response = %+v, want %+v", second, first)
	}

	// A different provider must not share the entry.
	req.ProviderOverride = "gemini"
	if _, err := d.SubmitEmbedding(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := f.gemini.embedCalls(); got != 1 {
		t.Errorf("gemini calls = %d, want 1", got)
	}
}

func TestSubmitEmbedding_CacheKeyFollowsConfiguredDefault(t *testing.T) {
	t.Parallel()

	dims := map[string]int{"text-embedding-ada-002": 3, "text-embedding-3-large": 5}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			data[i] = map[string]any{"index": i, "embedding": make([]float32, dims[body.Model])}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": body.Model, "data": data})
	}))
	defer srv.Close()

	adapter, err := openai.New("openai", config.ProviderConfig{
		APIKey:                "sk-test",
		BaseURL:               srv.URL,
		DefaultEmbeddingModel: "text-embedding-3-large",
	}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	registry := provider.NewRegistry()
	if err := registry.Register("openai", adapter); err != nil {
		t.Fatal(err)
	}
	if err := registry.SetCurrent("openai"); err != nil {
		t.Fatal(err)
	}
	d := New(registry, WithEmbeddingCache(newMemoryCache()))

	byDefault, err := d.SubmitEmbedding(context.Background(), models.EmbeddingRequest{Input: []string{"hello"}})
	if err != nil {
		t.Fatalf("default SubmitEmbedding() error = %v", err)
	}
	if byDefault.ModelUsed != "text-embedding-3-large" || len(byDefault.Data[0].Vector) != 5 {
		t.Fatalf("default call model = %q dims = %d", byDefault.ModelUsed, len(byDefault.Data[0].Vector))
	}

	explicit, err := d.SubmitEmbedding(context.Background(), models.EmbeddingRequest{Input: []string{"hello"}, Model: "text-embedding-ada-002"})
	if err != nil {
		t.Fatalf("explicit SubmitEmbedding() error = %v", err)
	}
	if explicit.ModelUsed != "text-embedding-ada-002" || len(explicit.Data[0].Vector) != 3 {
		t.Errorf("explicit call model = %q dims = %d, want text-embedding-ada-002 with 3 dims", explicit.ModelUsed, len(explicit.Data[0].Vector))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("vendor calls = %d, want 2", got)
	}

	// Naming the configured default shares the default entry.
	if _, err := d.SubmitEmbedding(context.Background(), models.EmbeddingRequest{Input: []string{"hello"}, Model: "text-embedding-3-large"}); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("vendor calls after cached request = %d, want 2", got)
	}
}

func TestSubmitEmbedding_CacheErrorsIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := newMemoryCache()
	c.getErr = errors.New("redis down")
	d := New(f.registry, WithEmbeddingCache(c))

	resp, err := d.SubmitEmbedding(context.Background(), models.EmbeddingRequest{Input: []string{"a"}})
	if err != nil {
		t.Fatalf("SubmitEmbedding() error = %v", err)
	}
	if len(resp.Data) != 1 || f.openai.embedCalls() != 1 {
		t.Errorf("resp = %+v, calls = %d", resp, f.openai.embedCalls())
	}
}

func TestSwitchProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	if err := d.SwitchProvider("gemini"); err != nil {
		t.Fatalf("SwitchProvider() error = %v", err)
	}
	resp, err := d.SubmitChat(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini after switch", resp.Provider)
	}

	if err := d.SwitchProvider("cohere"); !errors.Is(err, provider.ErrUnknownProvider) {
		t.Errorf("SwitchProvider(unknown) error = %v, want ErrUnknownProvider", err)
	}
	if got := d.CurrentProvider(); got != "gemini" {
		t.Errorf("CurrentProvider() = %q, want gemini", got)
	}
	if got := d.DefaultProvider(); got != "openai" {
		t.Errorf("DefaultProvider() = %q, want openai", got)
	}
}

func TestCatalogAndList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := New(f.registry)

	want := []string{"openai", "gemini", "anthropic"}
	if got := d.ListProviders(); !reflect.DeepEqual(got, want) {
		t.Errorf("ListProviders() = %v, want %v", got, want)
	}

	catalog := d.Catalog()
	if len(catalog) != 3 {
		t.Fatalf("len(Catalog()) = %d, want 3", len(catalog))
	}
	if catalog[2].Name != "anthropic" || catalog[2].Models.SupportsEmbeddings() {
		t.Errorf("Catalog()[2] = %+v", catalog[2])
	}
	if catalog[0].DefaultModel != "openai-chat" {
		t.Errorf("DefaultModel = %q", catalog[0].DefaultModel)
	}
}
