package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestOllamaProvider_GenerateText_Success(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		resp := ollamaResponse{
			Model:           "llama3.1",
			Response:        "The reactor starts at dawn.",
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       20,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{
		BaseURL: server.URL,
		Model:   "llama3.1",
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.GenerateText(context.Background(), Request{
		SystemPrompt: "system",
		UserPrompt:   "When?",
		Temperature:  0.3,
	})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	if resp.Text != "The reactor starts at dawn." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 30 {
		t.Errorf("Unexpected token usage: %d", resp.TokensUsed)
	}
	if got.Stream {
		t.Error("Expected non-streaming request")
	}
	if got.Format != "" {
		t.Errorf("Expected no format for free text, got %q", got.Format)
	}
	if got.System != "system" || got.Options.Temperature != 0.3 {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestOllamaProvider_Generate_JSONFormat(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:    "llama3.1:8b",
			Response: `{"classification": "refute"}`,
			Done:     true,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	var out struct {
		Classification string `json:"classification"`
	}
	if err := provider.Generate(context.Background(), Request{UserPrompt: "classify"}, &out); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out.Classification != "refute" {
		t.Errorf("Unexpected decode: %+v", out)
	}
	if got.Format != "json" {
		t.Errorf("Expected json format, got %q", got.Format)
	}
	if got.Model != "llama3.1:8b" {
		t.Errorf("Expected default model llama3.1:8b, got %s", got.Model)
	}
}

func TestOllamaProvider_GenerateText_EstimatesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: "m", Response: "12345678", Done: true})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "m", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.GenerateText(context.Background(), Request{UserPrompt: "abcdefgh"})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if resp.TokensUsed != 4 {
		t.Errorf("Expected estimated 4 tokens, got %d", resp.TokensUsed)
	}
}

func TestOllamaProvider_GenerateText_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "Internal Server Error"}`))
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.GenerateText(context.Background(), Request{UserPrompt: "q"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Internal Server Error") {
		t.Errorf("Expected error message to contain 'Internal Server Error', got %v", err)
	}
}

func TestOllamaProvider_GenerateText_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{malformed json`))
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.GenerateText(context.Background(), Request{UserPrompt: "q"}); err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models": [{"name": "llama3.1:8b"}, {"name": "qwen2.5:latest"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tests := []struct {
		model string
		want  bool
	}{
		{"", true}, // default model
		{"qwen2.5", true},
		{"mistral", false},
	}
	for _, tt := range tests {
		provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: tt.model})
		if err != nil {
			t.Fatalf("Failed to create provider: %v", err)
		}
		if got := provider.IsAvailable(context.Background()); got != tt.want {
			t.Errorf("IsAvailable(model=%q) = %v, want %v", tt.model, got, tt.want)
		}
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL})
	if provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestOllamaProxyFunc(t *testing.T) {
	proxy := newOllamaProxyFunc("http://proxy:8080", "http://secure-proxy:8443", "")

	req := &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com"}}
	got, err := proxy(req)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "http://secure-proxy:8443" {
		t.Errorf("Expected https proxy, got %s", got)
	}

	req = &http.Request{URL: &url.URL{Scheme: "http", Host: "example.com"}}
	got, err = proxy(req)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "http://proxy:8080" {
		t.Errorf("Expected http proxy, got %s", got)
	}
}
