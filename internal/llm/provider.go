// Package llm is the language-model capability used for file selection,
// answering, synthesis and conflict classification. Callers never branch on
// which vendor answered: every provider exposes free-text and structured
// (JSON) generation behind the same interface.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when structured output cannot be decoded
var ErrMalformedResponse = errors.New("malformed model response")

// Request purposes, used for metrics labels and test fakes
const (
	PurposeFileSelection = "file_selection"
	PurposeAnswer        = "answer"
	PurposeSynthesis     = "synthesis"
	PurposeConflicts     = "conflict_classification"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// GenerateText returns the raw completion for req
	GenerateText(ctx context.Context, req Request) (*Response, error)

	// Generate requests JSON output and decodes it into out
	Generate(ctx context.Context, req Request, out any) error

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Request is one completion request
type Request struct {
	// Purpose names the call site (PurposeAnswer, ...)
	Purpose string

	SystemPrompt string
	UserPrompt   string

	// Schema describes the expected JSON object for structured calls
	Schema string

	// JSON asks the provider for a JSON-only response; set by Generate
	JSON bool

	// Model overrides the provider's configured model
	Model string

	Temperature float64
	MaxTokens   int

	// Cacheable marks deterministic requests whose responses may be reused
	Cacheable bool
}

// Response is a completion result
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "openrouter", "anthropic", "minimax", "ollama"
	Provider string

	// Model name (provider-specific); empty selects DefaultModel
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "anthropic",
		Timeout:   120,
		MaxTokens: 4096,
	}
}

// generateStructured implements Provider.Generate on top of GenerateText
func generateStructured(ctx context.Context, p Provider, req Request, out any) error {
	req.JSON = true
	if req.Schema != "" {
		req.SystemPrompt = strings.TrimSpace(req.SystemPrompt + "\n\nRespond with only a JSON object of this shape:\n" + req.Schema)
	}

	resp, err := p.GenerateText(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Text, out)
}

// DecodeJSON decodes the JSON object in text into out, tolerating markdown
// code fences and prose around the object.
func DecodeJSON(text string, out any) error {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(text, 80))
	}

	if err := json.Unmarshal([]byte(body[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c Config) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 4096
}

func (c Config) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel(c.Provider)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
