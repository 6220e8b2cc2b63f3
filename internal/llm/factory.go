package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/claimledger/internal/model"
)

// Hosted endpoints of the OpenAI- and Anthropic-compatible gateways
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	MiniMaxBaseURL    = "https://api.minimax.io/anthropic"
)

var defaultModels = map[string]string{
	"openai":     "gpt-4o",
	"anthropic":  "claude-sonnet-4-20250514",
	"openrouter": "deepseek/deepseek-chat",
	"minimax":    "MiniMax-M2.1",
	"ollama":     "llama3.1:8b",
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	if m, ok := defaultModels[normalizeProvider(provider)]; ok {
		return m
	}
	return "gpt-4o"
}

// APIKeyEnv names the environment variable holding a provider's API key
func APIKeyEnv(provider string) string {
	switch normalizeProvider(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "minimax":
		return "MINIMAX_API_KEY"
	}
	return ""
}

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	config.Provider = normalizeProvider(config.Provider)

	switch config.Provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "openrouter":
		if config.BaseURL == "" {
			config.BaseURL = OpenRouterBaseURL
		}
		return NewOpenAIProvider(config)

	case "anthropic":
		return NewAnthropicProvider(config)

	case "minimax":
		if config.BaseURL == "" {
			config.BaseURL = MiniMaxBaseURL
		}
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, fmt.Errorf("no LLM provider configured")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, openrouter, anthropic, minimax, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config, reading the API key
// from the provider's environment variable when none is configured.
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	cfg := Config{
		Provider:   modelConfig.Provider,
		Model:      modelConfig.Model,
		APIKey:     modelConfig.APIKey,
		BaseURL:    modelConfig.BaseURL,
		Timeout:    modelConfig.Timeout,
		MaxTokens:  modelConfig.MaxTokens,
		HTTPProxy:  os.Getenv("HTTP_PROXY"),
		HTTPSProxy: os.Getenv("HTTPS_PROXY"),
		NoProxy:    os.Getenv("NO_PROXY"),
	}
	if cfg.APIKey == "" {
		if env := APIKeyEnv(cfg.Provider); env != "" {
			cfg.APIKey = os.Getenv(env)
		}
	}
	if cfg.BaseURL == "" && normalizeProvider(cfg.Provider) == "ollama" {
		cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	return cfg
}

func normalizeProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "claude" {
		return "anthropic"
	}
	return name
}
