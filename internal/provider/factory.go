package provider

import (
	"context"
	"fmt"
	"net/http"
)

// Config names which provider backs a model reference. It is the
// provider-selection slice of the engine's typed config object (§3
// "Configuration object"), threaded explicitly rather than read from a
// global, per the teacher's own config-object discipline.
type Config struct {
	Name string // "", "openai", "local", "anthropic", "google", "dashscope"

	OpenAI    OpenAICompatConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
}

// Build constructs a Provider from cfg, mirroring
// internal/llm/providers/factory.go's switch over cfg.LLMClient.Provider.
// Ollama/Xinference/GPUStack/local backends all reuse the OpenAI-compatible
// adapter since they share its wire shape.
func Build(ctx context.Context, cfg Config, httpClient *http.Client) (Provider, error) {
	switch cfg.Name {
	case "", "openai", "local", "ollama", "xinference", "gpustack", "dashscope":
		return NewOpenAICompat(cfg.OpenAI, httpClient), nil
	case "anthropic":
		embedder := NewOpenAICompat(cfg.OpenAI, httpClient)
		return NewAnthropic(cfg.Anthropic, httpClient, embedder), nil
	case "google":
		return NewGoogle(ctx, cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("provider: unsupported provider %q", cfg.Name)
	}
}
