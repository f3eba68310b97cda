package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/memorybear/memoryengine/internal/merrors"
)

// AnthropicConfig configures the Anthropic chat adapter. Anthropic has no
// embeddings endpoint, so Embed delegates to an embedder Provider
// supplied at construction (the engine always pairs a chat-only provider
// with an embedding-capable one via config, per §4.2).
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	MaxTokens int64
}

type anthropicProvider struct {
	sdk      anthropic.Client
	cfg      AnthropicConfig
	embedder Provider
}

// NewAnthropic builds a chat-only Provider. embedder handles Embed calls
// since Anthropic does not expose an embeddings API; pass nil only when
// this provider will never receive an Embed call.
func NewAnthropic(cfg AnthropicConfig, httpClient *http.Client, embedder Provider) Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{sdk: anthropic.NewClient(opts...), cfg: cfg, embedder: embedder}
}

func (a *anthropicProvider) Embed(ctx context.Context, modelRef string, texts []string) ([][]float32, error) {
	if a.embedder == nil {
		return nil, merrors.New(merrors.EmbeddingFailed, "anthropic.Embed", fmt.Errorf("anthropic has no embeddings endpoint and no embedder configured"))
	}
	return a.embedder.Embed(ctx, modelRef, texts)
}

func toAnthropicMessages(msgs []Message) (system string, out []anthropic.MessageParam) {
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func (a *anthropicProvider) maxTokens() int64 {
	if a.cfg.MaxTokens > 0 {
		return a.cfg.MaxTokens
	}
	return 1024
}

func (a *anthropicProvider) Chat(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions) (ChatResult, error) {
	system, messages := toAnthropicMessages(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelRef),
		MaxTokens: a.maxTokens(),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.sdk.Messages.New(ctx, params)
	if err != nil {
		return ChatResult{}, merrors.New(merrors.LLMCallFailed, "anthropic.Chat", err)
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}

	result := ChatResult{
		Text: text,
		Usage: TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	if opts.StructuredSchema != nil {
		if !json.Valid([]byte(text)) {
			return ChatResult{}, merrors.New(merrors.LLMParseError, "anthropic.Chat", fmt.Errorf("response is not valid JSON"))
		}
		result.Structured = json.RawMessage(text)
	}
	return result, nil
}

func (a *anthropicProvider) ChatStream(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions, h StreamHandler) error {
	system, messages := toAnthropicMessages(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelRef),
		MaxTokens: a.maxTokens(),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := a.sdk.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if textDelta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
				h.OnDelta(textDelta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return merrors.New(merrors.LLMCallFailed, "anthropic.ChatStream", err)
	}
	return nil
}
