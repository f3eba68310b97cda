package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/obslog"
)

// OpenAICompatConfig configures the OpenAI-compatible adapter, which also
// serves Ollama/Xinference/GPUStack/local backends: they all speak the
// same chat-completions + embeddings wire shape (§4.2), differing only
// in base URL and API key requirement.
type OpenAICompatConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
}

type openAICompat struct {
	sdk     sdk.Client
	cfg     OpenAICompatConfig
	content ContentBuilder
}

// NewOpenAICompat builds a Provider over any OpenAI-compatible chat +
// embeddings endpoint, grounded on internal/llm/openai/client.go's
// sdk.NewClient(option.WithAPIKey, option.WithBaseURL) construction.
func NewOpenAICompat(cfg OpenAICompatConfig, httpClient *http.Client) Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &openAICompat{sdk: sdk.NewClient(opts...), cfg: cfg, content: ContentBuilderFor("openai")}
}

func (o *openAICompat) Embed(ctx context.Context, modelRef string, texts []string) ([][]float32, error) {
	if modelRef == "" {
		modelRef = o.cfg.EmbeddingModel
	}
	start := time.Now()
	resp, err := o.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(modelRef),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	obslog.LoggerWithTrace(ctx).Debug().Dur("duration", time.Since(start)).Int("n", len(texts)).Msg("embed call")
	if err != nil {
		return nil, merrors.New(merrors.EmbeddingFailed, "openai.Embed", err)
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func toSDKMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (o *openAICompat) Chat(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions) (ChatResult, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelRef),
		Messages: toSDKMessages(msgs),
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(opts.MaxTokens))
	}

	comp, err := o.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatResult{}, merrors.New(merrors.LLMCallFailed, "openai.Chat", err)
	}
	if len(comp.Choices) == 0 {
		return ChatResult{}, merrors.New(merrors.LLMCallFailed, "openai.Chat", fmt.Errorf("no choices returned"))
	}
	text := comp.Choices[0].Message.Content

	result := ChatResult{
		Text: text,
		Usage: TokenUsage{
			PromptTokens:     int(comp.Usage.PromptTokens),
			CompletionTokens: int(comp.Usage.CompletionTokens),
			TotalTokens:      int(comp.Usage.TotalTokens),
		},
	}

	if opts.StructuredSchema != nil {
		if !json.Valid([]byte(text)) {
			return ChatResult{}, merrors.New(merrors.LLMParseError, "openai.Chat", fmt.Errorf("response is not valid JSON"))
		}
		result.Structured = json.RawMessage(text)
	}
	return result, nil
}

func (o *openAICompat) ChatStream(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions, h StreamHandler) error {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelRef),
		Messages: toSDKMessages(msgs),
	}
	stream := o.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			h.OnDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return merrors.New(merrors.LLMCallFailed, "openai.ChatStream", err)
	}
	return nil
}
