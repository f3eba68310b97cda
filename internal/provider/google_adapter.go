package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/memorybear/memoryengine/internal/merrors"
)

// GoogleConfig configures the Google GenAI adapter.
type GoogleConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
}

type googleProvider struct {
	client *genai.Client
	cfg    GoogleConfig
}

// NewGoogle builds a Provider over Google's GenAI SDK, grounded on
// internal/llm/google/client.go's genai.NewClient(ClientConfig{APIKey,...}).
func NewGoogle(ctx context.Context, cfg GoogleConfig, httpClient *http.Client) (Provider, error) {
	opts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPClient:  httpClient,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: init google client: %w", err)
	}
	return &googleProvider{client: client, cfg: cfg}, nil
}

func (g *googleProvider) Embed(ctx context.Context, modelRef string, texts []string) ([][]float32, error) {
	if modelRef == "" {
		modelRef = g.cfg.EmbeddingModel
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := g.client.Models.EmbedContent(ctx, modelRef, contents, nil)
	if err != nil {
		return nil, merrors.New(merrors.EmbeddingFailed, "google.Embed", err)
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func toGenaiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func (g *googleProvider) Chat(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions) (ChatResult, error) {
	resp, err := g.client.Models.GenerateContent(ctx, modelRef, toGenaiContents(msgs), nil)
	if err != nil {
		return ChatResult{}, merrors.New(merrors.LLMCallFailed, "google.Chat", err)
	}
	text := resp.Text()
	result := ChatResult{Text: text}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if opts.StructuredSchema != nil {
		if !json.Valid([]byte(text)) {
			return ChatResult{}, merrors.New(merrors.LLMParseError, "google.Chat", fmt.Errorf("response is not valid JSON"))
		}
		result.Structured = json.RawMessage(text)
	}
	return result, nil
}

func (g *googleProvider) ChatStream(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions, h StreamHandler) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, modelRef, toGenaiContents(msgs), nil) {
		if err != nil {
			return merrors.New(merrors.LLMCallFailed, "google.ChatStream", err)
		}
		if text := resp.Text(); text != "" {
			h.OnDelta(text)
		}
	}
	return nil
}
