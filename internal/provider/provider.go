// Package provider is the C2 embedder/LLM abstraction: one closed
// interface per capability (Embed, Chat, optional Rerank), generalized
// from internal/llm/provider.go + internal/llm/embeddings.go. Provider
// selection affects only multimodal content-part shape, isolated behind
// the ContentBuilder capability — never the calling convention.
package provider

import (
	"context"
	"encoding/json"
)

// Message mirrors internal/llm's Message, trimmed to what the memory
// engine's components (C6 Extract, C8 summarization, C9 llm nodes) need.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
	Images  []ImagePart
}

// ImagePart is one multimodal content part supplied by an external
// multimodal collaborator; the core never decodes media itself.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

// ToolSchema describes a callable tool exposed to an LLM turn (used by
// C9's llm node when the workflow step carries tools).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one invocation the model asked the caller to perform.
type ToolCall struct {
	Name string
	Args json.RawMessage
	ID   string
}

// ChatOptions configures a single Chat call. StructuredSchema, when set,
// makes the adapters require a JSON reply: a reply that does not parse as
// JSON yields merrors.LLMParseError. The reply is not checked against the
// contents of the schema.
type ChatOptions struct {
	StructuredSchema map[string]any
	Tools            []ToolSchema
	Temperature      float64
	MaxTokens        int
	Stream           bool
}

// ChatResult is a Chat call's outcome. Structured holds the parsed value
// when StructuredSchema was supplied; Text holds the plain response
// otherwise. No adapter in this package sends ChatOptions.Tools to the
// backend or fills ToolCalls, so ToolCalls is always empty on their
// results.
type ChatResult struct {
	Text       string
	Structured json.RawMessage
	ToolCalls  []ToolCall
	Usage      TokenUsage
}

// TokenUsage reports token accounting for a Chat call, surfaced by C9's
// llm node as `token_usage`.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamHandler receives incremental output from ChatStream, mirroring
// internal/llm's StreamHandler.
type StreamHandler interface {
	OnDelta(content string)
	OnToolCall(tc ToolCall)
}

// RerankResult pairs a candidate index with its relevance score.
type RerankResult struct {
	Index int
	Score float64
}

// Provider is the full C2 capability surface. Rerank is optional: when a
// provider does not implement reranking, RerankerFor(p) returns an identity
// implementation (see identity_rerank.go) rather than nil, so callers
// never branch on capability presence.
type Provider interface {
	Embed(ctx context.Context, modelRef string, texts []string) ([][]float32, error)
	Chat(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions) (ChatResult, error)
	ChatStream(ctx context.Context, modelRef string, msgs []Message, opts ChatOptions, h StreamHandler) error
}

// Reranker is implemented by providers that can natively rerank
// candidates against a query (§4.2 "Rerank ... optional").
type Reranker interface {
	Rerank(ctx context.Context, modelRef, query string, candidates []string) ([]RerankResult, error)
}

// ContentBuilder isolates the only provider-aware branch in the core:
// how a multimodal message is shaped on the wire. OpenAI-compatible
// backends send `{"type":"text","text":...}` parts; DashScope-style
// backends send `{"text":...}`. Everything else about a provider is
// opaque to callers of Provider.
type ContentBuilder interface {
	BuildTextPart(text string) map[string]any
	BuildImagePart(img ImagePart) map[string]any
}
