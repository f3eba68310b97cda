package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBuilderFor_OpenAIStyle(t *testing.T) {
	b := ContentBuilderFor("openai")
	part := b.BuildTextPart("hi")
	assert.Equal(t, "text", part["type"])
	assert.Equal(t, "hi", part["text"])
}

func TestContentBuilderFor_DashScopeStyle(t *testing.T) {
	b := ContentBuilderFor("dashscope")
	part := b.BuildTextPart("hi")
	_, hasType := part["type"]
	assert.False(t, hasType, "dashscope text parts carry no type discriminator")
	assert.Equal(t, "hi", part["text"])
}

type fakeChatOnlyProvider struct{}

func (fakeChatOnlyProvider) Embed(context.Context, string, []string) ([][]float32, error) {
	return nil, nil
}
func (fakeChatOnlyProvider) Chat(context.Context, string, []Message, ChatOptions) (ChatResult, error) {
	return ChatResult{}, nil
}
func (fakeChatOnlyProvider) ChatStream(context.Context, string, []Message, ChatOptions, StreamHandler) error {
	return nil
}

func TestRerankerFor_IdentityWhenUnsupported(t *testing.T) {
	r := RerankerFor(fakeChatOnlyProvider{})
	results, err := r.Rerank(context.Background(), "", "query", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, 1.0, res.Score)
	}
}
