package readpath

import (
	"context"
	"strings"

	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
)

const classifySystemPrompt = `Classify the user's message into exactly one of: read, write, chit-chat. ` +
	`"read" asks about something the user or assistant said before. "write" states a new fact, ` +
	`preference, or event worth remembering. "chit-chat" is small talk needing no memory lookup. ` +
	`Respond with exactly one of those three words, nothing else.`

// classify runs the §4.8 search_switch=="0" classification step.
func (rp *ReadPath) classify(ctx context.Context, req Request) (Classification, error) {
	messages := []provider.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: req.Message},
	}
	result, err := rp.llm.Chat(ctx, req.LLMModelRef, messages, provider.ChatOptions{})
	if err != nil {
		return "", merrors.New(merrors.LLMCallFailed, "readpath.classify", err)
	}
	return parseClassification(result.Text), nil
}

func parseClassification(text string) Classification {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case string(ClassificationWrite):
		return ClassificationWrite
	case string(ClassificationChitChat), "chitchat", "chit chat":
		return ClassificationChitChat
	default:
		return ClassificationRead
	}
}
