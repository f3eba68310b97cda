package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// llmRunner is the subset of provider.Provider an `llm` node needs,
// narrowed so scheduler.go doesn't depend on the full provider surface.
type llmRunner interface {
	Chat(ctx context.Context, modelRef string, msgs []provider.Message, opts provider.ChatOptions) (provider.ChatResult, error)
}

// insufficientIterationsMessage is returned instead of an exception
// when an llm-with-tools node exhausts max_iterations (§4.9: "reaching
// max_iterations aborts with a user-friendly message rather than an
// exception").
const insufficientIterationsMessage = "I wasn't able to finish using the available tools in time. Here is what I have so far."

// giveUpToolResultTemplate formats the synthetic tool-result content substituted
// when the same tool is called max_consecutive times in a row (§4.9).
const giveUpToolResultTemplate = "Tool %q was just called %d times in a row with no new information; giving up on further calls to it for this turn."

func runLLMNode(ctx context.Context, llm llmRunner, cfg *LLMConfig, pool *varpool.Pool) (string, provider.TokenUsage, error) {
	var b strings.Builder
	for _, sel := range cfg.PromptSelectors {
		s, err := varpool.ParseSelector(sel)
		if err != nil {
			continue
		}
		b.WriteString(pool.GetString(s))
		b.WriteString("\n")
	}

	messages := []provider.Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: b.String()},
	}

	if len(cfg.Tools) == 0 {
		result, err := llm.Chat(ctx, cfg.ModelRef, messages, provider.ChatOptions{})
		if err != nil {
			return "", provider.TokenUsage{}, err
		}
		return result.Text, result.Usage, nil
	}

	maxIterations := cfg.MaxIterationsBase + cfg.PerToolIterations*len(cfg.Tools)
	if maxIterations <= 0 {
		maxIterations = 5
	}
	maxConsecutive := cfg.MaxConsecutive
	if maxConsecutive <= 0 {
		maxConsecutive = 3
	}

	var lastTool string
	var consecutive int
	var usage provider.TokenUsage

	for iter := 0; iter < maxIterations; iter++ {
		result, err := llm.Chat(ctx, cfg.ModelRef, messages, provider.ChatOptions{Tools: cfg.Tools})
		if err != nil {
			return "", usage, err
		}
		usage.PromptTokens += result.Usage.PromptTokens
		usage.CompletionTokens += result.Usage.CompletionTokens
		usage.TotalTokens += result.Usage.TotalTokens

		if len(result.ToolCalls) == 0 {
			return result.Text, usage, nil
		}

		messages = append(messages, provider.Message{Role: "assistant", Content: result.Text})
		for _, tc := range result.ToolCalls {
			if tc.Name == lastTool {
				consecutive++
			} else {
				consecutive = 1
				lastTool = tc.Name
			}

			var toolOut string
			if consecutive >= maxConsecutive {
				toolOut = fmt.Sprintf(giveUpToolResultTemplate, tc.Name, consecutive)
			} else if cfg.ToolDispatch != nil {
				out, derr := cfg.ToolDispatch(ctx, tc.Name, tc.Args)
				if derr != nil {
					out = fmt.Sprintf("tool error: %v", derr)
				}
				toolOut = out
			}
			messages = append(messages, provider.Message{Role: "tool", Content: toolOut})
		}
	}

	return insufficientIterationsMessage, usage, nil
}

func runQuestionClassifier(ctx context.Context, llm llmRunner, cfg *QuestionClassifierConfig, pool *varpool.Pool) (className string, branch string, err error) {
	sel, perr := varpool.ParseSelector(cfg.InputSelector)
	var input string
	if perr == nil {
		input = pool.GetString(sel)
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "Classify the input into exactly one of the listed categories. Respond with only the category name."
	}
	messages := []provider.Message{
		{Role: "system", Content: systemPrompt + "\nCategories: " + strings.Join(cfg.Categories, ", ")},
		{Role: "user", Content: input},
	}
	result, err := llm.Chat(ctx, cfg.ModelRef, messages, provider.ChatOptions{})
	if err != nil {
		return "", "", err
	}

	chosen := strings.TrimSpace(result.Text)
	for i, cat := range cfg.Categories {
		if strings.EqualFold(strings.TrimSpace(cat), chosen) {
			return cat, fmt.Sprintf("CASE%d", i+1), nil
		}
	}
	// Fall back to the first category when the model's answer doesn't
	// exactly match one (defensive: the classifier prompt constrains
	// the model, but a free-text slip shouldn't abort the node).
	if len(cfg.Categories) > 0 {
		return cfg.Categories[0], "CASE1", nil
	}
	return "", "", fmt.Errorf("question-classifier: no categories configured")
}
