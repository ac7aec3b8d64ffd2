package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no completion model is configured
const DefaultModel = "gpt-4o-mini"

const accountantSystemPrompt = "You are an experienced Dutch bookkeeper. Pick exactly one account from the menu you are given and answer with JSON only."

// OpenAICompleter is a Completer backed by the OpenAI chat completions API
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. Extra request options (base URL,
// HTTP client) are passed through to the SDK.
func NewOpenAICompleter(apiKey, model string, opts ...option.RequestOption) *OpenAICompleter {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey)), option.WithMaxRetries(1)}, opts...)
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Model returns the configured model name
func (c *OpenAICompleter) Model() string { return c.model }

// Complete sends one prompt and returns the text of the first choice
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(accountantSystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
