// Package openailm adapts github.com/openai/openai-go/v3 to the
// llmclient.LLMClient contract, covering both OpenAI itself and any
// OpenAI-compatible endpoint reachable via a custom base URL (the same
// provider="openai"/baseURL-override shape the teacher uses in
// pkg/llm/openailm for OpenAI-compatible third parties).
package openailm

import (
	"context"
	"fmt"
	"strings"

	"easypath/internal/llmclient"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps one OpenAI (or OpenAI-compatible) model endpoint.
type Client struct {
	client *openai.Client
	model  string
}

// New constructs a Client. baseURL overrides the default endpoint, letting
// the same adapter serve OpenAI-compatible third-party providers.
func New(apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openailm: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &Client{client: &c, model: model}, nil
}

func (c *Client) Chat(ctx context.Context, messages []llmclient.Message, temperature float64) (*llmclient.Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    convertMessages(messages),
		Temperature: openai.Float(temperature),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openailm: chat(%s): %w", c.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openailm: empty response from %s", c.model)
	}

	choice := resp.Choices[0]
	return &llmclient.Result{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

func convertMessages(messages []llmclient.Message) []openai.ChatCompletionMessageParamUnion {
	items := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			items = append(items, openai.SystemMessage(m.Content))
		case "assistant":
			items = append(items, openai.AssistantMessage(m.Content))
		default:
			items = append(items, openai.UserMessage(m.Content))
		}
	}
	return items
}
