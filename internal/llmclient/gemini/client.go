// Package gemini adapts google.golang.org/genai to the llmclient.LLMClient
// contract, collapsing the teacher's streaming pkg/llm/gemini client (which
// iterates GenerateContentStream) into a single blocking GenerateContent
// call per SPEC_FULL §4.1.
package gemini

import (
	"context"
	"fmt"

	"easypath/internal/llmclient"

	"google.golang.org/genai"
)

// Client wraps one Gemini model.
type Client struct {
	client *genai.Client
	model  string
}

// New constructs a Client against the Gemini API backend.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

func (c *Client) Chat(ctx context.Context, messages []llmclient.Message, temperature float64) (*llmclient.Result, error) {
	contents, systemInstruction := convertMessages(messages)

	t32 := float32(temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       &t32,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate(%s): %w", c.model, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: empty response from %s", c.model)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if !part.Thought {
			text += part.Text
		}
	}

	return &llmclient.Result{
		Content:      text,
		FinishReason: string(resp.Candidates[0].FinishReason),
	}, nil
}

func convertMessages(messages []llmclient.Message) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case "system":
			systemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, systemInstruction
}
