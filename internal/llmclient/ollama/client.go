// Package ollama adapts github.com/ollama/ollama/api to the llmclient.LLMClient
// contract, collapsing the teacher's streaming pkg/llm/ollama client into a
// single blocking Chat call — SPEC_FULL §4.1 calls the LLM once per decision
// step rather than streaming tokens to a terminal.
package ollama

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"easypath/internal/llmclient"

	"github.com/ollama/ollama/api"
)

// Client wraps one Ollama model endpoint.
type Client struct {
	client  *api.Client
	model   string
	options map[string]any
}

// New constructs a Client against baseURL (or the environment default when
// empty), ported from the teacher's long-lived no-timeout transport.
func New(model, baseURL string, options map[string]any) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{Transport: transport}

	var apiClient *api.Client
	var err error
	if baseURL != "" {
		u, perr := url.Parse(baseURL)
		if perr != nil {
			return nil, fmt.Errorf("ollama: invalid base URL: %w", perr)
		}
		apiClient = api.NewClient(u, httpClient)
	} else {
		apiClient, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
	}

	return &Client{client: apiClient, model: model, options: options}, nil
}

func (c *Client) Chat(ctx context.Context, messages []llmclient.Message, temperature float64) (*llmclient.Result, error) {
	opts := make(map[string]any, len(c.options)+1)
	for k, v := range c.options {
		opts[k] = v
	}
	opts["temperature"] = temperature

	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	streamVal := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: apiMessages,
		Options:  opts,
		Stream:   &streamVal,
	}

	var result llmclient.Result
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		result.Content += resp.Message.Content
		if resp.Done {
			result.FinishReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat(%s): %w", c.model, err)
	}
	return &result, nil
}
