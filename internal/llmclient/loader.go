package llmclient

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig builds an LLMClient from the raw "llm" config block: a JSON
// array of ProviderGroupConfig entries. Multiple groups are combined into a
// FallbackClient, preserving the teacher's pkg/llm/loader.go behavior of
// trying each configured group in order on failure.
func NewFromConfig(raw jsoniter.RawMessage, maxRetries int, retryDelay time.Duration) (LLMClient, error) {
	var groups []ProviderGroupConfig
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("llmclient: invalid llm config: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("llmclient: llm config has no provider groups")
	}

	clients := make([]LLMClient, 0, len(groups))
	for _, g := range groups {
		factory, ok := GetProviderFactory(g.Type)
		if !ok {
			return nil, ErrUnknownProvider{Type: g.Type}
		}
		c, err := factory.New(g)
		if err != nil {
			return nil, fmt.Errorf("llmclient: constructing provider %q: %w", g.Type, err)
		}
		clients = append(clients, c)
	}

	if len(clients) == 1 {
		return clients[0], nil
	}
	return &FallbackClient{Clients: clients, MaxRetries: maxRetries, RetryDelay: retryDelay}, nil
}

// FallbackClient tries each client in order, retrying the whole cycle up to
// MaxRetries times with RetryDelay between cycles — ported from the
// teacher's pkg/llm/llm.go FallbackClient.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Chat(ctx context.Context, messages []Message, temperature float64) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		for _, c := range f.Clients {
			res, err := c.Chat(ctx, messages, temperature)
			if err == nil {
				return res, nil
			}
			lastErr = err
		}
		if attempt < f.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("llmclient: all providers exhausted: %w", lastErr)
}
