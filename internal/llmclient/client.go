// Package llmclient defines the LLM Client contract (SPEC_FULL §4.1) and a
// provider-factory registry mirroring the teacher's pkg/llm dynamic-dispatch
// pattern, collapsed from a streaming to a single-shot contract since the
// spec's turn model calls the LLM once per decision step rather than
// streaming tokens to a terminal.
package llmclient

import "context"

// Message is the provider-facing chat turn: a role and plain-text content,
// without the timestamp that session.Message, the spec-level log entry,
// carries.
type Message struct {
	Role    string
	Content string
}

// Result is what a single Chat call returns.
type Result struct {
	Content      string
	FinishReason string
}

// LLMClient is implemented by every provider adapter and by FallbackClient.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, temperature float64) (*Result, error)
}

// System builds a system-role Message carrying content as given.
func System(content string) Message {
	return Message{Role: "system", Content: content}
}

// User builds a user-role Message.
func User(content string) Message {
	return Message{Role: "user", Content: content}
}

// Assistant builds an assistant-role Message.
func Assistant(content string) Message {
	return Message{Role: "assistant", Content: content}
}
