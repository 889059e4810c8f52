// Package session implements the ChatSession type and the Session Store
// (SPEC_FULL §4.2), a TTL-capable key-value store backed by one JSON file
// per session — the corpus-consistent choice documented in DESIGN.md (no
// KV/cache client appears anywhere in the retrieved example pack).
package session

import (
	"sync"
	"time"

	"easypath/internal/idgen"
)

// MessageRole enumerates the three roles a Message may carry.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is the plain spec-level chat log entry (distinct from
// llmclient.Message, the role-and-content type the LLM Client sends to
// providers, which has no timestamp).
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChatSession is the mutable, per-conversation record owned exclusively by
// the in-flight turn (SPEC_FULL §3).
type ChatSession struct {
	SessionID          string         `json:"session_id"`
	CurrentNodeID      string         `json:"current_node_id"`
	PreviousNodeID     string         `json:"previous_node_id,omitempty"`
	History            []Message      `json:"history"`
	ExtractedVariables map[string]any `json:"extracted_variables"`

	mu sync.Mutex `json:"-"`
}

// New creates a fresh ChatSession positioned at the flow's first node.
func New(sessionID, firstNodeID string) *ChatSession {
	return &ChatSession{
		SessionID:          sessionID,
		CurrentNodeID:      firstNodeID,
		History:            make([]Message, 0),
		ExtractedVariables: make(map[string]any),
	}
}

// AddMessage appends one entry to the session's history.
func (s *ChatSession) AddMessage(role MessageRole, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, Message{Role: role, Content: content, Timestamp: time.Now()})
}

// LastUserMessage returns the most recent user-role message, and whether
// one exists.
func (s *ChatSession) LastUserMessage() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleUser {
			return s.History[i], true
		}
	}
	return Message{}, false
}

// RecentMessages returns (a copy of) the last n messages, oldest first.
func (s *ChatSession) RecentMessages(n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.History) {
		out := make([]Message, len(s.History))
		copy(out, s.History)
		return out
	}
	out := make([]Message, n)
	copy(out, s.History[len(s.History)-n:])
	return out
}

// MergeVariables writes each extracted value, returning the set of names
// that were newly populated this call (used to emit one variable_extracted
// event per new value, SPEC_FULL §4.6 step 4).
func (s *ChatSession) MergeVariables(extracted map[string]any) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newNames []string
	for k, v := range extracted {
		if _, exists := s.ExtractedVariables[k]; !exists {
			newNames = append(newNames, k)
		}
		s.ExtractedVariables[k] = v
	}
	return newNames
}

// Variables returns a copy of the accumulated extracted variables.
func (s *ChatSession) Variables() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.ExtractedVariables))
	for k, v := range s.ExtractedVariables {
		out[k] = v
	}
	return out
}

// MissingRequired returns the names among required that are absent from
// ExtractedVariables, in the order given (SPEC_FULL §4.3 step 7).
func (s *ChatSession) MissingRequired(required []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	for _, name := range required {
		if _, ok := s.ExtractedVariables[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Reset replaces SessionID with a freshly generated one and clears history
// and variables, satisfying the law `new_session_id != old_session_id`
// (SPEC_FULL §8).
func (s *ChatSession) Reset(firstNodeID string) (oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldID = s.SessionID
	newID = idgen.New()
	s.SessionID = newID
	s.CurrentNodeID = firstNodeID
	s.PreviousNodeID = ""
	s.History = make([]Message, 0)
	s.ExtractedVariables = make(map[string]any)
	return oldID, newID
}
