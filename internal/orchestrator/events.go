// Package orchestrator implements the Orchestrator (SPEC_FULL §4.6):
// run_step composes the Variable Extractor, Loop Evaluator, Pathway
// Selector, and response generation into one turn, emitting the tagged
// Event variants of SPEC_FULL §3/§4.7 along the way. Ported from
// original_source's app/core/orchestrator.py and app/core/flow_executor.py.
package orchestrator

import (
	"time"
)

// Kind enumerates the tagged Event variants named in SPEC_FULL §3.
type Kind string

const (
	SessionStarted             Kind = "session_started"
	SessionEnded                Kind = "session_ended"
	NodeEntered                 Kind = "node_entered"
	NodeExited                  Kind = "node_exited"
	PathwaySelected             Kind = "pathway_selected"
	VariableExtracted           Kind = "variable_extracted"
	ResponseGenerated           Kind = "response_generated"
	UserMessage                 Kind = "user_message"
	AssistantMessage            Kind = "assistant_message"
	MessageProcessingComplete   Kind = "message_processing_complete"
	DecisionStep                Kind = "decision_step"
	ErrorEvent                  Kind = "error"
)

// Event is the tagged record produced during a turn and consumed by zero or
// more realtime subscribers; SPEC_FULL §3 requires session_id, timestamp,
// and metadata on every instance.
type Event struct {
	Kind      Kind           `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

func newEvent(kind Kind, sessionID string, metadata map[string]any) Event {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Event{Kind: kind, SessionID: sessionID, Timestamp: time.Now(), Metadata: metadata}
}

// Sink receives events produced during a run_step call, in emission order.
// An orchestrator.Orchestrator never mutates session state through a Sink —
// it is a pure fan-out hook (SPEC_FULL §3 ownership rule).
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards every event.
var NopSink Sink = SinkFunc(func(Event) {})
