// Package flow implements the immutable Flow/Node/Connection graph model
// described in SPEC_FULL §3, parsed from persisted JSON in either the
// engine's native form or an authoring "canvas" form (§6, converted by
// Convert).
package flow

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NodeType enumerates the kinds a Node may take.
type NodeType string

const (
	NodeStart  NodeType = "start"
	NodeNormal NodeType = "normal"
	NodeGlobal NodeType = "global"
	NodeEnd    NodeType = "end"
)

// Prompt holds the node's directive text and any custom authoring fields.
type Prompt struct {
	Context      string            `json:"context,omitempty"`
	Objective    string            `json:"objective,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Examples     string            `json:"examples,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// VariableExtraction describes one named slot a Node wants extracted from
// the user's utterance.
type VariableExtraction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	VarType     string `json:"var_type,omitempty"`
}

// Node is a single conversational step.
type Node struct {
	ID                     string                `json:"id"`
	NodeType               NodeType              `json:"node_type"`
	Prompt                 Prompt                `json:"prompt"`
	IsStart                bool                  `json:"is_start"`
	IsEnd                  bool                  `json:"is_end"`
	UseLLM                 bool                  `json:"use_llm"`
	IsGlobal               bool                  `json:"is_global"`
	AutoReturnToPrevious   bool                  `json:"auto_return_to_previous"`
	ExtractVars            []VariableExtraction  `json:"extract_vars,omitempty"`
	Temperature            float64               `json:"temperature"`
	SkipUserResponse       bool                  `json:"skip_user_response"`
	LoopEnabled            bool                  `json:"loop_enabled"`
	LoopCondition          string                `json:"loop_condition,omitempty"`
	OverridesGlobalPathway bool                  `json:"overrides_global_pathway"`
}

// Connection is a directed, labelled edge between two Nodes.
type Connection struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	ElseOption  bool   `json:"else_option,omitempty"`
	Source      string `json:"source"`
	Target      string `json:"target"`
}

// Flow is the immutable, shared-read conversational graph.
type Flow struct {
	FirstNodeID string       `json:"first_node_id"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`

	Objective string `json:"objective,omitempty"`
	Tone      string `json:"tone,omitempty"`
	Language  string `json:"language,omitempty"`
	Behaviour string `json:"behaviour,omitempty"`
	Values    string `json:"values,omitempty"`

	nodeIndex map[string]*Node
}

// Prepare builds internal lookup indexes. Called once after Parse/Convert.
func (f *Flow) Prepare() {
	f.nodeIndex = make(map[string]*Node, len(f.Nodes))
	for i := range f.Nodes {
		f.nodeIndex[f.Nodes[i].ID] = &f.Nodes[i]
	}
}

// Node returns the node with the given id, or nil if absent.
func (f *Flow) Node(id string) *Node {
	if f.nodeIndex == nil {
		f.Prepare()
	}
	return f.nodeIndex[id]
}

// GlobalNodes returns every node flagged is_global.
func (f *Flow) GlobalNodes() []*Node {
	var out []*Node
	for i := range f.Nodes {
		if f.Nodes[i].IsGlobal {
			out = append(out, &f.Nodes[i])
		}
	}
	return out
}

// Connection returns the Connection between source and target, if any,
// used by the Orchestrator to recover label/id metadata for emitted events.
func (f *Flow) Connection(source, target string) *Connection {
	for i := range f.Connections {
		if f.Connections[i].Source == source && f.Connections[i].Target == target {
			return &f.Connections[i]
		}
	}
	return nil
}

// ConnectionsFrom returns every Connection whose source is nodeID.
func (f *Flow) ConnectionsFrom(nodeID string) []Connection {
	var out []Connection
	for _, c := range f.Connections {
		if c.Source == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// Parse decodes the engine-native JSON form into a Flow, rejecting unknown
// top-level fields per SPEC_FULL §3 EXPANSION ("Pydantic-style validated
// models").
func Parse(raw jsoniter.RawMessage) (*Flow, error) {
	var known map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &known); err != nil {
		return nil, fmt.Errorf("flow: invalid JSON: %w", err)
	}
	for key := range known {
		if !allowedFlowFields[key] {
			return nil, fmt.Errorf("flow: unrecognized field %q", key)
		}
	}

	var f Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("flow: decode: %w", err)
	}
	f.Prepare()

	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

var allowedFlowFields = map[string]bool{
	"first_node_id": true, "nodes": true, "connections": true,
	"objective": true, "tone": true, "language": true, "behaviour": true, "values": true,
}

// Substitute replaces every occurrence of {{name}} in text with the string
// form of extracted[name], leaving unresolved placeholders literal, per
// SPEC_FULL §4.6 step 8 and §8's substitution law.
func Substitute(text string, extracted map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	var b strings.Builder
	i := 0
	for i < len(text) {
		start := strings.Index(text[i:], "{{")
		if start < 0 {
			b.WriteString(text[i:])
			break
		}
		start += i
		b.WriteString(text[i:start])
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			b.WriteString(text[start:])
			break
		}
		end += start
		name := strings.TrimSpace(text[start+2 : end])
		if val, ok := extracted[name]; ok {
			fmt.Fprintf(&b, "%v", val)
		} else {
			b.WriteString(text[start : end+2])
		}
		i = end + 2
	}
	return b.String()
}
