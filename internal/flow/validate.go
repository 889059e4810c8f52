package flow

import (
	"fmt"
	"strings"
)

// Validate checks the structural invariants named in SPEC_FULL §3: every
// connection's source/target resolves to an existing node, and labels
// among connections sharing the same source are distinct after case-folding.
func Validate(f *Flow) error {
	ids := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return fmt.Errorf("flow: node with empty id")
		}
		ids[n.ID] = true
	}

	if f.FirstNodeID != "" && !ids[f.FirstNodeID] {
		return fmt.Errorf("flow: first_node_id %q does not resolve to a node", f.FirstNodeID)
	}

	labelsBySource := make(map[string]map[string]bool)
	for _, c := range f.Connections {
		if !ids[c.Source] {
			return fmt.Errorf("flow: connection %q source %q does not resolve to a node", c.ID, c.Source)
		}
		if !ids[c.Target] {
			return fmt.Errorf("flow: connection %q target %q does not resolve to a node", c.ID, c.Target)
		}
		folded := strings.ToLower(c.Label)
		if labelsBySource[c.Source] == nil {
			labelsBySource[c.Source] = make(map[string]bool)
		}
		if labelsBySource[c.Source][folded] {
			return fmt.Errorf("flow: duplicate connection label %q from source %q", c.Label, c.Source)
		}
		labelsBySource[c.Source][folded] = true
	}

	return nil
}
