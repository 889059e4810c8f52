// Package loopeval implements the Loop Evaluator (SPEC_FULL §4.5), ported
// from original_source's app/core/loop_evaluator.py: checked after variable
// extraction and before pathway selection, it asks the LLM whether a node's
// loop_condition still holds and parses a LOOP/PROCEED answer, defaulting to
// PROCEED whenever anything is ambiguous or fails — never risk an infinite
// loop on an LLM hiccup.
package loopeval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"easypath/internal/flow"
	"easypath/internal/llmclient"
	"easypath/internal/session"
)

const historyWindow = 6

// Result carries the decision plus the diagnostic fields the decision_step
// event surfaces (SPEC_FULL §5).
type Result struct {
	ShouldLoop   bool
	Reasoning    string
	ConditionMet bool
}

// Evaluator asks the LLM whether a node's loop condition still holds.
type Evaluator struct {
	LLM llmclient.LLMClient
}

// New constructs an Evaluator.
func New(llm llmclient.LLMClient) *Evaluator {
	return &Evaluator{LLM: llm}
}

// ShouldLoop decides whether node, whose loop_enabled/loop_condition are
// read from node, should keep sess on the current node rather than proceed.
func (e *Evaluator) ShouldLoop(ctx context.Context, node *flow.Node, sess *session.ChatSession) Result {
	if !node.LoopEnabled {
		return Result{ShouldLoop: false}
	}
	if strings.TrimSpace(node.LoopCondition) == "" {
		return Result{ShouldLoop: false}
	}

	prompt := buildPrompt(node, sess)
	result, err := e.LLM.Chat(ctx, []llmclient.Message{llmclient.System(prompt)}, 0.1)
	if err != nil {
		slog.WarnContext(ctx, "loop evaluation LLM call failed, proceeding", "node", node.ID, "error", err)
		return Result{ShouldLoop: false}
	}

	shouldLoop := parseResponse(result.Content)
	return Result{ShouldLoop: shouldLoop, Reasoning: result.Content, ConditionMet: shouldLoop}
}

func buildPrompt(node *flow.Node, sess *session.ChatSession) string {
	recent := sess.RecentMessages(historyWindow)
	var history strings.Builder
	for i, m := range recent {
		if i > 0 {
			history.WriteByte('\n')
		}
		fmt.Fprintf(&history, "%s: %s", strings.ToUpper(string(m.Role)), m.Content)
	}

	var vars strings.Builder
	if extracted := sess.Variables(); len(extracted) > 0 {
		vars.WriteString("\nEXTRACTED VARIABLES:\n")
		for name, val := range extracted {
			fmt.Fprintf(&vars, "- %s: %v\n", name, val)
		}
	}

	return fmt.Sprintf(`You are evaluating whether a conversation flow should LOOP (stay on current node) or PROCEED (move to next node).

LOOP CONDITION TO EVALUATE:
%s

RECENT CONVERSATION:
%s
%s

INSTRUCTIONS:
1. Carefully read the loop condition
2. Analyze the recent conversation and extracted variables
3. Determine if the condition for looping is STILL TRUE (should keep looping)
4. Answer with ONLY one word: "LOOP" or "PROCEED"

IMPORTANT:
- "LOOP" means the condition is still met and we should stay on this node
- "PROCEED" means the condition is no longer met and we should move forward
- If in doubt, answer "PROCEED" to avoid infinite loops

YOUR ANSWER (one word only):`, node.LoopCondition, history.String(), vars.String())
}

func parseResponse(response string) bool {
	cleaned := strings.ToUpper(strings.TrimSpace(response))
	if cleaned == "" {
		return false
	}
	hasLoop := strings.Contains(cleaned, "LOOP")
	hasProceed := strings.Contains(cleaned, "PROCEED")
	if hasLoop && !hasProceed {
		return true
	}
	return false
}
