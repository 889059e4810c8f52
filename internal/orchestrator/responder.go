package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"easypath/internal/flow"
	"easypath/internal/llmclient"
	"easypath/internal/session"
)

// generateResponse composes the "sandwich" prompt of SPEC_FULL §4.6 step 8 —
// system global+node directive, full conversation history, then a short
// reinforcement of the node's objective — and calls the LLM once at the
// node's configured temperature. Ported from
// original_source's app/core/flow_executor.py generate_response.
func generateResponse(ctx context.Context, llm llmclient.LLMClient, f *flow.Flow, sess *session.ChatSession, nodeID string) (string, error) {
	node := f.Node(nodeID)
	if node == nil {
		return "", fmt.Errorf("orchestrator: unknown node %q", nodeID)
	}

	vars := sess.Variables()
	systemPrompt := formatSystemPrompt(f, node, vars)
	reinforcement := formatReinforcement(node, vars)

	messages := make([]llmclient.Message, 0, len(sess.RecentMessages(1<<20))+2)
	messages = append(messages, llmclient.System(systemPrompt))
	for _, m := range sess.RecentMessages(1 << 20) {
		switch m.Role {
		case session.RoleAssistant:
			messages = append(messages, llmclient.Assistant(m.Content))
		case session.RoleSystem:
			messages = append(messages, llmclient.System(m.Content))
		default:
			messages = append(messages, llmclient.User(m.Content))
		}
	}
	messages = append(messages, llmclient.System(reinforcement))

	result, err := llm.Chat(ctx, messages, node.Temperature)
	if err != nil {
		return "", fmt.Errorf("orchestrator: generate response: %w", err)
	}
	return result.Content, nil
}

func formatSystemPrompt(f *flow.Flow, node *flow.Node, vars map[string]any) string {
	globalPrompt := fmt.Sprintf(
		"Overall conversation objective: %s\nConversation tone/approach: %s\nConversation language: %s\nVirtual agent behaviour: %s\nGlobal values: %s",
		flow.Substitute(f.Objective, vars),
		flow.Substitute(f.Tone, vars),
		flow.Substitute(f.Language, vars),
		flow.Substitute(f.Behaviour, vars),
		flow.Substitute(f.Values, vars),
	)

	nodePrompt := fmt.Sprintf(
		"\n**CRITICAL INSTRUCTIONS - FOLLOW STRICTLY:**\n\n"+
			"MANDATORY OBJECTIVE FOR YOUR NEXT RESPONSE:\n'%s'\n\n"+
			"Context: %s\nNotes: %s\nExample responses: %s\n\n"+
			"ABSOLUTE RULES:\n"+
			"1. Your response must follow EXACTLY the objective above\n"+
			"2. Do NOT invent different questions or topics\n"+
			"3. Do NOT follow implicit patterns from the prior conversation\n"+
			"4. Do NOT create content outside the specified objective\n"+
			"5. If the objective says 'ask X', ask EXACTLY X\n"+
			"\nAny deviation from the objective above is strictly FORBIDDEN.",
		flow.Substitute(node.Prompt.Objective, vars),
		flow.Substitute(node.Prompt.Context, vars),
		flow.Substitute(node.Prompt.Notes, vars),
		flow.Substitute(node.Prompt.Examples, vars),
	)

	if len(node.Prompt.CustomFields) > 0 {
		var custom strings.Builder
		for name, value := range node.Prompt.CustomFields {
			fmt.Fprintf(&custom, "\n%s: %s", name, flow.Substitute(value, vars))
		}
		nodePrompt += custom.String()
	}

	return fmt.Sprintf("%s\n-------------------------------\n%s%s", globalPrompt, nodePrompt, formatVariablesContext(vars))
}

func formatReinforcement(node *flow.Node, vars map[string]any) string {
	objective := flow.Substitute(node.Prompt.Objective, vars)
	return fmt.Sprintf(
		"ATTENTION: your next response must follow EXACTLY this objective:\n'%s'\n\n"+
			"Do NOT invent different questions. Do NOT follow patterns from the prior conversation. "+
			"Respond ONLY according to the objective above.", objective)
}

func formatVariablesContext(vars map[string]any) string {
	if len(vars) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n=== USER INFORMATION ===\n")
	for name, value := range vars {
		fmt.Fprintf(&b, "%s: %v\n", name, value)
	}
	b.WriteString("================================\n")
	return b.String()
}
