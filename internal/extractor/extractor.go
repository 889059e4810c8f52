// Package extractor implements the Variable Extractor (SPEC_FULL §4.3),
// ported from original_source's app/core/variable_extractor.py: build an
// extraction prompt naming each configured variable, call the LLM once (with
// retries when the call fails, the reply is empty or it does not parse), and
// parse its JSON reply into validated values.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"easypath/internal/flow"
	"easypath/internal/llmclient"
	"easypath/internal/session"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxUserMessageLength = 10000
	maxExtractedValueLen = 1000
)

// Extractor calls an LLMClient to pull node.ExtractVars out of the user's
// last message.
type Extractor struct {
	LLM        llmclient.LLMClient
	MaxRetries int
}

// New constructs an Extractor.
func New(llm llmclient.LLMClient, maxRetries int) *Extractor {
	return &Extractor{LLM: llm, MaxRetries: maxRetries}
}

// Extract returns the variables node.ExtractVars asks for, found in the
// session's most recent user message. An empty map (never an error) is
// returned whenever nothing can be extracted — extraction failure is
// recoverable, per SPEC_FULL §4.3.
func (e *Extractor) Extract(ctx context.Context, node *flow.Node, sess *session.ChatSession) map[string]any {
	if len(node.ExtractVars) == 0 {
		return map[string]any{}
	}

	last, ok := sess.LastUserMessage()
	if !ok || !validUserInput(last.Content) {
		return map[string]any{}
	}

	prompt := buildPrompt(node.ExtractVars, last.Content, sess.Variables())

	var lastErr error
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		result, err := e.LLM.Chat(ctx, []llmclient.Message{llmclient.System(prompt)}, 0.1)
		if err != nil {
			lastErr = err
			slog.WarnContext(ctx, "extraction LLM call failed", "attempt", attempt+1, "error", err)
			continue
		}
		if strings.TrimSpace(result.Content) == "" {
			lastErr = fmt.Errorf("empty extraction response")
			continue
		}

		extracted, perr := parseResponse(result.Content, node.ExtractVars)
		if perr != nil {
			lastErr = perr
			slog.WarnContext(ctx, "extraction response parse failed", "attempt", attempt+1, "error", perr)
			continue
		}
		return extracted
	}

	if lastErr != nil {
		slog.ErrorContext(ctx, "variable extraction exhausted retries", "node", node.ID, "error", lastErr)
	}
	return map[string]any{}
}

// ShouldContinue reports whether any of node's required variables remain
// unextracted, per SPEC_FULL §4.3 step 7.
func ShouldContinue(node *flow.Node, extracted map[string]any) bool {
	for _, v := range node.ExtractVars {
		if !v.Required {
			continue
		}
		if _, ok := extracted[v.Name]; !ok {
			return true
		}
	}
	return false
}

func validUserInput(msg string) bool {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return false
	}
	if len(msg) > maxUserMessageLength {
		return false
	}
	return true
}

func buildPrompt(vars []flow.VariableExtraction, userMessage string, previous map[string]any) string {
	var b strings.Builder
	b.WriteString("You are a precise information extractor. Your task is to extract specific information from the user's message.\n\n")
	fmt.Fprintf(&b, "USER MESSAGE:\n\"%s\"\n\n", sanitize(userMessage))
	b.WriteString("VARIABLES TO EXTRACT:\n")
	for _, v := range vars {
		req := "OPTIONAL"
		if v.Required {
			req = "REQUIRED"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", v.Name, req, v.Description)
	}

	if len(previous) > 0 {
		b.WriteString("\nPREVIOUSLY EXTRACTED VARIABLES:\n")
		for name, val := range previous {
			fmt.Fprintf(&b, "- %s: %v\n", name, val)
		}
	}

	b.WriteString(`
INSTRUCTIONS:
1. Extract only the requested information from the user's message
2. If information is not present or clear, do not invent it
3. For required variables not found, use "NOT_FOUND"
4. For optional variables not found, use "NOT_PROVIDED"
5. Be precise and extract exactly what is stated, not what you think is implied
6. Return ONLY a valid JSON object, nothing else

RESPONSE FORMAT (only JSON, no markdown, no explanations):
{
"variable_name": "extracted_value",
"another_variable": "another_value"
}

RESPONSE:`)

	return b.String()
}

func sanitize(text string) string {
	text = strings.ReplaceAll(text, `"`, `\"`)
	text = strings.ReplaceAll(text, `'`, `\'`)
	return text
}

func parseResponse(response string, vars []flow.VariableExtraction) (map[string]any, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no valid JSON found in extraction response")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in extraction response: %w", err)
	}

	extracted := make(map[string]any)
	for _, v := range vars {
		rawValue, present := raw[v.Name]
		if !present || rawValue == nil {
			continue
		}
		if s, ok := rawValue.(string); ok && (s == "NOT_FOUND" || s == "NOT_PROVIDED") {
			continue
		}

		cleaned := strings.TrimSpace(fmt.Sprintf("%v", rawValue))
		if cleaned == "" {
			continue
		}
		if !validExtractedValue(v, cleaned) {
			continue
		}
		extracted[v.Name] = cleaned
	}
	return extracted, nil
}

func validExtractedValue(v flow.VariableExtraction, value string) bool {
	if len(value) > maxExtractedValueLen {
		return false
	}

	nameLower := strings.ToLower(v.Name)

	if strings.Contains(nameLower, "email") {
		if !strings.Contains(value, "@") || !strings.Contains(value, ".") {
			return false
		}
	}

	if strings.Contains(nameLower, "phone") || strings.Contains(nameLower, "telefone") {
		digits := 0
		for _, r := range value {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits < 8 {
			return false
		}
	}

	if strings.Contains(nameLower, "age") || strings.Contains(nameLower, "idade") {
		age, err := strconv.Atoi(value)
		if err != nil || age < 0 || age > 150 {
			return false
		}
	}

	return true
}

// DisplayName renders an ExtractedVariable's stored key for human-facing
// views — purely cosmetic, never re-stored (SPEC_FULL open question
// resolution in DESIGN.md).
func DisplayName(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.TrimPrefix(name, "user ")
	name = strings.TrimSpace(name)
	words := strings.Fields(name)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
