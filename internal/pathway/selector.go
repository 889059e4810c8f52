// Package pathway implements the Pathway Selector (SPEC_FULL §4.4): ask the
// LLM to name the best outgoing connection in plain text, then resolve that
// free-form answer to one of the node's actual connection labels by fuzzy
// string matching — ported from original_source's
// app/core/pathway_selector.py, which uses fuzzywuzzy's extractOne with
// fuzz.ratio. No repo in the retrieved pack ships a ratio-style fuzzy
// matcher (see DESIGN.md), so github.com/agext/levenshtein substitutes for
// fuzzywuzzy's edit-distance ratio.
package pathway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"easypath/internal/flow"
	"easypath/internal/llmclient"

	"github.com/agext/levenshtein"
)

// Threshold is the minimum similarity score (0-100, matching fuzzywuzzy's
// scale) a fuzzy match must clear to be accepted.
const Threshold = 80

var matchParams = levenshtein.NewParams()

// Selector picks the next node by asking the LLM to name a connection.
type Selector struct {
	LLM llmclient.LLMClient
}

// New constructs a Selector.
func New(llm llmclient.LLMClient) *Selector {
	return &Selector{LLM: llm}
}

// Info carries diagnostic fields surfaced in the pathway_selected event's
// metadata (SPEC_FULL §4.6).
type Info struct {
	RawResponse string
	Score       int
	Accepted    bool
}

// ChooseNext asks the LLM which outgoing connection of currentNodeID best
// fits the conversation so far, and fuzzy-matches its answer against the
// connections' labels. It falls back to currentNodeID (a self-loop) when
// there are no outgoing connections or the LLM call fails. A best match
// scoring below Threshold still advances to its target, with Accepted false
// and a low-confidence warning logged.
func (s *Selector) ChooseNext(ctx context.Context, f *flow.Flow, history []llmclient.Message, currentNodeID string) (string, Info, error) {
	connections := f.ConnectionsFrom(currentNodeID)
	if len(connections) == 0 {
		slog.WarnContext(ctx, "pathway selection: no outgoing connections", "node", currentNodeID)
		return currentNodeID, Info{}, nil
	}

	prompt := formatPrompt(connections)
	messages := append(append([]llmclient.Message{}, history...), llmclient.System(prompt))

	result, err := s.LLM.Chat(ctx, messages, 0.3)
	if err != nil {
		slog.WarnContext(ctx, "pathway selection: LLM call failed", "node", currentNodeID, "error", err)
		return currentNodeID, Info{}, nil
	}

	response := strings.TrimSpace(result.Content)
	bestLabel, score := extractOne(response, connections)

	info := Info{RawResponse: response, Score: score}
	for _, c := range connections {
		if c.Label == bestLabel {
			if score >= Threshold {
				info.Accepted = true
			} else {
				slog.WarnContext(ctx, "pathway selection: low confidence", "score", score, "threshold", Threshold, "response", response)
			}
			return c.Target, info, nil
		}
	}

	return currentNodeID, info, nil
}

func formatPrompt(connections []flow.Connection) string {
	var opts strings.Builder
	for i, c := range connections {
		fmt.Fprintf(&opts, "\n%d) - Name: %s\nDescription: %s", i+1, c.Label, c.Description)
	}
	return "You must choose the best path to take in this conversation flow.\n" +
		"To do this, analyze the conversation history, especially the last message, and the path options below.\n" +
		"When choosing the best path, return only the name of that path to signal your choice. Do not return any text besides the path name.\n\n" +
		"Path options:" + opts.String()
}

// extractOne mirrors fuzzywuzzy's process.extractOne(response, labels,
// scorer=fuzz.ratio): the label with the highest ratio-similarity to
// response, and its score on a 0-100 scale.
func extractOne(response string, connections []flow.Connection) (string, int) {
	var bestLabel string
	bestScore := -1
	for _, c := range connections {
		score := int(levenshtein.Match(response, c.Label, matchParams) * 100)
		if score > bestScore {
			bestScore = score
			bestLabel = c.Label
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return bestLabel, bestScore
}
