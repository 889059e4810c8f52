package httpapi

import (
	"net/http"

	"easypath/internal/extractor"
	"easypath/internal/store"
)

type variableEntry struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Value       any    `json:"value"`
}

func toVariableEntries(vars map[string]store.ExtractedVariable) []variableEntry {
	out := make([]variableEntry, 0, len(vars))
	for name, v := range vars {
		out = append(out, variableEntry{Name: name, DisplayName: extractor.DisplayName(name), Value: v.Value})
	}
	return out
}

// handleVariablesByConversation implements `GET /variables/conversations/{id}`.
func (s *Server) handleVariablesByConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	convs := s.Store.ListConversations()
	for _, c := range convs {
		if c.ID != id {
			continue
		}
		writeJSON(w, http.StatusOK, toVariableEntries(s.Store.VariablesFor(c.SessionID)))
		return
	}
	writeError(w, http.StatusNotFound, "conversation not found")
}

// handleVariablesByBot implements `GET /variables/bots/{id}`: every
// extracted variable across every conversation owned by that bot.
func (s *Server) handleVariablesByBot(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	var out []variableEntry
	for _, c := range s.Store.ListConversations() {
		if c.BotConfigID != botID {
			continue
		}
		out = append(out, toVariableEntries(s.Store.VariablesFor(c.SessionID))...)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleVariablesBotSummary implements `GET /variables/bots/{id}/summary`:
// variable names and the count of conversations where each was captured.
func (s *Server) handleVariablesBotSummary(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	counts := make(map[string]int)
	for _, c := range s.Store.ListConversations() {
		if c.BotConfigID != botID {
			continue
		}
		for name := range s.Store.VariablesFor(c.SessionID) {
			counts[name]++
		}
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleVariablesByFlow implements `GET /variables/flows/{id}`: every
// extracted variable across every bot bound to that flow.
func (s *Server) handleVariablesByFlow(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")
	bots := make(map[string]bool)
	for _, b := range s.Store.ListBotConfigs() {
		if b.FlowID == flowID {
			bots[b.ID] = true
		}
	}

	var out []variableEntry
	for _, c := range s.Store.ListConversations() {
		if !bots[c.BotConfigID] {
			continue
		}
		out = append(out, toVariableEntries(s.Store.VariablesFor(c.SessionID))...)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleVariablesSearch implements
// `GET /variables/search?variable_name=…&variable_value=…&bot_id=…`.
func (s *Server) handleVariablesSearch(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("variable_name")
	value := r.URL.Query().Get("variable_value")
	botID := r.URL.Query().Get("bot_id")

	var out []variableEntry
	for _, c := range s.Store.ListConversations() {
		if botID != "" && c.BotConfigID != botID {
			continue
		}
		for vname, v := range s.Store.VariablesFor(c.SessionID) {
			if name != "" && vname != name {
				continue
			}
			if value != "" && toStringValue(v.Value) != value {
				continue
			}
			out = append(out, variableEntry{Name: vname, DisplayName: extractor.DisplayName(vname), Value: v.Value})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func toStringValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
