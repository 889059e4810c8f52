package httpapi

import (
	"net/http"
)

type sessionResponse struct {
	SessionID      string         `json:"session_id"`
	CurrentNodeID  string         `json:"current_node_id"`
	PreviousNodeID string         `json:"previous_node_id,omitempty"`
	Variables      map[string]any `json:"variables"`
	MessageCount   int            `json:"message_count"`
}

// handleListSessions implements `GET /sessions` — a shallow view over every
// conversation the store knows about, since sessions themselves don't carry
// a standalone listable index (they live keyed by id in the Session Store).
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	convs := s.Store.ListConversations()
	out := make([]sessionResponse, 0, len(convs))
	for _, c := range convs {
		sess, ok, err := s.Sessions.Load(c.SessionID)
		if err != nil || !ok {
			continue
		}
		out = append(out, sessionResponse{
			SessionID:      sess.SessionID,
			CurrentNodeID:  sess.CurrentNodeID,
			PreviousNodeID: sess.PreviousNodeID,
			Variables:      sess.Variables(),
			MessageCount:   len(sess.History),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetSession implements `GET /sessions/{id}`.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok, err := s.Sessions.Load(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:      sess.SessionID,
		CurrentNodeID:  sess.CurrentNodeID,
		PreviousNodeID: sess.PreviousNodeID,
		Variables:      sess.Variables(),
		MessageCount:   len(sess.History),
	})
}

// handleCloseSession implements `POST /sessions/{id}/close`: marks the
// backing conversation (if any) inactive; the engine session itself is left
// intact so late messages can still be inspected.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if conv, ok := s.Store.ConversationBySession(id); ok {
		if err := s.Store.SetConversationStatus(conv.ID, "inactive"); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to close session")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// handleResetSession implements `POST /sessions/{id}/reset`: generates a
// fresh session id and purges message history, per SPEC_FULL §6/§4.2.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok, err := s.Sessions.Load(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	oldID, _ := sess.Reset(sess.CurrentNodeID)
	if err := s.Sessions.Save(sess); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save reset session")
		return
	}
	if err := s.Sessions.Clear(oldID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to purge old session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.SessionID})
}

// handleDeleteSession implements `DELETE /sessions/{id}`.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Sessions.Clear(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
