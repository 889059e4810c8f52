package httpapi

import (
	"context"
	"net/http"

	"easypath/internal/flow"
	"easypath/internal/session"

	jsoniter "github.com/json-iterator/go"
)

type chatMessageRequest struct {
	SessionID   string              `json:"session_id"`
	FlowPath    string              `json:"flow_path"`
	UserMessage string              `json:"user_message"`
}

type chatMessageWithFlowRequest struct {
	SessionID   string              `json:"session_id"`
	Flow        jsoniter.RawMessage `json:"flow"`
	UserMessage string              `json:"user_message"`
}

type chatMessageResponse struct {
	Reply         string  `json:"reply"`
	CurrentNodeID string  `json:"current_node_id"`
	TimingMs      float64 `json:"timing_ms,omitempty"`
}

// handleChatMessage implements `POST /chat/message` (SPEC_FULL §6): loads
// the flow from disk by path, runs one orchestrator step.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.FlowPath == "" {
		writeError(w, http.StatusBadRequest, "session_id and flow_path are required")
		return
	}

	f, err := flow.LoadFile(req.FlowPath)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.runChatStep(w, r.Context(), f, req.SessionID, req.UserMessage)
}

// handleChatMessageWithFlow implements `POST /chat/message-with-flow`: same
// as handleChatMessage but with an inline flow document.
func (s *Server) handleChatMessageWithFlow(w http.ResponseWriter, r *http.Request) {
	var req chatMessageWithFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || len(req.Flow) == 0 {
		writeError(w, http.StatusBadRequest, "session_id and flow are required")
		return
	}

	f, err := flow.Convert(req.Flow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.runChatStep(w, r.Context(), f, req.SessionID, req.UserMessage)
}

func (s *Server) runChatStep(w http.ResponseWriter, ctx context.Context, f *flow.Flow, sessionID, userMessage string) {
	sess, ok, err := s.Sessions.Load(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !ok {
		sess = session.New(sessionID, f.FirstNodeID)
	}

	reply, timings, err := s.Orchestrator.RunStep(ctx, f, sess, userMessage, s.Hub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to execute step")
		return
	}

	if err := s.Sessions.Save(sess); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	writeJSON(w, http.StatusOK, chatMessageResponse{
		Reply:         reply,
		CurrentNodeID: sess.CurrentNodeID,
		TimingMs:      float64(timings.Total.Microseconds()) / 1000,
	})
}
