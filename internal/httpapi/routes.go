// Package httpapi is the control plane (SPEC_FULL §6): chat/flow execution
// endpoints, bot/session/variable CRUD, and platform webhook intake, all on
// stdlib net/http + http.ServeMux's Go 1.22+ pattern routing. Grounded in
// the teacher's pkg/channels/web/web_channel.go mux.HandleFunc/http.Server
// construction — no pack repo reaches for a third-party router, so none is
// introduced here either.
package httpapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"easypath/internal/adapter"
	"easypath/internal/adapter/telegram"
	"easypath/internal/flow"
	"easypath/internal/orchestrator"
	"easypath/internal/realtime"
	"easypath/internal/session"
	"easypath/internal/store"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wires every control-plane dependency into one http.Handler.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     session.Store
	Store        *store.Repository
	Hub          *realtime.Hub
	Realtime     *realtime.Server
	Telegram     *adapter.Adapter
	Credentials  *store.CredentialBox
	FlowsDir     string

	telegramMu       sync.Mutex
	telegramChannels map[string]*telegram.Channel
}

// NewServer constructs a Server from its dependencies, with its internal
// telegram-channel cache initialized.
func NewServer(orch *orchestrator.Orchestrator, sessions session.Store, repo *store.Repository, hub *realtime.Hub, rt *realtime.Server, tg *adapter.Adapter, creds *store.CredentialBox, flowsDir string) *Server {
	return &Server{
		Orchestrator:     orch,
		Sessions:         sessions,
		Store:            repo,
		Hub:              hub,
		Realtime:         rt,
		Telegram:         tg,
		Credentials:      creds,
		FlowsDir:         flowsDir,
		telegramChannels: make(map[string]*telegram.Channel),
	}
}

// middleware is the idiomatic Go equivalent of a decorator chain (§9
// "Decorator-based routing" design note): small functions wrapping a
// handler, applied in Handler below.
type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("httpapi: request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("httpapi: panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Handler builds the full ServeMux with every route named in SPEC_FULL §6.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/", s.handleHealth)

	mux.HandleFunc("POST /chat/message", s.handleChatMessage)
	mux.HandleFunc("POST /chat/message-with-flow", s.handleChatMessageWithFlow)
	mux.HandleFunc("GET /flow/load", s.handleFlowLoad)

	mux.HandleFunc("POST /bots", s.handleCreateBot)
	mux.HandleFunc("GET /bots", s.handleListBots)
	mux.HandleFunc("GET /bots/{id}", s.handleGetBot)
	mux.HandleFunc("PUT /bots/{id}", s.handleUpdateBot)
	mux.HandleFunc("DELETE /bots/{id}", s.handleDeleteBot)
	mux.HandleFunc("POST /bots/update-webhooks", s.handleUpdateWebhooks)

	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/close", s.handleCloseSession)
	mux.HandleFunc("POST /sessions/{id}/reset", s.handleResetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("GET /variables/conversations/{id}", s.handleVariablesByConversation)
	mux.HandleFunc("GET /variables/bots/{id}", s.handleVariablesByBot)
	mux.HandleFunc("GET /variables/bots/{id}/summary", s.handleVariablesBotSummary)
	mux.HandleFunc("GET /variables/flows/{id}", s.handleVariablesByFlow)
	mux.HandleFunc("GET /variables/search", s.handleVariablesSearch)

	mux.HandleFunc("POST /webhooks/telegram/{bot_config_id}", s.handleTelegramWebhook)

	mux.HandleFunc("GET /ws", s.Realtime.HandleWebSocket)

	return chain(mux, recoverPanics, logRequests)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFlowLoad(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	f, err := flow.LoadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}
