package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"easypath/internal/flow"
	"easypath/internal/idgen"
	"easypath/internal/orchestrator"
	"easypath/internal/session"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

const maxAutoAdvance = 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundMessage is the client -> server frame shape of SPEC_FULL §4.7's
// `user_message { message, flow_data }` contract.
type inboundMessage struct {
	Type     string                `json:"type"`
	Message  string                `json:"message"`
	FlowData jsoniter.RawMessage   `json:"flow_data,omitempty"`
}

// Server upgrades HTTP requests to the realtime socket, and drives the
// per-session background task spawned for each inbound user_message, per
// SPEC_FULL §4.7.
type Server struct {
	Hub          *Hub
	Store        session.Store
	Orchestrator *orchestrator.Orchestrator
	PingInterval time.Duration
	ReadGrace    time.Duration

	flowsMu sync.RWMutex
	flows   map[string]*flow.Flow
}

// NewServer constructs a Server. hub and store must be non-nil.
func NewServer(hub *Hub, store session.Store, orch *orchestrator.Orchestrator, pingInterval, readGrace time.Duration) *Server {
	return &Server{
		Hub:          hub,
		Store:        store,
		Orchestrator: orch,
		PingInterval: pingInterval,
		ReadGrace:    readGrace,
		flows:        make(map[string]*flow.Flow),
	}
}

// HandleWebSocket upgrades r and runs the per-socket accept/read loop for
// the session id named by the "session_id" query parameter.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = idgen.New()
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("realtime: upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: raw}

	s.Hub.Connect(conn, sessionID)
	defer func() {
		s.Hub.Disconnect(conn, sessionID)
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go Heartbeat(ctx, conn, s.PingInterval)

	deadline := s.PingInterval + s.ReadGrace
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))

		if IsPong(raw) {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("realtime: malformed inbound frame", "session", sessionID, "error", err)
			continue
		}

		switch msg.Type {
		case "user_message":
			go s.processUserMessage(sessionID, msg)
		default:
			slog.Warn("realtime: unrecognized inbound message type, ignoring", "type", msg.Type)
		}
	}
}

// processUserMessage is the background task SPEC_FULL §4.7 describes: load
// or create the session, run one orchestrator step, auto-advance up to 10
// times while the newly-entered node has skip_user_response, then persist.
func (s *Server) processUserMessage(sessionID string, msg inboundMessage) {
	f := s.cachedFlow(sessionID, msg.FlowData)
	if f == nil {
		slog.Error("realtime: no flow available for session", "session", sessionID)
		return
	}

	sess, ok, err := s.Store.Load(sessionID)
	if err != nil {
		slog.Error("realtime: failed to load session", "session", sessionID, "error", err)
		return
	}
	if !ok {
		sess = session.New(sessionID, f.FirstNodeID)
	}

	userInput := msg.Message
	advances := 0
	for {
		reply, _, err := s.Orchestrator.RunStep(context.Background(), f, sess, userInput, s.Hub)
		if err != nil {
			slog.Error("realtime: run_step failed", "session", sessionID, "error", err)
			break
		}
		_ = reply

		node := f.Node(sess.CurrentNodeID)
		if node == nil || !node.SkipUserResponse || advances >= maxAutoAdvance {
			break
		}
		advances++
		userInput = "[AUTO_ADVANCE]"
	}

	if err := s.Store.Save(sess); err != nil {
		slog.Error("realtime: failed to save session", "session", sessionID, "error", err)
	}

	s.Hub.Emit(orchestrator.Event{
		Kind:      orchestrator.MessageProcessingComplete,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"auto_advances": advances},
	})
}

func (s *Server) cachedFlow(sessionID string, flowData jsoniter.RawMessage) *flow.Flow {
	if len(flowData) > 0 {
		if f, err := flow.Convert(flowData); err == nil {
			s.flowsMu.Lock()
			s.flows[sessionID] = f
			s.flowsMu.Unlock()
			return f
		} else {
			slog.Warn("realtime: invalid flow_data, falling back to cached flow", "session", sessionID, "error", err)
		}
	}
	s.flowsMu.RLock()
	defer s.flowsMu.RUnlock()
	return s.flows[sessionID]
}
