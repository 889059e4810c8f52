// Package realtime implements the Event Bus / WebSocket Hub (SPEC_FULL
// §4.7): server-side fan-out of orchestrator Events to zero or more sockets
// registered against a session id. Ported from the connection-management
// shape of original_source's app/ws/manager.py ConnectionManager, with the
// socket-handling idiom (SafeConn, accept loop) taken from the teacher's
// pkg/channels/web/web_channel.go.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"easypath/internal/orchestrator"
	"easypath/internal/session"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SafeConn serializes concurrent writers against one socket — a hub may
// fan an event out to many sockets, and a heartbeat task writes to the same
// socket concurrently with event delivery.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

// Snapshot is the full-state payload sent once on initial connect when the
// session is already persisted (SPEC_FULL §4.7).
type Snapshot struct {
	CurrentNodeID string             `json:"current_node_id"`
	Variables     map[string]any     `json:"variables"`
	History       []session.Message  `json:"history"`
	IsActive      bool               `json:"is_active"`
}

// SnapshotFunc resolves a session id to the snapshot to emit on connect.
type SnapshotFunc func(sessionID string) (*Snapshot, bool)

// Hub fans orchestrator Events out to every socket registered against a
// session, and implements orchestrator.Sink so an Orchestrator can emit
// directly into it.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*SafeConn]bool

	snapshotFn SnapshotFunc
}

// New constructs a Hub. snapshotFn may be nil if snapshots are never sent.
func New(snapshotFn SnapshotFunc) *Hub {
	return &Hub{
		connections: make(map[string]map[*SafeConn]bool),
		snapshotFn:  snapshotFn,
	}
}

// Connect registers conn against sessionID, emits session_started, and — if
// a persisted session exists — one full-state snapshot, per SPEC_FULL §4.7.
func (h *Hub) Connect(conn *SafeConn, sessionID string) {
	h.mu.Lock()
	if h.connections[sessionID] == nil {
		h.connections[sessionID] = make(map[*SafeConn]bool)
	}
	h.connections[sessionID][conn] = true
	h.mu.Unlock()

	slog.Info("realtime: connected", "session", sessionID)

	_ = conn.WriteJSON(orchestrator.Event{
		Kind:      orchestrator.SessionStarted,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Metadata:  map[string]any{},
	})

	if h.snapshotFn == nil {
		return
	}
	if snap, ok := h.snapshotFn(sessionID); ok {
		_ = conn.WriteJSON(map[string]any{"type": "snapshot", "session_id": sessionID, "data": snap})
	}
}

// Disconnect removes conn from sessionID's set, deleting the set once empty.
func (h *Hub) Disconnect(conn *SafeConn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.connections[sessionID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, sessionID)
	}
	slog.Info("realtime: disconnected", "session", sessionID)
}

// Emit implements orchestrator.Sink: it writes event to every socket
// registered for event.SessionID, dropping (and unregistering) any socket
// whose write fails.
func (h *Hub) Emit(event orchestrator.Event) {
	h.mu.RLock()
	set := h.connections[event.SessionID]
	conns := make([]*SafeConn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		slog.Debug("realtime: no subscribers", "session", event.SessionID, "type", event.Kind)
		return
	}

	var dead []*SafeConn
	for _, c := range conns {
		if err := c.WriteJSON(event); err != nil {
			slog.Warn("realtime: write failed, dropping socket", "session", event.SessionID, "error", err)
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Disconnect(c, event.SessionID)
	}
}

// HasListeners reports whether sessionID currently has any registered
// socket.
func (h *Hub) HasListeners(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID]) > 0
}
