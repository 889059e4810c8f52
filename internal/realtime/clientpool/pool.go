// Package clientpool implements the WebSocket Client Pool (SPEC_FULL §4.8):
// the upstream-consumer side used by external adapters that drive the
// realtime Hub from their own process. Ported from original_source's
// app/services/engine_ws_client.py EngineWebSocketClient, translating its
// asyncio locks/queues/futures into goroutines, channels, and mutexes.
package clientpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/gorilla/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the health status of one session's connection.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusFailed  Status = "failed"
)

// Health reports a session connection's last-observed state.
type Health struct {
	LastCheckAt time.Time
	LastPingAt  time.Time
	ErrorCount  int
	Status      Status
}

// CleanupMode selects how a connection is torn down.
type CleanupMode int

const (
	// CleanupImmediate tears everything down right away.
	CleanupImmediate CleanupMode = iota
	// CleanupDelayed waits Pool.CleanupDelay and only tears down if no
	// listeners remain, avoiding teardown/reconnect churn.
	CleanupDelayed
)

type sendRequest struct {
	message  string
	flowData jsoniter.RawMessage
	done     chan error
}

type connState struct {
	mu   sync.Mutex
	conn *websocket.Conn

	sendCh chan sendRequest

	listenersMu sync.Mutex
	listeners   map[int]chan string
	nextListener int

	lastFlowSent bool

	health Health

	cancel context.CancelFunc
	done   chan struct{}
}

// Pool maintains at most one outbound connection per session id.
type Pool struct {
	URLFor func(sessionID string) string

	MaxRetries     int
	ConnectTimeout time.Duration
	CleanupDelay   time.Duration

	mu       sync.Mutex
	sessions map[string]*connState
	locks    map[string]*sync.Mutex
}

// New constructs a Pool. urlFor resolves a session id to the upstream
// WebSocket URL to dial.
func New(urlFor func(sessionID string) string, connectTimeout, cleanupDelay time.Duration) *Pool {
	return &Pool{
		URLFor:         urlFor,
		MaxRetries:     3,
		ConnectTimeout: connectTimeout,
		CleanupDelay:   cleanupDelay,
		sessions:       make(map[string]*connState),
		locks:          make(map[string]*sync.Mutex),
	}
}

func (p *Pool) lockFor(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[sessionID] = l
	}
	return l
}

// EnsureConnection returns the existing open connection for sessionID, or
// dials a fresh one with exponential backoff (1s, 2s, 4s) up to
// p.MaxRetries attempts, per SPEC_FULL §4.8.
func (p *Pool) EnsureConnection(ctx context.Context, sessionID string) (*connState, error) {
	lock := p.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	if cs, ok := p.sessions[sessionID]; ok && p.healthy(cs) {
		p.mu.Unlock()
		return cs, nil
	}
	p.mu.Unlock()

	url := p.URLFor(sessionID)
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, p.ConnectTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
		cancel()
		if err == nil {
			cs := p.register(sessionID, conn)
			return cs, nil
		}
		lastErr = err
		slog.Warn("clientpool: dial failed, retrying", "session", sessionID, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("clientpool: connect to %s failed after %d attempts: %w", sessionID, p.MaxRetries, lastErr)
}

func (p *Pool) healthy(cs *connState) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.conn != nil
}

func (p *Pool) register(sessionID string, conn *websocket.Conn) *connState {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &connState{
		conn:      conn,
		sendCh:    make(chan sendRequest, 64),
		listeners: make(map[int]chan string),
		cancel:    cancel,
		done:      make(chan struct{}),
		health:    Health{Status: StatusHealthy, LastCheckAt: time.Now()},
	}

	p.mu.Lock()
	p.sessions[sessionID] = cs
	p.mu.Unlock()

	go p.readLoop(ctx, sessionID, cs)
	go p.sendLoop(ctx, sessionID, cs)
	return cs
}

// readLoop distributes every inbound event to each registered listener
// queue for sessionID, breaking on session_ended/error/
// message_processing_complete, per SPEC_FULL §4.8.
func (p *Pool) readLoop(ctx context.Context, sessionID string, cs *connState) {
	defer p.cleanup(sessionID, cs, CleanupDelayed)

	for {
		_, raw, err := cs.conn.ReadMessage()
		if err != nil {
			cs.mu.Lock()
			cs.health.ErrorCount++
			cs.health.Status = StatusError
			cs.mu.Unlock()
			slog.Warn("clientpool: read failed", "session", sessionID, "error", err)
			return
		}
		cs.mu.Lock()
		cs.health.LastCheckAt = time.Now()
		cs.mu.Unlock()

		var event struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		if event.Type == "ping" {
			cs.mu.Lock()
			_ = cs.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			cs.health.LastPingAt = time.Now()
			cs.mu.Unlock()
			continue
		}

		if event.Type == "assistant_message" {
			cs.listenersMu.Lock()
			for _, ch := range cs.listeners {
				select {
				case ch <- event.Message:
				default:
					slog.Warn("clientpool: listener queue full, dropping message", "session", sessionID)
				}
			}
			cs.listenersMu.Unlock()
		}

		switch event.Type {
		case "session_ended", "error", "message_processing_complete":
			return
		}
	}
}

// sendLoop processes the outbound queue FIFO, guaranteeing in-order
// dispatch even under concurrent SendUserMessage calls.
func (p *Pool) sendLoop(ctx context.Context, sessionID string, cs *connState) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-cs.sendCh:
			payload := map[string]any{"type": "user_message", "message": req.message}
			if len(req.flowData) > 0 || !cs.lastFlowSent {
				payload["flow_data"] = req.flowData
				cs.lastFlowSent = true
			}
			data, err := json.Marshal(payload)
			if err == nil {
				cs.mu.Lock()
				err = cs.conn.WriteMessage(websocket.TextMessage, data)
				cs.mu.Unlock()
			}
			req.done <- err
		}
	}
}

// SendUserMessage enqueues (message, flowData) and blocks until the send
// completes, per SPEC_FULL §4.8.
func (p *Pool) SendUserMessage(ctx context.Context, sessionID, message string, flowData jsoniter.RawMessage) error {
	cs, err := p.EnsureConnection(ctx, sessionID)
	if err != nil {
		return err
	}

	req := sendRequest{message: message, flowData: flowData, done: make(chan error, 1)}
	select {
	case cs.sendCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenForAssistantMessages registers a listener queue for sessionID,
// returning a channel yielding assistant-message texts. The channel is
// closed only by the returned cancel func, which also unregisters it; the
// end of the connection is not signalled on the channel.
func (p *Pool) ListenForAssistantMessages(sessionID string) (<-chan string, func(), error) {
	p.mu.Lock()
	cs, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("clientpool: no connection for session %s", sessionID)
	}

	ch := make(chan string, 16)
	cs.listenersMu.Lock()
	id := cs.nextListener
	cs.nextListener++
	cs.listeners[id] = ch
	cs.listenersMu.Unlock()

	cancel := func() {
		cs.listenersMu.Lock()
		delete(cs.listeners, id)
		remaining := len(cs.listeners)
		cs.listenersMu.Unlock()
		close(ch)
		if remaining == 0 {
			p.cleanup(sessionID, cs, CleanupDelayed)
		}
	}
	return ch, cancel, nil
}

// CloseConnection tears down sessionID's connection using mode.
func (p *Pool) CloseConnection(sessionID string, mode CleanupMode) {
	p.mu.Lock()
	cs, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.cleanup(sessionID, cs, mode)
}

func (p *Pool) cleanup(sessionID string, cs *connState, mode CleanupMode) {
	teardown := func() {
		cs.listenersMu.Lock()
		hasListeners := len(cs.listeners) > 0
		cs.listenersMu.Unlock()
		if hasListeners && mode == CleanupDelayed {
			return
		}

		p.mu.Lock()
		if current, ok := p.sessions[sessionID]; ok && current == cs {
			delete(p.sessions, sessionID)
			delete(p.locks, sessionID)
		}
		p.mu.Unlock()

		cs.cancel()
		cs.mu.Lock()
		if cs.conn != nil {
			cs.conn.Close()
			cs.conn = nil
		}
		cs.mu.Unlock()
	}

	if mode == CleanupImmediate {
		teardown()
		return
	}
	time.AfterFunc(p.CleanupDelay, teardown)
}

// GetConnectionHealth returns the health of sessionID's connection, if any.
func (p *Pool) GetConnectionHealth(sessionID string) (Health, bool) {
	p.mu.Lock()
	cs, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return Health{}, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.health, true
}

// GetAllConnectionHealth returns the health of every tracked session.
func (p *Pool) GetAllConnectionHealth() map[string]Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Health, len(p.sessions))
	for id, cs := range p.sessions {
		cs.mu.Lock()
		out[id] = cs.health
		cs.mu.Unlock()
	}
	return out
}
