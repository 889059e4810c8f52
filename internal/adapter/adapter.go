// Package adapter implements the generic Messaging-Platform Adapter
// (SPEC_FULL §4.9): the per-inbound-message algorithm shared by every
// concrete chat-platform binding (stale-message filtering, conversation
// lookup/creation, single-flight per-session serialization, streamed
// delivery with typing indicators and duplicate suppression, HTTP
// fallback, and length-capped chunking). Grounded byte-for-byte in
// original_source's apps/messaging-gateway/app/services/telegram.py
// TelegramService, generalized away from its Telegram-specific bits (which
// live in the telegram subpackage).
package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"easypath/internal/realtime/clientpool"
	"easypath/internal/store"

	jsoniter "github.com/json-iterator/go"
)

// Platform is the concrete chat-platform binding an Adapter drives:
// sending text and signaling a typing/"processing" indicator. Telegram's
// implementation lives in the telegram subpackage; other platforms plug in
// by implementing the same two methods.
type Platform interface {
	// SendMessage delivers one already-chunked-as-needed text message to
	// chatRef (the platform's native chat/user handle).
	SendMessage(ctx context.Context, chatRef, text string) error
	// StartTyping begins a typing/processing indicator for chatRef and
	// returns a function that stops it. Implementations are expected to
	// keep the indicator alive on their own (e.g. a resend loop) until
	// the returned stop func is called.
	StartTyping(ctx context.Context, chatRef string) (stop func())
}

const (
	singleFlightWait = 60 * time.Second
	streamIdleBudget = 90 * time.Second
)

// Adapter runs the generic per-inbound-message algorithm against a Platform
// binding, an EngineHTTPClient (trigger + fallback), a clientpool.Pool
// (streamed delivery), and a store.Repository (conversation/message
// persistence).
type Adapter struct {
	Engine *EngineHTTPClient
	WS     *clientpool.Pool
	Store  *store.Repository

	startupTime time.Time
	dedup       *dedupRegistry

	activeMu sync.Mutex
	active   map[string]chan struct{} // sessionID -> closed when task finishes
}

// New constructs an Adapter. startupTime is recorded once at process start
// and used to filter stale inbound events (SPEC_FULL §4.9 step 1).
func New(engine *EngineHTTPClient, ws *clientpool.Pool, repo *store.Repository, startupTime time.Time) *Adapter {
	return &Adapter{
		Engine:      engine,
		WS:          ws,
		Store:       repo,
		startupTime: startupTime,
		dedup:       newDedupRegistry(),
		active:      make(map[string]chan struct{}),
	}
}

// IsStale reports whether an inbound event's provider timestamp predates
// process startup (SPEC_FULL §4.9 step 1).
func (a *Adapter) IsStale(eventTime time.Time) bool {
	return eventTime.Before(a.startupTime)
}

// ResolveConversation looks up or creates the PlatformConversation for
// (platform, botConfigID, platformUserID), per SPEC_FULL §4.9 step 2.
func (a *Adapter) ResolveConversation(platform, botConfigID, platformUserID, platformUserName string) (*store.PlatformConversation, error) {
	if conv, ok := a.Store.FindConversation(botConfigID, platformUserID); ok {
		return conv, nil
	}
	return a.Store.CreateConversation(platform, botConfigID, platformUserID, platformUserName)
}

// acquireSlot enforces single-flight per session: if a prior task for
// sessionID is still running, wait up to singleFlightWait for it before
// proceeding anyway. Returns a release func the caller must defer.
func (a *Adapter) acquireSlot(sessionID string) func() {
	a.activeMu.Lock()
	prior, busy := a.active[sessionID]
	a.activeMu.Unlock()

	if busy {
		slog.Info("adapter: waiting on active task", "session", sessionID)
		select {
		case <-prior:
		case <-time.After(singleFlightWait):
			slog.Warn("adapter: active task still running after wait, proceeding anyway", "session", sessionID)
		}
	}

	done := make(chan struct{})
	a.activeMu.Lock()
	a.active[sessionID] = done
	a.activeMu.Unlock()

	return func() {
		close(done)
		a.activeMu.Lock()
		if a.active[sessionID] == done {
			delete(a.active, sessionID)
		}
		a.activeMu.Unlock()
	}
}

// ProcessInbound runs the full per-inbound-message algorithm for one user
// message already persisted by the caller: single-flight serialization,
// streamed delivery with typing and dedup, and HTTP fallback on silence.
func (a *Adapter) ProcessInbound(ctx context.Context, conv *store.PlatformConversation, chatRef, userMessage string, flowData jsoniter.RawMessage, platform Platform) {
	release := a.acquireSlot(conv.SessionID)
	defer release()

	sent := a.streamDelivery(ctx, conv, chatRef, userMessage, flowData, platform)
	if sent > 0 {
		slog.Info("adapter: delivered via streaming", "session", conv.SessionID, "parts", sent)
		return
	}

	slog.Warn("adapter: streaming emitted nothing, falling back to HTTP", "session", conv.SessionID)
	a.fallbackDelivery(ctx, conv, chatRef, userMessage, flowData, platform)
}

// streamDelivery triggers engine execution and relays assistant-message
// events to platform as they arrive over the realtime socket, per SPEC_FULL
// §4.9 step 5. Returns the number of parts actually sent.
func (a *Adapter) streamDelivery(ctx context.Context, conv *store.PlatformConversation, chatRef, userMessage string, flowData jsoniter.RawMessage, platform Platform) int {
	sessionID := conv.SessionID
	dd := a.dedup.forSession(sessionID)

	if _, err := a.WS.EnsureConnection(ctx, sessionID); err != nil {
		slog.Warn("adapter: could not establish upstream socket", "session", sessionID, "error", err)
		return 0
	}

	msgCh, cancelListen, err := a.WS.ListenForAssistantMessages(sessionID)
	if err != nil {
		slog.Warn("adapter: could not register listener", "session", sessionID, "error", err)
		return 0
	}
	defer cancelListen()

	typingCtx, stopTyping := context.WithCancel(ctx)
	stopTypingFn := platform.StartTyping(typingCtx, chatRef)
	typingActive := true
	stopTypingOnce := func() {
		if typingActive {
			stopTyping()
			stopTypingFn()
			typingActive = false
		}
	}
	defer stopTypingOnce()

	done := make(chan *EngineResponse, 1)
	go func() {
		resp, err := a.Engine.SendMessage(ctx, sessionID, userMessage, flowData)
		if err != nil {
			slog.Error("adapter: engine trigger failed", "session", sessionID, "error", err)
			done <- nil
			return
		}
		done <- resp
	}()

	sent := 0
	idle := time.NewTimer(streamIdleBudget)
	defer idle.Stop()

	for {
		select {
		case text, ok := <-msgCh:
			if !ok {
				return sent
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(streamIdleBudget)
			sent += a.deliverParts(ctx, conv, chatRef, text, platform, dd, &stopTypingOnce)

		case <-done:
			// Engine finished; drain anything already queued on the
			// socket within a brief grace window, then stop.
			select {
			case text, ok := <-msgCh:
				if ok {
					sent += a.deliverParts(ctx, conv, chatRef, text, platform, dd, &stopTypingOnce)
				}
			case <-time.After(200 * time.Millisecond):
			}
			return sent

		case <-idle.C:
			slog.Warn("adapter: streaming idle budget exceeded", "session", sessionID)
			return sent

		case <-ctx.Done():
			return sent
		}
	}
}

// deliverParts splits text at the literal separator, suppresses duplicates,
// sends each surviving part, and persists it as an assistant message.
func (a *Adapter) deliverParts(ctx context.Context, conv *store.PlatformConversation, chatRef, text string, platform Platform, dd *sessionDedup, stopTyping *func()) int {
	parts := splitAtSeparator(text)
	sent := 0
	for _, part := range parts {
		now := time.Now()
		if dd.shouldSuppress(part, now) {
			slog.Warn("adapter: suppressing duplicate part", "session", conv.SessionID, "len", len(part))
			continue
		}

		(*stopTyping)()
		if err := platform.SendMessage(ctx, chatRef, part); err != nil {
			slog.Error("adapter: send failed", "session", conv.SessionID, "error", err)
			continue
		}
		dd.record(part, now)
		_ = a.Store.AppendMessage(&store.ConversationMessage{
			ConversationID: conv.ID, Role: "assistant", Content: part,
		})
		sent++
	}
	if sent > 0 {
		_ = a.Store.TouchConversation(conv)
	}
	return sent
}

// fallbackDelivery invokes the non-streaming request/response path and
// applies the same split/dedup rules so overlapping content from a partial
// stream is never re-sent, per SPEC_FULL §4.9 step 6.
func (a *Adapter) fallbackDelivery(ctx context.Context, conv *store.PlatformConversation, chatRef, userMessage string, flowData jsoniter.RawMessage, platform Platform) {
	resp, err := a.Engine.SendMessage(ctx, conv.SessionID, userMessage, flowData)
	if err != nil || resp == nil {
		slog.Error("adapter: fallback engine call failed", "session", conv.SessionID, "error", err)
		_ = platform.SendMessage(ctx, chatRef, "Sorry, I'm experiencing technical difficulties. Please try again later.")
		return
	}

	dd := a.dedup.forSession(conv.SessionID)
	sent := a.deliverParts(ctx, conv, chatRef, resp.Reply, platform, dd, stopTypingNoop())
	if sent == 0 {
		slog.Info("adapter: all fallback parts were duplicates or empty", "session", conv.SessionID)
	}
}

func stopTypingNoop() *func() {
	f := func() {}
	return &f
}
