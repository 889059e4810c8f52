package adapter

import (
	"testing"
	"time"

	"easypath/internal/store"
)

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	repo, err := store.NewRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return New(NewEngineHTTPClient("http://127.0.0.1:0"), nil, repo, time.Now())
}

func TestIsStale(t *testing.T) {
	a := testAdapter(t)

	if a.IsStale(time.Now().Add(time.Hour)) {
		t.Error("event after startup reported stale")
	}
	if !a.IsStale(time.Now().Add(-time.Hour)) {
		t.Error("event before startup not reported stale")
	}
}

func TestResolveConversation_CreatesThenReuses(t *testing.T) {
	a := testAdapter(t)

	first, err := a.ResolveConversation("telegram", "bot-1", "user-1", "alice")
	if err != nil {
		t.Fatalf("ResolveConversation: %v", err)
	}

	second, err := a.ResolveConversation("telegram", "bot-1", "user-1", "alice")
	if err != nil {
		t.Fatalf("ResolveConversation (second call): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ResolveConversation created a second conversation: %q != %q", first.ID, second.ID)
	}
}

func TestAcquireSlot_SerializesSameSession(t *testing.T) {
	a := testAdapter(t)

	release := a.acquireSlot("sess-1")
	done := make(chan struct{})
	go func() {
		// This should block until release() is called below.
		release2 := a.acquireSlot("sess-1")
		release2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquireSlot returned before first was released")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquireSlot never returned after release")
	}
}

func TestAcquireSlot_DifferentSessionsDoNotBlock(t *testing.T) {
	a := testAdapter(t)

	release := a.acquireSlot("sess-1")
	defer release()

	done := make(chan struct{})
	go func() {
		r := a.acquireSlot("sess-2")
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquireSlot for a distinct session blocked unexpectedly")
	}
}
