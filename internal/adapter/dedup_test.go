package adapter

import (
	"testing"
	"time"
)

func TestSplitAtSeparator_Basic(t *testing.T) {
	parts := splitAtSeparator("first part\n---\nsecond part")
	if len(parts) != 2 {
		t.Fatalf("splitAtSeparator = %v, want 2 parts", parts)
	}
	if parts[0] != "first part" || parts[1] != "second part" {
		t.Errorf("splitAtSeparator = %v, want [first part, second part]", parts)
	}
}

func TestSplitAtSeparator_NoSeparator(t *testing.T) {
	parts := splitAtSeparator("no separator here")
	if len(parts) != 1 || parts[0] != "no separator here" {
		t.Errorf("splitAtSeparator = %v, want single unchanged part", parts)
	}
}

func TestSplitAtSeparator_MultipleSeparators(t *testing.T) {
	parts := splitAtSeparator("a\n---\nb\n---\nc")
	if len(parts) != 3 {
		t.Fatalf("splitAtSeparator = %v, want 3 parts", parts)
	}
}

func TestSplitAtSeparator_DropsEmptyParts(t *testing.T) {
	parts := splitAtSeparator("a\n---\n\n---\nb")
	for _, p := range parts {
		if p == "" {
			t.Errorf("splitAtSeparator returned an empty part: %v", parts)
		}
	}
}

func TestSessionDedup_SuppressesWithinWindow(t *testing.T) {
	d := newSessionDedup()
	now := time.Now()

	if d.shouldSuppress("hello", now) {
		t.Fatal("first occurrence should not be suppressed")
	}
	d.record("hello", now)

	if !d.shouldSuppress("hello", now.Add(500*time.Millisecond)) {
		t.Error("repeat within dedup window should be suppressed")
	}
}

func TestSessionDedup_ExactTextStaysSuppressedForSessionLifetime(t *testing.T) {
	// sentPart never expires (mirrors the original's process-lifetime
	// sent_message_parts set) — only the sentAt window check is time-bound,
	// and an exact repeat still matches the permanent part set.
	d := newSessionDedup()
	now := time.Now()

	d.record("hello", now)
	if !d.shouldSuppress("hello", now.Add(dedupWindow+time.Second)) {
		t.Error("exact repeat should remain suppressed after the dedup window elapses")
	}
}

func TestSessionDedup_SupersetAndSubsetSuppressed(t *testing.T) {
	d := newSessionDedup()
	now := time.Now()

	d.record("hello world", now)
	if !d.shouldSuppress("hello", now) {
		t.Error("text contained within an already-sent part should be suppressed")
	}

	d2 := newSessionDedup()
	d2.record("hello", now)
	if !d2.shouldSuppress("hello world", now) {
		t.Error("text containing an already-sent part should be suppressed")
	}
}

func TestSessionDedup_DistinctTextNotSuppressed(t *testing.T) {
	d := newSessionDedup()
	now := time.Now()

	d.record("hello", now)
	if d.shouldSuppress("goodbye", now) {
		t.Error("distinct text should not be suppressed")
	}
}

func TestDedupRegistry_IsolatesPerSession(t *testing.T) {
	r := newDedupRegistry()
	now := time.Now()

	a := r.forSession("session-a")
	a.record("hello", now)

	b := r.forSession("session-b")
	if b.shouldSuppress("hello", now) {
		t.Error("dedup state leaked across sessions")
	}
}

func TestDedupRegistry_ReturnsSameInstanceForSameSession(t *testing.T) {
	r := newDedupRegistry()
	a := r.forSession("session-a")
	b := r.forSession("session-a")
	if a != b {
		t.Error("forSession returned distinct instances for the same session id")
	}
}
