package adapter

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// dedupWindow bounds how recent an exact-match send must be for the sentAt
// check to count it as a duplicate. Exact and substring matches against the
// cumulative sentPart set are suppressed regardless of age, and that set is
// never cleared, so an identical message sent after this window is still
// suppressed.
const dedupWindow = 2 * time.Second

var separatorPattern = regexp.MustCompile(`\n*\s*---\s*\n*`)

// splitAtSeparator splits text at the literal "---" separator (with
// optional surrounding whitespace/newlines), dropping empty parts. Ported
// byte-for-byte from original_source's _split_message_at_separator.
func splitAtSeparator(text string) []string {
	if text == "" {
		return nil
	}
	parts := separatorPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sessionDedup tracks, per session, every message part ever emitted plus the
// timestamp of each exact send, so both the streaming path and the HTTP
// fallback path can suppress re-sending overlapping content. Lives for the
// adapter's process lifetime (never reset), mirroring the original's
// per-session sent_message_parts set.
type sessionDedup struct {
	mu       sync.Mutex
	sentAt   map[string]time.Time
	sentPart map[string]struct{}
}

func newSessionDedup() *sessionDedup {
	return &sessionDedup{
		sentAt:   make(map[string]time.Time),
		sentPart: make(map[string]struct{}),
	}
}

// shouldSuppress reports whether text is a duplicate of something already
// sent: an exact repeat within dedupWindow, a substring of a larger
// already-sent part, or a superstring containing an already-sent part.
func (d *sessionDedup) shouldSuppress(text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sentAt, ok := d.sentAt[text]; ok && now.Sub(sentAt) < dedupWindow {
		return true
	}

	for part := range d.sentPart {
		if part == text {
			return true
		}
		if strings.Contains(part, text) && len(text) < len(part) {
			return true
		}
		if strings.Contains(text, part) && len(part) < len(text) {
			return true
		}
	}
	return false
}

// record marks text as sent at now.
func (d *sessionDedup) record(text string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sentAt[text] = now
	d.sentPart[text] = struct{}{}
}

// dedupRegistry hands out one sessionDedup per session id, created lazily.
type dedupRegistry struct {
	mu    sync.Mutex
	byID  map[string]*sessionDedup
}

func newDedupRegistry() *dedupRegistry {
	return &dedupRegistry{byID: make(map[string]*sessionDedup)}
}

func (r *dedupRegistry) forSession(sessionID string) *sessionDedup {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[sessionID]
	if !ok {
		d = newSessionDedup()
		r.byID[sessionID] = d
	}
	return d
}
