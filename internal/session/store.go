package session

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"easypath/internal/errs"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the Session Store contract of SPEC_FULL §4.2: `load(session_id)
// -> Session?`, `save(session)`, `clear(session_id)`.
type Store interface {
	Load(sessionID string) (*ChatSession, bool, error)
	Save(s *ChatSession) error
	Clear(sessionID string) error
}

var filenameSafe = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// FileStore persists one JSON file per session under dir, caching live
// sessions in memory with an optional per-entry TTL sweep — the
// double-checked-locking pattern ported from the teacher's SessionManager
// (pkg/llm/session_manager.go), generalized with expiry per SPEC_FULL §4.2.
type FileStore struct {
	dir string
	ttl time.Duration

	mu      sync.RWMutex
	cache   map[string]*ChatSession
	timers  map[string]*time.Timer
}

// NewFileStore creates a FileStore rooted at dir. ttl of 0 disables
// expiry — entries live until explicitly cleared.
func NewFileStore(dir string, ttl time.Duration) *FileStore {
	_ = os.MkdirAll(dir, 0755)
	return &FileStore{
		dir:    dir,
		ttl:    ttl,
		cache:  make(map[string]*ChatSession),
		timers: make(map[string]*time.Timer),
	}
}

func (fs *FileStore) path(sessionID string) string {
	safe := filenameSafe.ReplaceAllString(sessionID, "_")
	return filepath.Join(fs.dir, "session_"+safe+".json")
}

// Load returns the session if present, from the in-memory cache or, failing
// that, by reading its backing file. Absent-on-miss, never an error, per
// SPEC_FULL §4.2 ("load returns absent when the key is missing").
func (fs *FileStore) Load(sessionID string) (*ChatSession, bool, error) {
	fs.mu.RLock()
	if s, ok := fs.cache[sessionID]; ok {
		fs.mu.RUnlock()
		return s, true, nil
	}
	fs.mu.RUnlock()

	fs.mu.Lock()
	if s, ok := fs.cache[sessionID]; ok {
		fs.mu.Unlock()
		return s, true, nil
	}

	data, err := os.ReadFile(fs.path(sessionID))
	if err != nil {
		fs.mu.Unlock()
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.StoreFailure, "read session file", err)
	}

	var s ChatSession
	if err := json.Unmarshal(data, &s); err != nil {
		fs.mu.Unlock()
		return nil, false, errs.Wrap(errs.ParseFailure, "decode session JSON", err)
	}
	fs.cache[sessionID] = &s
	fs.mu.Unlock()
	fs.scheduleExpiry(sessionID)
	return &s, true, nil
}

// Save writes s to the cache and to its backing file.
func (fs *FileStore) Save(s *ChatSession) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errs.Wrap(errs.StoreFailure, "encode session JSON", err)
	}
	if err := os.WriteFile(fs.path(s.SessionID), data, 0644); err != nil {
		return errs.Wrap(errs.StoreFailure, "write session file", err)
	}

	fs.mu.Lock()
	fs.cache[s.SessionID] = s
	fs.mu.Unlock()
	fs.scheduleExpiry(s.SessionID)
	return nil
}

// Clear removes the session from cache and disk. Idempotent — clearing an
// absent session is not an error, per SPEC_FULL §4.2.
func (fs *FileStore) Clear(sessionID string) error {
	fs.mu.Lock()
	delete(fs.cache, sessionID)
	if t, ok := fs.timers[sessionID]; ok {
		t.Stop()
		delete(fs.timers, sessionID)
	}
	fs.mu.Unlock()

	if err := os.Remove(fs.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.StoreFailure, "remove session file", err)
	}
	return nil
}

// scheduleExpiry (re)arms the TTL sweep for sessionID. Called with fs.mu
// unlocked by Load (after releasing the write lock) and Save.
func (fs *FileStore) scheduleExpiry(sessionID string) {
	if fs.ttl <= 0 {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if t, ok := fs.timers[sessionID]; ok {
		t.Stop()
	}
	fs.timers[sessionID] = time.AfterFunc(fs.ttl, func() {
		fs.mu.Lock()
		delete(fs.cache, sessionID)
		delete(fs.timers, sessionID)
		fs.mu.Unlock()
	})
}
