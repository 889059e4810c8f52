package store

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"easypath/internal/errs"
	"easypath/internal/idgen"
)

// Repository is the control-plane persistence boundary: bot configs,
// platform conversations, their messages, and extracted variables. Backed
// by one JSON file per collection under dir, following the teacher's
// load-whole-file/rewrite-whole-file config pattern (pkg/config/config.go)
// rather than session's per-entity file, since these collections are small
// and queried by secondary keys (bot+user) rather than by a single id.
type Repository struct {
	dir string

	mu            sync.RWMutex
	bots          map[string]*BotConfig
	conversations map[string]*PlatformConversation // keyed by id
	messages      map[string][]*ConversationMessage // keyed by conversation id
	variables     map[string]map[string]ExtractedVariable // keyed by session id, then name
}

// NewRepository opens (or creates) the JSON-backed repository rooted at dir.
func NewRepository(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(errs.StoreFailure, "create store directory", err)
	}
	r := &Repository{
		dir:           dir,
		bots:          make(map[string]*BotConfig),
		conversations: make(map[string]*PlatformConversation),
		messages:      make(map[string][]*ConversationMessage),
		variables:     make(map[string]map[string]ExtractedVariable),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) botsPath() string      { return filepath.Join(r.dir, "bots.json") }
func (r *Repository) convsPath() string     { return filepath.Join(r.dir, "conversations.json") }
func (r *Repository) messagesPath() string  { return filepath.Join(r.dir, "messages.json") }
func (r *Repository) variablesPath() string { return filepath.Join(r.dir, "variables.json") }

func (r *Repository) load() error {
	if err := readJSONFile(r.botsPath(), &r.bots); err != nil {
		return err
	}
	if err := readJSONFile(r.convsPath(), &r.conversations); err != nil {
		return err
	}
	if err := readJSONFile(r.messagesPath(), &r.messages); err != nil {
		return err
	}
	return readJSONFile(r.variablesPath(), &r.variables)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.StoreFailure, "read "+path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.ParseFailure, "decode "+path, err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.StoreFailure, "encode "+path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Wrap(errs.StoreFailure, "write "+path, err)
	}
	return nil
}

// BotConfigByID returns the bot config for id, if any.
func (r *Repository) BotConfigByID(id string) (*BotConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[id]
	return b, ok
}

// SaveBotConfig inserts or updates a bot config.
func (r *Repository) SaveBotConfig(b *BotConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[b.ID] = b
	return writeJSONFile(r.botsPath(), r.bots)
}

// ListBotConfigs returns every configured bot.
func (r *Repository) ListBotConfigs() []*BotConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BotConfig, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	return out
}

// FindConversation returns the conversation for (botConfigID, platformUserID),
// per SPEC_FULL §4.9 step 2's lookup-or-create.
func (r *Repository) FindConversation(botConfigID, platformUserID string) (*PlatformConversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conversations {
		if c.BotConfigID == botConfigID && c.PlatformUserID == platformUserID {
			return c, true
		}
	}
	return nil, false
}

// CreateConversation mints a fresh conversation with a new session id in
// the "<platform>-<bot_id>-<user_id>-<uuid8>" shape (SPEC_FULL §4.9 step 2).
func (r *Repository) CreateConversation(platform, botConfigID, platformUserID, platformUserName string) (*PlatformConversation, error) {
	now := time.Now()
	c := &PlatformConversation{
		ID:               idgen.New(),
		BotConfigID:      botConfigID,
		PlatformUserID:   platformUserID,
		PlatformUserName: platformUserName,
		SessionID:        idgen.SessionID(platform, botConfigID, platformUserID),
		Status:           StatusActive,
		LastMessageAt:    now,
		CreatedAt:        now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[c.ID] = c
	if err := writeJSONFile(r.convsPath(), r.conversations); err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns every tracked conversation.
func (r *Repository) ListConversations() []*PlatformConversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PlatformConversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		out = append(out, c)
	}
	return out
}

// ConversationBySession returns the conversation for sessionID, if any.
func (r *Repository) ConversationBySession(sessionID string) (*PlatformConversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conversations {
		if c.SessionID == sessionID {
			return c, true
		}
	}
	return nil, false
}

// TouchConversation bumps last_message_at and persists.
func (r *Repository) TouchConversation(c *PlatformConversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.LastMessageAt = time.Now()
	return writeJSONFile(r.convsPath(), r.conversations)
}

// SetConversationStatus updates and persists a conversation's status.
func (r *Repository) SetConversationStatus(id string, status ConversationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return errs.New(errs.NotFound, "conversation not found: "+id)
	}
	c.Status = status
	return writeJSONFile(r.convsPath(), r.conversations)
}

// AppendMessage persists one conversation message.
func (r *Repository) AppendMessage(m *ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		m.ID = idgen.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], m)
	return writeJSONFile(r.messagesPath(), r.messages)
}

// MessagesFor returns the messages for a conversation id, oldest first.
func (r *Repository) MessagesFor(conversationID string) []*ConversationMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.messages[conversationID]
	out := make([]*ConversationMessage, len(src))
	copy(out, src)
	return out
}

// SetVariable records one extracted variable for sessionID.
func (r *Repository) SetVariable(sessionID, name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.variables[sessionID] == nil {
		r.variables[sessionID] = make(map[string]ExtractedVariable)
	}
	r.variables[sessionID][name] = ExtractedVariable{
		SessionID: sessionID, Name: name, Value: value, UpdatedAt: time.Now(),
	}
	return writeJSONFile(r.variablesPath(), r.variables)
}

// VariablesFor returns every extracted variable recorded for sessionID.
func (r *Repository) VariablesFor(sessionID string) map[string]ExtractedVariable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ExtractedVariable, len(r.variables[sessionID]))
	for k, v := range r.variables[sessionID] {
		out[k] = v
	}
	return out
}
