// Package store holds the control-plane data model — bot configurations,
// platform conversations, and their messages — persisted as one JSON file
// per collection (see Repository), unlike internal/session's per-session
// files.
// Grounded in original_source's apps/messaging-gateway/app/models.py shape
// (BotConfig, PlatformConversation, ConversationMessage), translated from
// SQLAlchemy rows into plain Go structs with jsoniter tags.
package store

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConversationStatus canonicalizes conversation lifecycle state. The legacy
// string "closed" produced by older records is a read-time synonym for
// Inactive (see DESIGN.md, §4.9 EXPANSION).
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusInactive ConversationStatus = "inactive"
	StatusArchived ConversationStatus = "archived"
)

// normalizeStatus maps legacy string values read from disk onto the current
// enum, without ever writing the legacy form back out.
func normalizeStatus(raw ConversationStatus) ConversationStatus {
	if raw == "closed" {
		return StatusInactive
	}
	if raw == "" {
		return StatusActive
	}
	return raw
}

// BotConfig is one configured messaging-platform bot binding.
type BotConfig struct {
	ID             string    `json:"id"`
	Platform       string    `json:"platform"` // "telegram", etc.
	EncryptedToken string    `json:"encrypted_token,omitempty"`
	BotToken       string    `json:"-"` // plaintext, transient only — never marshaled; see credentials.go
	FlowID         string    `json:"flow_id"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PlatformConversation binds one (bot_config_id, platform_user_id) pair to
// an engine session id.
type PlatformConversation struct {
	ID               string             `json:"id"`
	BotConfigID      string             `json:"bot_config_id"`
	PlatformUserID   string             `json:"platform_user_id"`
	PlatformUserName string             `json:"platform_user_name,omitempty"`
	SessionID        string             `json:"session_id"`
	Status           ConversationStatus `json:"status"`
	LastMessageAt    time.Time          `json:"last_message_at"`
	CreatedAt        time.Time          `json:"created_at"`
}

// UnmarshalJSON normalizes legacy status strings on read.
func (c *PlatformConversation) UnmarshalJSON(data []byte) error {
	type alias PlatformConversation
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Status = normalizeStatus(a.Status)
	*c = PlatformConversation(a)
	return nil
}

// ConversationMessage is one stored turn (user or assistant) of a
// PlatformConversation.
type ConversationMessage struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Role              string    `json:"role"` // "user" | "assistant"
	Content           string    `json:"content"`
	PlatformMessageID string    `json:"platform_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ExtractedVariable records one named value captured by the Variable
// Extractor, keyed by session for the control plane's /variables/... read
// paths (SPEC_FULL §6).
type ExtractedVariable struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
