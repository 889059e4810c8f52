package store

import (
	"path/filepath"
	"testing"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return r
}

func TestSaveAndGetBotConfig(t *testing.T) {
	r := testRepository(t)

	b := &BotConfig{ID: "bot-1", Platform: "telegram", FlowID: "flow-1"}
	if err := r.SaveBotConfig(b); err != nil {
		t.Fatalf("SaveBotConfig: %v", err)
	}

	got, ok := r.BotConfigByID("bot-1")
	if !ok {
		t.Fatal("BotConfigByID: not found")
	}
	if got.Platform != "telegram" || got.FlowID != "flow-1" {
		t.Errorf("BotConfigByID = %+v, want platform=telegram flow=flow-1", got)
	}
}

func TestBotConfigByID_Missing(t *testing.T) {
	r := testRepository(t)
	if _, ok := r.BotConfigByID("nope"); ok {
		t.Error("BotConfigByID(missing) = ok, want not found")
	}
}

func TestListBotConfigs(t *testing.T) {
	r := testRepository(t)
	if err := r.SaveBotConfig(&BotConfig{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveBotConfig(&BotConfig{ID: "b"}); err != nil {
		t.Fatal(err)
	}
	if got := r.ListBotConfigs(); len(got) != 2 {
		t.Errorf("ListBotConfigs() = %d entries, want 2", len(got))
	}
}

func TestCreateConversation_FindAfterCreate(t *testing.T) {
	r := testRepository(t)

	conv, err := r.CreateConversation("telegram", "bot-1", "user-1", "alice")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Status != StatusActive {
		t.Errorf("new conversation status = %q, want %q", conv.Status, StatusActive)
	}
	if conv.SessionID == "" {
		t.Error("new conversation has empty session id")
	}

	found, ok := r.FindConversation("bot-1", "user-1")
	if !ok {
		t.Fatal("FindConversation: not found after create")
	}
	if found.ID != conv.ID {
		t.Errorf("FindConversation returned %q, want %q", found.ID, conv.ID)
	}
}

func TestFindConversation_Missing(t *testing.T) {
	r := testRepository(t)
	if _, ok := r.FindConversation("bot-1", "user-1"); ok {
		t.Error("FindConversation(missing) = ok, want not found")
	}
}

func TestConversationBySession(t *testing.T) {
	r := testRepository(t)
	conv, err := r.CreateConversation("telegram", "bot-1", "user-1", "")
	if err != nil {
		t.Fatal(err)
	}

	found, ok := r.ConversationBySession(conv.SessionID)
	if !ok {
		t.Fatal("ConversationBySession: not found")
	}
	if found.ID != conv.ID {
		t.Errorf("ConversationBySession returned %q, want %q", found.ID, conv.ID)
	}
}

func TestSetConversationStatus(t *testing.T) {
	r := testRepository(t)
	conv, err := r.CreateConversation("telegram", "bot-1", "user-1", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetConversationStatus(conv.ID, StatusInactive); err != nil {
		t.Fatalf("SetConversationStatus: %v", err)
	}

	found, _ := r.ConversationBySession(conv.SessionID)
	if found.Status != StatusInactive {
		t.Errorf("status = %q, want %q", found.Status, StatusInactive)
	}
}

func TestSetConversationStatus_Missing(t *testing.T) {
	r := testRepository(t)
	if err := r.SetConversationStatus("nope", StatusInactive); err == nil {
		t.Error("SetConversationStatus(missing) = nil error, want error")
	}
}

func TestAppendMessage_FillsIDAndTimestamp(t *testing.T) {
	r := testRepository(t)
	conv, err := r.CreateConversation("telegram", "bot-1", "user-1", "")
	if err != nil {
		t.Fatal(err)
	}

	m := &ConversationMessage{ConversationID: conv.ID, Role: "user", Content: "hi"}
	if err := r.AppendMessage(m); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if m.ID == "" {
		t.Error("AppendMessage did not fill ID")
	}
	if m.CreatedAt.IsZero() {
		t.Error("AppendMessage did not fill CreatedAt")
	}

	msgs := r.MessagesFor(conv.ID)
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("MessagesFor = %+v, want one message with content %q", msgs, "hi")
	}
}

func TestSetVariable_AndVariablesFor(t *testing.T) {
	r := testRepository(t)

	if err := r.SetVariable("sess-1", "name", "Alice"); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}
	if err := r.SetVariable("sess-1", "age", 30); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}

	vars := r.VariablesFor("sess-1")
	if len(vars) != 2 {
		t.Fatalf("VariablesFor = %d entries, want 2", len(vars))
	}
	if vars["name"].Value != "Alice" {
		t.Errorf("name = %v, want Alice", vars["name"].Value)
	}
}

func TestSetVariable_Overwrite(t *testing.T) {
	r := testRepository(t)
	if err := r.SetVariable("sess-1", "name", "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := r.SetVariable("sess-1", "name", "Bob"); err != nil {
		t.Fatal(err)
	}

	vars := r.VariablesFor("sess-1")
	if vars["name"].Value != "Bob" {
		t.Errorf("name = %v after overwrite, want Bob", vars["name"].Value)
	}
}

func TestRepository_PersistAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "control")

	r1, err := NewRepository(dir)
	if err != nil {
		t.Fatalf("NewRepository(1): %v", err)
	}
	if err := r1.SaveBotConfig(&BotConfig{ID: "bot-1", Platform: "telegram"}); err != nil {
		t.Fatal(err)
	}

	r2, err := NewRepository(dir)
	if err != nil {
		t.Fatalf("NewRepository(2): %v", err)
	}
	got, ok := r2.BotConfigByID("bot-1")
	if !ok {
		t.Fatal("BotConfigByID after reopen: not found")
	}
	if got.Platform != "telegram" {
		t.Errorf("platform after reopen = %q, want telegram", got.Platform)
	}
}

func TestPlatformConversation_LegacyClosedStatusNormalized(t *testing.T) {
	var c PlatformConversation
	raw := []byte(`{"id":"c1","status":"closed"}`)
	if err := c.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if c.Status != StatusInactive {
		t.Errorf("legacy status %q decoded as %q, want %q", "closed", c.Status, StatusInactive)
	}
}

func TestPlatformConversation_EmptyStatusDefaultsActive(t *testing.T) {
	var c PlatformConversation
	raw := []byte(`{"id":"c1"}`)
	if err := c.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if c.Status != StatusActive {
		t.Errorf("empty status decoded as %q, want %q", c.Status, StatusActive)
	}
}
