package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"easypath/internal/adapter"
	"easypath/internal/realtime"
	"easypath/internal/session"
	"easypath/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	repo, err := store.NewRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	creds, err := store.NewCredentialBox(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewCredentialBox: %v", err)
	}
	sessions := session.NewFileStore(t.TempDir(), 0)
	hub := realtime.New(nil)
	rt := realtime.NewServer(hub, sessions, nil, 30*time.Second, 10*time.Second)
	ad := adapter.New(adapter.NewEngineHTTPClient("http://127.0.0.1:0"), nil, repo, time.Now())

	return NewServer(nil, sessions, repo, hub, rt, ad, creds, t.TempDir())
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCreateAndGetBot(t *testing.T) {
	s := testServer(t)
	mux := s.Handler()

	body, _ := json.Marshal(botRequest{Platform: "telegram", BotToken: "secret-token", FlowID: "flow-1"})
	req := httptest.NewRequest(http.MethodPost, "/bots", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", w.Code, w.Body.String())
	}

	var created botResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created bot has empty ID")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/bots/"+created.ID, nil)
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w2.Code)
	}

	var raw map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if _, leaked := raw["bot_token"]; leaked {
		t.Error("bot response leaked plaintext bot_token field")
	}
	if _, leaked := raw["encrypted_token"]; leaked {
		t.Error("bot response leaked encrypted_token field")
	}
}

func TestCreateBot_MissingFields(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(botRequest{Platform: "telegram"})
	req := httptest.NewRequest(http.MethodPost, "/bots", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetBot_NotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bots/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListBots(t *testing.T) {
	s := testServer(t)
	mux := s.Handler()

	for i := 0; i < 2; i++ {
		body, _ := json.Marshal(botRequest{Platform: "telegram", BotToken: "tok", FlowID: "flow-1"})
		req := httptest.NewRequest(http.MethodPost, "/bots", bytes.NewReader(body))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/bots", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var bots []botResponse
	if err := json.Unmarshal(w.Body.Bytes(), &bots); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(bots) != 2 {
		t.Errorf("ListBots = %d bots, want 2", len(bots))
	}
}

func TestDeleteBot_ClearsWebhook(t *testing.T) {
	s := testServer(t)
	mux := s.Handler()

	body, _ := json.Marshal(botRequest{Platform: "telegram", BotToken: "tok", FlowID: "flow-1", WebhookURL: "https://example.com/hook"})
	req := httptest.NewRequest(http.MethodPost, "/bots", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var created botResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	del := httptest.NewRequest(http.MethodDelete, "/bots/"+created.ID, nil)
	wdel := httptest.NewRecorder()
	mux.ServeHTTP(wdel, del)
	if wdel.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", wdel.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/bots/"+created.ID, nil)
	wget := httptest.NewRecorder()
	mux.ServeHTTP(wget, get)
	var after botResponse
	json.Unmarshal(wget.Body.Bytes(), &after)
	if after.WebhookURL != "" {
		t.Errorf("webhook_url after delete = %q, want empty", after.WebhookURL)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	s := testServer(t)
	sess := session.New("sess-1", "node-1")
	if err := s.Sessions.Save(sess); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/sessions/sess-1", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	_, ok, _ := s.Sessions.Load("sess-1")
	if ok {
		t.Error("session still present after delete")
	}
}

func TestRecoverPanics_ReturnsInternalServerError(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), recoverPanics)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status after panic = %d, want 500", w.Code)
	}
}
