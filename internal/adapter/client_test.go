package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEngineHTTPClient_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/message-with-flow" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reply":"hi there","current_node_id":"node-2"}`))
	}))
	defer srv.Close()

	c := NewEngineHTTPClient(srv.URL)
	resp, err := c.SendMessage(context.Background(), "sess-1", "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Reply != "hi there" || resp.CurrentNodeID != "node-2" {
		t.Errorf("SendMessage() = %+v, want reply=hi there node=node-2", resp)
	}
}

func TestEngineHTTPClient_SendMessage_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewEngineHTTPClient(srv.URL)
	if _, err := c.SendMessage(context.Background(), "sess-1", "hello", nil); err == nil {
		t.Error("SendMessage() = nil error on 500 response, want error")
	}
}

func TestEngineHTTPClient_ClearSession_TreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method: %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewEngineHTTPClient(srv.URL)
	if err := c.ClearSession(context.Background(), "sess-1"); err != nil {
		t.Errorf("ClearSession() = %v on 404, want nil", err)
	}
}

func TestEngineHTTPClient_ClearSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewEngineHTTPClient(srv.URL)
	if err := c.ClearSession(context.Background(), "sess-1"); err != nil {
		t.Errorf("ClearSession() = %v, want nil", err)
	}
}

func TestEngineHTTPClient_ClearSession_OtherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewEngineHTTPClient(srv.URL)
	if err := c.ClearSession(context.Background(), "sess-1"); err == nil {
		t.Error("ClearSession() = nil error on 500, want error")
	}
}
