package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"easypath/internal/errs"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EngineResponse is the reply payload of the engine's chat endpoint,
// grounded in original_source's engine_client.py send_message return shape.
type EngineResponse struct {
	Reply         string `json:"reply"`
	CurrentNodeID string `json:"current_node_id"`
}

// EngineHTTPClient is the non-streaming request/response path to the
// engine's own control plane, used both to trigger execution and as the
// fallback delivery path when streaming captures nothing. Ported from
// original_source's EngineClient (app/services/engine_client.py).
type EngineHTTPClient struct {
	BaseURL      string
	HTTPClient   *http.Client
	ClearTimeout time.Duration
}

// NewEngineHTTPClient builds a client with the original's 60s send timeout
// and 5s clear timeout.
func NewEngineHTTPClient(baseURL string) *EngineHTTPClient {
	return &EngineHTTPClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		ClearTimeout: 5 * time.Second,
	}
}

// SendMessage posts the user message and flow to the engine and returns its
// reply. A nil response with no error never happens; failures are always
// wrapped errors so callers can fall back deterministically.
func (c *EngineHTTPClient) SendMessage(ctx context.Context, sessionID, userMessage string, flowData jsoniter.RawMessage) (*EngineResponse, error) {
	endpoint := c.BaseURL + "/chat/message-with-flow"
	payload := map[string]any{
		"session_id":   sessionID,
		"user_message": userMessage,
		"flow":         flowData,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.ParseFailure, "encode engine request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, errs.Wrap(errs.ChatPlatformFailure, "build engine request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamSocketFailure, "engine request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.UpstreamSocketFailure, fmt.Sprintf("engine returned status %d", resp.StatusCode))
	}

	var out EngineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.ParseFailure, "decode engine response", err)
	}
	return &out, nil
}

// ClearSession asks the engine to drop a session's state. A 404 is treated
// as success, matching the original's "already cleared" handling.
func (c *EngineHTTPClient) ClearSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.ClearTimeout)
	defer cancel()

	endpoint := c.BaseURL + "/sessions/" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return errs.Wrap(errs.ChatPlatformFailure, "build clear-session request", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.UpstreamSocketFailure, "clear-session request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return errs.New(errs.UpstreamSocketFailure, fmt.Sprintf("clear-session returned status %d", resp.StatusCode))
}
