package httpapi

import (
	"net/http"
	"time"

	"easypath/internal/idgen"
	"easypath/internal/store"
)

type botRequest struct {
	Platform   string `json:"platform"`
	BotToken   string `json:"bot_token"`
	FlowID     string `json:"flow_id"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type botResponse struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	FlowID     string    `json:"flow_id"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toBotResponse(b *store.BotConfig) botResponse {
	return botResponse{
		ID: b.ID, Platform: b.Platform, FlowID: b.FlowID,
		WebhookURL: b.WebhookURL, CreatedAt: b.CreatedAt,
	}
}

// handleCreateBot implements `POST /bots`. The bot token is sealed via the
// server's credential box before being handed to the repository, never
// stored or echoed back in plaintext.
func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Platform == "" || req.BotToken == "" || req.FlowID == "" {
		writeError(w, http.StatusBadRequest, "platform, bot_token, and flow_id are required")
		return
	}

	sealed, err := s.Credentials.Seal(req.BotToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to seal bot token")
		return
	}

	b := &store.BotConfig{
		ID:             idgen.New(),
		Platform:       req.Platform,
		EncryptedToken: sealed,
		FlowID:         req.FlowID,
		WebhookURL:     req.WebhookURL,
		CreatedAt:      time.Now(),
	}
	if err := s.Store.SaveBotConfig(b); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save bot")
		return
	}
	writeJSON(w, http.StatusCreated, toBotResponse(b))
}

// handleListBots implements `GET /bots`.
func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots := s.Store.ListBotConfigs()
	out := make([]botResponse, 0, len(bots))
	for _, b := range bots {
		out = append(out, toBotResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetBot implements `GET /bots/{id}`.
func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.Store.BotConfigByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	writeJSON(w, http.StatusOK, toBotResponse(b))
}

// handleUpdateBot implements `PUT /bots/{id}`.
func (s *Server) handleUpdateBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.Store.BotConfigByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}

	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Platform != "" {
		b.Platform = req.Platform
	}
	if req.BotToken != "" {
		sealed, err := s.Credentials.Seal(req.BotToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to seal bot token")
			return
		}
		b.EncryptedToken = sealed
	}
	if req.FlowID != "" {
		b.FlowID = req.FlowID
	}
	if req.WebhookURL != "" {
		b.WebhookURL = req.WebhookURL
	}

	if err := s.Store.SaveBotConfig(b); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save bot")
		return
	}
	writeJSON(w, http.StatusOK, toBotResponse(b))
}

// handleDeleteBot implements `DELETE /bots/{id}`. The bot record is not
// removed: its webhook URL is cleared and the record saved back, so
// conversations and variables attached to the bot remain queryable.
func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.Store.BotConfigByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	b.WebhookURL = ""
	if err := s.Store.SaveBotConfig(b); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete bot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleUpdateWebhooks implements `POST /bots/update-webhooks`: it reports
// how many stored bots have a webhook URL set. It does not contact any
// platform and does not register or change any webhook.
func (s *Server) handleUpdateWebhooks(w http.ResponseWriter, r *http.Request) {
	bots := s.Store.ListBotConfigs()
	updated := 0
	for _, b := range bots {
		if b.WebhookURL == "" {
			continue
		}
		updated++
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
