package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"easypath/internal/adapter/telegram"
	"easypath/internal/flow"
	"easypath/internal/store"

	jsoniter "github.com/json-iterator/go"
)

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Date int64  `json:"date"`
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// handleTelegramWebhook implements `POST /webhooks/telegram/{bot_config_id}`
// (SPEC_FULL §6): always returns 200 regardless of downstream failure;
// processing runs in background, per the teacher's "webhook handlers never
// block on the response" idiom and SPEC_FULL §7's error-handling policy.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	botConfigID := r.PathValue("bot_config_id")

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("httpapi: malformed telegram webhook payload", "bot_config", botConfigID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.Text == "" {
		return
	}

	go s.processTelegramUpdate(botConfigID, update)
}

func (s *Server) processTelegramUpdate(botConfigID string, update telegramUpdate) {
	bot, ok := s.Store.BotConfigByID(botConfigID)
	if !ok {
		slog.Error("httpapi: unknown bot config in webhook", "bot_config", botConfigID)
		return
	}

	msgTime := time.Unix(update.Message.Date, 0)
	if s.Telegram.IsStale(msgTime) {
		slog.Info("httpapi: ignoring stale telegram message", "bot_config", botConfigID, "age", time.Since(msgTime))
		return
	}

	userID := itoa(update.Message.From.ID)
	conv, err := s.Telegram.ResolveConversation("telegram", botConfigID, userID, update.Message.From.Username)
	if err != nil {
		slog.Error("httpapi: failed to resolve conversation", "bot_config", botConfigID, "error", err)
		return
	}
	if conv.Status == "inactive" || conv.Status == "archived" {
		return
	}

	_ = s.Store.AppendMessage(&store.ConversationMessage{ConversationID: conv.ID, Role: "user", Content: update.Message.Text})
	_ = s.Store.TouchConversation(conv)

	f, err := flow.LoadFile(bot.FlowID)
	if err != nil {
		slog.Error("httpapi: failed to load bot flow", "bot_config", botConfigID, "flow", bot.FlowID, "error", err)
		return
	}
	flowData, _ := json.Marshal(f)

	chatRef := itoa(update.Message.Chat.ID)
	channel, err := s.telegramChannelFor(botConfigID, bot.EncryptedToken)
	if err != nil {
		slog.Error("httpapi: failed to obtain telegram channel", "bot_config", botConfigID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.Telegram.ProcessInbound(ctx, conv, chatRef, update.Message.Text, jsoniter.RawMessage(flowData), channel)
}

// telegramChannelFor returns the cached telegram.Channel for botConfigID,
// authorizing a fresh one (decrypting the stored token) on first use.
func (s *Server) telegramChannelFor(botConfigID, encryptedToken string) (*telegram.Channel, error) {
	s.telegramMu.Lock()
	defer s.telegramMu.Unlock()

	if ch, ok := s.telegramChannels[botConfigID]; ok {
		return ch, nil
	}

	token, err := s.Credentials.Open(encryptedToken)
	if err != nil {
		return nil, err
	}
	ch, err := telegram.New(botConfigID, token)
	if err != nil {
		return nil, err
	}
	s.telegramChannels[botConfigID] = ch
	return ch, nil
}

func itoa(v int64) string {
	buf := [20]byte{}
	i := len(buf)
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
