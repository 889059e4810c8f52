// Package telegram is the concrete adapter.Platform binding for Telegram,
// grounded in the teacher's pkg/channels/telegram/telegram_channel.go (bot
// construction, forced-abort long-poll shutdown, typing indicator, rune-
// sliced chunking) and original_source's telegram.py (startup-time stale
// filter, webhook update parsing — folded into adapter.Adapter itself, this
// package only supplies the platform-specific send/typing/receive pieces).
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	messageLimit  = 4096
	chunkSize     = 4090
	typingResend  = 4 * time.Second
)

// Channel binds one Telegram bot token to the generic adapter.
type Channel struct {
	botConfigID string
	bot         *tgbotapi.BotAPI

	stopCtx    context.Context
	stopCancel context.CancelFunc
}

// New authorizes against the Telegram Bot API and returns a Channel,
// ported from the teacher's NewTelegramChannel HTTP-client-wrapping trick
// so long-poll requests can be forcibly aborted on shutdown.
func New(botConfigID, token string) (*Channel, error) {
	stopCtx, cancel := context.WithCancel(context.Background())

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				merged, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-stopCtx.Done():
						mergedCancel()
					case <-merged.Done():
					}
				}()
				return dialer.DialContext(merged, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("telegram: authorize failed: %w", err)
	}
	slog.Info("telegram: bot authorized", "bot_config", botConfigID, "username", bot.Self.UserName)

	return &Channel{
		botConfigID: botConfigID,
		bot:         bot,
		stopCtx:     stopCtx,
		stopCancel:  cancel,
	}, nil
}

// Stop forcibly aborts any in-flight long-poll request, avoiding Telegram's
// 409 Conflict on restart.
func (c *Channel) Stop() {
	c.stopCancel()
	if httpClient, ok := c.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
}

// SendMessage implements adapter.Platform, chunking at the platform's
// 4096-char limit into 4090-char pieces, per SPEC_FULL §4.9 step 7.
func (c *Channel) SendMessage(ctx context.Context, chatRef, text string) error {
	chatID, err := strconv.ParseInt(chatRef, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatRef, err)
	}

	runes := []rune(text)
	if len(runes) <= messageLimit {
		_, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
		return err
	}

	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, string(runes[i:end]))); err != nil {
			return fmt.Errorf("telegram: send chunk at %d: %w", i, err)
		}
	}
	return nil
}

// StartTyping sends a typing indicator and keeps resending it every 4
// seconds (Telegram's indicator expires after ~5s) until the returned stop
// func is called, per SPEC_FULL §4.9 step 5c and the teacher's pattern.
func (c *Channel) StartTyping(ctx context.Context, chatRef string) func() {
	chatID, err := strconv.ParseInt(chatRef, 10, 64)
	if err != nil {
		return func() {}
	}

	stopCh := make(chan struct{})
	send := func() {
		if _, err := c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			slog.Warn("telegram: typing indicator failed", "chat", chatRef, "error", err)
		}
	}

	go func() {
		send()
		ticker := time.NewTicker(typingResend)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				send()
			}
		}
	}()

	var once bool
	return func() {
		if !once {
			once = true
			close(stopCh)
		}
	}
}

// ReceivedMessage is one parsed inbound Telegram text message, the shape
// the long-poll loop hands to the generic adapter.
type ReceivedMessage struct {
	ChatID    string
	UserID    string
	Username  string
	Text      string
	Timestamp time.Time
}

// Poll runs the long-polling update loop, invoking onMessage for every
// inbound text message until ctx is done. Mirrors the teacher's manual
// GetUpdates loop (tgbotapi v5 exposes no context-aware long-poll call).
func (c *Channel) Poll(ctx context.Context, onMessage func(ReceivedMessage)) {
	offset := 0
	for {
		select {
		case <-c.stopCtx.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = 60

		updates, err := c.bot.GetUpdates(req)
		if err != nil {
			select {
			case <-c.stopCtx.Done():
				return
			default:
				slog.Debug("telegram: get-updates failed", "error", err)
				time.Sleep(3 * time.Second)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1

			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			onMessage(ReceivedMessage{
				ChatID:    strconv.FormatInt(update.Message.Chat.ID, 10),
				UserID:    strconv.FormatInt(update.Message.From.ID, 10),
				Username:  update.Message.From.UserName,
				Text:      update.Message.Text,
				Timestamp: update.Message.Time(),
			})
		}
	}
}
