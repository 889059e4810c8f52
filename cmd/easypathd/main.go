// Command easypathd is the conversational-flow execution platform's single
// binary: control plane, realtime hub, and messaging-platform adapter all
// served from one process. Structured after the teacher's main.go — a
// config-reload loop wrapping one runnable lifecycle — generalized from a
// single local agent process to an HTTP-served engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"easypath/internal/adapter"
	"easypath/internal/adapter/telegram"
	"easypath/internal/config"
	"easypath/internal/flow"
	"easypath/internal/httpapi"
	"easypath/internal/llmclient"
	_ "easypath/internal/llmclient/autoload" // auto-register LLM providers
	"easypath/internal/monitor"
	"easypath/internal/orchestrator"
	"easypath/internal/realtime"
	"easypath/internal/realtime/clientpool"
	"easypath/internal/session"
	"easypath/internal/store"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, sysCfg, err := config.Load()
	if err == nil {
		monitor.SetupEnvironment(sysCfg.LogLevel)
	}

	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")

	for {
		err := runServer(ctx, reloadCh)
		if err != nil {
			slog.Error("server crashed or failed to load config", "error", err)
			slog.Info("waiting 5 seconds before retrying...")
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				slog.Info("configuration change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Info("==== configuration reloaded ====")
			}
		}
	}
}

// runServer executes a single lifecycle of the control plane: load config,
// wire every component, serve until shutdown or reload, then return.
func runServer(ctx context.Context, reloadCh <-chan struct{}) error {
	cfg, sysCfg, err := config.Load()
	if err != nil {
		monitor.PrintBanner()
		monitor.SetupSlog("info")
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	monitor.SetupEnvironment(sysCfg.LogLevel)
	slog.Info("==========================================")

	// --- Session store ---
	sessions := session.NewFileStore(sysCfg.SessionsDir, time.Duration(sysCfg.SessionTTLSecs)*time.Second)

	// --- LLM client ---
	// No retry cycles inside the LLM client; MaxRetries is the extractor's.
	llmClient, err := llmclient.NewFromConfig(cfg.LLM, 0, time.Duration(sysCfg.RetryDelayMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to init LLM client: %w", err)
	}

	// --- Orchestrator ---
	orch := orchestrator.New(llmClient, sysCfg.MaxRetries)

	// --- Control-plane repository + credential box ---
	repo, err := store.NewRepository("data/control")
	if err != nil {
		return fmt.Errorf("failed to open control-plane store: %w", err)
	}
	creds, err := store.NewCredentialBox([]byte(sysCfg.EncryptionKey))
	if err != nil {
		return fmt.Errorf("failed to init credential box: %w", err)
	}

	// --- Realtime hub + server (SPEC_FULL §4.7) ---
	hub := realtime.New(func(sessionID string) (*realtime.Snapshot, bool) {
		sess, ok, err := sessions.Load(sessionID)
		if err != nil || !ok {
			return nil, false
		}
		return &realtime.Snapshot{
			CurrentNodeID: sess.CurrentNodeID,
			Variables:     sess.Variables(),
			History:       sess.RecentMessages(50),
			IsActive:      true,
		}, true
	})
	rtServer := realtime.NewServer(hub, sessions, orch,
		time.Duration(sysCfg.WSHeartbeatSecs)*time.Second,
		time.Duration(sysCfg.WSPongGraceSecs)*time.Second,
	)

	// --- WebSocket client pool + engine HTTP client (SPEC_FULL §4.8, §4.9) ---
	selfWSURL := "ws://127.0.0.1" + sysCfg.HTTPAddr + "/ws"
	pool := clientpool.New(
		func(sessionID string) string { return selfWSURL + "?session_id=" + sessionID },
		time.Duration(sysCfg.WSConnectTimeoutSecs)*time.Second,
		time.Duration(sysCfg.WSCleanupDelaySecs)*time.Second,
	)
	engineClient := adapter.NewEngineHTTPClient("http://127.0.0.1" + sysCfg.HTTPAddr)
	tgAdapter := adapter.New(engineClient, pool, repo, time.Now())

	// --- Control plane HTTP server (SPEC_FULL §6) ---
	api := httpapi.NewServer(orch, sessions, repo, hub, rtServer, tgAdapter, creds, "data/flows")

	httpServer := &http.Server{
		Addr:    sysCfg.HTTPAddr,
		Handler: api.Handler(),
	}

	serveErrCh := make(chan error, 1)
	go func() {
		slog.Info("control plane listening", "addr", sysCfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go pollTelegramBots(pollCtx, repo, creds, tgAdapter)

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal, stopping services...")
		shutdownServer(httpServer)
		slog.Info("bye!")
		return nil
	case <-reloadCh:
		slog.Info("configuration change detected, stopping services...")
		shutdownServer(httpServer)
		slog.Info("draining connections before restart...")
		time.Sleep(1 * time.Second)
		return nil
	case err := <-serveErrCh:
		return fmt.Errorf("control plane server failed: %w", err)
	}
}

func shutdownServer(s *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Warn("control plane shutdown did not complete cleanly", "error", err)
	}
}

// pollTelegramBots runs the long-poll path for every Telegram bot configured
// without a webhook_url. One goroutine per bot; runServer cancels ctx when
// its lifecycle ends, so a config reload stops them and the next lifecycle
// starts them afresh.
func pollTelegramBots(ctx context.Context, repo *store.Repository, creds *store.CredentialBox, ad *adapter.Adapter) {
	for _, bot := range repo.ListBotConfigs() {
		if bot.Platform != "telegram" || bot.WebhookURL != "" {
			continue
		}
		bot := bot
		go func() {
			token, err := creds.Open(bot.EncryptedToken)
			if err != nil {
				slog.Error("telegram polling: failed to decrypt bot token", "bot_config", bot.ID, "error", err)
				return
			}
			ch, err := telegram.New(bot.ID, token)
			if err != nil {
				slog.Error("telegram polling: failed to authorize bot", "bot_config", bot.ID, "error", err)
				return
			}
			defer ch.Stop()

			ch.Poll(ctx, func(msg telegram.ReceivedMessage) {
				handleTelegramPollMessage(ctx, repo, ad, ch, bot, msg)
			})
		}()
	}
}

func flowForBot(bot *store.BotConfig) (*flow.Flow, error) {
	return flow.LoadFile(bot.FlowID)
}

func handleTelegramPollMessage(ctx context.Context, repo *store.Repository, ad *adapter.Adapter, ch *telegram.Channel, bot *store.BotConfig, msg telegram.ReceivedMessage) {
	if ad.IsStale(msg.Timestamp) {
		return
	}
	conv, err := ad.ResolveConversation("telegram", bot.ID, msg.UserID, msg.Username)
	if err != nil {
		slog.Error("telegram polling: failed to resolve conversation", "bot_config", bot.ID, "error", err)
		return
	}
	if conv.Status == "inactive" || conv.Status == "archived" {
		return
	}

	_ = repo.AppendMessage(&store.ConversationMessage{ConversationID: conv.ID, Role: "user", Content: msg.Text})
	_ = repo.TouchConversation(conv)

	f, err := flowForBot(bot)
	if err != nil {
		slog.Error("telegram polling: failed to load bot flow", "bot_config", bot.ID, "error", err)
		return
	}
	flowData, _ := json.Marshal(f)

	stepCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	ad.ProcessInbound(stepCtx, conv, msg.ChatID, msg.Text, flowData, ch)
}
