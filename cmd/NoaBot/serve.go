package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/NoaBot/internal/api"
	"github.com/BTreeMap/NoaBot/internal/config"
	"github.com/BTreeMap/NoaBot/internal/flow"
	"github.com/BTreeMap/NoaBot/internal/genai"
	"github.com/BTreeMap/NoaBot/internal/lockfile"
	"github.com/BTreeMap/NoaBot/internal/messaging"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/observability"
	"github.com/BTreeMap/NoaBot/internal/persona"
	"github.com/BTreeMap/NoaBot/internal/recovery"
	"github.com/BTreeMap/NoaBot/internal/scene"
	"github.com/BTreeMap/NoaBot/internal/scheduler"
	"github.com/BTreeMap/NoaBot/internal/store"
	"github.com/BTreeMap/NoaBot/internal/telegram"
	"github.com/BTreeMap/NoaBot/internal/twiliowhatsapp"
	"github.com/BTreeMap/NoaBot/internal/util"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, loadConfig(flags))
		},
	}
	cmd.Flags().StringVar(&flags.port, "port", "", "HTTP port (overrides $PORT)")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "reply mode: templated or openai (overrides $MODE)")
	cmd.Flags().StringVar(&flags.memoryDSN, "memory-dsn", "", "memory store DSN (overrides $MEMORY_DSN)")
	cmd.Flags().StringVar(&flags.persona, "persona", "", "persona file (overrides $PERSONA_PATH)")
	return cmd
}

// runServe wires every component and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg config.Config) error {
	p, err := persona.Load(cfg.PersonaPath)
	if err != nil {
		return fmt.Errorf("failed to load persona: %w", err)
	}

	if cfg.NeedsLock() {
		path := storeFilePath(cfg.StoreDSN())
		lock, err := lockfile.AcquireLock(lockfile.StateDir(cfg.StateDir, path), path)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(ctx, cfg.StoreDSN())
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer st.Close()

	metrics := observability.NewMetrics(observability.DefaultNamespace)
	clock := util.NewClock(cfg.TZOffsetHours)

	picker := scene.NewPicker(st, scene.WithClock(clock))
	recoveries := recovery.NewManager()
	recoveries.Register(picker)
	if err := recoveries.RecoverAll(ctx); err != nil {
		slog.Warn("serve: continuing with partial state", "error", err)
	}
	if cfg.SceneBoundaryRefresh {
		sched := scheduler.NewScheduler(clock.Offset)
		defer sched.Stop()
		if err := sched.ScheduleSceneRefresh(picker, scene.BoundaryHours); err != nil {
			return err
		}
	}

	handler, err := buildResponseHandler(cfg, p, st, picker, clock, metrics)
	if err != nil {
		return err
	}

	tg := messaging.NewTelegramService(telegram.NewClient(telegram.WithToken(cfg.TelegramToken)))
	if cfg.TelegramToken == "" {
		slog.Warn("serve: TG_TOKEN not set, Telegram replies will fail")
	}

	server := api.NewServer(handler, tg, buildAPIOptions(cfg, metrics)...)
	slog.Info("serve: NoaBot starting", "port", cfg.Port, "mode", cfg.ReplyMode(), "image_mode", cfg.ImageMode,
		"store", store.DetectDSNType(cfg.StoreDSN()), "twilio", cfg.TwilioEnabled())
	return server.Run(ctx)
}

// buildResponseHandler assembles builders around an optional OpenAI client.
func buildResponseHandler(cfg config.Config, p *persona.Persona, st store.Store, scenes scene.Provider, clock util.Clock, metrics *observability.Metrics) (*messaging.ResponseHandler, error) {
	var (
		chat   flow.ChatClient
		images flow.ImageClient
	)
	if cfg.OpenAIEnabled() {
		client, err := genai.NewClient(buildGenAIOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		chat, images = client, client
	}

	replies, err := flow.NewReplyBuilder(cfg.ReplyMode(), flow.Deps{Persona: p, Chat: chat})
	if err != nil {
		return nil, err
	}
	if cfg.ImageMode == models.ImageModeAI && images == nil {
		slog.Warn("serve: IMAGE_MODE=ai without OPENAI_API_KEY, photo requests will get an apology")
	}

	opts := []messaging.Option{
		messaging.WithFreeDaily(cfg.FreeDaily),
		messaging.WithUnlockURL(cfg.UnlockURL),
		messaging.WithClock(clock),
		messaging.WithMetrics(metrics),
	}
	if chat != nil {
		opts = append(opts, messaging.WithSummarizer(flow.NewSummarizer(chat)))
	}
	return messaging.NewResponseHandler(st, scenes, replies, flow.NewImageBuilder(cfg.ImageMode, cfg.StockImageURLs, images), opts...), nil
}

// buildGenAIOptions creates GenAI client options from configuration.
func buildGenAIOptions(cfg config.Config) []genai.Option {
	return []genai.Option{
		genai.WithAPIKey(cfg.OpenAIKey),
		genai.WithModel(cfg.OpenAIModel),
		genai.WithImageModel(cfg.ImageModel),
		genai.WithTemperature(cfg.Temperature),
	}
}

// buildAPIOptions creates server options from configuration.
func buildAPIOptions(cfg config.Config, metrics *observability.Metrics) []api.Option {
	opts := []api.Option{
		api.WithPort(cfg.Port),
		api.WithWebhookSecret(cfg.WebhookSecret),
		api.WithPublicURL(cfg.BaseURL),
		api.WithMetrics(metrics),
	}
	if cfg.TwilioEnabled() {
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioFromNumber),
		)
		if err != nil {
			slog.Error("serve: Twilio disabled", "error", err)
			return opts
		}
		opts = append(opts, api.WithTwilio(messaging.NewTwilioService(client), twiliowhatsapp.NewValidator(cfg.TwilioAuthToken)))
	}
	return opts
}

// storeFilePath strips sqlite URI decorations from a file DSN.
func storeFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return filepath.Clean(path)
}

// modeFromFlag parses a --mode value, keeping current when invalid.
func modeFromFlag(v string, current models.ReplyMode) models.ReplyMode {
	mode := models.ReplyMode(strings.ToLower(v))
	if !models.IsValidReplyMode(mode) {
		slog.Warn("serve: ignoring invalid --mode", "mode", v)
		return current
	}
	return mode
}
