package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/NoaBot/internal/config"
	"github.com/BTreeMap/NoaBot/internal/telegram"
)

// errMissingWebhookConfig is returned when set-webhook cannot build the URL.
var errMissingWebhookConfig = errors.New("please set TG_TOKEN and BASE_URL in environment")

func newSetWebhookCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-webhook",
		Short: "Register BASE_URL/webhook as the Telegram bot webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetWebhook(cmd.Context(), loadConfig(flags), telegram.DefaultAPIBase, cmd.OutOrStdout())
		},
	}
}

// runSetWebhook performs the one-shot setWebhook call and prints Telegram's answer.
func runSetWebhook(ctx context.Context, cfg config.Config, apiBase string, out io.Writer) error {
	if cfg.TelegramToken == "" || cfg.BaseURL == "" {
		return errMissingWebhookConfig
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := telegram.NewClient(telegram.WithToken(cfg.TelegramToken), telegram.WithAPIBase(apiBase))
	result, err := client.SetWebhook(ctx, cfg.WebhookURL(), cfg.WebhookSecret)
	if err != nil {
		return fmt.Errorf("setWebhook failed: %w", err)
	}
	fmt.Fprintf(out, "Telegram response: webhook=%s result=%s\n", cfg.WebhookURL(), result)
	return nil
}
