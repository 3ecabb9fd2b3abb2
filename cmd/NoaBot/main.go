// Command NoaBot runs the Noa chat-bot webhook service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/NoaBot/internal/config"
)

// rootFlags override values loaded from the environment.
type rootFlags struct {
	envFile   string
	logLevel  string
	port      string
	mode      string
	memoryDSN string
	persona   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "NoaBot",
		Short:         "Noa, a persona chat bot served over Telegram and WhatsApp webhooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides $LOG_LEVEL)")

	root.AddCommand(newServeCmd(flags), newSetWebhookCmd(flags))
	return root
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(flags *rootFlags) config.Config {
	cfg := config.Load(flags.envFile)
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.port != "" {
		cfg.Port = flags.port
	}
	if flags.mode != "" {
		cfg.Mode = modeFromFlag(flags.mode, cfg.Mode)
	}
	if flags.memoryDSN != "" {
		cfg.MemoryDSN = flags.memoryDSN
	}
	if flags.persona != "" {
		cfg.PersonaPath = flags.persona
	}
	initializeLogger(cfg.SlogLevel())
	return cfg
}

// initializeLogger installs a text handler at the given level as the default logger.
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
