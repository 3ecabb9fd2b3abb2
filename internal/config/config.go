// Package config loads NoaBot settings from the environment and an optional .env file.
package config

import (
	"log/slog"
	"strings"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/NoaBot/internal/genai"
	"github.com/BTreeMap/NoaBot/internal/messaging"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/store"
	"github.com/BTreeMap/NoaBot/internal/util"
)

// Defaults for settings not present in the environment.
const (
	DefaultPersonaPath = "noa_persona_prompt.json"
	DefaultPort        = "8080"
	DefaultLogLevel    = "info"
)

// Config is the full runtime configuration.
type Config struct {
	TelegramToken string
	BaseURL       string
	WebhookSecret string

	Mode        models.ReplyMode
	OpenAIKey   string
	OpenAIModel string
	Temperature float64
	PersonaPath string

	MemoryPath string
	MemoryDSN  string
	StateDir   string

	ImageMode      models.ImageMode
	StockImageURLs []string
	ImageModel     string

	FreeDaily     int
	UnlockURL     string
	TZOffsetHours float64

	Port                 string
	SceneBoundaryRefresh bool
	LogLevel             string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// Load reads the given .env files (default ".env"; missing files are ignored)
// and then the process environment.
func Load(envFiles ...string) Config {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("Config.Load: no .env file loaded", "error", err)
	}

	cfg := Config{
		TelegramToken: util.GetEnv("TG_TOKEN", ""),
		BaseURL:       strings.TrimRight(util.GetEnv("BASE_URL", ""), "/"),
		WebhookSecret: util.GetEnv("WEBHOOK_SECRET", ""),

		Mode:        models.ReplyMode(strings.ToLower(util.GetEnv("MODE", string(models.ReplyModeTemplated)))),
		OpenAIKey:   util.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel: util.GetEnv("OPENAI_MODEL", genai.DefaultModel),
		Temperature: util.ParseFloatEnv("TEMPERATURE", genai.DefaultTemperature),
		PersonaPath: util.GetEnv("PERSONA_PATH", DefaultPersonaPath),

		MemoryPath: util.GetEnv("MEMORY_PATH", store.DefaultMemoryFile),
		MemoryDSN:  util.GetEnv("MEMORY_DSN", ""),
		StateDir:   util.GetEnv("NOABOT_STATE_DIR", ""),

		ImageMode:      models.ImageMode(strings.ToLower(util.GetEnv("IMAGE_MODE", string(models.ImageModeStock)))),
		StockImageURLs: util.ParseListEnv("STOCK_IMAGE_URLS"),
		ImageModel:     util.GetEnv("IMAGE_MODEL", genai.DefaultImageModel),

		FreeDaily:     util.ParseIntEnv("FREE_DAILY", messaging.DefaultFreeDaily),
		UnlockURL:     util.GetEnv("UNLOCK_URL", ""),
		TZOffsetHours: util.ParseFloatEnv("TZ_OFFSET_HOURS", 0),

		Port:                 util.GetEnv("PORT", DefaultPort),
		SceneBoundaryRefresh: util.ParseBoolEnv("SCENE_BOUNDARY_REFRESH", false),
		LogLevel:             util.GetEnv("LOG_LEVEL", DefaultLogLevel),

		TwilioAccountSID: util.GetEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  util.GetEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: util.GetEnv("TWILIO_FROM_NUMBER", ""),
	}
	cfg.normalize()

	slog.Debug("Config.Load: environment loaded",
		"mode", cfg.Mode,
		"image_mode", cfg.ImageMode,
		"tg_token_set", cfg.TelegramToken != "",
		"openai_key_set", cfg.OpenAIKey != "",
		"memory_dsn_set", cfg.MemoryDSN != "",
		"memory_path", cfg.MemoryPath,
		"stock_images", len(cfg.StockImageURLs),
		"free_daily", cfg.FreeDaily,
		"tz_offset_hours", cfg.TZOffsetHours,
		"twilio_enabled", cfg.TwilioEnabled())
	return cfg
}

// normalize replaces unusable values with defaults.
func (c *Config) normalize() {
	if !models.IsValidReplyMode(c.Mode) {
		slog.Warn("Config.normalize: unknown MODE, using templated", "mode", c.Mode)
		c.Mode = models.ReplyModeTemplated
	}
	if !models.IsValidImageMode(c.ImageMode) {
		slog.Warn("Config.normalize: unknown IMAGE_MODE, using stock", "image_mode", c.ImageMode)
		c.ImageMode = models.ImageModeStock
	}
	if c.FreeDaily <= 0 {
		c.FreeDaily = messaging.DefaultFreeDaily
	}
	if c.Port == "" {
		c.Port = DefaultPort
	}
}

// StoreDSN is the DSN handed to store.Open: MEMORY_DSN when set, else the memory file path.
func (c Config) StoreDSN() string {
	if c.MemoryDSN != "" {
		return c.MemoryDSN
	}
	return c.MemoryPath
}

// NeedsLock reports whether the configured store lives in a local file.
func (c Config) NeedsLock() bool {
	switch store.DetectDSNType(c.StoreDSN()) {
	case store.DSNTypeFile, store.DSNTypeSQLite:
		return true
	default:
		return false
	}
}

// OpenAIEnabled reports whether an LLM client can be built.
func (c Config) OpenAIEnabled() bool {
	return c.OpenAIKey != ""
}

// TwilioEnabled reports whether the WhatsApp channel is fully configured.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// WebhookURL is the Telegram webhook address registered by set-webhook.
func (c Config) WebhookURL() string {
	return c.BaseURL + "/webhook"
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ReplyMode is the effective reply mode: openai without a key falls back to templated.
func (c Config) ReplyMode() models.ReplyMode {
	if c.Mode == models.ReplyModeOpenAI && !c.OpenAIEnabled() {
		return models.ReplyModeTemplated
	}
	return c.Mode
}
