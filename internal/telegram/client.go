// Package telegram is a minimal Telegram Bot API client covering what the webhook
// service needs: sending text, photos and typing indicators, and registering the webhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Per-call timeouts.
const (
	TextTimeout   = 10 * time.Second
	TypingTimeout = 10 * time.Second
	PhotoTimeout  = 30 * time.Second
)

// ErrMissingToken is returned by every call when no bot token is configured.
var ErrMissingToken = errors.New("telegram: bot token not configured")

// Opts holds configuration for the Client.
type Opts struct {
	Token      string
	APIBase    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithAPIBase overrides the Bot API base URL.
func WithAPIBase(base string) Option {
	return func(o *Opts) { o.APIBase = base }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client calls the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a client. A missing token is allowed; calls then fail with ErrMissingToken.
func NewClient(opts ...Option) *Client {
	cfg := Opts{APIBase: DefaultAPIBase}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.APIBase + "/bot" + cfg.Token,
		http:    cfg.HTTPClient,
	}
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, TextTimeout)
	defer cancel()
	_, err := c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text})
	return err
}

// SendTyping shows the typing indicator.
func (c *Client) SendTyping(ctx context.Context, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, TypingTimeout)
	defer cancel()
	_, err := c.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": "typing"})
	return err
}

// SendPhotoURL sends a photo Telegram fetches from url.
func (c *Client) SendPhotoURL(ctx context.Context, chatID, url, caption string) error {
	ctx, cancel := context.WithTimeout(ctx, PhotoTimeout)
	defer cancel()
	payload := map[string]any{"chat_id": chatID, "photo": url}
	if caption != "" {
		payload["caption"] = caption
	}
	_, err := c.call(ctx, "sendPhoto", payload)
	return err
}

// SendPhotoBytes uploads an inline photo.
func (c *Client) SendPhotoBytes(ctx context.Context, chatID string, data []byte, caption string) error {
	if c.token == "" {
		return ErrMissingToken
	}
	if len(data) == 0 {
		return fmt.Errorf("telegram: photo data is required for upload")
	}
	ctx, cancel := context.WithTimeout(ctx, PhotoTimeout)
	defer cancel()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", chatID)
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile("photo", "photo.png")
	if err != nil {
		return fmt.Errorf("telegram: creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("telegram: writing photo data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram: closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendPhoto", &buf)
	if err != nil {
		return fmt.Errorf("telegram: creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(req, "sendPhoto")
	return err
}

// SetWebhook registers url as the bot's webhook and returns the raw API response.
// A non-empty secret is echoed back by Telegram in X-Telegram-Bot-Api-Secret-Token.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) (json.RawMessage, error) {
	payload := map[string]any{"url": url}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload)
}

// call POSTs a JSON payload to a Bot API method.
func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	slog.Debug("Telegram.call: request succeeded", "method", method)
	return result.Result, nil
}
