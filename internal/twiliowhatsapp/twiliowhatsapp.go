// Package twiliowhatsapp wraps the Twilio API for the WhatsApp channel of NoaBot.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// AddressPrefix marks WhatsApp addresses in Twilio.
const AddressPrefix = "whatsapp:"

// ErrInlineMediaUnsupported is returned for photo bytes; Twilio only accepts media URLs.
var ErrInlineMediaUnsupported = errors.New("twilio: inline media is not supported, a media url is required")

// Sender is the WhatsApp send surface used by the messaging layer.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMedia(ctx context.Context, to string, mediaURL string, caption string) error
}

// messageCreator is the slice of the Twilio REST API the client calls.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp.
type Client struct {
	api       messageCreator
	fromWhats string // "whatsapp:+1234567890"
}

// NewClient creates a client, falling back to TWILIO_* environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio.NewClient: config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newClient(rest.Api, cfg.FromWhats), nil
}

func newClient(api messageCreator, from string) *Client {
	return &Client{api: api, fromWhats: Address(from)}
}

// SendMessage sends a WhatsApp text.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)
	return c.create(params, to)
}

// SendMedia sends a WhatsApp message with one media attachment.
func (c *Client) SendMedia(ctx context.Context, to string, mediaURL string, caption string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}
	return c.create(params, to)
}

func (c *Client) create(params *twilioApi.CreateMessageParams, to string) error {
	if _, err := c.api.CreateMessage(params); err != nil {
		slog.Error("Twilio.SendMessage: create failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Twilio.SendMessage: message sent", "to", to)
	return nil
}

// Address adds the WhatsApp prefix when missing.
func Address(number string) string {
	if strings.HasPrefix(number, AddressPrefix) {
		return number
	}
	return AddressPrefix + number
}

// Validator checks the X-Twilio-Signature of inbound webhooks.
type Validator struct {
	rv twilioClient.RequestValidator
}

// NewValidator creates a validator for the account's auth token.
func NewValidator(authToken string) *Validator {
	return &Validator{rv: twilioClient.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches url and the posted form params.
func (v *Validator) Validate(url string, params map[string]string, signature string) bool {
	return v.rv.Validate(url, params, signature)
}

// Inbound builds a platform-neutral message from webhook form values.
// It reports false when the sender is missing.
func Inbound(from, body, profileName string) (models.InboundMessage, bool) {
	from = strings.TrimSpace(from)
	if from == "" {
		return models.InboundMessage{}, false
	}
	return models.InboundMessage{
		ChatID:    Address(from),
		Text:      body,
		FirstName: profileName,
		Platform:  models.PlatformWhatsApp,
	}, true
}

// MockClient records sends for tests.
type MockClient struct {
	SentMessages []SentMessage
	SentMedia    []SentMedia
	Err          error
}

// SentMessage is a recorded text send.
type SentMessage struct {
	To   string
	Body string
}

// SentMedia is a recorded media send.
type SentMedia struct {
	To       string
	MediaURL string
	Caption  string
}

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return m.Err
}

func (m *MockClient) SendMedia(ctx context.Context, to string, mediaURL string, caption string) error {
	m.SentMedia = append(m.SentMedia, SentMedia{To: to, MediaURL: mediaURL, Caption: caption})
	return m.Err
}
