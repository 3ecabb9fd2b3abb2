package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/twiliowhatsapp"
)

// TwilioService implements Service over Twilio's WhatsApp API.
type TwilioService struct {
	client twiliowhatsapp.Sender // real Twilio client or MockClient
}

// NewTwilioService wraps a Twilio sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

func (s *TwilioService) Platform() models.Platform { return models.PlatformWhatsApp }

// SendMessage sends a WhatsApp text.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if to == "" {
		return ErrEmptyRecipient
	}
	return s.client.SendMessage(ctx, to, body)
}

// SendPhoto sends a media message. Inline bytes cannot be delivered through Twilio.
func (s *TwilioService) SendPhoto(ctx context.Context, to string, photo Photo) error {
	if to == "" {
		return ErrEmptyRecipient
	}
	if photo.URL == "" {
		return twiliowhatsapp.ErrInlineMediaUnsupported
	}
	return s.client.SendMedia(ctx, to, photo.URL, photo.Caption)
}

// SendTyping does nothing since Twilio does not expose WhatsApp typing indicators.
func (s *TwilioService) SendTyping(ctx context.Context, to string) error {
	slog.Debug("TwilioService.SendTyping: ignored (unsupported)", "to", to)
	return nil
}
