package messaging

import (
	"context"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// telegramSender is the slice of telegram.Client the service uses.
type telegramSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendTyping(ctx context.Context, chatID string) error
	SendPhotoURL(ctx context.Context, chatID, url, caption string) error
	SendPhotoBytes(ctx context.Context, chatID string, data []byte, caption string) error
}

// TelegramService implements Service over the Telegram Bot API.
type TelegramService struct {
	client telegramSender
}

// NewTelegramService wraps a Telegram client.
func NewTelegramService(client telegramSender) *TelegramService {
	return &TelegramService{client: client}
}

func (s *TelegramService) Platform() models.Platform { return models.PlatformTelegram }

// SendMessage sends text to a chat.
func (s *TelegramService) SendMessage(ctx context.Context, to string, body string) error {
	if to == "" {
		return ErrEmptyRecipient
	}
	return s.client.SendMessage(ctx, to, body)
}

// SendPhoto sends by URL when given, otherwise uploads the bytes.
func (s *TelegramService) SendPhoto(ctx context.Context, to string, photo Photo) error {
	if to == "" {
		return ErrEmptyRecipient
	}
	if photo.URL != "" {
		return s.client.SendPhotoURL(ctx, to, photo.URL, photo.Caption)
	}
	return s.client.SendPhotoBytes(ctx, to, photo.Data, photo.Caption)
}

// SendTyping shows the typing indicator.
func (s *TelegramService) SendTyping(ctx context.Context, to string) error {
	if to == "" {
		return ErrEmptyRecipient
	}
	return s.client.SendTyping(ctx, to)
}
