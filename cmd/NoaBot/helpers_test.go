package main

import (
	"context"

	"github.com/BTreeMap/NoaBot/internal/messaging"
	"github.com/BTreeMap/NoaBot/internal/models"
)

// recordingService captures outgoing text.
type recordingService struct {
	messages []string
}

func (r *recordingService) Platform() models.Platform { return models.PlatformTelegram }

func (r *recordingService) SendMessage(ctx context.Context, to, body string) error {
	r.messages = append(r.messages, body)
	return nil
}

func (r *recordingService) SendPhoto(ctx context.Context, to string, photo messaging.Photo) error {
	return nil
}

func (r *recordingService) SendTyping(ctx context.Context, to string) error { return nil }
