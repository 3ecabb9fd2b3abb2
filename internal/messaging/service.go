// Package messaging connects inbound chat messages to reply generation and
// delivers the result through the originating platform.
package messaging

import (
	"context"
	"errors"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// ErrEmptyRecipient is returned when a send has no destination.
var ErrEmptyRecipient = errors.New("recipient cannot be empty")

// Photo is an outgoing picture given either by URL or by inline bytes.
type Photo struct {
	URL     string
	Data    []byte
	Caption string
}

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// Platform identifies the channel the service delivers on.
	Platform() models.Platform

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendPhoto sends a photo with an optional caption.
	SendPhoto(ctx context.Context, to string, photo Photo) error

	// SendTyping shows a typing indicator where the platform supports it.
	SendTyping(ctx context.Context, to string) error
}
