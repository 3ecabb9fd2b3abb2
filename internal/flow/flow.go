// Package flow builds the bot's outgoing content: text replies, images and
// long-term memory summaries.
//
// Builders never return errors to the caller. Each one reports a typed
// models.Outcome and the orchestrator decides what the user sees.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/NoaBot/internal/genai"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/persona"
)

// ChatClient is the completion surface used by the reply builder and summarizer.
type ChatClient interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// ImageClient is the image-generation surface used by the image builder.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (*genai.Image, error)
}

// Result is a built text reply. Text is never empty.
type Result struct {
	Text    string
	Outcome models.Outcome
	Err     error
}

// ReplyBuilder produces a text reply for an inbound message.
type ReplyBuilder interface {
	Build(ctx context.Context, text, scene string, user *models.UserRecord) Result
}

// ReplyBuilderFunc adapts a function to ReplyBuilder.
type ReplyBuilderFunc func(ctx context.Context, text, scene string, user *models.UserRecord) Result

// Build calls f.
func (f ReplyBuilderFunc) Build(ctx context.Context, text, scene string, user *models.UserRecord) Result {
	return f(ctx, text, scene, user)
}

// Deps carries what reply builders may need.
type Deps struct {
	Persona *persona.Persona
	Chat    ChatClient
}

// Factory constructs a ReplyBuilder for a mode.
type Factory func(Deps) (ReplyBuilder, error)

var registry = map[models.ReplyMode]Factory{}

// Register associates a reply mode with a builder factory.
func Register(mode models.ReplyMode, f Factory) {
	registry[mode] = f
}

// Get retrieves the factory for a mode.
func Get(mode models.ReplyMode) (Factory, bool) {
	f, ok := registry[mode]
	return f, ok
}

// NewReplyBuilder builds the reply builder for mode. The openai mode without a
// chat client degrades to templated replies.
func NewReplyBuilder(mode models.ReplyMode, deps Deps) (ReplyBuilder, error) {
	if mode == models.ReplyModeOpenAI && deps.Chat == nil {
		slog.Warn("Flow.NewReplyBuilder: openai mode without a chat client, using templated replies")
		mode = models.ReplyModeTemplated
	}
	f, ok := Get(mode)
	if !ok {
		return nil, fmt.Errorf("no reply builder registered for mode %q", mode)
	}
	return f(deps)
}

func init() {
	Register(models.ReplyModeTemplated, func(Deps) (ReplyBuilder, error) {
		return TemplatedBuilder{}, nil
	})
	Register(models.ReplyModeOpenAI, func(d Deps) (ReplyBuilder, error) {
		return NewOpenAIReplyBuilder(d.Chat, d.Persona), nil
	})
}
