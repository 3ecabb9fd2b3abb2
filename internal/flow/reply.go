package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/persona"
	"github.com/BTreeMap/NoaBot/internal/tone"
)

// FallbackReply is returned whenever a completion cannot be used.
const FallbackReply = "Mm, I lost my train of thought for a second… say that again for me? 😘"

// ReplyConstraint is appended to every system instruction.
const ReplyConstraint = "Keep replies under ~60 words, flirty, never explicit."

// CompletionTimeout bounds a single completion request.
const CompletionTimeout = 30 * time.Second

// ErrNoChatClient is reported when no completion client is configured.
var ErrNoChatClient = errors.New("chat client not configured")

// OpenAIReplyBuilder composes persona, scene, memory and tone into a completion request.
type OpenAIReplyBuilder struct {
	chat    ChatClient
	persona *persona.Persona
	timeout time.Duration
}

// NewOpenAIReplyBuilder creates a reply builder. A nil chat client is allowed and
// always yields the fallback reply.
func NewOpenAIReplyBuilder(chat ChatClient, p *persona.Persona) *OpenAIReplyBuilder {
	return &OpenAIReplyBuilder{chat: chat, persona: p, timeout: CompletionTimeout}
}

// Build returns the completion text, or FallbackReply with OutcomeDegraded on any failure.
func (b *OpenAIReplyBuilder) Build(ctx context.Context, text, scene string, user *models.UserRecord) Result {
	if b.chat == nil {
		return Result{Text: FallbackReply, Outcome: models.OutcomeDegraded, Err: ErrNoChatClient}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	reply, err := b.chat.Complete(ctx, b.Messages(text, scene, user))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		slog.Warn("OpenAIReplyBuilder.Build: completion failed, using fallback", "error", err)
		return Result{Text: FallbackReply, Outcome: models.OutcomeDegraded, Err: err}
	}
	return Result{Text: strings.TrimSpace(reply), Outcome: models.OutcomeSuccess}
}

// Messages assembles the system instruction, recent history and the new user text.
func (b *OpenAIReplyBuilder) Messages(text, scene string, user *models.UserRecord) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemInstruction(b.persona, scene, user, tone.Detect(text))),
	}
	if user != nil {
		for _, h := range user.RecentHistory(models.PromptHistoryTurns) {
			switch h.Role {
			case models.RoleAssistant:
				messages = append(messages, openai.AssistantMessage(h.Text))
			default:
				messages = append(messages, openai.UserMessage(h.Text))
			}
		}
	}
	return append(messages, openai.UserMessage(text))
}

// SystemInstruction joins the persona prompt with the per-request context lines.
func SystemInstruction(p *persona.Persona, scene string, user *models.UserRecord, t tone.Tone) string {
	var lines []string
	if prompt := p.Prompt(); prompt != "" {
		lines = append(lines, prompt)
	}
	if scene != "" {
		lines = append(lines, "Current scene: "+scene)
	}
	if user != nil {
		if user.Summary != "" {
			lines = append(lines, "What you remember about them: "+user.Summary)
		}
		if user.Name != "" {
			lines = append(lines, "Their name is "+user.Name+".")
		}
	}
	lines = append(lines, tone.BuildToneGuide(t), ReplyConstraint)
	return strings.Join(lines, "\n")
}
