package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// SummaryInstruction asks the model to compress a conversation.
const SummaryInstruction = "Summarize this conversation in 3-5 sentences. Capture the user's name, " +
	"their preferences, the tone of the chat and any recurring jokes. Write it as notes for yourself."

// Summary is the result of a summarization attempt.
type Summary struct {
	Text    string
	Outcome models.Outcome
	Err     error
}

// Summarizer compresses a user's history into a summary paragraph.
type Summarizer struct {
	chat    ChatClient
	timeout time.Duration
}

// NewSummarizer creates a summarizer. A nil chat client makes every attempt fail.
func NewSummarizer(chat ChatClient) *Summarizer {
	return &Summarizer{chat: chat, timeout: CompletionTimeout}
}

// ShouldSummarize reports whether the history is long enough to compress.
func ShouldSummarize(user *models.UserRecord) bool {
	return user != nil && len(user.History) >= models.SummarizeThreshold
}

// Summarize returns a new paragraph for the user's history. It never mutates user.
func (s *Summarizer) Summarize(ctx context.Context, history []models.HistoryEntry) Summary {
	if s == nil || s.chat == nil {
		return Summary{Outcome: models.OutcomeFailed, Err: ErrNoChatClient}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.chat.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SummaryInstruction),
		openai.UserMessage(Transcript(history)),
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		slog.Warn("Summarizer.Summarize: summarization failed", "error", err)
		return Summary{Outcome: models.OutcomeFailed, Err: err}
	}
	return Summary{Text: strings.TrimSpace(text), Outcome: models.OutcomeSuccess}
}

// Apply merges a successful summary into user and truncates its history.
// Failed summaries leave user untouched.
func (sum Summary) Apply(user *models.UserRecord) bool {
	if sum.Outcome != models.OutcomeSuccess {
		return false
	}
	user.MergeSummary(sum.Text)
	user.TruncateHistory(models.KeepAfterSummary)
	return true
}

// Transcript renders history as "role: text" lines.
func Transcript(history []models.HistoryEntry) string {
	var b strings.Builder
	for _, h := range history {
		fmt.Fprintf(&b, "%s: %s\n", h.Role, h.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
