package flow

import (
	"context"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// TemplatedReply is the fixed reply used in templated mode.
const TemplatedReply = "Hey you 😉 You’ve been on my mind… and I love how bold you are.\nTell me one thing you probably shouldn’t tell me 🔥"

// TemplatedBuilder always answers with TemplatedReply.
type TemplatedBuilder struct{}

// Build returns the templated reply.
func (TemplatedBuilder) Build(ctx context.Context, text, scene string, user *models.UserRecord) Result {
	return Result{Text: TemplatedReply, Outcome: models.OutcomeSuccess}
}
