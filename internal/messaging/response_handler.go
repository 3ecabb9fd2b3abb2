package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/NoaBot/internal/flow"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/observability"
	"github.com/BTreeMap/NoaBot/internal/safety"
	"github.com/BTreeMap/NoaBot/internal/scene"
	"github.com/BTreeMap/NoaBot/internal/store"
	"github.com/BTreeMap/NoaBot/internal/util"
)

const (
	// ImageApology replaces a photo that could not be produced or delivered.
	ImageApology = "My camera's being shy right now… let me try again in a bit 📸"
	// UpsellFormat is appended to text replies at the count thresholds.
	UpsellFormat = "Psst… want more of me? Unlock unlimited chats here: %s"
	// PhotoHistoryText is recorded in history in place of a sent photo.
	PhotoHistoryText = "[sent a photo]"
	// DefaultFreeDaily is the free daily message quota.
	DefaultFreeDaily = 20
)

// upsellSteps are the fixed early thresholds; the free-daily quota is added per handler.
var upsellSteps = []int{6, 12}

// Route is the path a message took through the pipeline.
type Route string

const (
	RouteNoChat   Route = "no_chat"
	RouteFiltered Route = "filtered"
	RouteText     Route = "text"
	RouteImage    Route = "image"
)

// Result describes what Process did. Count is the post-increment daily count.
type Result struct {
	Route   Route
	Reply   string
	Count   int
	Outcome models.Outcome
}

// Opts holds configuration for the ResponseHandler.
type Opts struct {
	FreeDaily  int
	UnlockURL  string
	Clock      util.Clock
	Filter     *safety.Filter
	Summarizer *flow.Summarizer
	Metrics    *observability.Metrics
}

// Option defines a configuration option for the ResponseHandler.
type Option func(*Opts)

// WithFreeDaily sets the free daily quota, which is also an upsell threshold.
func WithFreeDaily(n int) Option {
	return func(o *Opts) { o.FreeDaily = n }
}

// WithUnlockURL sets the upsell link. Upsell is off while it is empty.
func WithUnlockURL(url string) Option {
	return func(o *Opts) { o.UnlockURL = url }
}

// WithClock sets the local clock used for day rollover and timestamps.
func WithClock(c util.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithFilter overrides the safety filter.
func WithFilter(f *safety.Filter) Option {
	return func(o *Opts) { o.Filter = f }
}

// WithSummarizer enables history summarization.
func WithSummarizer(s *flow.Summarizer) Option {
	return func(o *Opts) { o.Summarizer = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// ResponseHandler runs one inbound message through
// safety → route → build → send → record → maybe-summarize.
type ResponseHandler struct {
	store      store.Store
	scenes     scene.Provider
	replies    flow.ReplyBuilder
	images     flow.ImageBuilder
	summarizer *flow.Summarizer
	filter     *safety.Filter
	clock      util.Clock
	freeDaily  int
	unlockURL  string
	metrics    *observability.Metrics
}

// NewResponseHandler wires the pipeline.
func NewResponseHandler(st store.Store, scenes scene.Provider, replies flow.ReplyBuilder, images flow.ImageBuilder, opts ...Option) *ResponseHandler {
	cfg := Opts{FreeDaily: DefaultFreeDaily, Clock: util.NewClock(0)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Filter == nil {
		cfg.Filter = safety.NewFilter()
	}
	return &ResponseHandler{
		store:      st,
		scenes:     scenes,
		replies:    replies,
		images:     images,
		summarizer: cfg.Summarizer,
		filter:     cfg.Filter,
		clock:      cfg.Clock,
		freeDaily:  cfg.FreeDaily,
		unlockURL:  cfg.UnlockURL,
		metrics:    cfg.Metrics,
	}
}

// Process handles one message end to end. It never fails; every problem degrades
// to a valid reply and is logged.
func (rh *ResponseHandler) Process(ctx context.Context, svc Service, msg models.InboundMessage) Result {
	if msg.ChatID == "" {
		rh.metrics.ObserveUpdate(string(RouteNoChat))
		return Result{Route: RouteNoChat}
	}
	log := slog.With("chat_id", msg.ChatID, "platform", svc.Platform(), "trace_id", observability.NewTraceID())

	if term, blocked := rh.filter.Match(msg.Text); blocked {
		log.Info("ResponseHandler.Process: message blocked by safety filter", "term", term)
		if err := svc.SendMessage(ctx, msg.ChatID, safety.RefusalMessage); err != nil {
			log.Error("ResponseHandler.Process: failed to send refusal", "error", err)
		}
		rh.metrics.ObserveUpdate(string(RouteFiltered))
		return Result{Route: RouteFiltered, Reply: safety.RefusalMessage, Outcome: models.OutcomeSuccess}
	}

	today := rh.clock.Today()
	current, reserved := rh.reserve(ctx, msg, today, log)
	count := current.Count

	var res Result
	if flow.IsImageRequest(msg.Text) {
		res = rh.handleImage(ctx, svc, msg, log)
	} else {
		res = rh.handleText(ctx, svc, msg, current, count, log)
	}
	res.Count = count
	rh.metrics.ObserveUpdate(string(res.Route))
	rh.metrics.ObserveReply(string(res.Route), res.Outcome)

	assistantText := res.Reply
	if res.Route == RouteImage && res.Outcome == models.OutcomeSuccess {
		assistantText = PhotoHistoryText
	}
	rh.record(ctx, msg, today, assistantText, reserved, log)
	return res
}

func (rh *ResponseHandler) handleText(ctx context.Context, svc Service, msg models.InboundMessage, user *models.UserRecord, count int, log *slog.Logger) Result {
	if err := svc.SendTyping(ctx, msg.ChatID); err != nil {
		log.Warn("ResponseHandler.handleText: typing indicator failed", "error", err)
	}

	builder := rh.replies
	if isStartCommand(msg.Text) {
		builder = flow.TemplatedBuilder{}
	}
	built := builder.Build(ctx, msg.Text, rh.scenes.Current(ctx), user)

	text := built.Text
	if rh.ShouldUpsell(count) {
		text += "\n\n" + fmt.Sprintf(UpsellFormat, rh.unlockURL)
	}
	if err := svc.SendMessage(ctx, msg.ChatID, text); err != nil {
		log.Error("ResponseHandler.handleText: failed to send reply", "error", err)
	}
	return Result{Route: RouteText, Reply: built.Text, Outcome: built.Outcome}
}

func (rh *ResponseHandler) handleImage(ctx context.Context, svc Service, msg models.InboundMessage, log *slog.Logger) Result {
	img := rh.images.Build(ctx, rh.scenes.Current(ctx))
	if img.Outcome == models.OutcomeSuccess {
		err := svc.SendPhoto(ctx, msg.ChatID, Photo{URL: img.URL, Data: img.Data, Caption: img.Caption})
		if err == nil {
			return Result{Route: RouteImage, Reply: img.Caption, Outcome: models.OutcomeSuccess}
		}
		log.Error("ResponseHandler.handleImage: failed to send photo", "error", err)
	} else {
		log.Warn("ResponseHandler.handleImage: image unavailable, sending apology", "error", img.Err)
	}

	if err := svc.SendMessage(ctx, msg.ChatID, ImageApology); err != nil {
		log.Error("ResponseHandler.handleImage: failed to send apology", "error", err)
	}
	return Result{Route: RouteImage, Reply: ImageApology, Outcome: models.OutcomeFailed}
}

// ShouldUpsell reports whether a text reply at count carries the upsell line.
func (rh *ResponseHandler) ShouldUpsell(count int) bool {
	if rh.unlockURL == "" {
		return false
	}
	if count == rh.freeDaily {
		return true
	}
	for _, step := range upsellSteps {
		if count == step {
			return true
		}
	}
	return false
}

// reserve commits the daily count increment before the reply is built, so every
// concurrent message for a chat sees its own count. When the store is unusable the
// count comes from a local copy and reserved is false.
func (rh *ResponseHandler) reserve(ctx context.Context, msg models.InboundMessage, today string, log *slog.Logger) (user *models.UserRecord, reserved bool) {
	updated, err := store.UpdateUser(ctx, rh.store, msg.ChatID, today, func(u *models.UserRecord) error {
		u.Touch(today)
		if msg.FirstName != "" {
			u.Name = msg.FirstName
		}
		return nil
	})
	if err == nil {
		return updated, true
	}
	log.Error("ResponseHandler.reserve: failed to persist count, continuing with local copy", "error", err)
	rh.metrics.ObserveStoreError("put_count")

	user = rh.loadUser(ctx, msg.ChatID, today)
	user.Touch(today)
	if msg.FirstName != "" {
		user.Name = msg.FirstName
	}
	return user, false
}

func (rh *ResponseHandler) loadUser(ctx context.Context, chatID, today string) *models.UserRecord {
	rec, err := rh.store.GetUser(ctx, chatID)
	if err == nil {
		return rec
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Error("ResponseHandler.loadUser: failed to load user, continuing with empty memory", "chat_id", chatID, "error", err)
		rh.metrics.ObserveStoreError("get_user")
	}
	return models.NewUserRecord(chatID, today)
}

// record appends the exchange to history, plus the count when reserve could not
// commit it, and then summarizes when the history is long. Store failures are
// logged and the write is dropped.
func (rh *ResponseHandler) record(ctx context.Context, msg models.InboundMessage, today, assistantText string, counted bool, log *slog.Logger) {
	now := rh.clock.Unix()
	updated, err := store.UpdateUser(ctx, rh.store, msg.ChatID, today, func(u *models.UserRecord) error {
		if !counted {
			u.Touch(today)
			if msg.FirstName != "" {
				u.Name = msg.FirstName
			}
		}
		u.AppendHistory(
			models.HistoryEntry{Role: models.RoleUser, Text: msg.Text, TS: now},
			models.HistoryEntry{Role: models.RoleAssistant, Text: assistantText, TS: now},
		)
		return nil
	})
	if err != nil {
		log.Error("ResponseHandler.record: failed to persist user", "error", err)
		rh.metrics.ObserveStoreError("put_user")
		return
	}

	if rh.summarizer == nil || !flow.ShouldSummarize(updated) {
		return
	}
	sum := rh.summarizer.Summarize(ctx, updated.History)
	rh.metrics.ObserveLLM("summary", sum.Outcome)
	if sum.Outcome != models.OutcomeSuccess {
		return
	}
	if _, err := store.UpdateUser(ctx, rh.store, msg.ChatID, today, func(u *models.UserRecord) error {
		sum.Apply(u)
		return nil
	}); err != nil {
		log.Error("ResponseHandler.record: failed to persist summary", "error", err)
		rh.metrics.ObserveStoreError("put_summary")
		return
	}
	log.Debug("ResponseHandler.record: history summarized")
}

func isStartCommand(text string) bool {
	text = strings.TrimSpace(text)
	return text == "/start" || strings.HasPrefix(text, "/start ")
}
