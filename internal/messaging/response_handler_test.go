package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/NoaBot/internal/flow"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/safety"
	"github.com/BTreeMap/NoaBot/internal/store"
	"github.com/BTreeMap/NoaBot/internal/testutil"
)

// mockService records everything sent through it.
type mockService struct {
	messages []string
	photos   []Photo
	typing   int
	photoErr error
}

func (m *mockService) Platform() models.Platform { return models.PlatformTelegram }

func (m *mockService) SendMessage(ctx context.Context, to string, body string) error {
	m.messages = append(m.messages, body)
	return nil
}

func (m *mockService) SendPhoto(ctx context.Context, to string, photo Photo) error {
	if m.photoErr != nil {
		return m.photoErr
	}
	m.photos = append(m.photos, photo)
	return nil
}

func (m *mockService) SendTyping(ctx context.Context, to string) error {
	m.typing++
	return nil
}

type fixedScene string

func (s fixedScene) Current(ctx context.Context) string { return string(s) }

type mockChat struct {
	reply string
	err   error
}

func (m *mockChat) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.reply, m.err
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) GetUser(ctx context.Context, chatID string) (*models.UserRecord, error) {
	return nil, errors.New("disk on fire")
}
func (failingStore) PutUser(ctx context.Context, rec *models.UserRecord) error {
	return errors.New("disk on fire")
}
func (failingStore) GetScene(ctx context.Context) (*models.SceneState, error) {
	return nil, errors.New("disk on fire")
}
func (failingStore) PutScene(ctx context.Context, s models.SceneState) error {
	return errors.New("disk on fire")
}
func (failingStore) Close() error { return nil }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(st store.Store, replies flow.ReplyBuilder, images flow.ImageBuilder, opts ...Option) *ResponseHandler {
	if replies == nil {
		replies = flow.TemplatedBuilder{}
	}
	if images == nil {
		images = flow.NewStockImageBuilder([]string{"https://img/1.jpg"}, nil)
	}
	opts = append([]Option{WithClock(testutil.FixedClock(testNow))}, opts...)
	return NewResponseHandler(st, fixedScene("On the balcony."), replies, images, opts...)
}

func inbound(chatID, text string) models.InboundMessage {
	return models.InboundMessage{ChatID: chatID, Text: text, Platform: models.PlatformTelegram}
}

func TestProcessNewChatTemplated(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := &mockService{}
	rh := newTestHandler(st, nil, nil)

	res := rh.Process(ctx, svc, inbound("100", "hi there"))

	if res.Route != RouteText || res.Reply != flow.TemplatedReply || res.Count != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(svc.messages) != 1 || svc.messages[0] != flow.TemplatedReply {
		t.Errorf("sent messages = %q", svc.messages)
	}
	if svc.typing != 1 {
		t.Errorf("typing = %d, want 1", svc.typing)
	}

	rec, err := st.GetUser(ctx, "100")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if rec.Count != 1 || rec.Day != "2025-06-01" {
		t.Errorf("count/day = %d/%s", rec.Count, rec.Day)
	}
	if len(rec.History) != 2 || rec.History[0].Role != models.RoleUser || rec.History[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected history %+v", rec.History)
	}
	if rec.History[0].Text != "hi there" || rec.History[1].Text != flow.TemplatedReply {
		t.Errorf("unexpected history texts %+v", rec.History)
	}
}

func TestProcessBannedKeywordLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	seed := models.NewUserRecord("7", "2025-06-01")
	seed.Count = 3
	seed.AppendHistory(models.HistoryEntry{Role: models.RoleUser, Text: "hey"})
	if err := st.PutUser(ctx, seed); err != nil {
		t.Fatal(err)
	}
	before, _ := st.GetUser(ctx, "7")

	for _, text := range []string{"are you 15?", "I'm UNDERAGE", "a Minor thing"} {
		svc := &mockService{}
		res := newTestHandler(st, nil, nil).Process(ctx, svc, inbound("7", text))

		if res.Route != RouteFiltered {
			t.Errorf("%q: route = %s, want filtered", text, res.Route)
		}
		if len(svc.messages) != 1 || svc.messages[0] != safety.RefusalMessage {
			t.Errorf("%q: sent %q, want refusal only", text, svc.messages)
		}
		if svc.typing != 0 || len(svc.photos) != 0 {
			t.Errorf("%q: unexpected side sends", text)
		}
	}

	after, _ := st.GetUser(ctx, "7")
	if after.Version != before.Version || after.Count != before.Count || len(after.History) != len(before.History) {
		t.Errorf("record changed: before=%+v after=%+v", before, after)
	}
}

func TestProcessBannedKeywordNewChatNotCreated(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	newTestHandler(st, nil, nil).Process(ctx, &mockService{}, inbound("8", "are you 15?"))
	if _, err := st.GetUser(ctx, "8"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no record, got err=%v", err)
	}
}

func TestProcessNoChat(t *testing.T) {
	svc := &mockService{}
	res := newTestHandler(store.NewInMemoryStore(), nil, nil).Process(context.Background(), svc, inbound("", "hi"))
	if res.Route != RouteNoChat || len(svc.messages) != 0 {
		t.Errorf("unexpected result %+v sends=%v", res, svc.messages)
	}
}

func TestUpsellThresholds(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	rh := newTestHandler(st, nil, nil, WithFreeDaily(20), WithUnlockURL("https://unlock.example"))

	for i := 1; i <= 25; i++ {
		svc := &mockService{}
		res := rh.Process(ctx, svc, inbound("1", "hello again"))
		if res.Count != i {
			t.Fatalf("message %d: count = %d", i, res.Count)
		}
		hasUpsell := strings.Contains(svc.messages[0], "https://unlock.example")
		want := i == 6 || i == 12 || i == 20
		if hasUpsell != want {
			t.Errorf("count %d: upsell = %v, want %v", i, hasUpsell, want)
		}
	}
}

func TestUpsellRequiresURL(t *testing.T) {
	rh := newTestHandler(store.NewInMemoryStore(), nil, nil, WithFreeDaily(20))
	for _, n := range []int{6, 12, 20} {
		if rh.ShouldUpsell(n) {
			t.Errorf("ShouldUpsell(%d) without url", n)
		}
	}
}

func TestImageRouteNeverUpsells(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	seed := models.NewUserRecord("5", "2025-06-01")
	seed.Count = 5
	_ = st.PutUser(ctx, seed)

	svc := &mockService{}
	rh := newTestHandler(st, nil, nil, WithUnlockURL("https://unlock.example"))
	res := rh.Process(ctx, svc, inbound("5", "send me a selfie"))

	if res.Route != RouteImage || res.Count != 6 || res.Outcome != models.OutcomeSuccess {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(svc.photos) != 1 || svc.photos[0].URL != "https://img/1.jpg" {
		t.Fatalf("photos = %+v", svc.photos)
	}
	if strings.Contains(svc.photos[0].Caption, "unlock") || len(svc.messages) != 0 {
		t.Errorf("image reply carried upsell or extra text: caption=%q messages=%q", svc.photos[0].Caption, svc.messages)
	}

	rec, _ := st.GetUser(ctx, "5")
	if rec.Count != 6 || rec.History[len(rec.History)-1].Text != PhotoHistoryText {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestImageFailureSendsApology(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := &mockService{}
	rh := newTestHandler(st, nil, flow.NewStockImageBuilder(nil, nil))

	res := rh.Process(ctx, svc, inbound("9", "/pic"))
	if res.Outcome != models.OutcomeFailed || len(svc.messages) != 1 || svc.messages[0] != ImageApology {
		t.Errorf("unexpected result %+v messages=%q", res, svc.messages)
	}
	rec, _ := st.GetUser(ctx, "9")
	if rec.Count != 1 {
		t.Errorf("count = %d, want 1", rec.Count)
	}

	svc = &mockService{photoErr: errors.New("upload failed")}
	res = newTestHandler(st, nil, nil).Process(ctx, svc, inbound("9", "photo pls"))
	if res.Outcome != models.OutcomeFailed || svc.messages[0] != ImageApology {
		t.Errorf("send failure should fall back to apology, got %+v", res)
	}
}

func TestDayRolloverResetsCount(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	seed := models.NewUserRecord("3", "2025-05-31")
	seed.Count = 19
	_ = st.PutUser(ctx, seed)

	res := newTestHandler(st, nil, nil).Process(ctx, &mockService{}, inbound("3", "morning"))
	if res.Count != 1 {
		t.Errorf("count = %d, want 1", res.Count)
	}
	rec, _ := st.GetUser(ctx, "3")
	if rec.Day != "2025-06-01" || rec.Count != 1 {
		t.Errorf("day/count = %s/%d", rec.Day, rec.Count)
	}
}

func TestFallbackReplyOnCompletionError(t *testing.T) {
	replies := flow.NewOpenAIReplyBuilder(&mockChat{err: errors.New("timeout")}, nil)
	svc := &mockService{}
	res := newTestHandler(store.NewInMemoryStore(), replies, nil).Process(context.Background(), svc, inbound("1", "hey"))
	if res.Reply != flow.FallbackReply || res.Outcome != models.OutcomeDegraded || svc.messages[0] != flow.FallbackReply {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestStartCommandUsesTemplatedReply(t *testing.T) {
	replies := flow.NewOpenAIReplyBuilder(&mockChat{reply: "llm"}, nil)
	res := newTestHandler(store.NewInMemoryStore(), replies, nil).Process(context.Background(), &mockService{}, inbound("1", "/start"))
	if res.Reply != flow.TemplatedReply {
		t.Errorf("Reply = %q, want templated", res.Reply)
	}
}

func TestSummarizationBoundsHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	rh := newTestHandler(st, nil, nil, WithSummarizer(flow.NewSummarizer(&mockChat{reply: "Likes sunsets."})))

	for i := 0; i < 4; i++ {
		rh.Process(ctx, &mockService{}, inbound("2", "tell me more"))
		rec, _ := st.GetUser(ctx, "2")
		if len(rec.History) != 2*(i+1) {
			t.Fatalf("after %d messages history = %d", i+1, len(rec.History))
		}
	}

	// The fifth message brings history to 10 and triggers summarization.
	rh.Process(ctx, &mockService{}, inbound("2", "tell me more"))
	rec, _ := st.GetUser(ctx, "2")
	if len(rec.History) != models.KeepAfterSummary {
		t.Errorf("history = %d, want %d", len(rec.History), models.KeepAfterSummary)
	}
	if rec.Summary != "Likes sunsets." || rec.Count != 5 {
		t.Errorf("summary/count = %q/%d", rec.Summary, rec.Count)
	}

	for i := 0; i < 3; i++ {
		rh.Process(ctx, &mockService{}, inbound("2", "again"))
	}
	rec, _ = st.GetUser(ctx, "2")
	if rec.Summary != "Likes sunsets.\nLikes sunsets." || len(rec.History) != models.KeepAfterSummary {
		t.Errorf("second summary not appended: %q history=%d", rec.Summary, len(rec.History))
	}
}

func TestSummarizationFailureKeepsHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	rh := newTestHandler(st, nil, nil, WithSummarizer(flow.NewSummarizer(&mockChat{err: errors.New("boom")})))

	for i := 0; i < 8; i++ {
		rh.Process(ctx, &mockService{}, inbound("4", "hi"))
		rec, _ := st.GetUser(ctx, "4")
		if len(rec.History) > models.MaxHistory {
			t.Fatalf("history exceeded bound: %d", len(rec.History))
		}
	}
	rec, _ := st.GetUser(ctx, "4")
	if rec.Summary != "" || len(rec.History) != models.MaxHistory {
		t.Errorf("summary=%q history=%d", rec.Summary, len(rec.History))
	}
}

func TestStoreFailureStillReplies(t *testing.T) {
	svc := &mockService{}
	res := newTestHandler(failingStore{}, nil, nil).Process(context.Background(), svc, inbound("1", "hi there"))
	if res.Reply != flow.TemplatedReply || res.Count != 1 || len(svc.messages) != 1 {
		t.Errorf("unexpected result %+v messages=%q", res, svc.messages)
	}
}

func TestFirstNameRecorded(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	msg := inbound("11", "hi")
	msg.FirstName = "Sam"
	newTestHandler(st, nil, nil).Process(ctx, &mockService{}, msg)
	rec, _ := st.GetUser(ctx, "11")
	if rec.Name != "Sam" {
		t.Errorf("Name = %q, want Sam", rec.Name)
	}
}

func TestWordsContainingPicGetTextReply(t *testing.T) {
	ctx := context.Background()
	for _, text := range []string{"that's so typical of you", "can you pick a movie for tonight?", "wanna go on a picnic?"} {
		svc := &mockService{}
		res := newTestHandler(store.NewInMemoryStore(), nil, nil).Process(ctx, svc, inbound("5", text))
		if res.Route != RouteText || len(svc.photos) != 0 || len(svc.messages) != 1 {
			t.Errorf("%q: route=%s photos=%d messages=%d", text, res.Route, len(svc.photos), len(svc.messages))
		}
	}
}

func TestConcurrentMessagesUpsellOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	seed := models.NewUserRecord("9", testNow.Format(models.DayLayout))
	seed.Count = 5
	if err := st.PutUser(ctx, seed); err != nil {
		t.Fatal(err)
	}
	rh := newTestHandler(st, nil, nil, WithUnlockURL("https://unlock.example"))

	svcs := []*mockService{{}, {}}
	results := make([]Result, len(svcs))
	var wg sync.WaitGroup
	for i := range svcs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = rh.Process(ctx, svcs[i], inbound("9", "hello"))
		}(i)
	}
	wg.Wait()

	upsells := 0
	for _, svc := range svcs {
		if strings.Contains(svc.messages[0], "https://unlock.example") {
			upsells++
		}
	}
	if upsells != 1 {
		t.Errorf("expected exactly one upsell, got %d", upsells)
	}
	if results[0].Count == results[1].Count {
		t.Errorf("concurrent messages shared count %d", results[0].Count)
	}
	rec, _ := st.GetUser(ctx, "9")
	if rec.Count != 7 || len(rec.History) != 4 {
		t.Errorf("count = %d history = %d, want 7 and 4", rec.Count, len(rec.History))
	}
}
