package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/BTreeMap/NoaBot/internal/messaging"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/observability"
	"github.com/BTreeMap/NoaBot/internal/testutil"
	"github.com/BTreeMap/NoaBot/internal/twiliowhatsapp"
)

// mockProcessor records processed messages.
type mockProcessor struct {
	msgs     []models.InboundMessage
	services []messaging.Service
}

func (m *mockProcessor) Process(ctx context.Context, svc messaging.Service, msg models.InboundMessage) messaging.Result {
	m.msgs = append(m.msgs, msg)
	m.services = append(m.services, svc)
	return messaging.Result{Route: messaging.RouteText, Outcome: models.OutcomeSuccess}
}

func newTestServer(opts ...Option) (*Server, *mockProcessor, http.Handler) {
	p := &mockProcessor{}
	tg := messaging.NewTwilioService(twiliowhatsapp.NewMockClient()) // any Service works as the Telegram sink here
	s := NewServer(p, tg, opts...)
	return s, p, s.Router()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRootHandler(t *testing.T) {
	_, _, h := newTestServer()
	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "root")
	if rr.Body.String() != LivenessBody {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	_, _, h := newTestServer()
	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "healthz")

	resp := testutil.AssertJSONStatus(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	if result["status"] != "healthy" || result["twilio_enabled"] != false {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestTelegramWebhook(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantBody  string
		processed bool
	}{
		{"message", `{"message":{"chat":{"id":42},"text":"hi there","from":{"first_name":"Sam"}}}`, "ok", true},
		{"edited", `{"edited_message":{"chat":{"id":42},"text":"edit"}}`, "ok", true},
		{"no chat", `{"update_id":1}`, "no chat", false},
		{"malformed", `{{{`, "no chat", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p, h := newTestServer()
			rr := do(t, h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body)))
			testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, tt.name)
			if rr.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
			if (len(p.msgs) == 1) != tt.processed {
				t.Errorf("processed = %d messages", len(p.msgs))
			}
		})
	}
}

func TestTelegramWebhookPassesInbound(t *testing.T) {
	_, p, h := newTestServer()
	do(t, h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"message":{"chat":{"id":42},"text":"hi","from":{"first_name":"Sam"}}}`)))
	want := models.InboundMessage{ChatID: "42", Text: "hi", FirstName: "Sam", Platform: models.PlatformTelegram}
	if p.msgs[0] != want {
		t.Errorf("inbound = %+v", p.msgs[0])
	}
}

func TestTelegramWebhookSecret(t *testing.T) {
	_, p, h := newTestServer(WithWebhookSecret("s3cret"))
	body := `{"message":{"chat":{"id":1},"text":"x"}}`

	rr := do(t, h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "missing secret")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(secretHeader, "s3cret")
	rr = do(t, h, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "valid secret")
	if len(p.msgs) != 1 {
		t.Errorf("expected one processed message, got %d", len(p.msgs))
	}
}

func TestTwilioRouteDisabledByDefault(t *testing.T) {
	_, _, h := newTestServer()
	rr := do(t, h, httptest.NewRequest(http.MethodPost, "/twilio/webhook", nil))
	if rr.Code == http.StatusOK {
		t.Error("twilio route should not be registered")
	}
}

func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioWebhook(t *testing.T) {
	wa := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	_, p, h := newTestServer(
		WithTwilio(wa, twiliowhatsapp.NewValidator("tok")),
		WithPublicURL("https://noa.example.com"),
	)
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hi"}, "ProfileName": {"Sam"}}

	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Twilio-Signature", sig)
		return req
	}

	rr := do(t, h, newReq("bogus"))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "bad signature")
	if len(p.msgs) != 0 {
		t.Fatal("message processed despite bad signature")
	}

	rr = do(t, h, newReq(twilioSignature("tok", "https://noa.example.com/twilio/webhook", form)))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "valid signature")
	if !strings.Contains(rr.Body.String(), "<Response>") {
		t.Errorf("expected TwiML body, got %q", rr.Body.String())
	}
	if len(p.msgs) != 1 || p.msgs[0].Platform != models.PlatformWhatsApp || p.msgs[0].FirstName != "Sam" {
		t.Fatalf("unexpected processed messages %+v", p.msgs)
	}
	if p.services[0] != messaging.Service(wa) {
		t.Error("reply not routed through the twilio service")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := observability.NewMetrics(observability.DefaultNamespace)
	_, _, h := newTestServer(WithMetrics(m))
	do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))

	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
	if !strings.Contains(rr.Body.String(), `noabot_http_requests_total{method="GET",path="/",status="200"} 1`) {
		t.Errorf("metrics missing root request:\n%s", rr.Body.String())
	}
}
