// Package testutil provides common test helpers for NoaBot packages.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/NoaBot/internal/util"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONStatus decodes a JSON envelope and validates its status field.
func AssertJSONStatus(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, _ := response["status"].(string); status != expectedStatus {
		t.Errorf("expected status '%s', got '%v'", expectedStatus, response["status"])
	}
	return response
}

// FixedClock returns a clock frozen at now with a zero offset.
func FixedClock(now time.Time) util.Clock {
	return util.Clock{Now: func() time.Time { return now }}
}

// FixedIntN always picks index i, clamped to the slice length.
func FixedIntN(i int) util.IntN {
	return func(n int) int {
		if i >= n {
			return n - 1
		}
		return i
	}
}

// TelegramCall is one request received by FakeTelegram.
type TelegramCall struct {
	Method  string
	Payload map[string]interface{}
	Raw     string
}

// FakeTelegram is an httptest server that answers every Bot API method with ok.
type FakeTelegram struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []TelegramCall
}

// NewFakeTelegram starts a fake Bot API closed at test cleanup.
func NewFakeTelegram(t *testing.T) *FakeTelegram {
	t.Helper()
	f := &FakeTelegram{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := TelegramCall{Method: r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], Raw: string(body)}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(body, &call.Payload)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"ok":true,"result":true}`)
}

// Calls returns the recorded calls, optionally filtered to one method.
func (f *FakeTelegram) Calls(method string) []TelegramCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TelegramCall
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
