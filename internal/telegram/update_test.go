package telegram

import (
	"testing"

	"github.com/BTreeMap/NoaBot/internal/models"
)

func TestUpdateInbound(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   models.InboundMessage
		wantOK bool
	}{
		{
			name:   "message",
			body:   `{"update_id":1,"message":{"chat":{"id":42},"text":"hi there","from":{"first_name":"Sam"}}}`,
			want:   models.InboundMessage{ChatID: "42", Text: "hi there", FirstName: "Sam", Platform: models.PlatformTelegram},
			wantOK: true,
		},
		{
			name:   "edited message",
			body:   `{"edited_message":{"chat":{"id":-100},"text":"fixed"}}`,
			want:   models.InboundMessage{ChatID: "-100", Text: "fixed", Platform: models.PlatformTelegram},
			wantOK: true,
		},
		{
			name:   "photo caption",
			body:   `{"message":{"chat":{"id":7},"photo":[{"file_id":"a"}],"caption":"do you like it?"}}`,
			want:   models.InboundMessage{ChatID: "7", Text: "do you like it?", Platform: models.PlatformTelegram},
			wantOK: true,
		},
		{
			name:   "text wins over caption",
			body:   `{"message":{"chat":{"id":7},"text":"hello","caption":"ignored"}}`,
			want:   models.InboundMessage{ChatID: "7", Text: "hello", Platform: models.PlatformTelegram},
			wantOK: true,
		},
		{name: "no message", body: `{"update_id":2}`},
		{name: "no chat id", body: `{"message":{"text":"x"}}`},
		{name: "malformed", body: `not json`},
		{name: "empty", body: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseUpdate([]byte(tt.body)).Inbound()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Inbound() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
