package telegram

import (
	"encoding/json"
	"strconv"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// Update is the subset of a Bot API update the service reads.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message"`
	EditedMessage *Message `json:"edited_message"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

// Content is the message text, or the caption of a media message without text.
func (m *Message) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// Chat identifies the conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// User is the message author.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// ParseUpdate decodes a webhook body. Malformed bodies decode to an empty update.
func ParseUpdate(body []byte) Update {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return Update{}
	}
	return u
}

// Inbound resolves the update into a platform-neutral message. It reports false
// when no chat id can be resolved.
func (u Update) Inbound() (models.InboundMessage, bool) {
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat.ID == 0 {
		return models.InboundMessage{}, false
	}
	in := models.InboundMessage{
		ChatID:   strconv.FormatInt(msg.Chat.ID, 10),
		Text:     msg.Content(),
		Platform: models.PlatformTelegram,
	}
	if msg.From != nil {
		in.FirstName = msg.From.FirstName
	}
	return in, true
}
