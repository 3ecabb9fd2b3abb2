// Package models defines the core data structures for NoaBot.
//
// It includes the per-user memory record, the global scene state, the on-disk memory
// document and the platform-neutral inbound message shared across modules.
package models

import (
	"errors"
	"time"
)

// Memory bounds shared by the orchestrator and the summarizer.
const (
	// MaxHistory is the maximum number of history entries kept per user.
	MaxHistory = 12
	// SummarizeThreshold is the history length at which summarization is attempted.
	SummarizeThreshold = 10
	// KeepAfterSummary is the number of entries retained after a successful summarization.
	KeepAfterSummary = 4
	// PromptHistoryTurns is the number of recent entries sent along with a completion request.
	PromptHistoryTurns = 6
	// DayLayout is the layout of UserRecord.Day.
	DayLayout = "2006-01-02"
)

// Role identifies the author of a history entry.
type Role string

const (
	// RoleUser marks an entry written by the chat user.
	RoleUser Role = "user"
	// RoleAssistant marks an entry written by the bot.
	RoleAssistant Role = "assistant"
)

// Platform identifies the messaging channel a message arrived on.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
)

var (
	ErrEmptyChatID = errors.New("chat id cannot be empty")
)

// HistoryEntry is one turn of the rolling conversation history.
type HistoryEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	TS   int64  `json:"timestamp"`
}

// UserRecord is the per-chat memory.
type UserRecord struct {
	ChatID    string            `json:"chat_id"`
	Day       string            `json:"day"`
	Count     int               `json:"count"`
	Name      string            `json:"name,omitempty"`
	Prefs     map[string]string `json:"prefs"`
	History   []HistoryEntry    `json:"history"`
	Summary   string            `json:"summary"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewUserRecord returns an empty record for chatID dated today.
func NewUserRecord(chatID, today string) *UserRecord {
	return &UserRecord{
		ChatID:  chatID,
		Day:     today,
		Prefs:   map[string]string{},
		History: []HistoryEntry{},
	}
}

// Validate checks the record can be persisted.
func (u *UserRecord) Validate() error {
	if u.ChatID == "" {
		return ErrEmptyChatID
	}
	return nil
}

// Clone returns a deep copy of the record.
func (u *UserRecord) Clone() *UserRecord {
	c := *u
	c.Prefs = make(map[string]string, len(u.Prefs))
	for k, v := range u.Prefs {
		c.Prefs[k] = v
	}
	c.History = append([]HistoryEntry(nil), u.History...)
	return &c
}

// RollDay resets the daily count when today differs from the stored day.
// It reports whether a reset happened.
func (u *UserRecord) RollDay(today string) bool {
	if u.Day == today {
		return false
	}
	u.Day = today
	u.Count = 0
	return true
}

// Touch rolls the day and increments the daily count, returning the new count.
func (u *UserRecord) Touch(today string) int {
	u.RollDay(today)
	u.Count++
	return u.Count
}

// AppendHistory appends entries and keeps only the most recent MaxHistory of them.
func (u *UserRecord) AppendHistory(entries ...HistoryEntry) {
	u.History = append(u.History, entries...)
	if len(u.History) > MaxHistory {
		u.History = append([]HistoryEntry(nil), u.History[len(u.History)-MaxHistory:]...)
	}
}

// RecentHistory returns up to n of the most recent entries.
func (u *UserRecord) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(u.History) == 0 {
		return nil
	}
	if len(u.History) <= n {
		return u.History
	}
	return u.History[len(u.History)-n:]
}

// MergeSummary appends a new paragraph to the long-term summary.
func (u *UserRecord) MergeSummary(paragraph string) {
	if u.Summary == "" {
		u.Summary = paragraph
		return
	}
	u.Summary = u.Summary + "\n" + paragraph
}

// TruncateHistory keeps only the last n entries.
func (u *UserRecord) TruncateHistory(n int) {
	if len(u.History) > n {
		u.History = append([]HistoryEntry(nil), u.History[len(u.History)-n:]...)
	}
}

// SceneState is the globally shared ambient description.
type SceneState struct {
	Period string `json:"period"`
	Scene  string `json:"scene"`
	TS     int64  `json:"timestamp"`
}

// IsZero reports whether no scene has been picked yet.
func (s SceneState) IsZero() bool {
	return s.Scene == "" && s.TS == 0
}

// MemoryDocument is the whole-file layout of the JSON memory backend.
type MemoryDocument struct {
	Users    map[string]*UserRecord `json:"users"`
	NoaState *SceneState            `json:"noa_state,omitempty"`
}

// NewMemoryDocument returns an empty document.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{Users: map[string]*UserRecord{}}
}

// InboundMessage is a platform-neutral incoming chat message.
type InboundMessage struct {
	ChatID    string   `json:"chat_id"`
	Text      string   `json:"text"`
	FirstName string   `json:"first_name,omitempty"`
	Platform  Platform `json:"platform"`
}
