// Package tone classifies incoming chat text into a fixed set of tones by keyword
// matching and builds the matching style directive for LLM system prompts.
package tone

import "strings"

// Tone is a coarse classification of the user's intent or mood.
type Tone string

const (
	Romantic  Tone = "romantic"
	Practical Tone = "practical"
	Soothing  Tone = "soothing"
	Playful   Tone = "playful"
)

// ---- Keyword sets ----

// rule pairs a tone with its trigger keywords. Rules are evaluated in order.
type rule struct {
	tone     Tone
	keywords []string
}

// rules is the priority-ordered keyword table. First match wins.
var rules = []rule{
	{Romantic, []string{"love", "miss you", "kiss", "cuddle", "romantic", "date night", "my heart", "hug", "darling", "babe"}},
	{Practical, []string{"how do i", "how to", "help me", "advice", "should i", "what do you think", "recommend", "plan", "work", "job"}},
	{Soothing, []string{"sad", "tired", "stress", "anxious", "lonely", "bad day", "upset", "hurt", "cry", "can't sleep"}},
}

// directives holds the one-line style instruction per tone.
var directives = map[Tone]string{
	Romantic:  "Be tender and affectionate; slow down and make them feel wanted.",
	Practical: "Be warm but genuinely useful; give one clear, concrete suggestion.",
	Soothing:  "Be gentle and reassuring; acknowledge the feeling before anything else.",
	Playful:   "Be teasing and light; keep it fun with a cheeky question back.",
}

// ---- Public API ----

// Detect returns the first tone whose keywords appear in text (case-insensitive),
// or Playful when none match.
func Detect(text string) Tone {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.tone
			}
		}
	}
	return Playful
}

// Directive returns the style directive for t. Unknown tones get the playful directive.
func Directive(t Tone) string {
	if d, ok := directives[t]; ok {
		return d
	}
	return directives[Playful]
}

// BuildToneGuide produces the prompt line naming the detected tone and its directive.
func BuildToneGuide(t Tone) string {
	if _, ok := directives[t]; !ok {
		t = Playful
	}
	return "Detected tone: " + string(t) + ". " + Directive(t)
}
