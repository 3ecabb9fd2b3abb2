// Package safety implements the hard content gate applied before any reply is built.
package safety

import "strings"

// RefusalMessage is sent verbatim when a message trips the filter.
const RefusalMessage = "I only chat with adults and keep things safe. Let’s keep it classy. 💋"

// DefaultBannedTerms are the age-related terms that stop the pipeline.
var DefaultBannedTerms = []string{"minor", "underage", "14", "15", "16", "17"}

// Filter matches text against a banned-term list.
type Filter struct {
	terms []string
}

// NewFilter builds a filter over terms. With no terms, DefaultBannedTerms is used.
func NewFilter(terms ...string) *Filter {
	if len(terms) == 0 {
		terms = DefaultBannedTerms
	}
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	return &Filter{terms: lowered}
}

// Blocked reports whether text contains any banned term (case-insensitive substring).
func (f *Filter) Blocked(text string) bool {
	_, ok := f.Match(text)
	return ok
}

// Match returns the first banned term found in text.
func (f *Filter) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, t := range f.terms {
		if strings.Contains(lower, t) {
			return t, true
		}
	}
	return "", false
}
