package policy

import (
	"strings"
	"unicode"
)

// Classification is the outcome of running text against the term lists.
// Prohibited takes precedence: when set, Warning is not evaluated.
type Classification struct {
	Prohibited bool
	Warning    bool
}

// Filter classifies message text against two disjoint term lists. It holds
// no mutable state after construction and is safe for concurrent use.
type Filter struct {
	prohibited map[string]struct{}
	warning    map[string]struct{}
}

// Default term lists for classroom use. Prohibited terms target harassment;
// warning terms are ordinary profanity.
var (
	defaultProhibited = []string{
		"cunt", "kys", "rape", "nazi",
	}
	defaultWarning = []string{
		"fuck", "shit", "ass", "bitch", "damn", "crap", "dick", "piss", "bastard",
	}
)

// NewFilter builds a filter from explicit term lists. Terms are normalized
// the same way as input text, so callers can pass any casing.
func NewFilter(prohibited, warning []string) *Filter {
	f := &Filter{
		prohibited: make(map[string]struct{}, len(prohibited)),
		warning:    make(map[string]struct{}, len(warning)),
	}
	for _, term := range prohibited {
		f.prohibited[strings.ToLower(term)] = struct{}{}
	}
	for _, term := range warning {
		f.warning[strings.ToLower(term)] = struct{}{}
	}
	return f
}

// Default returns a filter with the built-in term lists.
func Default() *Filter {
	return NewFilter(defaultProhibited, defaultWarning)
}

// Classify tests text for whole-word matches against the term lists. The
// input is not mutated; matching is case-insensitive and ignores punctuation,
// so substrings of unrelated words never trigger ("classic" does not match
// "ass").
func (f *Filter) Classify(text string) Classification {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var c Classification
	for _, word := range words {
		if _, ok := f.prohibited[word]; ok {
			return Classification{Prohibited: true}
		}
		if _, ok := f.warning[word]; ok {
			c.Warning = true
		}
	}
	return c
}
