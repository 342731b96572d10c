package backend

import (
	"context"
	"strings"
	"unicode"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// Rules is a keyword rule engine. The first rule of the active mode whose
// keyword appears in the latest user message supplies the reply.
type Rules struct {
	mode persona.Mode
}

// NewRules creates a rule backend for mode
func NewRules(mode persona.Mode) *Rules {
	return &Rules{mode: mode}
}

// Name returns the backend identifier
func (r *Rules) Name() string {
	return "rules"
}

// Generate picks a reply for the latest user message
func (r *Rules) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	if err := ctx.Err(); err != nil {
		return session.Message{}, err
	}

	words := wordSet(lastUserText(snap))
	for _, rule := range persona.Rules(r.mode) {
		for _, kw := range rule.Keywords {
			if words[kw] {
				return assistantReply(r.Name(), rule.Reply)
			}
		}
	}
	return assistantReply(r.Name(), persona.Fallback(r.mode))
}

// wordSet splits text into lowercase words, ignoring punctuation
func wordSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '\''
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, "'")] = true
	}
	return set
}
