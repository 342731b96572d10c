package persona

import (
	"fmt"
	"strings"
)

// Mode selects the flavour of support the assistant offers
type Mode string

const (
	ModeVent         Mode = "vent"
	ModeReframe      Mode = "reframe"
	ModePlan         Mode = "plan"
	ModeGratitude    Mode = "gratitude"
	ModeRelationship Mode = "relationship"
)

// DefaultReply is the acknowledgement the stub backend returns
const DefaultReply = "Tell me more about that. What part feels the strongest right now?"

// Modes returns every supported mode in display order
func Modes() []Mode {
	return []Mode{ModeVent, ModeReframe, ModePlan, ModeGratitude, ModeRelationship}
}

// ParseMode converts user input into a Mode. The empty string maps to ModeVent.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeVent, nil
	}
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode: %s", s)
}

// Greeting returns the assistant message that opens every session
func Greeting(userName string) string {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return "Hey — what's on your mind?"
	}
	return fmt.Sprintf("Hey %s — what's on your mind today?", userName)
}

// SystemPrompt returns the persona instructions sent to model backends
func SystemPrompt(mode Mode) string {
	var b strings.Builder
	b.WriteString("You are Therapy Buddy, a warm and patient listening companion. ")
	b.WriteString("Keep replies short (two or three sentences), ask at most one question, ")
	b.WriteString("and never diagnose or give medical advice. ")
	b.WriteString("If the user mentions self-harm, gently encourage them to contact local emergency services or a crisis line. ")

	switch mode {
	case ModeReframe:
		b.WriteString("Help the user notice unhelpful thought patterns and find a kinder, more balanced way to see the situation.")
	case ModePlan:
		b.WriteString("Help the user turn what they are facing into one small, concrete next step.")
	case ModeGratitude:
		b.WriteString("Invite the user to notice small things that went well and what made them possible.")
	case ModeRelationship:
		b.WriteString("Help the user reflect on a relationship: what they need, what the other person might need, and how to say it.")
	default:
		b.WriteString("Mostly listen. Reflect back what you hear and let the user set the pace.")
	}
	return b.String()
}
