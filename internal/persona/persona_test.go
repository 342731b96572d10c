package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeVent},
		{in: "vent", want: ModeVent},
		{in: " Reframe ", want: ModeReframe},
		{in: "PLAN", want: ModePlan},
		{in: "gratitude", want: ModeGratitude},
		{in: "relationship", want: ModeRelationship},
		{in: "therapy", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMode(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Hey — what's on your mind?", Greeting(""))
	assert.Equal(t, "Hey Drew — what's on your mind today?", Greeting("Drew"))
}

func TestEveryModeHasPromptAndFallback(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Modes() {
		prompt := SystemPrompt(m)
		assert.Contains(t, prompt, "Therapy Buddy")
		assert.False(t, seen[prompt], "mode %s should have its own prompt", m)
		seen[prompt] = true

		assert.NotEmpty(t, Fallback(m))
		assert.NotEmpty(t, Rules(m), "mode %s has no rules", m)
	}
	assert.Equal(t, DefaultReply, Fallback(Mode("unknown")))
}

func TestCorpusCoversAllRules(t *testing.T) {
	corpus := Corpus()

	total := len(general)
	for _, m := range Modes() {
		total += len(Rules(m))
	}
	assert.Len(t, corpus, total)

	for _, e := range corpus {
		assert.NotEmpty(t, e.Keywords)
		assert.NotEmpty(t, e.Text)
	}
}
