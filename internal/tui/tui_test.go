package tui

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TherapyBuddy/internal/chatbot"
	"TherapyBuddy/internal/config"
	"TherapyBuddy/internal/persona"
)

func newTestModel(t *testing.T, delay time.Duration) Model {
	t.Helper()
	cfg := config.Default()
	cfg.Stub.Delay = config.Duration{Duration: delay}

	bot, err := chatbot.New(cfg, chatbot.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		In:     strings.NewReader(""),
		Out:    io.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(bot.Close)

	m := NewModel(t.Context(), bot)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func typeText(m Model, text string) Model {
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return updated.(Model)
}

func press(m Model, key tea.KeyType) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: key})
	return updated.(Model), cmd
}

// drain feeds transcript events into the model until cond holds
func drain(t *testing.T, m Model, cond func(Model) bool) Model {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond(m) {
		msgs := make(chan tea.Msg, 1)
		go func() { msgs <- m.listen()() }()
		select {
		case msg := <-msgs:
			updated, _ := m.Update(msg)
			m = updated.(Model)
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
	return m
}

func TestGreetingShown(t *testing.T) {
	m := newTestModel(t, 0)
	assert.Contains(t, m.View(), "what's on your mind?")
	assert.Contains(t, m.View(), "Therapy Buddy")
}

func TestSubmitClearsInputAndShowsReply(t *testing.T) {
	m := newTestModel(t, 20*time.Millisecond)

	m = typeText(m, "  I'm stressed about work ")
	assert.Contains(t, m.View(), "⏎ send")

	m, _ = press(m, tea.KeyEnter)
	assert.Empty(t, m.input.Value())

	m = drain(t, m, func(m Model) bool { return m.pending })
	assert.Contains(t, m.View(), "Typing…")
	assert.Contains(t, m.View(), "I'm stressed about work")

	m = drain(t, m, func(m Model) bool { return !m.pending && len(m.messages) == 3 })
	assert.Contains(t, m.View(), "Tell me more about that.")
	assert.NotContains(t, m.View(), "Typing…")
	assert.Equal(t, persona.DefaultReply, m.messages[2].Text)
}

func TestInputKeptWhilePending(t *testing.T) {
	m := newTestModel(t, time.Hour)

	m = typeText(m, "first")
	m, _ = press(m, tea.KeyEnter)

	m = typeText(m, "second")
	assert.Contains(t, m.View(), "send")
	assert.NotContains(t, m.View(), "⏎ send")

	m, _ = press(m, tea.KeyEnter)
	assert.Equal(t, "second", m.input.Value())
	assert.Contains(t, m.status, "Still thinking")
}

func TestBlankEnterIsIgnored(t *testing.T) {
	m := newTestModel(t, 0)
	m = typeText(m, "   ")
	m, _ = press(m, tea.KeyEnter)

	assert.Equal(t, "   ", m.input.Value())
	assert.Len(t, m.controller.Transcript().Messages(), 1)
	assert.Empty(t, m.status)
}

func TestCommandsReattachSession(t *testing.T) {
	m := newTestModel(t, 0)
	first := m.controller

	m = typeText(m, "/switch rules")
	m, _ = press(m, tea.KeyEnter)

	assert.NotSame(t, first, m.controller)
	assert.Contains(t, m.status, "Switched to rules")
	assert.Contains(t, m.View(), "rules")
	assert.Len(t, m.messages, 1)
}

func TestEscQuits(t *testing.T) {
	m := newTestModel(t, 0)
	m, cmd := press(m, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
