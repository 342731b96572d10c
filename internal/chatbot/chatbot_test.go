package chatbot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TherapyBuddy/internal/config"
	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// syncBuffer is a bytes.Buffer safe for concurrent use
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Stub.Delay = config.Duration{Duration: 10 * time.Millisecond}
	return cfg
}

func newBot(t *testing.T, cfg config.Config, in io.Reader, out io.Writer) *ChatBot {
	t.Helper()
	bot, err := New(cfg, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		In:     in,
		Out:    out,
	})
	require.NoError(t, err)
	t.Cleanup(bot.Close)
	return bot
}

func TestRunConversation(t *testing.T) {
	inR, inW := io.Pipe()
	t.Cleanup(func() { inW.Close() })
	out := &syncBuffer{}
	bot := newBot(t, testConfig(), inR, out)

	done := make(chan error, 1)
	go func() { done <- bot.Run(t.Context()) }()

	_, err := io.WriteString(inW, "I'm stressed about work\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), persona.DefaultReply)
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(inW, "/quit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	output := out.String()
	assert.Contains(t, output, "=== Therapy Buddy ===")
	assert.Contains(t, output, "Hey — what's on your mind?")
	assert.Contains(t, output, "Buddy is typing…")
	assert.Contains(t, output, "Goodbye!")
}

func TestRunWaitsForReplyAtEOF(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig()
	cfg.UserName = "Drew"
	bot := newBot(t, cfg, strings.NewReader("hello\n"), out)

	require.NoError(t, bot.Run(t.Context()))

	output := out.String()
	assert.Contains(t, output, "Hey Drew — what's on your mind today?")
	assert.Contains(t, output, persona.DefaultReply)
}

func TestRunRefusesWhilePending(t *testing.T) {
	cfg := testConfig()
	cfg.Stub.Delay = config.Duration{Duration: 200 * time.Millisecond}
	out := &syncBuffer{}
	bot := newBot(t, cfg, strings.NewReader("first\nsecond\n"), out)

	require.NoError(t, bot.Run(t.Context()))
	assert.Contains(t, out.String(), "Still thinking")
}

func TestCommands(t *testing.T) {
	bot := newBot(t, testConfig(), strings.NewReader(""), io.Discard)
	ctx := t.Context()
	first := bot.Controller()

	var out bytes.Buffer
	quit, err := bot.HandleCommand(ctx, "/help", &out)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "/switch <backend>")

	quit, err = bot.HandleCommand(ctx, "/exit", &out)
	require.NoError(t, err)
	assert.True(t, quit)

	_, err = bot.HandleCommand(ctx, "/switch rules", &out)
	require.NoError(t, err)
	assert.Equal(t, config.BackendRules, bot.BackendName())
	assert.NotSame(t, first, bot.Controller())
	assert.True(t, first.Transcript().Closed())

	_, err = bot.HandleCommand(ctx, "/switch telepathy", &out)
	assert.Error(t, err)
	assert.Equal(t, config.BackendRules, bot.BackendName())

	_, err = bot.HandleCommand(ctx, "/mode plan", &out)
	require.NoError(t, err)
	assert.Equal(t, persona.ModePlan, bot.Mode())

	_, err = bot.HandleCommand(ctx, "/mode shouting", &out)
	assert.Error(t, err)

	out.Reset()
	_, err = bot.HandleCommand(ctx, "/cancel", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Nothing to cancel")
}

func TestRulesSessionReplies(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.BackendRules
	bot := newBot(t, cfg, strings.NewReader(""), io.Discard)

	turn := bot.Controller().Submit("my boss is impossible")
	require.NotNil(t, turn)
	reply, err := turn.Wait()
	require.NoError(t, err)
	assert.Equal(t, persona.Rules(persona.ModeVent)[0].Reply, reply.Text)

	var out bytes.Buffer
	_, err = bot.HandleCommand(t.Context(), "/history", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "my boss is impossible")
	assert.Contains(t, out.String(), reply.Text)
}

func TestCancelCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Stub.Delay = config.Duration{Duration: time.Hour}
	bot := newBot(t, cfg, strings.NewReader(""), io.Discard)

	turn := bot.Controller().Submit("hello")
	require.NotNil(t, turn)

	_, err := bot.HandleCommand(t.Context(), "/cancel", io.Discard)
	require.NoError(t, err)

	_, err = turn.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	last, _ := bot.Controller().Transcript().Last()
	assert.Equal(t, session.RoleSystem, last.Role)
}

func TestBuildBackendWithCacheAndRetrieval(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = config.BackendRetrieval
	cfg.Cache.Enabled = true
	bot := newBot(t, cfg, strings.NewReader(""), io.Discard)

	assert.Equal(t, config.BackendRetrieval, bot.Controller().Backend())
	reply, err := bot.Controller().Submit("hello").Wait()
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
}

func TestCacheSharedAcrossSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Stub.Delay = config.Duration{Duration: 300 * time.Millisecond}
	cfg.Cache.Enabled = true
	bot := newBot(t, cfg, strings.NewReader(""), io.Discard)

	first, err := bot.Controller().Submit("hello").Wait()
	require.NoError(t, err)

	_, err = bot.HandleCommand(t.Context(), "/new", io.Discard)
	require.NoError(t, err)

	start := time.Now()
	second, err := bot.Controller().Submit("hello").Wait()
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, first.Text, second.Text)
	assert.NotEqual(t, first.ID, second.ID)

	// another mode keeps its own entries
	_, err = bot.HandleCommand(t.Context(), "/mode plan", io.Discard)
	require.NoError(t, err)
	start = time.Now()
	_, err = bot.Controller().Submit("hello").Wait()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestListOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3:latest","size":4294967296}]}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Ollama.URL = srv.URL
	bot := newBot(t, cfg, strings.NewReader(""), io.Discard)

	var out bytes.Buffer
	_, err := bot.HandleCommand(t.Context(), "/list-ollama-models", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "1. llama3:latest - 4.00 GB (current)")
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "telepathy"
	_, err := New(cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Error(t, err)
}
