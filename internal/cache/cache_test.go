package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TherapyBuddy/internal/backend"
	"TherapyBuddy/internal/session"
)

// counting replies "reply N" and counts calls
func counting(calls *atomic.Int32) backend.Backend {
	return backend.Func{ID: "counting", Fn: func(ctx context.Context, snap session.Snapshot) (session.Message, error) {
		n := calls.Add(1)
		return session.NewMessage(session.RoleAssistant, "reply "+string(rune('0'+n)))
	}}
}

func snapshot(t *testing.T, texts ...string) session.Snapshot {
	t.Helper()
	snap := session.Snapshot{SessionID: "s"}
	for _, text := range texts {
		m, err := session.NewMessage(session.RoleUser, text)
		require.NoError(t, err)
		snap.Messages = append(snap.Messages, m)
	}
	return snap
}

func TestCacheHitReturnsFreshMessage(t *testing.T) {
	var calls atomic.Int32
	c := Wrap(counting(&calls), time.Minute, 8, nil)
	defer c.Close()

	first, err := c.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)
	second, err := c.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Text, second.Text)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, session.RoleAssistant, second.Role)
	assert.Equal(t, "counting", c.Name())
}

func TestCacheKeyIgnoresIDsAndTimestamps(t *testing.T) {
	a := snapshot(t, "same", "words")
	b := snapshot(t, "same", "words")
	require.NotEqual(t, a.Messages[0].ID, b.Messages[0].ID)

	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(snapshot(t, "samew", "ords")))
}

func TestCacheSkipsFailures(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	failing := backend.Func{ID: "failing", Fn: func(context.Context, session.Snapshot) (session.Message, error) {
		calls.Add(1)
		return session.Message{}, boom
	}}
	c := Wrap(failing, time.Minute, 8, nil)
	defer c.Close()

	for range 2 {
		_, err := c.Generate(t.Context(), snapshot(t, "hello"))
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, c.Len())
}

func TestCacheEvictsOldest(t *testing.T) {
	var calls atomic.Int32
	c := Wrap(counting(&calls), time.Minute, 2, nil)
	defer c.Close()

	for _, text := range []string{"a", "b", "c"} {
		_, err := c.Generate(t.Context(), snapshot(t, text))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	// "a" was evicted, "c" is still cached
	_, err := c.Generate(t.Context(), snapshot(t, "c"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	_, err = c.Generate(t.Context(), snapshot(t, "a"))
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestCacheExpires(t *testing.T) {
	var calls atomic.Int32
	c := Wrap(counting(&calls), 10*time.Millisecond, 8, nil)
	defer c.Close()

	_, err := c.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, err = c.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSweepRemovesExpired(t *testing.T) {
	var calls atomic.Int32
	c := Wrap(counting(&calls), time.Minute, 8, nil)
	defer c.Close()

	_, err := c.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)

	c.store.sweepOnce(time.Now())
	assert.Equal(t, 1, c.Len())
	c.store.sweepOnce(time.Now().Add(2 * time.Minute))
	assert.Zero(t, c.Len())

	c.Close()
	c.Close()
}

func TestCanceledContextSkipsCachedReply(t *testing.T) {
	var calls atomic.Int32
	c := Wrap(counting(&calls), time.Minute, 8, nil)
	defer c.Close()

	_, err := c.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = c.Generate(ctx, snapshot(t, "hello"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStoreSharedAcrossDecorators(t *testing.T) {
	var calls atomic.Int32
	store := NewStore(time.Minute, 8, nil)
	defer store.Close()

	first := store.Wrap(counting(&calls))
	_, err := first.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)
	first.Close()

	second := store.Wrap(counting(&calls))
	reply, err := second.Generate(t.Context(), snapshot(t, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "reply 1", reply.Text)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, store.Len())
}
