// Package cache memoises backend replies for identical conversations.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"TherapyBuddy/internal/backend"
	"TherapyBuddy/internal/session"
)

// entry is one cached reply
type entry struct {
	text    string
	created time.Time
	element *list.Element
}

// Store holds replies by conversation content. Entries expire after ttl
// and the oldest entry is evicted once maxEntries is reached. A Store may
// outlive the backends wrapped around it.
type Store struct {
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys, oldest at front
	done    chan struct{}
	closed  bool
}

// NewStore creates a Store. A background sweeper drops expired entries
// until Close is called.
func NewStore(ttl time.Duration, maxEntries int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries <= 0 {
		maxEntries = 1
	}
	s := &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger.With("component", "cache"),
		entries:    make(map[string]*entry),
		order:      list.New(),
		done:       make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Cached is a Backend that answers from a Store when it can and otherwise
// asks the wrapped backend, remembering successful replies
type Cached struct {
	next   backend.Backend
	store  *Store
	owned  bool
	logger *slog.Logger
}

// Wrap returns a caching decorator around b with a Store of its own.
// Close stops that Store.
func Wrap(b backend.Backend, ttl time.Duration, maxEntries int, logger *slog.Logger) *Cached {
	c := NewStore(ttl, maxEntries, logger).Wrap(b)
	c.owned = true
	return c
}

// Wrap returns a caching decorator around b backed by s. Closing the
// decorator leaves s running.
func (s *Store) Wrap(b backend.Backend) *Cached {
	return &Cached{
		next:   b,
		store:  s,
		logger: s.logger.With("backend", b.Name()),
	}
}

// Key hashes the role and text of every message in the snapshot
func Key(snap session.Snapshot) string {
	h := sha256.New()
	for _, msg := range snap.Messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Name returns the wrapped backend's name
func (c *Cached) Name() string {
	return c.next.Name()
}

// Generate returns a fresh message carrying the cached text on a hit and
// otherwise asks the wrapped backend
func (c *Cached) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	if err := ctx.Err(); err != nil {
		return session.Message{}, err
	}
	key := Key(snap)

	if text, ok := c.store.lookup(key); ok {
		c.logger.Debug("cache hit", "key", key[:16])
		return session.NewMessage(session.RoleAssistant, text)
	}

	msg, err := c.next.Generate(ctx, snap)
	if err != nil {
		return msg, err
	}
	if backend.CheckReply(msg) == nil {
		c.store.store(key, msg.Text)
		c.logger.Debug("cached reply", "key", key[:16])
	}
	return msg, nil
}

// Len returns the number of live entries in the backing store
func (c *Cached) Len() int {
	return c.store.Len()
}

// Close stops the backing store when the decorator owns it
func (c *Cached) Close() {
	if c.owned {
		c.store.Close()
	}
}

// Len returns the number of live entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweeper. Safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}

func (s *Store) lookup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if s.expired(e, time.Now()) {
		s.removeLocked(key, e)
		return "", false
	}
	return e.text, true
}

func (s *Store) store(key, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.text = text
		e.created = time.Now()
		s.order.MoveToBack(e.element)
		return
	}

	if len(s.entries) >= s.maxEntries {
		if front := s.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			s.removeLocked(oldest, s.entries[oldest])
		}
	}

	s.entries[key] = &entry{
		text:    text,
		created: time.Now(),
		element: s.order.PushBack(key),
	}
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.created) > s.ttl
}

// removeLocked must be called with mu held
func (s *Store) removeLocked(key string, e *entry) {
	if e != nil {
		s.order.Remove(e.element)
	}
	delete(s.entries, key)
}

func (s *Store) sweep() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *Store) sweepOnce(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if s.expired(e, now) {
			s.removeLocked(key, e)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired replies", "count", removed)
	}
}
