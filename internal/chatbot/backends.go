package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"TherapyBuddy/internal/backend"
	"TherapyBuddy/internal/cache"
	"TherapyBuddy/internal/config"
	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/rpc"
)

// initTimeout bounds the remote responder handshake
const initTimeout = 10 * time.Second

// buildBackend constructs the named backend for mode, wrapped with the
// reply cache (when enabled) and instrumentation. release frees whatever
// the backend holds open (corpus database, responder connection).
func (cb *ChatBot) buildBackend(ctx context.Context, name string, mode persona.Mode) (backend.Backend, func(), error) {
	return buildBackend(ctx, cb.config, name, mode, cb.cacheStore(name, mode),
		cb.httpClient, cb.logger, cb.tracer, cb.meter)
}

// cacheStore returns the reply store shared by every session on name and
// mode, or nil when caching is off
func (cb *ChatBot) cacheStore(name string, mode persona.Mode) *cache.Store {
	if !cb.config.Cache.Enabled {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	key := name + "/" + string(mode)
	if store, ok := cb.caches[key]; ok {
		return store
	}
	if cb.caches == nil {
		cb.caches = make(map[string]*cache.Store)
	}
	store := cache.NewStore(cb.config.Cache.TTL.Duration, cb.config.Cache.MaxEntries, cb.logger)
	cb.caches[key] = store
	return store
}

func buildBackend(ctx context.Context, cfg config.Config, name string, mode persona.Mode, store *cache.Store,
	httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter,
) (backend.Backend, func(), error) {
	opts := backend.HTTPOptions{
		Client:      httpClient,
		Meter:       meter,
		Mode:        mode,
		MaxMessages: cfg.Context.MaxMessages,
	}

	var b backend.Backend
	var closers []func() error

	switch name {
	case config.BackendStub:
		b = backend.NewStub(cfg.Stub.Delay.Duration, cfg.Stub.Reply)

	case config.BackendRules:
		b = backend.NewRules(mode)

	case config.BackendRetrieval:
		db, err := backend.OpenCorpus(cfg.Retrieval.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open reply corpus: %w", err)
		}
		r := backend.NewRetrieval(db, mode)
		b = r
		closers = append(closers, r.Close)

	case config.BackendOllama:
		b = backend.NewOllama(cfg.Ollama.URL, cfg.Ollama.Model, opts)

	case config.BackendAnthropic:
		b = backend.NewAnthropic(cfg.Anthropic.URL, os.Getenv("ANTHROPIC_API_KEY"),
			cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, opts)

	case config.BackendOpenAI:
		b = backend.NewOpenAI(config.BackendOpenAI, os.Getenv("OPENAI_API_KEY"),
			cfg.OpenAI.BaseURL, cfg.OpenAI.Model, opts)

	case config.BackendGrok:
		b = backend.NewOpenAI(config.BackendGrok, os.Getenv("GROK_API_KEY"),
			cfg.Grok.BaseURL, cfg.Grok.Model, opts)

	case config.BackendRemote:
		client, err := rpc.Dial("remote", cfg.Remote.Target, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to responder: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		_, err = client.Initialize(initCtx)
		cancel()
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		r := backend.NewRemote(client, mode, cfg.Context.MaxMessages)
		b = r
		closers = append(closers, r.Close)

	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", name)
	}

	if store != nil {
		b = store.Wrap(b)
	}

	b = backend.Instrumented(b, tracer, meter)

	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to release backend resource", "backend", name, "error", err)
			}
		}
	}

	logger.Info("backend ready", "backend", name, "mode", mode, "cache", store != nil)
	return b, release, nil
}
