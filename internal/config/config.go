package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"TherapyBuddy/internal/persona"
)

const (
	BackendStub      = "stub"
	BackendRules     = "rules"
	BackendRetrieval = "retrieval"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
	BackendRemote    = "remote"
)

const (
	UIRepl = "repl"
	UITUI  = "tui"
)

// Backends lists every recognised backend name
func Backends() []string {
	return []string{
		BackendStub, BackendRules, BackendRetrieval, BackendOllama,
		BackendAnthropic, BackendGrok, BackendOpenAI, BackendRemote,
	}
}

// IsBackend reports whether name is a recognised backend
func IsBackend(name string) bool {
	for _, b := range Backends() {
		if b == name {
			return true
		}
	}
	return false
}

// Duration wraps time.Duration so TOML files can use strings like "500ms"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds application configuration
type Config struct {
	Backend      string   `toml:"backend"`
	Mode         string   `toml:"mode"`
	UI           string   `toml:"ui"`
	UserName     string   `toml:"user_name"`
	ReplyTimeout Duration `toml:"reply_timeout"`
	Debug        bool     `toml:"debug"`
	LogDir       string   `toml:"log_dir"`
	LogLevel     string   `toml:"log_level"`
	Telemetry    bool     `toml:"telemetry"`

	Stub      StubConfig      `toml:"stub"`
	Context   ContextConfig   `toml:"context"`
	Cache     CacheConfig     `toml:"cache"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Grok      OpenAIConfig    `toml:"grok"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Remote    RemoteConfig    `toml:"remote"`
}

// StubConfig configures the fixed-delay acknowledgement backend
type StubConfig struct {
	Delay Duration `toml:"delay"`
	Reply string   `toml:"reply"`
}

// ContextConfig bounds how much of the transcript model backends receive
type ContextConfig struct {
	MaxMessages int `toml:"max_messages"`
}

// CacheConfig configures the reply cache
type CacheConfig struct {
	Enabled    bool     `toml:"enabled"`
	TTL        Duration `toml:"ttl"`
	MaxEntries int      `toml:"max_entries"`
}

// OllamaConfig configures the local Ollama backend
type OllamaConfig struct {
	URL   string `toml:"url"`
	Model string `toml:"model"` // Model specification in format "model:version" (e.g., "llama3:latest")
}

// AnthropicConfig configures the Anthropic Messages API backend
type AnthropicConfig struct {
	URL       string `toml:"url"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// OpenAIConfig configures an OpenAI-compatible chat completions backend
type OpenAIConfig struct {
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// RetrievalConfig configures the SQLite reply corpus
type RetrievalConfig struct {
	DBPath string `toml:"db_path"`
}

// RemoteConfig configures the JSON-RPC responder backend.
// Target is a ws:// or http:// URL, or a command line for a stdio responder.
type RemoteConfig struct {
	Target string `toml:"target"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend:      BackendStub,
		Mode:         string(persona.ModeVent),
		UI:           UIRepl,
		ReplyTimeout: Duration{60 * time.Second},
		LogDir:       "logs",
		LogLevel:     "info",
		Stub: StubConfig{
			Delay: Duration{500 * time.Millisecond},
			Reply: persona.DefaultReply,
		},
		Context: ContextConfig{MaxMessages: 20},
		Cache: CacheConfig{
			Enabled:    false,
			TTL:        Duration{10 * time.Minute},
			MaxEntries: 256,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llama3:latest",
		},
		Anthropic: AnthropicConfig{
			URL:       "https://api.anthropic.com/v1/messages",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1024,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-3.5-turbo",
		},
		Grok: OpenAIConfig{
			Model:   "grok-1",
			BaseURL: "https://api.grok.x.ai/v1",
		},
		Retrieval: RetrievalConfig{DBPath: ":memory:"},
	}
}

// Load reads a TOML file on top of the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides overlays THERAPYBUDDY_* and provider variables
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("THERAPYBUDDY_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("THERAPYBUDDY_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("THERAPYBUDDY_UI"); v != "" {
		c.UI = v
	}
	if v := os.Getenv("THERAPYBUDDY_USER_NAME"); v != "" {
		c.UserName = v
	}
	if v := os.Getenv("THERAPYBUDDY_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("THERAPYBUDDY_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("THERAPYBUDDY_REMOTE"); v != "" {
		c.Remote.Target = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			v = "http://" + v
		}
		c.Ollama.URL = v
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if !IsBackend(c.Backend) {
		return fmt.Errorf("unknown backend: %s (want one of %s)", c.Backend, strings.Join(Backends(), "|"))
	}
	if _, err := persona.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.UI != UIRepl && c.UI != UITUI {
		return fmt.Errorf("unknown ui: %s (want repl|tui)", c.UI)
	}
	if c.ReplyTimeout.Duration < 0 {
		return errors.New("reply_timeout must not be negative")
	}
	if c.Stub.Delay.Duration < 0 {
		return errors.New("stub.delay must not be negative")
	}
	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive when the cache is enabled")
	}
	if c.Backend == BackendRemote && strings.TrimSpace(c.Remote.Target) == "" {
		return errors.New("remote.target is required for the remote backend")
	}
	if c.Backend == BackendRetrieval && c.Retrieval.DBPath == "" {
		return errors.New("retrieval.db_path is required for the retrieval backend")
	}
	return nil
}
