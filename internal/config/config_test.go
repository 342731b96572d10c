package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "therapybuddy.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendStub, cfg.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Stub.Delay.Duration)
	assert.Equal(t, 20, cfg.Context.MaxMessages)
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
backend = "rules"
mode = "plan"
user_name = "Drew"
reply_timeout = "15s"

[stub]
delay = "50ms"

[cache]
enabled = true
ttl = "1m"
max_entries = 8

[ollama]
model = "mistral:latest"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendRules, cfg.Backend)
	assert.Equal(t, "plan", cfg.Mode)
	assert.Equal(t, "Drew", cfg.UserName)
	assert.Equal(t, 15*time.Second, cfg.ReplyTimeout.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Stub.Delay.Duration)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, 8, cfg.Cache.MaxEntries)
	assert.Equal(t, "mistral:latest", cfg.Ollama.Model)
	// untouched sections keep their defaults
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, "grok-1", cfg.Grok.Model)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Backend, cfg.Backend)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `reply_timeout = "soon"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("THERAPYBUDDY_BACKEND", "retrieval")
	t.Setenv("THERAPYBUDDY_MODE", "gratitude")
	t.Setenv("THERAPYBUDDY_DEBUG", "true")
	t.Setenv("OLLAMA_HOST", "10.0.0.5:11434")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, BackendRetrieval, cfg.Backend)
	assert.Equal(t, "gratitude", cfg.Mode)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://10.0.0.5:11434", cfg.Ollama.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "magic" }},
		{"unknown mode", func(c *Config) { c.Mode = "shout" }},
		{"unknown ui", func(c *Config) { c.UI = "gui" }},
		{"negative timeout", func(c *Config) { c.ReplyTimeout.Duration = -time.Second }},
		{"negative stub delay", func(c *Config) { c.Stub.Delay.Duration = -time.Second }},
		{"cache without capacity", func(c *Config) { c.Cache.Enabled = true; c.Cache.MaxEntries = 0 }},
		{"remote without target", func(c *Config) { c.Backend = BackendRemote }},
		{"retrieval without db", func(c *Config) { c.Backend = BackendRetrieval; c.Retrieval.DBPath = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
