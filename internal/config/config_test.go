package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "copilot", cfg.Provider)
	assert.Equal(t, 3, cfg.SkipLineCutoff)
	assert.Equal(t, 20, cfg.SizeThreshold)
	assert.Equal(t, 5, cfg.BatchThreshold)
	assert.Equal(t, 3000, cfg.MaxPayloadChars)
	assert.Equal(t, 8000, cfg.MaxBatchPayloadChars)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, PolicyFailClosed, cfg.InconclusivePolicy)
	assert.Equal(t, ".pre-commit-reviews", cfg.ReportDir)
	assert.True(t, cfg.Privacy.RedactSecrets)
	assert.NoError(t, cfg.Validate())
}

func loadFrom(t *testing.T, dir, path string) Config {
	t.Helper()
	v, err := NewViper(dir, path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	cfg := loadFrom(t, t.TempDir(), "")

	assert.Equal(t, Default().Provider, cfg.Provider)
	assert.Equal(t, Default().Rules, cfg.Rules)
}

func TestNewViper_MissingExplicitFileFails(t *testing.T) {
	_, err := NewViper("", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := `provider: openai
model: gpt-4o
batchThreshold: 7
inconclusivePolicy: failOpen
cache:
  enabled: true
rules:
  - id: orm
    category: data-access
    pattern: '\.Save\('
    weight: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0o644))

	cfg := loadFrom(t, dir, "")

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 7, cfg.BatchThreshold)
	assert.Equal(t, PolicyFailOpen, cfg.InconclusivePolicy)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 86400, cfg.Cache.TTLSeconds)
	assert.Equal(t, []RuleSpec{{ID: "orm", Category: "data-access", Pattern: `\.Save\(`, Weight: 4}}, cfg.Rules)
	assert.Equal(t, 3000, cfg.MaxPayloadChars)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("provider: openai\n"), 0o644))
	t.Setenv("REVGATE_PROVIDER", "anthropic")
	t.Setenv("REVGATE_MAXPAYLOADCHARS", "5000")
	t.Setenv("REVGATE_CACHE_ENABLED", "true")

	cfg := loadFrom(t, dir, "")

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 5000, cfg.MaxPayloadChars)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_InvalidFileIsErrInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: carrier-pigeon\n"), 0o644))

	v, err := NewViper("", path)
	require.NoError(t, err)
	_, err = Load(v)

	assert.True(t, errors.Is(err, ErrInvalid))
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "nope" }, "unknown provider"},
		{"empty model", func(c *Config) { c.Model = "" }, "model is required"},
		{"zero cutoff", func(c *Config) { c.SkipLineCutoff = 0 }, "skipLineCutoff"},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, "timeoutSeconds"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "must not be negative"},
		{"bad policy", func(c *Config) { c.InconclusivePolicy = "maybe" }, "inconclusivePolicy"},
		{"no reject keywords", func(c *Config) { c.RejectKeywords = nil }, "rejectKeywords"},
		{"bad skip pattern", func(c *Config) { c.SkipPatterns = []string{"("} }, "skip pattern"},
		{"bad critical pattern", func(c *Config) { c.CriticalPatterns = []string{"[x"} }, "critical pattern"},
		{"bad rule", func(c *Config) { c.Rules = []RuleSpec{{ID: "r", Pattern: "(?P<"}} }, `rule "r"`},
		{"bad report format", func(c *Config) { c.ReportFormat = "html" }, "reportFormat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetField(t *testing.T) {
	cfg := Default()

	require.NoError(t, SetField(&cfg, "provider", "ollama"))
	require.NoError(t, SetField(&cfg, "batchThreshold", "9"))
	require.NoError(t, SetField(&cfg, "temperature", "0.5"))
	require.NoError(t, SetField(&cfg, "cache.enabled", "true"))
	require.NoError(t, SetField(&cfg, "log.level", "debug"))

	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, 9, cfg.BatchThreshold)
	assert.InDelta(t, 0.5, cfg.Temperature, 1e-9)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.ErrorContains(t, SetField(&cfg, "batchThreshold", "many"), "batchThreshold")
	assert.ErrorContains(t, SetField(&cfg, "history.enabled", "sure"), "history.enabled")
	assert.ErrorContains(t, SetField(&cfg, "color", "blue"), "unknown config key")
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.Provider = "gemini"
	cfg.Model = "gemini-2.0-flash"
	cfg.CriticalPatterns = []string{"billing"}

	require.NoError(t, Save(path, cfg))
	got := loadFrom(t, "", path)

	assert.Equal(t, cfg, got)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning", slog.LevelInfo))
	assert.Equal(t, slog.Level(-8), ParseLevel("-8", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, ParseLevel("", slog.LevelError))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty", slog.LevelInfo))
}

func TestNewLogger_WritesUnderRoot(t *testing.T) {
	root := t.TempDir()
	lc := Default().Log

	logger, closer := NewLogger(lc, root, true)
	logger.Debug("classified", "path", "a.go")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(root, lc.Filename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "classified")
	assert.Contains(t, string(data), "path=a.go")
}
