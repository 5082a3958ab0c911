package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRIAGE_SERVER_URL", "TRIAGE_SPEECH_GATEWAY_URL", "TRIAGE_MODE",
		"SURREALDB_URL", "SURREALDB_NAMESPACE", "SURREALDB_DATABASE",
		"TRIAGE_LOG_FILE", "TRIAGE_LOG_LEVEL", "TRIAGE_LISTEN_ADDR",
		"TRIAGE_LLM_PROVIDER", "TRIAGE_LLM_MODEL", "OLLAMA_HOST",
		"TRIAGE_RATE_LIMIT_MAX", "TRIAGE_RATE_LIMIT_WINDOW_SECONDS",
		"TRIAGE_CONFIG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.ServerURL)
	assert.Empty(t, cfg.SpeechGatewayURL)
	assert.Equal(t, "quick_triage", cfg.Mode)
	assert.Empty(t, cfg.SurrealDBURL, "persistence is off by default")
	assert.Equal(t, "triage", cfg.SurrealDBNamespace)
	assert.Equal(t, "sessions", cfg.SurrealDBDatabase)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, 15, cfg.RateLimitMax)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_SERVER_URL", "http://triage.internal:9000")
	t.Setenv("TRIAGE_MODE", "hospital_search")
	t.Setenv("SURREALDB_URL", "ws://localhost:8100/rpc")
	t.Setenv("TRIAGE_LOG_LEVEL", "debug")
	t.Setenv("TRIAGE_RATE_LIMIT_MAX", "5")
	t.Setenv("TRIAGE_RATE_LIMIT_WINDOW_SECONDS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://triage.internal:9000", cfg.ServerURL)
	assert.Equal(t, "hospital_search", cfg.Mode)
	assert.Equal(t, "ws://localhost:8100/rpc", cfg.SurrealDBURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5, cfg.RateLimitMax)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
}

func TestLoad_FileOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_SERVER_URL", "http://from-env:8000")
	t.Setenv("TRIAGE_MODE", "quick_triage")

	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_url: http://from-file:8000\n"+
			"mode: detailed_explanation\n"+
			"log_level: warn\n",
	), 0o644))
	t.Setenv("TRIAGE_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:8000", cfg.ServerURL)
	assert.Equal(t, "detailed_explanation", cfg.Mode)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	// Fields the file leaves out keep their environment values.
	assert.Equal(t, ":8000", cfg.ListenAddr)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [not a scalar\n"), 0o644))
	t.Setenv("TRIAGE_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), "level %q", tt.input)
	}
}
