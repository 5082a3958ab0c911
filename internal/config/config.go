// Package config loads configuration from environment variables with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported LLM providers for the dev backend.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// Backend endpoints
	ServerURL        string
	SpeechGatewayURL string

	// Triage behavior
	Mode string

	// SurrealDB session persistence. Empty URL disables persistence and
	// keeps history in memory only.
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Dev backend server
	ListenAddr      string
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// fileConfig is the YAML overlay shape. Only set fields override the
// environment-derived values.
type fileConfig struct {
	ServerURL        string `yaml:"server_url"`
	SpeechGatewayURL string `yaml:"speech_gateway_url"`
	Mode             string `yaml:"mode"`
	SurrealDBURL     string `yaml:"surrealdb_url"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
	ListenAddr       string `yaml:"listen_addr"`
	LLMProvider      string `yaml:"llm_provider"`
	LLMModel         string `yaml:"llm_model"`
	OllamaHost       string `yaml:"ollama_host"`
}

// Load reads configuration from environment variables, then applies the
// YAML file named by TRIAGE_CONFIG when present.
func Load() (Config, error) {
	cfg := Config{
		ServerURL:        getEnv("TRIAGE_SERVER_URL", "http://localhost:8000"),
		SpeechGatewayURL: getEnv("TRIAGE_SPEECH_GATEWAY_URL", ""),

		Mode: getEnv("TRIAGE_MODE", "quick_triage"),

		SurrealDBURL:       getEnv("SURREALDB_URL", ""),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "triage"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "sessions"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LogFile:  getEnv("TRIAGE_LOG_FILE", "/tmp/triage.log"),
		LogLevel: parseLogLevel(getEnv("TRIAGE_LOG_LEVEL", "INFO")),

		ListenAddr:      getEnv("TRIAGE_LISTEN_ADDR", ":8000"),
		LLMProvider:     getEnv("TRIAGE_LLM_PROVIDER", "ollama"),
		LLMModel:        getEnv("TRIAGE_LLM_MODEL", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		RateLimitMax:    getEnvInt("TRIAGE_RATE_LIMIT_MAX", 15),
		RateLimitWindow: time.Duration(getEnvInt("TRIAGE_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}

	path := os.Getenv("TRIAGE_CONFIG")
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyFile(fc)
	return cfg, nil
}

func (c *Config) applyFile(fc fileConfig) {
	if fc.ServerURL != "" {
		c.ServerURL = fc.ServerURL
	}
	if fc.SpeechGatewayURL != "" {
		c.SpeechGatewayURL = fc.SpeechGatewayURL
	}
	if fc.Mode != "" {
		c.Mode = fc.Mode
	}
	if fc.SurrealDBURL != "" {
		c.SurrealDBURL = fc.SurrealDBURL
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.LLMProvider != "" {
		c.LLMProvider = fc.LLMProvider
	}
	if fc.LLMModel != "" {
		c.LLMModel = fc.LLMModel
	}
	if fc.OllamaHost != "" {
		c.OllamaHost = fc.OllamaHost
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
