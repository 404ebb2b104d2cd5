// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken   string
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIModel   string
	ZhipuAPIKey   string
	ZhipuModel    string
	PollInterval  time.Duration
	WindowDays    int
	Language      string
	ListenAddr    string
	DBPath        string
	EncryptionKey []byte
	DigestWorkers int
}

// Load reads configuration from environment variables and returns a validated
// Config. All credentials are optional at startup: without a GitHub token the
// client falls back to anonymous requests, and without an LLM API key digest
// runs fail until a key is stored via the settings API. Optional variables
// with defaults: RELEASEDIGEST_POLL_INTERVAL (15m), RELEASEDIGEST_WINDOW_DAYS (7),
// RELEASEDIGEST_LANGUAGE (English), RELEASEDIGEST_LISTEN_ADDR (127.0.0.1:8080),
// RELEASEDIGEST_DB_PATH (releasedigest.db), RELEASEDIGEST_DIGEST_WORKERS (2),
// RELEASEDIGEST_LLM_PROVIDER (openai), RELEASEDIGEST_OPENAI_MODEL (gpt-4o),
// RELEASEDIGEST_ZHIPU_MODEL (glm-4-flash).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:   os.Getenv("RELEASEDIGEST_GITHUB_TOKEN"),
		OpenAIAPIKey:  os.Getenv("RELEASEDIGEST_OPENAI_API_KEY"),
		ZhipuAPIKey:   os.Getenv("RELEASEDIGEST_ZHIPU_API_KEY"),
		LLMProvider:   "openai",
		OpenAIModel:   "gpt-4o",
		ZhipuModel:    "glm-4-flash",
		PollInterval:  15 * time.Minute,
		WindowDays:    7,
		Language:      "English",
		ListenAddr:    "127.0.0.1:8080",
		DBPath:        "releasedigest.db",
		DigestWorkers: 2,
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_LLM_PROVIDER"); ok {
		if v != "openai" && v != "zhipu" {
			return nil, fmt.Errorf("RELEASEDIGEST_LLM_PROVIDER has unsupported value %q: expected openai or zhipu", v)
		}
		cfg.LLMProvider = v
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_OPENAI_MODEL"); ok && v != "" {
		cfg.OpenAIModel = v
	}
	if v, ok := os.LookupEnv("RELEASEDIGEST_ZHIPU_MODEL"); ok && v != "" {
		cfg.ZhipuModel = v
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_POLL_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("RELEASEDIGEST_POLL_INTERVAL has invalid duration %q: %w", v, err)
		}
		if parsed < time.Minute {
			return nil, fmt.Errorf("RELEASEDIGEST_POLL_INTERVAL %q is below the 1m minimum", v)
		}
		cfg.PollInterval = parsed
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_WINDOW_DAYS"); ok {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RELEASEDIGEST_WINDOW_DAYS has invalid integer %q: %w", v, err)
		}
		if days < 1 || days > 365 {
			return nil, fmt.Errorf("RELEASEDIGEST_WINDOW_DAYS %d out of range 1..365", days)
		}
		cfg.WindowDays = days
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_LANGUAGE"); ok && v != "" {
		cfg.Language = v
	}
	if v, ok := os.LookupEnv("RELEASEDIGEST_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("RELEASEDIGEST_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_ENCRYPTION_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("RELEASEDIGEST_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("RELEASEDIGEST_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.EncryptionKey = key
	}

	if v, ok := os.LookupEnv("RELEASEDIGEST_DIGEST_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RELEASEDIGEST_DIGEST_WORKERS has invalid integer %q: %w", v, err)
		}
		if n < 1 || n > 16 {
			return nil, fmt.Errorf("RELEASEDIGEST_DIGEST_WORKERS %d out of range 1..16", n)
		}
		cfg.DigestWorkers = n
	}

	return cfg, nil
}

// APIKeyFor returns the configured API key for the given provider name.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "zhipu":
		return c.ZhipuAPIKey
	default:
		return ""
	}
}

// ModelFor returns the configured model for the given provider name.
func (c *Config) ModelFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIModel
	case "zhipu":
		return c.ZhipuModel
	default:
		return ""
	}
}
