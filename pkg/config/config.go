// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mariozechner/coding-agent/chat/pkg/models/gemini"
	"github.com/mariozechner/coding-agent/chat/pkg/session"
	"github.com/mariozechner/coding-agent/chat/pkg/transport"
)

// Config holds all application configuration.
type Config struct {
	APIKey        string
	Model         string
	BaseURL       string
	LogLevel      slog.Level
	LogFile       string
	TranscriptDir string // empty disables transcripts
	HTTPAddr      string
}

// LoadEnvFile reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error; the boolean reports whether it was found.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("error loading %s: %w", path, err)
	}
	return true, nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		APIKey:        firstEnv("GEMINI_API_TOKEN", "GEMINI_API_KEY"),
		Model:         getEnv("GEMINI_MODEL", session.DefaultModel),
		BaseURL:       getEnv("GEMINI_BASE_URL", gemini.DefaultBaseURL),
		LogLevel:      level,
		LogFile:       getEnv("LOG_FILE", "chat.log"),
		TranscriptDir: getEnv("CHAT_TRANSCRIPT_DIR", ""),
		HTTPAddr:      getEnv("CHAT_HTTP_ADDR", ":8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL cannot be empty")
	}
	return nil
}

// HasAPIKey reports whether a credential was found. Its absence is not fatal.
func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

// ParseLevel maps TRACE, DEBUG, INFO, WARN and ERROR (any case) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return transport.LevelTrace, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", s)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
