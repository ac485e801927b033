// internal/config/settings.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied after settings.yaml
const (
	ListenAddrEnv = "CODEWEAVE_LISTEN_ADDR"
	LogLevelEnv   = "CODEWEAVE_LOG_LEVEL"
	AuthKeyEnv    = "CODEWEAVE_AUTH_KEY"
)

// ModelSettings configures the OpenAI-compatible completion endpoint
type ModelSettings struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// APIKey reads the key from the configured environment variable
func (m ModelSettings) APIKey() string {
	return os.Getenv(m.APIKeyEnv)
}

// Settings is the contents of settings.yaml
type Settings struct {
	ListenAddr             string        `yaml:"listen_addr"`
	AuthKey                string        `yaml:"auth_key,omitempty"`
	SettleDelay            time.Duration `yaml:"settle_delay"`
	CompressionLevel       int           `yaml:"compression_level"`
	LogLevel               string        `yaml:"log_level"`
	MaterializeConcurrency int           `yaml:"materialize_concurrency"`
	Model                  ModelSettings `yaml:"model"`
}

// DefaultSettings returns the settings used when no file exists
func DefaultSettings() Settings {
	return Settings{
		ListenAddr:             "127.0.0.1:7420",
		SettleDelay:            250 * time.Millisecond,
		CompressionLevel:       3,
		LogLevel:               "info",
		MaterializeConcurrency: 4,
		Model: ModelSettings{
			BaseURL:     "https://api.groq.com/openai/v1",
			APIKeyEnv:   "GROQ_API_KEY",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.4,
			MaxTokens:   4096,
		},
	}
}

// LoadSettings reads path over the defaults. A missing file is not an
// error. Environment overrides are applied last.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return s, fmt.Errorf("read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return DefaultSettings(), fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	s.applyEnv()
	if err := s.validate(); err != nil {
		return DefaultSettings(), fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// WriteDefaultSettings creates path with the default settings unless it
// already exists
func WriteDefaultSettings(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *Settings) applyEnv() {
	if v := os.Getenv(ListenAddrEnv); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv(LogLevelEnv); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv(AuthKeyEnv); v != "" {
		s.AuthKey = v
	}
}

func (s *Settings) validate() error {
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if s.CompressionLevel < 1 || s.CompressionLevel > 22 {
		return fmt.Errorf("compression_level %d out of range 1-22", s.CompressionLevel)
	}
	if s.MaterializeConcurrency < 1 {
		s.MaterializeConcurrency = 1
	}
	return nil
}

// ParseLevel maps a log_level value onto a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", level)
	}
}
