package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults for orchestration tunables. These mirror the provider limits the
// application was tuned against and can all be overridden in the config file.
const (
	DefaultHistoryWindow       = 20
	DefaultMinCompletionTokens = 4096
	DefaultProviderTimeoutSecs = 60
	DefaultCorrectiveRetryCap  = 2
	DefaultRateLimitWaitSecs   = 60
	DefaultTemperature         = 0.8
	DefaultTopP                = 0.9
	DefaultMaxTokens           = 2048
	DefaultListenAddr          = "localhost:8937"
)

// Config represents application configuration
type Config struct {
	ListenAddr string `json:"listen_addr"`

	// Provider settings. The API key is never stored here; it is read from
	// the GROQ_API_KEY environment variable at startup.
	BaseURL      string `json:"base_url"`
	DefaultModel string `json:"default_model"`

	HistoryWindow        int `json:"history_window"`
	MinCompletionTokens  int `json:"min_completion_tokens"`
	ProviderTimeoutSecs  int `json:"provider_timeout_seconds"`
	CorrectiveRetryCap   int `json:"corrective_retry_cap"`
	RateLimitWaitSecs    int `json:"rate_limit_wait_seconds"`

	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`

	LogLevel    string `json:"log_level"` // debug, info, warn, error, none
	LogPath     string `json:"-"`
	SessionsDir string `json:"-"`
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		ListenAddr:          DefaultListenAddr,
		BaseURL:             "https://api.groq.com/openai/v1",
		DefaultModel:        "llama-3.1-8b-instant",
		HistoryWindow:       DefaultHistoryWindow,
		MinCompletionTokens: DefaultMinCompletionTokens,
		ProviderTimeoutSecs: DefaultProviderTimeoutSecs,
		CorrectiveRetryCap:  DefaultCorrectiveRetryCap,
		RateLimitWaitSecs:   DefaultRateLimitWaitSecs,
		Temperature:         DefaultTemperature,
		TopP:                DefaultTopP,
		MaxTokens:           DefaultMaxTokens,
		LogLevel:            "info",
		LogPath:             defaultLogPath(),
		SessionsDir:         defaultSessionsDir(),
	}
}

// Load reads the config file at path, filling unset fields with defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) normalize() {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.MinCompletionTokens <= 0 {
		c.MinCompletionTokens = d.MinCompletionTokens
	}
	if c.ProviderTimeoutSecs <= 0 {
		c.ProviderTimeoutSecs = d.ProviderTimeoutSecs
	}
	if c.CorrectiveRetryCap <= 0 {
		c.CorrectiveRetryCap = d.CorrectiveRetryCap
	}
	if c.RateLimitWaitSecs <= 0 {
		c.RateLimitWaitSecs = d.RateLimitWaitSecs
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.TopP <= 0 {
		c.TopP = d.TopP
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = d.LogPath
	}
	if c.SessionsDir == "" {
		c.SessionsDir = d.SessionsDir
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.json")
}

func defaultLogPath() string {
	return filepath.Join(configDir(), "talesmith.log")
}

func defaultSessionsDir() string {
	return filepath.Join(configDir(), "sessions")
}

func configDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "talesmith")
}
