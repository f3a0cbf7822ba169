// Package medforce assembles the voice bridge: session, audio devices,
// tool dispatcher, board client, retrieval, audit trail and console.
package medforce

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-medforce/pkg/audioio"
	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/bridge"
	"github.com/teslashibe/go-medforce/pkg/dispatch"
	"github.com/teslashibe/go-medforce/pkg/meet"
	"github.com/teslashibe/go-medforce/pkg/retrieval"
	"github.com/teslashibe/go-medforce/pkg/voice"
	"github.com/teslashibe/go-medforce/pkg/web"
)

// Environment variables read by LoadEnv.
const (
	EnvGoogleAPIKey      = "GOOGLE_API_KEY"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvBoardURL          = "MEDFORCE_BOARD_URL"
	EnvBoardClientID     = "MEDFORCE_BOARD_CLIENT_ID"
	EnvBoardClientSecret = "MEDFORCE_BOARD_CLIENT_SECRET"
	EnvBoardTokenURL     = "MEDFORCE_BOARD_TOKEN_URL"
	EnvInputDevice       = "MEDFORCE_INPUT_DEVICE"
	EnvOutputDevice      = "MEDFORCE_OUTPUT_DEVICE"
	EnvLogLevel          = "MEDFORCE_LOG_LEVEL"
)

// DefaultAuditDir holds one JSON file per tool call.
const DefaultAuditDir = "./tool_calls"

// ConsoleConfig configures the operator console.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" toml:"addr" json:"addr"`
}

// Config holds all configuration for the bridge.
// It is built once at startup and passed down; flag parsing lives in
// cmd/medforce.
type Config struct {
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// API keys come from the environment only.
	GoogleAPIKey string `yaml:"-" toml:"-" json:"-"`
	OpenAIKey    string `yaml:"-" toml:"-" json:"-"`

	Voice     voice.Config     `yaml:"voice" toml:"voice" json:"voice"`
	Input     audioio.Config   `yaml:"input" toml:"input" json:"input"`
	Output    audioio.Config   `yaml:"output" toml:"output" json:"output"`
	Board     board.Config     `yaml:"board" toml:"board" json:"board"`
	Retrieval retrieval.Config `yaml:"retrieval" toml:"retrieval" json:"retrieval"`
	Dispatch  dispatch.Config  `yaml:"dispatch" toml:"dispatch" json:"dispatch"`
	Bridge    bridge.Config    `yaml:"bridge" toml:"bridge" json:"bridge"`
	Console   ConsoleConfig    `yaml:"console" toml:"console" json:"console"`
	Meet      meet.Config      `yaml:"meet" toml:"meet" json:"meet"`

	AuditDir string `yaml:"audit_dir" toml:"audit_dir" json:"audit_dir"`
}

// DefaultConfig returns defaults for every component.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		Voice:     voice.DefaultConfig(),
		Input:     audioio.DefaultCaptureConfig(),
		Output:    audioio.DefaultPlaybackConfig(),
		Board:     board.DefaultConfig(),
		Retrieval: retrieval.DefaultConfig(),
		Dispatch:  dispatch.DefaultConfig(),
		Bridge:    bridge.DefaultConfig(),
		Console:   ConsoleConfig{Enabled: true, Addr: web.DefaultAddr},
		Meet:      meet.DefaultConfig(),
		AuditDir:  DefaultAuditDir,
	}
}

// Load returns defaults overlaid with the file at path (if any) and then
// the environment. The format is chosen by extension: .yaml, .yml or .toml.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.LoadEnv()
	return cfg, nil
}

// LoadFile overlays the config file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return &ConfigError{Field: "config", Message: fmt.Sprintf("unsupported config format %q (use .yaml or .toml)", ext)}
	}
	return nil
}

// LoadEnv applies environment overrides. Call it after LoadFile and
// before flags.
func (c *Config) LoadEnv() {
	c.GoogleAPIKey = os.Getenv(EnvGoogleAPIKey)
	c.OpenAIKey = os.Getenv(EnvOpenAIKey)

	if v := os.Getenv(EnvBoardURL); v != "" {
		c.Board.BaseURL = v
		c.Meet.BoardURL = v
	}
	if v := os.Getenv(EnvBoardClientID); v != "" {
		c.Board.ClientID = v
	}
	c.Board.ClientSecret = os.Getenv(EnvBoardClientSecret)
	if v := os.Getenv(EnvBoardTokenURL); v != "" {
		c.Board.TokenURL = v
	}
	if v := os.Getenv(EnvInputDevice); v != "" {
		c.Input.Device = v
	}
	if v := os.Getenv(EnvOutputDevice); v != "" {
		c.Output.Device = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks everything `serve` needs. It runs before any network
// activity.
func (c *Config) Validate() error {
	if c.GoogleAPIKey == "" {
		return &ConfigError{Field: "GoogleAPIKey", Message: EnvGoogleAPIKey + " environment variable is required"}
	}
	c.Voice.APIKey = c.GoogleAPIKey
	if err := c.Voice.Validate(); err != nil {
		return &ConfigError{Field: "voice", Message: err.Error()}
	}
	if err := c.Input.Validate(); err != nil {
		return &ConfigError{Field: "input", Message: err.Error()}
	}
	if err := c.Output.Validate(); err != nil {
		return &ConfigError{Field: "output", Message: err.Error()}
	}
	if err := c.Board.Validate(); err != nil {
		return &ConfigError{Field: "board", Message: err.Error()}
	}
	if err := c.Dispatch.Validate(); err != nil {
		return &ConfigError{Field: "dispatch", Message: err.Error()}
	}
	return c.ValidateRetrieval()
}

// ValidateRetrieval checks the embedding provider has its credential.
func (c *Config) ValidateRetrieval() error {
	switch c.Retrieval.Provider {
	case "", retrieval.ProviderGemini:
		if c.GoogleAPIKey == "" {
			return &ConfigError{Field: "GoogleAPIKey", Message: EnvGoogleAPIKey + " environment variable is required for gemini embeddings"}
		}
	case retrieval.ProviderOpenAI:
		if c.OpenAIKey == "" {
			return &ConfigError{Field: "OpenAIKey", Message: EnvOpenAIKey + " environment variable is required for openai embeddings"}
		}
	case retrieval.ProviderHash:
	default:
		return &ConfigError{Field: "retrieval.provider", Message: fmt.Sprintf("unknown embedding provider %q", c.Retrieval.Provider)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
