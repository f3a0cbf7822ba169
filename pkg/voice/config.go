package voice

import (
	"errors"
	"time"
)

// Gemini Live defaults.
const (
	DefaultModel    = "models/gemini-2.0-flash-live-001"
	DefaultVoice    = "Charon"
	DefaultLanguage = "en-GB"

	// LiveURL is the Gemini Live websocket endpoint.
	LiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

// Config holds the session parameters sent in the setup message.
type Config struct {
	// APIKey is the Google API key (GOOGLE_API_KEY).
	APIKey string `yaml:"-" toml:"-" json:"-"`

	// Model is the live model name, including the "models/" prefix.
	Model string `yaml:"model" toml:"model" json:"model"`

	// Voice is a prebuilt voice name (Puck, Charon, Kore, Fenrir, Aoede).
	Voice string `yaml:"voice" toml:"voice" json:"voice"`

	// Language is the BCP-47 speech language code.
	Language string `yaml:"language" toml:"language" json:"language"`

	// SystemPrompt is sent as the system instruction.
	SystemPrompt string `yaml:"-" toml:"-" json:"-"`

	// Tools are the function declarations the model may call.
	Tools []FunctionDeclaration `yaml:"-" toml:"-" json:"-"`

	// Audio settings
	InputSampleRate  int `yaml:"input_sample_rate" toml:"input_sample_rate" json:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate" toml:"output_sample_rate" json:"output_sample_rate"`

	// HandshakeTimeout bounds the dial and the wait for setupComplete.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout" json:"handshake_timeout"`

	// URL overrides LiveURL (tests).
	URL string `yaml:"-" toml:"-" json:"-"`

	// Debug logs every unrecognized server message.
	Debug bool `yaml:"debug" toml:"debug" json:"debug"`
}

// DefaultConfig returns a Config with the Gemini Live defaults.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		Voice:            DefaultVoice,
		Language:         DefaultLanguage,
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return errors.New("voice: model required")
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return errors.New("voice: sample rates must be positive")
	}
	return nil
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithTools returns a copy with the function declarations set.
func (c Config) WithTools(tools []FunctionDeclaration) Config {
	c.Tools = tools
	return c
}

// WithVoice returns a copy with voice and language set.
func (c Config) WithVoice(voice, language string) Config {
	c.Voice = voice
	c.Language = language
	return c
}

func (c *Config) endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	return LiveURL
}
