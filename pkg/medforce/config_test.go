package medforce

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-medforce/pkg/retrieval"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvGoogleAPIKey, EnvOpenAIKey, EnvBoardURL, EnvBoardClientID,
		EnvBoardClientSecret, EnvBoardTokenURL, EnvInputDevice, EnvOutputDevice, EnvLogLevel,
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:3001", cfg.Board.BaseURL)
	assert.Equal(t, 16000, cfg.Input.SampleRate)
	assert.Equal(t, 24000, cfg.Output.SampleRate)
	assert.True(t, cfg.Dispatch.KeepAlive)
	assert.Equal(t, DefaultAuditDir, cfg.AuditDir)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "medforce.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
voice:
  voice: Puck
board:
  base_url: http://board.local:9000
dispatch:
  lab_delay: 500ms
  keep_alive: false
input:
  device: CABLE Output
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Puck", cfg.Voice.Voice)
	assert.Equal(t, "http://board.local:9000", cfg.Board.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.LabDelay)
	assert.False(t, cfg.Dispatch.KeepAlive)
	assert.Equal(t, "CABLE Output", cfg.Input.Device)
	// untouched fields keep defaults
	assert.Equal(t, 16000, cfg.Input.SampleRate)
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "medforce.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
audit_dir = "/var/lib/medforce/calls"

[retrieval]
provider = "hash"
top_k = 5

[console]
enabled = false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/medforce/calls", cfg.AuditDir)
	assert.Equal(t, retrieval.ProviderHash, cfg.Retrieval.Provider)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.False(t, cfg.Console.Enabled)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "medforce.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))

	_, err := Load(path)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "config", cerr.Field)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "medforce.yaml")
	require.NoError(t, os.WriteFile(path, []byte("board:\n  base_url: http://from-file\n"), 0o644))

	t.Setenv(EnvBoardURL, "http://from-env")
	t.Setenv(EnvOutputDevice, "CABLE Input")
	t.Setenv(EnvGoogleAPIKey, "key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", cfg.Board.BaseURL)
	assert.Equal(t, "http://from-env", cfg.Meet.BoardURL)
	assert.Equal(t, "CABLE Input", cfg.Output.Device)
	assert.Equal(t, "key", cfg.GoogleAPIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing google key",
			mutate:    func(c *Config) { c.GoogleAPIKey = "" },
			wantField: "GoogleAPIKey",
			wantMsg:   "GOOGLE_API_KEY environment variable is required",
		},
		{
			name: "openai embeddings without key",
			mutate: func(c *Config) {
				c.Retrieval.Provider = retrieval.ProviderOpenAI
			},
			wantField: "OpenAIKey",
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.Retrieval.Provider = "nope" },
			wantField: "retrieval.provider",
		},
		{
			name:      "empty board url",
			mutate:    func(c *Config) { c.Board.BaseURL = "" },
			wantField: "board",
		},
		{
			name:      "bad dispatch",
			mutate:    func(c *Config) { c.Dispatch.Workers = -1 },
			wantField: "dispatch",
		},
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.GoogleAPIKey = "key"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "key", cfg.Voice.APIKey)
				return
			}
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.wantField, cerr.Field)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, cerr.Error())
			}
		})
	}
}
