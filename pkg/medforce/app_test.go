package medforce

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-medforce/pkg/audioio"
	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/retrieval"
	"github.com/teslashibe/go-medforce/pkg/tools"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_MissingCredentialMakesNoRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Board.BaseURL = srv.URL
	cfg.GoogleAPIKey = ""

	app, err := New(cfg, quietLogger())
	require.Error(t, err)
	assert.Nil(t, app)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "GOOGLE_API_KEY environment variable is required", cerr.Message)
	assert.Zero(t, hits.Load())
}

type fakeBoard struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(`[]`))
		return
	}
	_, _ = w.Write([]byte(`{"id":"obj-1"}`))
}

func (f *fakeBoard) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func testConfig(t *testing.T, boardURL string) Config {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.GoogleAPIKey = "test-key"
	cfg.Board.BaseURL = boardURL
	cfg.Retrieval.Provider = retrieval.ProviderHash
	cfg.Retrieval.PersistDir = filepath.Join(dir, "store")
	cfg.AuditDir = filepath.Join(dir, "audit")
	cfg.Console.Enabled = false
	cfg.Dispatch.KeepAlive = false
	cfg.Input.Backend = audioio.BackendMock
	cfg.Output.Backend = audioio.BackendMock
	return cfg
}

func TestApp_RunAnswersToolCall(t *testing.T) {
	fb := &fakeBoard{}
	srv := httptest.NewServer(fb)
	defer srv.Close()

	app, err := New(testConfig(t, srv.URL), quietLogger())
	require.NoError(t, err)

	session := voice.NewMockSession()
	var dialed voice.Config
	app.dial = func(ctx context.Context, cfg voice.Config, logger *slog.Logger) (voice.Session, error) {
		dialed = cfg
		return session, nil
	}
	app.newSource = func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
		return audioio.NewMockSource(cfg, logger, audioio.WithRealtime()), nil
	}
	app.newSink = func(cfg audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
		return audioio.NewMockSink(cfg, logger), nil
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	session.Push(voice.Event{Kind: voice.EventToolCall, Calls: []voice.ToolCall{{
		ID:   "call-1",
		Name: tools.NavigateCanvas,
		Args: map[string]any{"objectId": "obj-7"},
	}}})

	require.Eventually(t, func() bool {
		_, _, responses, _ := session.Snapshot()
		return len(responses) == 1
	}, 2*time.Second, 10*time.Millisecond)

	session.End(nil)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, voice.ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after session end")
	}

	_, _, responses, _ := session.Snapshot()
	require.Len(t, responses[0], 1)
	assert.Equal(t, "call-1", responses[0][0].ID)
	assert.Contains(t, fb.Paths(), "POST "+board.PathFocus)

	assert.Equal(t, tools.SystemPrompt, dialed.SystemPrompt)
	assert.Len(t, dialed.Tools, len(tools.Names))
	assert.Equal(t, "test-key", dialed.APIKey)

	records, err := app.audit.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tools.NavigateCanvas, records[0].Tool)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestApp_DialFailure(t *testing.T) {
	fb := &fakeBoard{}
	srv := httptest.NewServer(fb)
	defer srv.Close()

	app, err := New(testConfig(t, srv.URL), quietLogger())
	require.NoError(t, err)
	app.dial = func(context.Context, voice.Config, *slog.Logger) (voice.Session, error) {
		return nil, voice.ErrSetupFailed
	}

	err = app.Run(context.Background())
	assert.ErrorIs(t, err, voice.ErrSetupFailed)
	assert.Empty(t, fb.Paths())
}
