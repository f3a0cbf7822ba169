package meet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu       sync.Mutex
	actions  []string
	openErr  error
	navErr   error
	clickErr map[string]error
	closed   bool
}

func (f *fakeBrowser) log(s string) {
	f.mu.Lock()
	f.actions = append(f.actions, s)
	f.mu.Unlock()
}

func (f *fakeBrowser) Open(ctx context.Context) error {
	f.log("open")
	return f.openErr
}

func (f *fakeBrowser) Navigate(ctx context.Context, tab, url string) error {
	f.log("navigate " + tab + " " + url)
	return f.navErr
}

func (f *fakeBrowser) Click(ctx context.Context, tab, selector string) error {
	f.log("click " + tab + " " + selector)
	return f.clickErr[selector]
}

func (f *fakeBrowser) NewTab(ctx context.Context, tab, url string) error {
	f.log("tab " + tab + " " + url)
	return nil
}

func (f *fakeBrowser) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func profileDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DefaultProfileName), 0o755))
	return dir
}

func testDriver(t *testing.T, fb *fakeBrowser) *Driver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MeetURL = "https://meet.example.com/abc-defg-hij"
	cfg.ProfileDir = profileDir(t)

	d, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	d.browser = fb
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestNew_ProfileMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MeetURL = "https://meet.example.com/abc"
	cfg.ProfileDir = filepath.Join(t.TempDir(), "nope")

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileMissing)
}

func TestConfig_Validate(t *testing.T) {
	dir := profileDir(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no meet url", func(c *Config) { c.MeetURL = "" }, true},
		{"no board url", func(c *Config) { c.BoardURL = "" }, true},
		{"zero timeout", func(c *Config) { c.StepTimeout = 0 }, true},
		{"empty profile name uses default", func(c *Config) { c.ProfileName = "" }, false},
		{"wrong profile name", func(c *Config) { c.ProfileName = "Profile 2" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MeetURL = "https://meet.example.com/abc"
			cfg.ProfileDir = dir
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJoin_Steps(t *testing.T) {
	fb := &fakeBrowser{}
	d := testDriver(t, fb)

	report, err := d.Join(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	require.Len(t, report.Steps, 4)

	assert.Equal(t, []string{
		"open",
		"navigate meet https://meet.example.com/abc-defg-hij",
		"click meet " + PermissionSelector,
		"click meet " + JoinSelector,
		"tab board " + DefaultBoardURL,
		"click meet " + PresentSelector,
	}, fb.actions)

	require.NoError(t, d.Close())
	assert.True(t, fb.closed)
}

func TestJoin_StepFailureContinues(t *testing.T) {
	fb := &fakeBrowser{clickErr: map[string]error{
		PermissionSelector: context.DeadlineExceeded,
		PresentSelector:    errors.New("no present button"),
	}}
	d := testDriver(t, fb)

	report, err := d.Join(context.Background())
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "grant media permissions", failed[0].Name)
	assert.Equal(t, "present board", failed[1].Name)
	assert.NotEmpty(t, failed[1].Fallback)
	assert.Contains(t, fb.actions, "tab board "+DefaultBoardURL)
}

func TestJoin_NavigationFails(t *testing.T) {
	fb := &fakeBrowser{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	d := testDriver(t, fb)

	_, err := d.Join(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open call")
	assert.Len(t, fb.actions, 2)
}

func TestJoin_LaunchFails(t *testing.T) {
	fb := &fakeBrowser{openErr: errors.New("chrome not found")}
	d := testDriver(t, fb)

	_, err := d.Join(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"open"}, fb.actions)
}

func TestJoin_Cancelled(t *testing.T) {
	fb := &fakeBrowser{}
	d := testDriver(t, fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Join(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShareTitle(t *testing.T) {
	assert.Equal(t, "localhost", shareTitle(Config{BoardURL: "http://localhost:3001"}))
	assert.Equal(t, "Board", shareTitle(Config{BoardURL: "http://localhost:3001", ShareTabTitle: "Board"}))
}
