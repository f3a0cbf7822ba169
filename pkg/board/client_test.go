package board

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
	Auth   string
}

type fakeBoard struct {
	mu    sync.Mutex
	calls []recorded
}

func (f *fakeBoard) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.calls = append(f.calls, recorded{r.Method, r.URL.Path, body, r.Header.Get("Authorization")})
		f.mu.Unlock()
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "tok-1", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc(PathItems, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, []map[string]any{
			{"id": "obj-1", "type": "note", "content": "Patient summary"},
			{"id": 7, "kind": "lab"},
		})
	})
	mux.HandleFunc(PathTodos, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": "todo-1"})
	})
	mux.HandleFunc(PathLabResults, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": 99})
	})
	mux.HandleFunc(PathFocus, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(PathAgentAnswer, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"answer": "ALT elevated", "todoId": "todo-1"})
	})
	mux.HandleFunc(PathResults, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		http.Error(w, "db down", http.StatusInternalServerError)
	})
	return mux
}

func newTestClient(t *testing.T, mutate func(*Config)) (*Client, *fakeBoard) {
	t.Helper()
	fb := &fakeBoard{}
	srv := httptest.NewServer(fb.handler(t))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	if mutate != nil {
		mutate(&cfg)
		if cfg.TokenURL == "/oauth/token" {
			cfg.TokenURL = srv.URL + cfg.TokenURL
		}
	}
	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c, fb
}

func TestListItems(t *testing.T) {
	c, _ := newTestClient(t, nil)

	items, err := c.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "obj-1", items[0].ID())
	assert.Equal(t, "note", items[0].Kind())
	assert.Equal(t, "7", items[1].ID())
	assert.Equal(t, "lab", items[1].Kind())
}

func TestCreateTodo_DefaultArea(t *testing.T) {
	c, fb := newTestClient(t, nil)

	created, err := c.CreateTodo(context.Background(), Todo{Title: "Review biopsy", Items: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "todo-1", created.ID)

	require.Len(t, fb.calls, 1)
	assert.Equal(t, http.MethodPost, fb.calls[0].Method)
	assert.Equal(t, TaskArea, fb.calls[0].Body["area"])
}

func TestCreateLab_NumericID(t *testing.T) {
	c, _ := newTestClient(t, nil)

	created, err := c.CreateLab(context.Background(), Lab{Parameter: "ALT", Value: "182"})
	require.NoError(t, err)
	assert.Equal(t, "99", created.ID)
}

func TestFocus(t *testing.T) {
	c, fb := newTestClient(t, nil)

	require.NoError(t, c.Focus(context.Background(), "obj-42"))
	assert.Equal(t, "obj-42", fb.calls[0].Body["objectId"])

	assert.ErrorIs(t, c.Focus(context.Background(), ""), ErrMissingID)
}

func TestAgentAnswerAndResultError(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	answer, err := c.AgentAnswer(ctx, Todo{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ALT elevated", answer["answer"])

	_, err = c.CreateResult(ctx, answer)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, PathResults, apiErr.Path)
	assert.Contains(t, apiErr.Message, "db down")
}

func TestClientCredentials(t *testing.T) {
	c, fb := newTestClient(t, func(cfg *Config) {
		cfg.ClientID = "medforce"
		cfg.ClientSecret = "s3cret"
		cfg.TokenURL = "/oauth/token"
	})

	_, err := c.ListItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", fb.calls[0].Auth)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ClientID = "x"
	assert.Error(t, cfg.Validate())
}
