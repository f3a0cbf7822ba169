package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-medforce/pkg/audit"
	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/tools"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

// timeline is the shared ordering of board requests and session sends.
type timeline struct {
	mu      sync.Mutex
	entries []string
	bodies  map[string][]map[string]any
}

func (tl *timeline) add(entry string, body map[string]any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.entries = append(tl.entries, entry)
	if body != nil {
		if tl.bodies == nil {
			tl.bodies = make(map[string][]map[string]any)
		}
		tl.bodies[entry] = append(tl.bodies[entry], body)
	}
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.entries...)
}

func (tl *timeline) body(entry string, i int) map[string]any {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.bodies[entry][i]
}

func indexOf(entries []string, want string, from int) int {
	for i := from; i < len(entries); i++ {
		if entries[i] == want {
			return i
		}
	}
	return -1
}

type fakeRetriever struct {
	knowledge, canvas string
	queries           []string
}

func (f *fakeRetriever) Query(ctx context.Context, text string, k int) string {
	f.queries = append(f.queries, "kb:"+text)
	return f.knowledge
}

func (f *fakeRetriever) QuerySnapshot(ctx context.Context, text string, k int) string {
	f.queries = append(f.queries, "canvas:"+text)
	return f.canvas
}

type harness struct {
	d        *Dispatcher
	sess     *voice.MockSession
	tl       *timeline
	recorder *audit.FileRecorder
	rt       *fakeRetriever
	delays   []time.Duration
	failures map[string]int
}

// newHarness wires a dispatcher to a fake board. failures maps a board
// path to the status code it should return.
func newHarness(t *testing.T, failures map[string]int, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{tl: &timeline{}, failures: failures, rt: &fakeRetriever{}}
	mux := http.NewServeMux()
	handle := func(path string, reply any) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			h.tl.add(path, body)
			if code, ok := h.failures[path]; ok {
				http.Error(w, "unavailable", code)
				return
			}
			if reply == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(reply)
		})
	}
	handle(board.PathFocus, nil)
	handle(board.PathTodos, map[string]any{"id": "todo-7"})
	handle(board.PathLabResults, map[string]any{"id": "lab-3"})
	handle(board.PathAgentAnswer, map[string]any{"answer": "Biopsy shows no malignancy."})
	handle(board.PathResults, map[string]any{"id": "result-9"})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := board.New(board.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h.recorder = audit.NewFileRecorder(t.TempDir(), nil)
	h.d, err = New(cfg, Deps{Board: client, Retriever: h.rt, Recorder: h.recorder})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.d.Close(context.Background()) })

	var mu sync.Mutex
	h.d.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		h.delays = append(h.delays, d)
		mu.Unlock()
		return ctx.Err()
	}

	h.sess = voice.NewMockSession()
	h.sess.OnSend = func(kind string) { h.tl.add("session:"+kind, nil) }
	return h
}

func (h *harness) texts() []string {
	_, texts, _, _ := h.sess.Snapshot()
	return texts
}

func result(t *testing.T, r voice.ToolResult) map[string]any {
	t.Helper()
	inner, ok := r.Response["result"].(map[string]any)
	require.True(t, ok, "response has no result object: %v", r.Response)
	return inner
}

func TestDispatch_Navigate(t *testing.T) {
	h := newHarness(t, nil, nil)

	batch, err := h.d.Dispatch(context.Background(), h.sess, []voice.ToolCall{
		{ID: "call-1", Name: tools.NavigateCanvas, Args: map[string]any{"objectId": "obj-42"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{board.PathFocus, "session:tool_response", "session:text"}, h.tl.snapshot())
	assert.Equal(t, "obj-42", h.tl.body(board.PathFocus, 0)["objectId"])

	require.Len(t, batch.Outcomes, 1)
	res := batch.Outcomes[0].Result
	assert.Equal(t, "call-1", res.ID)
	inner := result(t, res)
	assert.Equal(t, StatusNavigationCompleted, inner["status"])
	for _, key := range []string{"message", "explanation", "action"} {
		assert.NotContains(t, inner[key], "obj-42", key)
	}
	assert.Empty(t, batch.Background)
	assert.Equal(t, []string{DefaultKeepAliveText}, h.texts())
}

func TestDispatch_TaskSchedulesAnalysisAfterResult(t *testing.T) {
	h := newHarness(t, nil, nil)

	batch, err := h.d.Dispatch(context.Background(), h.sess, []voice.ToolCall{{
		ID:   "call-2",
		Name: tools.GenerateTask,
		Args: map[string]any{
			"title":   "Review biopsy",
			"content": "Check the liver biopsy report",
			"items":   []any{"a", "b"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, batch.Background, 1)
	require.NoError(t, batch.Background[0].Wait(context.Background()))

	entries := h.tl.snapshot()
	create := indexOf(entries, board.PathTodos, 0)
	focus := indexOf(entries, board.PathFocus, 0)
	sent := indexOf(entries, "session:tool_response", 0)
	answer := indexOf(entries, board.PathAgentAnswer, 0)
	posted := indexOf(entries, board.PathResults, 0)

	require.True(t, create >= 0 && focus > create, "create then focus: %v", entries)
	assert.Greater(t, sent, focus, "result sent after both board calls: %v", entries)
	assert.Greater(t, answer, sent, "analysis starts after the result: %v", entries)
	assert.Greater(t, posted, answer)
	assert.GreaterOrEqual(t, indexOf(entries, board.PathFocus, posted), 0, "result card focused")

	todo := h.tl.body(board.PathTodos, 0)
	assert.Equal(t, board.TaskArea, todo["area"])
	assert.Equal(t, "todo-7", h.tl.body(board.PathFocus, 0)["objectId"])
	assert.Equal(t, "result-9", h.tl.body(board.PathFocus, 1)["objectId"])

	inner := result(t, batch.Outcomes[0].Result)
	assert.Equal(t, "Task created successfully", inner["status"])
	assert.Equal(t, "background", inner["execution_mode"])

	var notice string
	for _, text := range h.texts() {
		if strings.HasPrefix(text, backgroundCompletedPrefix) {
			notice = text
		}
	}
	assert.Contains(t, notice, "Review biopsy")
	assert.Contains(t, notice, "no malignancy")

	assert.Contains(t, h.delays, DefaultTaskDelay)
	assert.Contains(t, h.delays, DefaultAnalysisDelay)
}

func TestDispatch_OneResultPerCall(t *testing.T) {
	h := newHarness(t, nil, func(c *Config) { c.KeepAlive = false })
	h.rt.knowledge = "ALT 88 U/L"

	calls := []voice.ToolCall{
		{ID: "a", Name: tools.QueryKnowledgeBase, Args: map[string]any{"query": "liver enzymes"}},
		{ID: "b", Name: tools.GetCanvasObjects, Args: map[string]any{"query": "latest labs"}},
		{ID: "c", Name: tools.NavigateCanvas, Args: map[string]any{"objectId": "obj-1"}},
		{ID: "d", Name: tools.GenerateLabResult, Args: map[string]any{
			"parameter": "ALT",
			"value":     "88",
			"unit":      "U/L",
			"status":    "high",
			"range":     map[string]any{"min": 7, "max": 56, "warningMin": 5, "warningMax": 70},
			"trend":     "rising",
		}},
	}
	_, err := h.d.Dispatch(context.Background(), h.sess, calls)
	require.NoError(t, err)

	_, texts, responses, _ := h.sess.Snapshot()
	require.Len(t, responses, 1, "one tool response message per batch")
	require.Len(t, responses[0], len(calls))
	for i, call := range calls {
		assert.Equal(t, call.ID, responses[0][i].ID)
		assert.Equal(t, call.Name, responses[0][i].Name)
		assert.NotContains(t, responses[0][i].Response, "error")
	}
	assert.Empty(t, texts)

	kb := result(t, responses[0][0])
	assert.Equal(t, "ALT 88 U/L", kb["medical_data"])
	canvas := result(t, responses[0][1])
	assert.Equal(t, NoCanvasData, canvas["canvas_data"])
	lab := result(t, responses[0][3])
	assert.Equal(t, "high", lab["status_level"])

	assert.Equal(t, []string{"kb:liver enzymes", "canvas:latest labs"}, h.rt.queries)
	assert.Contains(t, h.delays, DefaultLabDelay)
	assert.Equal(t, "lab-3", h.tl.body(board.PathFocus, 1)["objectId"])

	recs, err := h.recorder.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recs, len(calls))
	assert.Empty(t, h.d.States())
	assert.Equal(t, int64(len(calls)), h.d.Stats().Calls)
}

func TestDispatch_BoardFailure(t *testing.T) {
	h := newHarness(t, map[string]int{board.PathFocus: http.StatusNotFound}, nil)

	batch, err := h.d.Dispatch(context.Background(), h.sess, []voice.ToolCall{
		{ID: "call-3", Name: tools.NavigateCanvas, Args: map[string]any{"objectId": "missing"}},
	})
	require.NoError(t, err)

	o := batch.Outcomes[0]
	require.True(t, o.Failed())
	assert.Equal(t, "call-3", o.Result.ID)
	assert.Contains(t, o.Result.Response, "error")
	inner := result(t, o.Result)
	assert.Equal(t, StatusFailed, inner["status"])
	assert.NotContains(t, inner["message"], "404")

	texts := h.texts()
	require.Len(t, texts, 2)
	assert.True(t, strings.HasPrefix(texts[0], failureNudgePrefix))
	assert.Equal(t, DefaultKeepAliveText, texts[1])

	recs, err := h.recorder.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, audit.StatusFailed, recs[0].Status)
	assert.Equal(t, int64(1), h.d.Stats().Failures)
}

func TestDispatch_InvalidArguments(t *testing.T) {
	h := newHarness(t, nil, func(c *Config) { c.KeepAlive = false })

	batch, err := h.d.Dispatch(context.Background(), h.sess, []voice.ToolCall{
		{ID: "x", Name: tools.NavigateCanvas, Args: map[string]any{}},
		{ID: "y", Name: "teleport", Args: map[string]any{"to": "mars"}},
	})
	require.NoError(t, err)

	require.Len(t, batch.Outcomes, 2)
	assert.ErrorIs(t, batch.Outcomes[0].Err, tools.ErrInvalidToolArguments)
	assert.ErrorIs(t, batch.Outcomes[1].Err, tools.ErrUnknownTool)
	assert.Equal(t, "y", batch.Outcomes[1].Result.ID)

	for _, e := range h.tl.snapshot() {
		assert.True(t, strings.HasPrefix(e, "session:"), "no board call expected, got %s", e)
	}
	assert.Len(t, h.texts(), 2)
}

func TestDispatch_BackgroundFailureNotifies(t *testing.T) {
	h := newHarness(t, map[string]int{board.PathAgentAnswer: http.StatusInternalServerError}, func(c *Config) { c.KeepAlive = false })

	batch, err := h.d.Dispatch(context.Background(), h.sess, []voice.ToolCall{{
		ID:   "t",
		Name: tools.GenerateTask,
		Args: map[string]any{"title": "Follow up", "content": "Repeat LFTs", "items": []any{"order"}},
	}})
	require.NoError(t, err)
	require.Len(t, batch.Background, 1)

	assert.Error(t, batch.Background[0].Wait(context.Background()))
	texts := h.texts()
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], backgroundErrorPrefix), texts[0])
	assert.Equal(t, int64(1), h.d.Stats().BackgroundFailures)
}

func TestDispatch_SendFailureSkipsBackground(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.sess.FailSends(voice.ErrSessionClosed)

	batch, err := h.d.Dispatch(context.Background(), h.sess, []voice.ToolCall{{
		ID:   "t",
		Name: tools.GenerateTask,
		Args: map[string]any{"title": "T", "content": "C", "items": []any{"i"}},
	}})
	assert.ErrorIs(t, err, voice.ErrSessionClosed)
	assert.Empty(t, batch.Background)
	assert.Equal(t, -1, indexOf(h.tl.snapshot(), board.PathAgentAnswer, 0))
}

func TestDispatch_Empty(t *testing.T) {
	h := newHarness(t, nil, nil)
	batch, err := h.d.Dispatch(context.Background(), h.sess, nil)
	require.NoError(t, err)
	assert.Empty(t, batch.Outcomes)
	assert.Empty(t, h.tl.snapshot())
}

func TestExecute(t *testing.T) {
	h := newHarness(t, nil, nil)

	var observed []Outcome
	h.d.Observe(func(o Outcome) { observed = append(observed, o) })

	o := h.d.Execute(context.Background(), voice.ToolCall{
		ID:   "manual-1",
		Name: tools.GenerateTask,
		Args: map[string]any{"title": "Console task", "content": "From the console", "items": []any{"x"}},
	})
	require.False(t, o.Failed(), o.Error)
	require.NotNil(t, o.Background)
	require.NoError(t, o.Background.Wait(context.Background()))

	assert.Len(t, observed, 1)
	_, texts, responses, _ := h.sess.Snapshot()
	assert.Empty(t, texts)
	assert.Empty(t, responses)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.TopK = 0
	_, err = New(cfg, Deps{Board: &board.Client{}})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero delays", func(c *Config) { c.LabDelay, c.TaskDelay, c.AnalysisDelay = 0, 0, 0 }, false},
		{"negative delay", func(c *Config) { c.TaskDelay = -time.Second }, true},
		{"no workers", func(c *Config) { c.Workers = 0 }, true},
		{"keep-alive without text", func(c *Config) { c.KeepAliveText = "" }, true},
		{"keep-alive disabled without text", func(c *Config) { c.KeepAlive, c.KeepAliveText = false, "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
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

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_external_calls", StateAwaitingExternalCalls.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, st := range []State{StateIdle, StateDispatched, StateAwaitingExternalCalls, StateResultSent} {
		text, err := st.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, st, got)
	}
	var s State
	assert.Error(t, s.UnmarshalText([]byte("nope")))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		answer board.AgentAnswer
		want   string
	}{
		{"summary first", board.AgentAnswer{"summary": " ALT raised ", "answer": "other"}, "ALT raised"},
		{"falls back to answer", board.AgentAnswer{"summary": "  ", "answer": "DILI likely"}, "DILI likely"},
		{"no text", board.AgentAnswer{"score": 3}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.answer))
		})
	}
}

func TestSummarize_TruncatesOnRuneBoundary(t *testing.T) {
	// One ASCII byte shifts every three-byte rune across the byte limit.
	long := "a" + strings.Repeat("µg/L ↑ ", maxSummary)

	got := summarize(board.AgentAnswer{"summary": long})

	require.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got))
	assert.NotContains(t, got, string(utf8.RuneError))
	assert.Equal(t, maxSummary, utf8.RuneCountInString(strings.TrimSuffix(got, "...")))
}
