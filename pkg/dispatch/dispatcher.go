package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-medforce/pkg/audit"
	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/tools"
	"github.com/teslashibe/go-medforce/pkg/voice"
	"github.com/teslashibe/go-medforce/pkg/worker"
)

// Board is the subset of the board client the dispatcher drives.
type Board interface {
	Focus(ctx context.Context, objectID string) error
	CreateTodo(ctx context.Context, todo board.Todo) (board.Created, error)
	CreateLab(ctx context.Context, lab board.Lab) (board.Created, error)
	AgentAnswer(ctx context.Context, todo board.Todo) (board.AgentAnswer, error)
	CreateResult(ctx context.Context, answer board.AgentAnswer) (board.Created, error)
}

// Retriever answers knowledge-base and canvas queries. Both return "" when
// nothing is found or retrieval failed.
type Retriever interface {
	Query(ctx context.Context, text string, k int) string
	QuerySnapshot(ctx context.Context, text string, k int) string
}

// Sender is the write half of a live session.
type Sender interface {
	SendText(ctx context.Context, text string) error
	SendToolResponse(ctx context.Context, results []voice.ToolResult) error
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Board     Board
	Retriever Retriever

	// Recorder receives one record per call. Nil disables the trail.
	Recorder audit.Recorder

	// Pool runs background analysis. Nil creates a pool owned by the
	// dispatcher and closed by Close.
	Pool *worker.Pool

	Logger *slog.Logger
}

// Outcome is the result of executing one call.
type Outcome struct {
	Call     voice.ToolCall   `json:"call"`
	Result   voice.ToolResult `json:"result"`
	Duration time.Duration    `json:"duration"`
	Err      error            `json:"-"`
	Error    string           `json:"error,omitempty"`

	// Background is set when the call scheduled follow-up work.
	Background *worker.Future `json:"-"`

	followUp *board.Todo
}

// Failed reports whether the call produced an error-shaped result.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Batch is the result of Dispatch.
type Batch struct {
	Outcomes []Outcome

	// Background holds one future per scheduled analysis job. Callers may
	// wait on them or abandon them.
	Background []*worker.Future
}

// Results returns the tool results in call order.
func (b Batch) Results() []voice.ToolResult {
	results := make([]voice.ToolResult, len(b.Outcomes))
	for i, o := range b.Outcomes {
		results[i] = o.Result
	}
	return results
}

// Stats reports dispatcher counters.
type Stats struct {
	Batches            int64 `json:"batches"`
	Calls              int64 `json:"calls"`
	Failures           int64 `json:"failures"`
	Background         int64 `json:"background"`
	BackgroundFailures int64 `json:"background_failures"`
}

// Dispatcher maps tool calls to board and retrieval operations.
type Dispatcher struct {
	cfg       Config
	board     Board
	retriever Retriever
	recorder  audit.Recorder
	pool      *worker.Pool
	ownsPool  bool
	logger    *slog.Logger

	// sleep waits between choreography steps.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	states   map[string]State
	stats    Stats
	observer func(Outcome)
}

// New creates a Dispatcher.
func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: invalid config: %w", err)
	}
	if deps.Board == nil {
		return nil, errors.New("dispatch: board client is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = audit.Nop{}
	}

	d := &Dispatcher{
		cfg:       cfg,
		board:     deps.Board,
		retriever: deps.Retriever,
		recorder:  recorder,
		pool:      deps.Pool,
		logger:    logger.With("component", "dispatch"),
		sleep:     sleepCtx,
		states:    make(map[string]State),
	}
	if d.pool == nil {
		d.pool = worker.New(cfg.Workers, cfg.QueueSize, logger.With("component", "worker"))
		d.ownsPool = true
	}
	return d, nil
}

// Observe registers fn to be called after every executed call.
func (d *Dispatcher) Observe(fn func(Outcome)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = fn
}

// Dispatch executes calls in order, sends all results on sess in one
// message, and only then schedules background analysis. Failed calls are
// followed by a status nudge, and the batch by the keep-alive text when
// enabled. The returned error is non-nil only when the results could not
// be sent.
func (d *Dispatcher) Dispatch(ctx context.Context, sess Sender, calls []voice.ToolCall) (Batch, error) {
	var batch Batch
	if len(calls) == 0 {
		return batch, nil
	}

	d.mu.Lock()
	d.stats.Batches++
	d.mu.Unlock()

	batch.Outcomes = make([]Outcome, len(calls))
	for i, call := range calls {
		batch.Outcomes[i] = d.execute(ctx, call)
	}

	if err := sess.SendToolResponse(ctx, batch.Results()); err != nil {
		for _, o := range batch.Outcomes {
			d.setState(o.Call.ID, StateIdle)
		}
		return batch, fmt.Errorf("dispatch: send tool response: %w", err)
	}
	for _, o := range batch.Outcomes {
		d.setState(o.Call.ID, StateResultSent)
	}
	d.logger.Info("tool results sent", "count", len(batch.Outcomes))

	for i := range batch.Outcomes {
		o := &batch.Outcomes[i]
		if o.followUp == nil {
			continue
		}
		if f := d.scheduleAnalysis(ctx, *o.followUp, sess); f != nil {
			o.Background = f
			batch.Background = append(batch.Background, f)
		}
	}

	for _, o := range batch.Outcomes {
		d.setState(o.Call.ID, StateIdle)
		if !o.Failed() {
			continue
		}
		if err := sess.SendText(ctx, failureNudge(o.Call.Name)); err != nil {
			d.logger.Warn("failure nudge not sent", "tool", o.Call.Name, "error", err)
		}
	}

	if d.cfg.KeepAlive {
		if err := d.sleep(ctx, d.cfg.KeepAliveDelay); err != nil {
			return batch, nil
		}
		if err := sess.SendText(ctx, d.cfg.KeepAliveText); err != nil {
			d.logger.Warn("keep-alive not sent", "error", err)
		}
	}
	return batch, nil
}

// Execute runs one call outside a session, as the operator console does.
// Background analysis is still scheduled; its outcome is only logged.
func (d *Dispatcher) Execute(ctx context.Context, call voice.ToolCall) Outcome {
	o := d.execute(ctx, call)
	d.setState(call.ID, StateIdle)
	if o.followUp != nil {
		o.Background = d.scheduleAnalysis(ctx, *o.followUp, nil)
	}
	return o
}

func (d *Dispatcher) execute(ctx context.Context, call voice.ToolCall) Outcome {
	start := time.Now()
	logger := d.logger.With("tool", call.Name, "call_id", call.ID)

	d.setState(call.ID, StateDispatched)
	o := Outcome{Call: call}

	inv, err := tools.Parse(call)
	if err == nil {
		d.setState(call.ID, StateAwaitingExternalCalls)
		o.Result.Response, o.followUp, err = d.run(ctx, inv)
	}

	o.Result.ID = call.ID
	o.Result.Name = call.Name
	o.Duration = time.Since(start)
	if err != nil {
		o.Err = err
		o.Error = err.Error()
		o.Result.Response = errorResult(call.Name, err)
		logger.Warn("tool call failed", "error", err, "duration", o.Duration)
	} else {
		logger.Info("tool call completed", "duration", o.Duration)
	}

	d.record(ctx, o)

	d.mu.Lock()
	d.stats.Calls++
	if o.Failed() {
		d.stats.Failures++
	}
	observer := d.observer
	d.mu.Unlock()
	if observer != nil {
		observer(o)
	}
	return o
}

// run performs the external calls for inv.
func (d *Dispatcher) run(ctx context.Context, inv tools.Invocation) (map[string]any, *board.Todo, error) {
	switch v := inv.(type) {
	case tools.Navigate:
		if err := d.board.Focus(ctx, v.ObjectID); err != nil {
			return nil, nil, err
		}
		return navigateResult(), nil, nil

	case tools.CreateLabResult:
		created, err := d.board.CreateLab(ctx, board.Lab{
			Parameter: v.Parameter,
			Value:     v.Value,
			Unit:      v.Unit,
			Status:    v.Status,
			Range: board.LabRange{
				Min:        v.Range.Min,
				Max:        v.Range.Max,
				WarningMin: v.Range.WarningMin,
				WarningMax: v.Range.WarningMax,
			},
			Trend: v.Trend,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := d.createThenFocus(ctx, created, d.cfg.LabDelay); err != nil {
			return nil, nil, err
		}
		return labResult(v), nil, nil

	case tools.CreateTask:
		todo := board.Todo{Title: v.Title, Content: v.Content, Items: v.Items, Area: board.TaskArea}
		created, err := d.board.CreateTodo(ctx, todo)
		if err != nil {
			return nil, nil, err
		}
		if err := d.createThenFocus(ctx, created, d.cfg.TaskDelay); err != nil {
			return nil, nil, err
		}
		return taskResult(v), &todo, nil

	case tools.QueryKnowledge:
		return knowledgeResult(v.Query, d.query(ctx, v.Query, false)), nil, nil

	case tools.ListCanvasObjects:
		return canvasResult(v.Query, d.query(ctx, v.Query, true)), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, inv.ToolName())
}

func (d *Dispatcher) createThenFocus(ctx context.Context, created board.Created, delay time.Duration) error {
	if created.ID == "" {
		return board.ErrMissingID
	}
	if err := d.sleep(ctx, delay); err != nil {
		return err
	}
	return d.board.Focus(ctx, created.ID)
}

func (d *Dispatcher) query(ctx context.Context, text string, snapshot bool) string {
	if d.retriever == nil {
		d.logger.Warn("retrieval not configured", "query", text)
		return ""
	}
	if snapshot {
		return d.retriever.QuerySnapshot(ctx, text, d.cfg.TopK)
	}
	return d.retriever.Query(ctx, text, d.cfg.TopK)
}

// scheduleAnalysis queues the create-task follow-up. notify, when set,
// receives a completion or error notice.
func (d *Dispatcher) scheduleAnalysis(ctx context.Context, todo board.Todo, notify Sender) *worker.Future {
	job := worker.Job{
		Name: "analysis",
		Run: func(jobCtx context.Context) error {
			answer, err := d.analyse(jobCtx, todo)

			d.mu.Lock()
			if err != nil {
				d.stats.BackgroundFailures++
			}
			d.mu.Unlock()

			if notify != nil {
				text := backgroundCompleted(todo.Title, answer)
				if err != nil {
					text = backgroundFailed(err)
				}
				if sendErr := notify.SendText(jobCtx, text); sendErr != nil {
					d.logger.Warn("background notice not sent", "error", sendErr)
				}
			}
			return err
		},
	}

	f, err := d.pool.Submit(ctx, job)
	if err != nil {
		d.logger.Error("background analysis not scheduled", "title", todo.Title, "error", err)
		return nil
	}

	d.mu.Lock()
	d.stats.Background++
	d.mu.Unlock()
	d.logger.Info("background analysis scheduled", "title", todo.Title)
	return f
}

// analyse asks the analyst agent for an answer, posts it, and focuses it.
func (d *Dispatcher) analyse(ctx context.Context, todo board.Todo) (board.AgentAnswer, error) {
	answer, err := d.board.AgentAnswer(ctx, todo)
	if err != nil {
		return nil, fmt.Errorf("agent answer: %w", err)
	}
	if err := d.sleep(ctx, d.cfg.AnalysisDelay); err != nil {
		return answer, err
	}
	created, err := d.board.CreateResult(ctx, answer)
	if err != nil {
		return answer, fmt.Errorf("create result: %w", err)
	}
	if err := d.board.Focus(ctx, created.ID); err != nil {
		return answer, fmt.Errorf("focus result: %w", err)
	}
	d.logger.Info("background analysis completed", "title", todo.Title)
	return answer, nil
}

func (d *Dispatcher) record(ctx context.Context, o Outcome) {
	rec := audit.Record{
		CallID:    o.Call.ID,
		Tool:      o.Call.Name,
		Arguments: o.Call.Args,
		Status:    audit.StatusCompleted,
	}
	if o.Err != nil {
		rec.Status = audit.StatusFailed
		rec.Error = o.Err.Error()
	}
	if err := d.recorder.Record(ctx, rec); err != nil {
		d.logger.Warn("audit record not written", "call_id", o.Call.ID, "error", err)
	}
}

func (d *Dispatcher) setState(callID string, s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s == StateIdle {
		delete(d.states, callID)
		return
	}
	d.states[callID] = s
}

// States returns the state of every call currently in flight.
func (d *Dispatcher) States() map[string]State {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]State, len(d.states))
	for id, s := range d.states {
		out[id] = s
	}
	return out
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close waits for background jobs when the pool is owned by the dispatcher.
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.ownsPool {
		return nil
	}
	return d.pool.Close(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
