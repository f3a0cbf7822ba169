package medforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-medforce/pkg/audioio"
	"github.com/teslashibe/go-medforce/pkg/audit"
	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/bridge"
	"github.com/teslashibe/go-medforce/pkg/dispatch"
	"github.com/teslashibe/go-medforce/pkg/retrieval"
	"github.com/teslashibe/go-medforce/pkg/tools"
	"github.com/teslashibe/go-medforce/pkg/voice"
	"github.com/teslashibe/go-medforce/pkg/web"
)

// DialFunc opens a live session.
type DialFunc func(ctx context.Context, cfg voice.Config, logger *slog.Logger) (voice.Session, error)

// DialGemini opens a Gemini Live session.
func DialGemini(ctx context.Context, cfg voice.Config, logger *slog.Logger) (voice.Session, error) {
	return voice.Dial(ctx, cfg, logger)
}

// App is the bridge orchestrator. It owns every component and their
// lifecycle.
type App struct {
	cfg    Config
	logger *slog.Logger

	board      *board.Client
	store      *retrieval.Store
	retriever  *retrieval.Retriever
	audit      *audit.FileRecorder
	dispatcher *dispatch.Dispatcher
	console    *web.Server

	session voice.Session
	bridge  atomic.Pointer[bridge.Bridge]
	metrics atomic.Pointer[voice.MetricsCollector]

	dial      DialFunc
	newSource func(audioio.Config, *slog.Logger) (audioio.Source, error)
	newSink   func(audioio.Config, *slog.Logger) (audioio.Sink, error)
}

// New validates cfg and builds the offline components. Nothing touches the
// network until Run.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:       cfg,
		dial:      DialGemini,
		newSource: audioio.NewSource,
		newSink:   audioio.NewSink,
	}

	if cfg.Console.Enabled {
		a.console = web.NewServer(web.Options{
			Addr:           cfg.Console.Addr,
			BridgeStats:    a.bridgeStats,
			SessionMetrics: a.sessionMetrics,
			Logger:         logger,
		})
		logger = slog.New(web.NewLogHandler(logger.Handler(), a.console))
	}
	a.logger = logger

	if err := a.init(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error

	a.board, err = board.New(a.cfg.Board, a.logger)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}

	a.store, err = retrieval.OpenPersistent(a.cfg.Retrieval.PersistDir)
	if err != nil {
		a.logger.Warn("knowledge base unavailable, queries will return nothing", "dir", a.cfg.Retrieval.PersistDir, "error", err)
		a.store = nil
	}
	embedder, err := retrieval.NewEmbedder(ctx, a.cfg.Retrieval, a.cfg.GoogleAPIKey, a.cfg.OpenAIKey)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	a.retriever = retrieval.New(a.cfg.Retrieval, a.store, embedder, a.board, a.logger.With("component", "retrieval"))

	a.audit = audit.NewFileRecorder(a.cfg.AuditDir, a.logger)

	a.dispatcher, err = dispatch.New(a.cfg.Dispatch, dispatch.Deps{
		Board:     a.board,
		Retriever: a.retriever,
		Recorder:  a.audit,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	if a.console != nil {
		a.console.SetDispatcher(a.dispatcher)
		a.console.SetAudit(a.audit)
	}
	return nil
}

func (a *App) bridgeStats() bridge.Stats {
	if b := a.bridge.Load(); b != nil {
		return b.Stats()
	}
	return bridge.Stats{}
}

// metricsSource is implemented by sessions that measure latency.
type metricsSource interface {
	Metrics() *voice.MetricsCollector
}

func (a *App) sessionMetrics() (voice.Metrics, bool) {
	if m := a.metrics.Load(); m != nil {
		return m.Current(), true
	}
	return voice.Metrics{}, false
}

// Dispatcher returns the tool dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Retriever returns the retrieval helper.
func (a *App) Retriever() *retrieval.Retriever {
	return a.retriever
}

// Run connects the session and runs the bridge, plus the console when
// enabled, until ctx is done or the session ends.
func (a *App) Run(ctx context.Context) error {
	vcfg := a.cfg.Voice.
		WithSystemPrompt(tools.SystemPrompt).
		WithTools(tools.Declarations())
	vcfg.APIKey = a.cfg.GoogleAPIKey

	session, err := a.dial(ctx, vcfg, a.logger)
	if err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	a.session = session
	if ms, ok := session.(metricsSource); ok {
		a.metrics.Store(ms.Metrics())
	}
	a.logger.Info("session connected", "model", vcfg.Model, "voice", vcfg.Voice)

	source, err := a.newSource(a.cfg.Input, a.logger)
	if err != nil {
		return fmt.Errorf("capture device: %w", err)
	}
	sink, err := a.newSink(a.cfg.Output, a.logger)
	if err != nil {
		_ = source.Close()
		return fmt.Errorf("playback device: %w", err)
	}

	bcfg := a.cfg.Bridge
	bcfg.InputSampleRate = vcfg.InputSampleRate
	bcfg.OutputSampleRate = vcfg.OutputSampleRate
	br, err := bridge.New(bcfg, session, source, sink, a.dispatcher, a.logger)
	if err != nil {
		return err
	}
	br.OnToolCall = func(calls []voice.ToolCall, batch dispatch.Batch) {
		a.logger.Info("tool batch answered", "calls", len(calls), "background", len(batch.Background))
	}
	if a.console != nil {
		br.OnTranscript = a.console.RecordTranscript
		a.console.UpdateState(func(st *web.State) {
			st.SessionConnected = true
			st.Model = vcfg.Model
			st.Voice = vcfg.Voice
			st.BoardURL = a.board.BaseURL()
		})
	}
	a.bridge.Store(br)

	g, gctx := errgroup.WithContext(ctx)
	consoleCtx, stopConsole := context.WithCancel(gctx)
	defer stopConsole()

	g.Go(func() error {
		defer stopConsole()
		return br.Run(gctx)
	})
	if a.console != nil {
		g.Go(func() error {
			if err := a.console.Start(consoleCtx); err != nil {
				a.logger.Error("console stopped", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if m := a.metrics.Load(); m != nil {
		cur := m.Current()
		a.logger.Info("session metrics",
			"latency", cur.FormatLatency(),
			"avg_first_audio", m.AverageFirstAudio(),
			"turns", cur.Turns,
			"tool_calls", cur.ToolCalls,
			"interruptions", cur.Interruptions,
		)
	}
	if a.console != nil {
		a.console.UpdateState(func(st *web.State) { st.SessionConnected = false })
	}
	return err
}

// Shutdown waits for background analysis and closes the session.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session: %w", err))
		}
	}
	return errors.Join(errs...)
}
