// Package bridge moves audio between local devices and a live session.
//
// Four tasks run under one supervising scope:
//
//	capture  -> outbound queue (bounded) -> send     -> session
//	session  -> receive -> inbound queue (unbounded) -> playback
//
// The receive task also hands tool calls to the dispatcher. While a batch
// is being dispatched the send task holds back microphone audio, so the
// results always reach the session before the next frame.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-medforce/pkg/audioio"
	"github.com/teslashibe/go-medforce/pkg/dispatch"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

// DefaultOutboundQueue is the capture backlog before the producer blocks.
const DefaultOutboundQueue = 10

// Config holds bridge settings.
type Config struct {
	// OutboundQueue bounds captured chunks waiting to be sent.
	OutboundQueue int `yaml:"outbound_queue" toml:"outbound_queue" json:"outbound_queue"`

	// InputSampleRate is the rate the session expects. Captured audio in
	// another rate or channel layout is converted to mono at this rate.
	InputSampleRate int `yaml:"-" toml:"-" json:"-"`

	// OutputSampleRate is the rate of audio the session produces.
	OutputSampleRate int `yaml:"-" toml:"-" json:"-"`
}

// DefaultConfig returns bridge defaults matching the live session rates.
func DefaultConfig() Config {
	return Config{
		OutboundQueue:    DefaultOutboundQueue,
		InputSampleRate:  audioio.CaptureSampleRate,
		OutputSampleRate: audioio.PlaybackSampleRate,
	}
}

// Dispatcher executes a batch of tool calls and answers them on sess.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess dispatch.Sender, calls []voice.ToolCall) (dispatch.Batch, error)
}

// Stats reports bridge counters.
type Stats struct {
	ChunksCaptured  int64 `json:"chunks_captured"`
	ChunksSent      int64 `json:"chunks_sent"`
	ChunksReceived  int64 `json:"chunks_received"`
	ChunksPlayed    int64 `json:"chunks_played"`
	ChunksDrained   int64 `json:"chunks_drained"`
	ToolBatches     int64 `json:"tool_batches"`
	Turns           int64 `json:"turns"`
	Interruptions   int64 `json:"interruptions"`
	CaptureRunning  bool  `json:"capture_running"`
	PlaybackRunning bool  `json:"playback_running"`
}

// Bridge connects a Source and Sink to a Session.
type Bridge struct {
	cfg        Config
	session    voice.Session
	source     audioio.Source
	sink       audioio.Sink
	dispatcher Dispatcher
	logger     *slog.Logger

	outbound chan audioio.AudioChunk
	inbound  *AudioQueue

	// toolGate is held for writing while a tool batch is dispatched and
	// for reading around each audio send.
	toolGate sync.RWMutex

	// OnTranscript is called with each text part the model produces.
	OnTranscript func(text string)

	// OnToolCall is called after each dispatched batch.
	OnToolCall func(calls []voice.ToolCall, batch dispatch.Batch)

	captureUp  atomic.Bool
	playbackUp atomic.Bool

	captured, sent, received, played, drained atomic.Int64
	batches, turns, interruptions             atomic.Int64
}

// New creates a Bridge. dispatcher may be nil, in which case tool calls are
// answered with nothing and only logged.
func New(cfg Config, session voice.Session, source audioio.Source, sink audioio.Sink, dispatcher Dispatcher, logger *slog.Logger) (*Bridge, error) {
	if session == nil {
		return nil, errors.New("bridge: session is required")
	}
	if source == nil || sink == nil {
		return nil, errors.New("bridge: source and sink are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = DefaultOutboundQueue
	}
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = audioio.CaptureSampleRate
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = audioio.PlaybackSampleRate
	}

	return &Bridge{
		cfg:        cfg,
		session:    session,
		source:     source,
		sink:       sink,
		dispatcher: dispatcher,
		logger:     logger.With("component", "bridge"),
		outbound:   make(chan audioio.AudioChunk, cfg.OutboundQueue),
		inbound:    NewAudioQueue(),
	}, nil
}

// Run supervises the four tasks until ctx is cancelled or the session
// ends. Device failures stop only their own task. Both devices are closed
// before Run returns. When the session ends, the returned error wraps
// voice.ErrSessionClosed; cancellation of ctx returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.closeDevices()

	g, gctx := errgroup.WithContext(ctx)

	if err := b.source.Start(gctx); err != nil {
		b.logger.Error("capture device unavailable, no audio will be sent", "error", err)
	} else {
		b.captureUp.Store(true)
		g.Go(func() error { return b.capture(gctx) })
	}

	if err := b.sink.Start(gctx); err != nil {
		b.logger.Error("playback device unavailable, responses will not be heard", "error", err)
	} else {
		b.playbackUp.Store(true)
		g.Go(func() error { return b.playback(gctx) })
	}

	g.Go(func() error { return b.send(gctx) })
	g.Go(func() error { return b.receive(gctx) })

	// Unblock device reads and writes that ignore ctx.
	g.Go(func() error {
		<-gctx.Done()
		b.closeDevices()
		return nil
	})

	b.logger.Info("bridge running",
		"capture", b.source.Name(),
		"playback", b.sink.Name(),
		"outbound_queue", b.cfg.OutboundQueue,
	)

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.logger.Info("bridge stopped")
		return nil
	}
	if err != nil {
		b.logger.Warn("bridge stopped", "error", err)
	}
	return err
}

// capture reads the source and feeds the outbound queue in capture order.
func (b *Bridge) capture(ctx context.Context) error {
	defer b.captureUp.Store(false)
	for {
		chunk, err := b.source.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Error("capture stopped", "error", err)
			}
			return nil
		}
		chunk = audioio.Convert(chunk, b.cfg.InputSampleRate)
		b.captured.Add(1)

		select {
		case b.outbound <- chunk:
		case <-ctx.Done():
			return nil
		}
	}
}

// send forwards captured chunks to the session.
func (b *Bridge) send(ctx context.Context) error {
	for {
		var chunk audioio.AudioChunk
		select {
		case chunk = <-b.outbound:
		case <-ctx.Done():
			return ctx.Err()
		}

		b.toolGate.RLock()
		err := b.session.SendAudio(ctx, chunk.Data, chunk.MimeType())
		b.toolGate.RUnlock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge: send audio: %w", err)
		}
		b.sent.Add(1)
	}
}

// receive routes session events.
func (b *Bridge) receive(ctx context.Context) error {
	events := b.session.Events()
	for {
		var ev voice.Event
		var ok bool
		select {
		case ev, ok = <-events:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			return b.sessionEnded()
		}

		switch ev.Kind {
		case voice.EventAudio:
			b.received.Add(1)
			if b.playbackUp.Load() {
				b.inbound.Push(audioio.NewChunk(ev.Audio, b.cfg.OutputSampleRate, 1))
			}

		case voice.EventText:
			b.logger.Debug("model text", "text", ev.Text)
			if b.OnTranscript != nil {
				b.OnTranscript(ev.Text)
			}

		case voice.EventToolCall:
			if err := b.handleToolCall(ctx, ev.Calls); err != nil {
				return err
			}

		case voice.EventToolCallCancel:
			b.logger.Info("tool calls cancelled by session", "ids", ev.CancelledIDs)

		case voice.EventTurnComplete:
			b.turns.Add(1)
			b.endTurn(false)

		case voice.EventInterrupted:
			b.interruptions.Add(1)
			b.endTurn(true)
		}
	}
}

func (b *Bridge) handleToolCall(ctx context.Context, calls []voice.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}
	b.batches.Add(1)

	if b.dispatcher == nil {
		b.logger.Warn("tool call ignored, no dispatcher", "count", len(calls))
		return nil
	}

	b.toolGate.Lock()
	batch, err := b.dispatcher.Dispatch(ctx, b.session, calls)
	b.toolGate.Unlock()

	if b.OnToolCall != nil {
		b.OnToolCall(calls, batch)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("bridge: dispatch: %w", err)
	}
	return nil
}

// endTurn drops audio still queued from the finished turn so it is never
// played over the next one. An interruption also cuts what the device is
// already playing.
func (b *Bridge) endTurn(interrupted bool) {
	n := b.inbound.Drain()
	b.drained.Add(int64(n))
	if interrupted {
		if err := b.sink.Clear(); err != nil {
			b.logger.Warn("clear playback failed", "error", err)
		}
	}
	if n > 0 || interrupted {
		b.logger.Debug("turn ended", "drained", n, "interrupted", interrupted)
	}
}

func (b *Bridge) sessionEnded() error {
	err := b.session.Err()
	if err == nil {
		err = voice.ErrSessionClosed
	}
	if !errors.Is(err, voice.ErrSessionClosed) {
		err = fmt.Errorf("%w: %v", voice.ErrSessionClosed, err)
	}
	b.logger.Warn("session ended", "error", err)
	return err
}

// playback writes inbound audio to the sink.
func (b *Bridge) playback(ctx context.Context) error {
	defer b.playbackUp.Store(false)
	for {
		chunk, err := b.inbound.Pop(ctx)
		if err != nil {
			return nil
		}
		if err := b.sink.Write(ctx, chunk); err != nil {
			if ctx.Err() == nil {
				b.logger.Error("playback stopped", "error", err)
				b.inbound.Drain()
			}
			return nil
		}
		b.played.Add(1)
	}
}

func (b *Bridge) closeDevices() {
	if err := b.source.Close(); err != nil {
		b.logger.Warn("close capture device", "error", err)
	}
	if err := b.sink.Close(); err != nil {
		b.logger.Warn("close playback device", "error", err)
	}
}

// Drain empties the inbound queue.
func (b *Bridge) Drain() int {
	n := b.inbound.Drain()
	b.drained.Add(int64(n))
	return n
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		ChunksCaptured:  b.captured.Load(),
		ChunksSent:      b.sent.Load(),
		ChunksReceived:  b.received.Load(),
		ChunksPlayed:    b.played.Load(),
		ChunksDrained:   b.drained.Load(),
		ToolBatches:     b.batches.Load(),
		Turns:           b.turns.Load(),
		Interruptions:   b.interruptions.Load(),
		CaptureRunning:  b.captureUp.Load(),
		PlaybackRunning: b.playbackUp.Load(),
	}
}
