package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It plays back a scripted list of chunks, or generates silence or a sine
// wave when no script is given.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	closeCh chan struct{}

	script   []AudioChunk
	scripted bool
	pos      int

	readErr  error
	errAfter int

	paced bool

	chunksRead atomic.Int64
	bytesRead  atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithChunks scripts the chunks Read returns, in order. Once exhausted,
// Read blocks until the context is done or the source is closed.
func WithChunks(chunks ...AudioChunk) MockSourceOption {
	return func(m *MockSource) {
		m.script = chunks
		m.scripted = true
	}
}

// WithReadError makes Read fail with err after n successful reads.
func WithReadError(n int, err error) MockSourceOption {
	return func(m *MockSource) {
		m.errAfter = n
		m.readErr = err
	}
}

// WithRealtime paces generated chunks at the configured chunk duration.
func WithRealtime() MockSourceOption {
	return func(m *MockSource) {
		m.paced = true
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		closeCh:   make(chan struct{}),
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start marks the source as running.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"scripted", len(m.script),
		"frequency", m.frequency,
	)
	return nil
}

// Read returns the next scripted or generated chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	if m.closed || !m.running {
		m.mu.Unlock()
		return AudioChunk{}, io.EOF
	}
	if m.readErr != nil && int(m.chunksRead.Load()) >= m.errAfter {
		err := m.readErr
		m.mu.Unlock()
		return AudioChunk{}, err
	}

	if m.scripted {
		if m.pos < len(m.script) {
			chunk := m.script[m.pos]
			m.pos++
			m.mu.Unlock()
			m.record(chunk)
			return chunk, nil
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return AudioChunk{}, ctx.Err()
		case <-m.closeCh:
			return AudioChunk{}, io.EOF
		}
	}

	chunk := m.generateChunk()
	m.mu.Unlock()

	if m.paced {
		select {
		case <-ctx.Done():
			return AudioChunk{}, ctx.Err()
		case <-m.closeCh:
			return AudioChunk{}, io.EOF
		case <-time.After(m.cfg.ChunkDuration()):
		}
	} else if err := ctx.Err(); err != nil {
		return AudioChunk{}, err
	}

	m.record(chunk)
	return chunk, nil
}

func (m *MockSource) record(chunk AudioChunk) {
	m.chunksRead.Add(1)
	m.bytesRead.Add(int64(len(chunk.Data)))
}

// generateChunk builds one chunk of synthetic audio (must hold mu).
func (m *MockSource) generateChunk() AudioChunk {
	frames := m.cfg.ChunkFrames
	samples := make([]int16, frames*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < frames; i++ {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)

			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return NewChunk(SamplesToBytes(samples), m.cfg.SampleRate, m.cfg.Channels)
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Close releases resources. Blocked Reads return io.EOF.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.running = false
	close(m.closeCh)

	m.logger.Info("mock audio source closed")
	return nil
}

// Closed reports whether Close has been called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead: m.chunksRead.Load(),
		BytesRead:  m.bytesRead.Load(),
		Running:    running,
		Backend:    string(BackendMock),
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It records every chunk written and counts Clear calls.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	chunks  []AudioChunk

	writeErr   error
	writeDelay time.Duration

	chunksWritten atomic.Int64
	bytesWritten  atomic.Int64
	clears        atomic.Int64
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithWriteError makes every Write fail with err.
func WithWriteError(err error) MockSinkOption {
	return func(m *MockSink) {
		m.writeErr = err
	}
}

// WithWriteDelay makes each Write take d, like a device draining its buffer.
func WithWriteDelay(d time.Duration) MockSinkOption {
	return func(m *MockSink) {
		m.writeDelay = d
	}
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSink{
		cfg:    cfg,
		logger: logger,
		chunks: make([]AudioChunk, 0, 64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}

	m.running = true
	m.logger.Info("mock audio sink started")
	return nil
}

// Write records an audio chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	if m.writeDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.writeDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	m.chunks = append(m.chunks, chunk)
	m.chunksWritten.Add(1)
	m.bytesWritten.Add(int64(len(chunk.Data)))
	return nil
}

// Clear counts the call. Recorded chunks are kept for inspection.
func (m *MockSink) Clear() error {
	m.clears.Add(1)
	m.logger.Debug("mock audio sink cleared")
	return nil
}

// Chunks returns a copy of every chunk written so far.
func (m *MockSink) Chunks() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AudioChunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int {
	return int(m.clears.Load())
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return string(BackendMock)
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.running = false
	m.logger.Info("mock audio sink closed")
	return nil
}

// Closed reports whether Close has been called.
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten: m.chunksWritten.Load(),
		BytesWritten:  m.bytesWritten.Load(),
		Clears:        m.clears.Load(),
		Running:       running,
		Backend:       string(BackendMock),
	}
}

var _ SinkWithStats = (*MockSink)(nil)
