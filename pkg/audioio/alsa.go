package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// alsaSource captures audio by streaming raw PCM from an arecord process.
type alsaSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	device  string
	running bool
	closed  bool

	chunksRead atomic.Int64
	bytesRead  atomic.Int64
}

func newALSASource(cfg Config, logger *slog.Logger) *alsaSource {
	return &alsaSource{cfg: cfg, logger: logger}
}

func pcmArgs(device string, cfg Config) []string {
	return []string{
		"-q",
		"-D", device,
		"-f", "S16_LE",
		"-c", strconv.Itoa(cfg.Channels),
		"-r", strconv.Itoa(cfg.SampleRate),
		"-t", "raw",
	}
}

// Start resolves the capture device and launches arecord.
func (s *alsaSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	dev, err := ResolveDevice(ctx, Capture, s.cfg.Device)
	if err != nil {
		return fmt.Errorf("resolve capture device: %w", err)
	}

	cmd := exec.Command("arecord", pcmArgs(dev.Name, s.cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start arecord: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.device = dev.Name
	s.running = true

	s.logger.Info("capture started", "device", dev.Name, "description", dev.Description)
	return nil
}

// Read returns exactly one chunk of ChunkFrames frames.
func (s *alsaSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	stdout := s.stdout
	s.mu.Unlock()

	if stdout == nil {
		return AudioChunk{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return AudioChunk{}, err
	}

	buf := make([]byte, s.cfg.ChunkBytes())
	if _, err := io.ReadFull(stdout, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return AudioChunk{}, err
	}

	s.chunksRead.Add(1)
	s.bytesRead.Add(int64(len(buf)))
	return NewChunk(buf, s.cfg.SampleRate, s.cfg.Channels), nil
}

func (s *alsaSource) Config() Config { return s.cfg }

func (s *alsaSource) Name() string { return string(BackendALSA) }

// Close stops arecord. Pending Reads return io.EOF.
func (s *alsaSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.running = false
	stopProcess(s.cmd)
	s.cmd = nil
	s.stdout = nil
	s.logger.Info("capture stopped", "device", s.device)
	return nil
}

func (s *alsaSource) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SourceStats{
		ChunksRead: s.chunksRead.Load(),
		BytesRead:  s.bytesRead.Load(),
		Running:    s.running,
		Backend:    string(BackendALSA),
		Device:     s.device,
	}
}

var _ SourceWithStats = (*alsaSource)(nil)

// alsaSink plays audio by piping raw PCM into an aplay process.
// Clear kills the process so queued device audio stops at once; the next
// Write starts a fresh one.
type alsaSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	device  string
	running bool
	closed  bool

	chunksWritten atomic.Int64
	bytesWritten  atomic.Int64
	clears        atomic.Int64
}

func newALSASink(cfg Config, logger *slog.Logger) *alsaSink {
	return &alsaSink{cfg: cfg, logger: logger}
}

// Start resolves the playback device. aplay itself is launched lazily.
func (s *alsaSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	dev, err := ResolveDevice(ctx, Playback, s.cfg.Device)
	if err != nil {
		return fmt.Errorf("resolve playback device: %w", err)
	}
	s.device = dev.Name
	s.running = true

	s.logger.Info("playback started", "device", dev.Name, "description", dev.Description)
	return nil
}

// startLocked launches aplay (must hold mu).
func (s *alsaSink) startLocked() error {
	cmd := exec.Command("aplay", pcmArgs(s.device, s.cfg)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start aplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// Write sends one chunk to aplay, resampling to the device rate first.
func (s *alsaSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := chunk.Data
	if chunk.SampleRate != 0 && chunk.SampleRate != s.cfg.SampleRate {
		data = ResampleBytes(data, chunk.SampleRate, s.cfg.SampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	if s.stdin == nil {
		if err := s.startLocked(); err != nil {
			return err
		}
	}

	if _, err := s.stdin.Write(data); err != nil {
		stopProcess(s.cmd)
		s.cmd = nil
		s.stdin = nil
		return fmt.Errorf("write to aplay: %w", err)
	}

	s.chunksWritten.Add(1)
	s.bytesWritten.Add(int64(len(data)))
	return nil
}

// Clear drops everything aplay has buffered.
func (s *alsaSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin == nil {
		return nil
	}
	stopProcess(s.cmd)
	s.cmd = nil
	s.stdin = nil
	s.clears.Add(1)
	s.logger.Debug("playback cleared")
	return nil
}

func (s *alsaSink) Config() Config { return s.cfg }

func (s *alsaSink) Name() string { return string(BackendALSA) }

// Close stops aplay.
func (s *alsaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.running = false
	if s.stdin != nil {
		s.stdin.Close()
	}
	stopProcess(s.cmd)
	s.cmd = nil
	s.stdin = nil
	s.logger.Info("playback stopped", "device", s.device)
	return nil
}

func (s *alsaSink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStats{
		ChunksWritten: s.chunksWritten.Load(),
		BytesWritten:  s.bytesWritten.Load(),
		Clears:        s.clears.Load(),
		Running:       s.running,
		Backend:       string(BackendALSA),
		Device:        s.device,
	}
}

var _ SinkWithStats = (*alsaSink)(nil)

func stopProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}
