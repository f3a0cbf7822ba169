package audioio

import (
	"context"
	"fmt"
	"io"
)

// AudioChunk is one buffer of PCM16 little-endian audio tagged with its format.
type AudioChunk struct {
	// Data holds raw PCM16 little-endian bytes.
	Data []byte

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// NewChunk wraps raw PCM16 bytes.
func NewChunk(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{Data: data, SampleRate: sampleRate, Channels: channels}
}

// MimeType returns the session mime type, e.g. "audio/pcm;rate=16000".
func (c AudioChunk) MimeType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.SampleRate)
}

// Samples decodes the chunk into int16 samples.
func (c AudioChunk) Samples() []int16 {
	return BytesToSamples(c.Data)
}

// Duration returns the duration of this audio chunk in seconds.
func (c AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Data)/2) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or virtual cable.
type Source interface {
	// Start opens the device. Read may be called afterwards.
	Start(ctx context.Context) error

	// Read blocks until the next chunk is available.
	// Returns io.EOF once the source is stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name ("alsa", "mock").
	Name() string

	// Close releases the device. It is safe to call Close multiple times.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead int64  `json:"chunks_read"`
	BytesRead  int64  `json:"bytes_read"`
	Running    bool   `json:"running"`
	Backend    string `json:"backend"`
	Device     string `json:"device"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
