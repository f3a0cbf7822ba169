package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or virtual cable.
type Sink interface {
	// Start opens the output device.
	Start(ctx context.Context) error

	// Write plays an audio chunk, resampling it to the device rate if needed.
	// This may block while the device buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Clear discards audio already handed to the device.
	// Used when a turn is interrupted.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name ("alsa", "mock").
	Name() string

	// Close releases the device. It is safe to call Close multiple times.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	ChunksWritten int64  `json:"chunks_written"`
	BytesWritten  int64  `json:"bytes_written"`
	Clears        int64  `json:"clears"`
	Running       bool   `json:"running"`
	Backend       string `json:"backend"`
	Device        string `json:"device"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
