// Package audioio provides audio capture and playback for the voice bridge.
//
// Backends:
//   - ALSA (Linux) - arecord/aplay child processes, device picked by name
//   - Mock - tests and dry runs without hardware
//
// Devices are matched by a case-insensitive substring of their ALSA name or
// description, so a virtual cable ("CABLE Output", "Voicemeeter Input") can
// be selected without knowing its card index.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects ALSA on Linux and the mock elsewhere.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA for audio I/O.
	BackendALSA Backend = "alsa"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Standard rates used by the live session.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	DefaultChunkFrames = 1024
)

// Config holds audio configuration for one direction (capture or playback).
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" toml:"backend" json:"backend"`

	// SampleRate is the device sample rate in Hz.
	SampleRate int `yaml:"sample_rate" toml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels. The session only accepts mono.
	Channels int `yaml:"channels" toml:"channels" json:"channels"`

	// ChunkFrames is the number of frames per device read.
	ChunkFrames int `yaml:"chunk_frames" toml:"chunk_frames" json:"chunk_frames"`

	// Device is a substring of the device name or description.
	// Empty selects the ALSA "default" device.
	Device string `yaml:"device" toml:"device" json:"device"`
}

// DefaultCaptureConfig returns the capture defaults (16 kHz mono, 1024 frames).
func DefaultCaptureConfig() Config {
	return Config{
		Backend:     BackendAuto,
		SampleRate:  CaptureSampleRate,
		Channels:    1,
		ChunkFrames: DefaultChunkFrames,
	}
}

// DefaultPlaybackConfig returns the playback defaults (24 kHz mono).
func DefaultPlaybackConfig() Config {
	return Config{
		Backend:     BackendAuto,
		SampleRate:  PlaybackSampleRate,
		Channels:    1,
		ChunkFrames: DefaultChunkFrames,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.ChunkFrames <= 0 {
		return fmt.Errorf("chunk_frames must be positive, got %d", c.ChunkFrames)
	}
	return nil
}

// ChunkBytes returns the size of one chunk in bytes (int16 samples).
func (c *Config) ChunkBytes() int {
	return c.ChunkFrames * c.Channels * 2
}

// ChunkDuration returns how much audio one chunk holds.
func (c *Config) ChunkDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.ChunkFrames) * time.Second / time.Duration(c.SampleRate)
}
