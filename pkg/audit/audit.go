// Package audit keeps a trail of every tool call the dispatcher handled.
//
// Each record is written as its own JSON file so a crashed process never
// leaves a half-written log behind:
//
//	<dir>/tool_call_20250101_120000.000_1a2b3c4d.json
package audit

import (
	"context"
	"time"
)

// Status values recorded for a call.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one dispatched tool call.
type Record struct {
	ID        string         `json:"id"`
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// Failed reports whether the call ended in an error.
func (r Record) Failed() bool {
	return r.Status == StatusFailed
}

// Recorder persists records.
type Recorder interface {
	// Record stores rec. Implementations fill ID and Timestamp when empty.
	Record(ctx context.Context, rec Record) error

	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
}

// Nop discards records.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Record) error { return nil }

// List implements Recorder.
func (Nop) List(context.Context, int) ([]Record, error) { return nil, nil }

var _ Recorder = Nop{}
