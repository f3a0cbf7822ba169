package voice

import (
	"context"
	"errors"
)

// Common errors returned by sessions.
var (
	ErrNotConnected   = errors.New("voice: session not connected")
	ErrMissingAPIKey  = errors.New("voice: missing API key")
	ErrSessionClosed  = errors.New("voice: session closed")
	ErrSetupFailed    = errors.New("voice: session setup failed")
	ErrEmptyToolBatch = errors.New("voice: empty tool response")
)

// EventKind classifies a server event.
type EventKind int

const (
	EventAudio EventKind = iota
	EventText
	EventToolCall
	EventToolCallCancel
	EventTurnComplete
	EventInterrupted
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventText:
		return "text"
	case EventToolCall:
		return "tool_call"
	case EventToolCallCancel:
		return "tool_call_cancel"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Event is one item of the session's inbound stream.
type Event struct {
	Kind EventKind

	// Audio holds PCM16 output for EventAudio.
	Audio []byte

	// Text holds model text for EventText.
	Text string

	// Calls holds the batch for EventToolCall.
	Calls []ToolCall

	// CancelledIDs holds call ids for EventToolCallCancel.
	CancelledIDs []string
}

// Session is a live bidirectional conversation.
type Session interface {
	// SendAudio forwards one PCM16 chunk tagged with its mime type.
	SendAudio(ctx context.Context, pcm []byte, mimeType string) error

	// SendText sends a complete user text turn.
	SendText(ctx context.Context, text string) error

	// SendToolResponse answers a batch of tool calls.
	SendToolResponse(ctx context.Context, results []ToolResult) error

	// Events yields server events. The channel is closed when the session ends.
	Events() <-chan Event

	// Err reports why the event stream ended. Nil until then.
	Err() error

	// Close ends the session. It is safe to call Close multiple times.
	Close() error
}
