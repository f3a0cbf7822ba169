package voice

import (
	"context"
	"sync"
)

// MockSession is a scripted Session for tests.
// Push feeds events; every outbound message is recorded.
type MockSession struct {
	mu      sync.Mutex
	events  chan Event
	closed  bool
	ended   bool
	err     error
	sendErr error

	Audio     [][]byte
	Texts     []string
	Responses [][]ToolResult

	// Log records outbound messages in order: "audio", "text", "tool_response".
	Log []string

	// OnSend, if set, is called after each recorded outbound message.
	OnSend func(kind string)
}

// NewMockSession creates a mock with a buffered event stream.
func NewMockSession() *MockSession {
	return &MockSession{events: make(chan Event, 256)}
}

// Push queues an event for the consumer.
func (m *MockSession) Push(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.events <- ev
}

// End closes the event stream with err (ErrSessionClosed if nil).
func (m *MockSession) End(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	if err == nil {
		err = ErrSessionClosed
	}
	m.err = err
	m.ended = true
	close(m.events)
}

// FailSends makes every subsequent send return err.
func (m *MockSession) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *MockSession) record(kind string, fn func()) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()
		return err
	}
	fn()
	m.Log = append(m.Log, kind)
	hook := m.OnSend
	m.mu.Unlock()

	if hook != nil {
		hook(kind)
	}
	return nil
}

// SendAudio records pcm.
func (m *MockSession) SendAudio(ctx context.Context, pcm []byte, mimeType string) error {
	return m.record("audio", func() { m.Audio = append(m.Audio, pcm) })
}

// SendText records text.
func (m *MockSession) SendText(ctx context.Context, text string) error {
	return m.record("text", func() { m.Texts = append(m.Texts, text) })
}

// SendToolResponse records the batch.
func (m *MockSession) SendToolResponse(ctx context.Context, results []ToolResult) error {
	if len(results) == 0 {
		return ErrEmptyToolBatch
	}
	return m.record("tool_response", func() { m.Responses = append(m.Responses, results) })
}

// Events yields pushed events.
func (m *MockSession) Events() <-chan Event {
	return m.events
}

// Err reports the error passed to End.
func (m *MockSession) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close marks the session closed and ends the event stream.
func (m *MockSession) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.End(nil)
	return nil
}

// Snapshot returns copies of what has been sent so far.
func (m *MockSession) Snapshot() (audio [][]byte, texts []string, responses [][]ToolResult, log []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio = append([][]byte(nil), m.Audio...)
	texts = append([]string(nil), m.Texts...)
	responses = append([][]ToolResult(nil), m.Responses...)
	log = append([]string(nil), m.Log...)
	return
}

var _ Session = (*MockSession)(nil)
