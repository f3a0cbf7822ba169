package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GeminiSession implements Session over the Gemini Live websocket.
type GeminiSession struct {
	cfg    Config
	logger *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	events  chan Event
	closeCh chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	err    error
	closed bool

	metrics *MetricsCollector
}

// Dial connects to Gemini Live, sends the setup message and waits for
// setupComplete. A missing API key fails before any network activity.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.endpoint())
	if err != nil {
		return nil, fmt.Errorf("voice: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice: failed to connect (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voice: failed to connect: %w", err)
	}

	s := &GeminiSession{
		cfg:     cfg,
		logger:  logger,
		ws:      ws,
		events:  make(chan Event, 256),
		closeCh: make(chan struct{}),
		metrics: NewMetricsCollector(),
	}

	if err := s.setup(ctx); err != nil {
		ws.Close()
		return nil, err
	}

	go s.readLoop()

	logger.Info("gemini live session ready", "model", cfg.Model, "voice", cfg.Voice, "tools", len(cfg.Tools))
	return s, nil
}

// setup sends the session configuration and blocks until setupComplete.
func (s *GeminiSession) setup(ctx context.Context) error {
	if err := s.sendJSON(ctx, s.setupMessage()); err != nil {
		return fmt.Errorf("%w: %v", ErrSetupFailed, err)
	}

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.ws.SetReadDeadline(deadline)
	defer s.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSetupFailed, err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("gemini: unparseable message during setup", "error", err)
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (s *GeminiSession) setupMessage() map[string]any {
	setup := map[string]any{
		"model": s.cfg.Model,
		"generation_config": map[string]any{
			"response_modalities": []string{"AUDIO"},
			"speech_config": map[string]any{
				"voice_config": map[string]any{
					"prebuilt_voice_config": map[string]any{
						"voice_name": s.cfg.Voice,
					},
				},
				"language_code": s.cfg.Language,
			},
		},
	}

	if s.cfg.SystemPrompt != "" {
		setup["system_instruction"] = map[string]any{
			"parts": []map[string]any{
				{"text": s.cfg.SystemPrompt},
			},
		}
	}

	if len(s.cfg.Tools) > 0 {
		setup["tools"] = []map[string]any{
			{"function_declarations": s.cfg.Tools},
		}
	}

	return map[string]any{"setup": setup}
}

// SendAudio forwards one PCM16 chunk.
func (s *GeminiSession) SendAudio(ctx context.Context, pcm []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = "audio/pcm"
	}
	msg := map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{
				{
					"data":      base64.StdEncoding.EncodeToString(pcm),
					"mime_type": mimeType,
				},
			},
		},
	}
	if err := s.sendJSON(ctx, msg); err != nil {
		return err
	}
	s.metrics.IncrementAudioIn()
	return nil
}

// SendText sends a completed user turn.
func (s *GeminiSession) SendText(ctx context.Context, text string) error {
	msg := map[string]any{
		"client_content": map[string]any{
			"turns": []map[string]any{
				{
					"role":  "user",
					"parts": []map[string]any{{"text": text}},
				},
			},
			"turn_complete": true,
		},
	}
	if err := s.sendJSON(ctx, msg); err != nil {
		return err
	}
	s.metrics.MarkRequest()
	return nil
}

// SendToolResponse answers a batch of tool calls in one message.
func (s *GeminiSession) SendToolResponse(ctx context.Context, results []ToolResult) error {
	if len(results) == 0 {
		return ErrEmptyToolBatch
	}
	msg := map[string]any{
		"tool_response": map[string]any{
			"function_responses": results,
		},
	}
	if err := s.sendJSON(ctx, msg); err != nil {
		return err
	}
	s.metrics.MarkRequest()
	return nil
}

// Events yields server events until the session ends.
func (s *GeminiSession) Events() <-chan Event {
	return s.events
}

// Err reports why the event stream ended.
func (s *GeminiSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Metrics returns the session metrics collector.
func (s *GeminiSession) Metrics() *MetricsCollector {
	return s.metrics
}

// Close ends the session.
func (s *GeminiSession) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.closeCh)

		s.wsMu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.ws.Close()
		s.wsMu.Unlock()
	})
	return err
}

// isClosed reports whether Close was called or the stream has ended.
func (s *GeminiSession) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed || s.err != nil
}

// sendJSON serializes writes from the audio sender and the dispatcher.
func (s *GeminiSession) sendJSON(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSessionClosed
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	if s.ws == nil {
		return ErrNotConnected
	}
	if d, ok := ctx.Deadline(); ok {
		_ = s.ws.SetWriteDeadline(d)
		defer s.ws.SetWriteDeadline(time.Time{})
	}
	if err := s.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("voice: write: %w", err)
	}
	return nil
}

// readLoop turns websocket messages into Events until the socket ends.
func (s *GeminiSession) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("gemini: failed to parse message", "error", err)
			continue
		}

		for _, ev := range s.classify(&msg) {
			select {
			case s.events <- ev:
			case <-s.closeCh:
				s.finish(nil)
				return
			}
		}
	}
}

func (s *GeminiSession) finish(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed || cause == nil:
		s.err = ErrSessionClosed
	case websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.err = ErrSessionClosed
	default:
		s.err = fmt.Errorf("%w: %v", ErrSessionClosed, cause)
	}
	if !s.closed && cause != nil {
		s.logger.Warn("gemini live session ended", "error", cause)
	}
}

// classify maps one server message onto zero or more events.
func (s *GeminiSession) classify(msg *serverMessage) []Event {
	var events []Event

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && strings.HasPrefix(part.InlineData.MimeType, "audio/pcm") {
					audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
					if err != nil || len(audio) == 0 {
						continue
					}
					s.metrics.MarkFirstAudio()
					s.metrics.IncrementAudioOut()
					events = append(events, Event{Kind: EventAudio, Audio: audio})
				}
				if part.Text != "" {
					events = append(events, Event{Kind: EventText, Text: part.Text})
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, Event{Kind: EventText, Text: sc.OutputTranscription.Text})
		}
		if sc.Interrupted {
			s.metrics.IncrementInterrupted()
			events = append(events, Event{Kind: EventInterrupted})
		}
		if sc.TurnComplete {
			s.metrics.MarkTurnComplete()
			events = append(events, Event{Kind: EventTurnComplete})
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		s.metrics.AddToolCalls(len(tc.FunctionCalls))
		events = append(events, Event{Kind: EventToolCall, Calls: tc.FunctionCalls})
	}

	if c := msg.ToolCallCancellation; c != nil {
		events = append(events, Event{Kind: EventToolCallCancel, CancelledIDs: c.IDs})
	}

	if msg.GoAway != nil {
		s.logger.Warn("gemini live server going away", "time_left", msg.GoAway.TimeLeft)
	}

	if len(events) == 0 && s.cfg.Debug {
		s.logger.Debug("gemini: unhandled message", "setup_complete", msg.SetupComplete != nil)
	}
	return events
}

// serverMessage is the union of Gemini Live server messages.
type serverMessage struct {
	SetupComplete        *json.RawMessage      `json:"setupComplete"`
	ServerContent        *serverContent        `json:"serverContent"`
	ToolCall             *toolCallMessage      `json:"toolCall"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation"`
	GoAway               *goAway               `json:"goAway"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	Interrupted         bool           `json:"interrupted"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type modelTurn struct {
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	Text       string      `json:"text"`
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMessage struct {
	FunctionCalls []ToolCall `json:"functionCalls"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

// IsSessionClosed reports whether err means the session has ended.
func IsSessionClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed)
}

var _ Session = (*GeminiSession)(nil)
