// Package web serves the operator console: session status, manual tool
// dispatch, the audit trail, and a live log stream over websockets.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-medforce/pkg/audit"
	"github.com/teslashibe/go-medforce/pkg/bridge"
	"github.com/teslashibe/go-medforce/pkg/dispatch"
	"github.com/teslashibe/go-medforce/pkg/hub"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

const (
	// DefaultAddr is the console listen address.
	DefaultAddr = "127.0.0.1:8088"

	maxLogs         = 500
	maxConversation = 100
	defaultAudit    = 50
	shutdownTimeout = 5 * time.Second
)

// State is the live session state shown on the console.
type State struct {
	SessionConnected     bool      `json:"session_connected"`
	Model                string    `json:"model"`
	Voice                string    `json:"voice"`
	BoardURL             string    `json:"board_url"`
	LastAssistantMessage string    `json:"last_assistant_message"`
	LastTool             string    `json:"last_tool"`
	StartedAt            time.Time `json:"started_at"`
}

// Status is the /api/status payload.
type Status struct {
	State
	Session  *voice.Metrics            `json:"session,omitempty"`
	Bridge   *bridge.Stats             `json:"bridge,omitempty"`
	Dispatch *dispatch.Stats           `json:"dispatch,omitempty"`
	InFlight map[string]dispatch.State `json:"in_flight,omitempty"`
	Clients  int                       `json:"clients"`
}

// LogEntry is one console log line.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warn, error, debug, tool
	Message string `json:"message"`
}

// ConversationEntry is one message in the conversation view.
type ConversationEntry struct {
	Time    string `json:"time"`
	Role    string `json:"role"` // assistant, tool
	Message string `json:"message"`
}

// Dispatcher is what the console needs from the tool dispatcher.
type Dispatcher interface {
	Execute(ctx context.Context, call voice.ToolCall) dispatch.Outcome
	States() map[string]dispatch.State
	Stats() dispatch.Stats
}

// outcomeSource is implemented by dispatchers that report every executed
// call, including ones the console did not trigger.
type outcomeSource interface {
	Observe(fn func(dispatch.Outcome))
}

// AuditLister reads back the audit trail.
type AuditLister interface {
	List(ctx context.Context, limit int) ([]audit.Record, error)
}

// Options configures a Server.
type Options struct {
	Addr       string
	Dispatcher Dispatcher
	Audit      AuditLister

	// BridgeStats, when set, is included in the status payload.
	BridgeStats func() bridge.Stats

	// SessionMetrics, when set, reports live session latency. ok is false
	// while no session is connected.
	SessionMetrics func() (m voice.Metrics, ok bool)

	Logger *slog.Logger
}

// Server is the operator console.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	dispatcher     Dispatcher
	observed       bool
	audit          AuditLister
	bridgeStats    func() bridge.Stats
	sessionMetrics func() (voice.Metrics, bool)

	state   State
	stateMu sync.RWMutex

	logs   []LogEntry
	logsMu sync.RWMutex

	conversation   []ConversationEntry
	conversationMu sync.RWMutex

	hub *hub.Hub
}

// NewServer creates the console and registers its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:           addr,
		logger:         logger.With("component", "web"),
		audit:          opts.Audit,
		bridgeStats:    opts.BridgeStats,
		sessionMetrics: opts.SessionMetrics,
		state:          State{StartedAt: time.Now()},
		logs:           make([]LogEntry, 0, maxLogs),
		conversation:   make([]ConversationEntry, 0, maxConversation),
		hub:            hub.New(logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "medforce console",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)
	api.Get("/audit", s.handleAudit)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/conversation", s.handleGetConversation)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	s.SetDispatcher(opts.Dispatcher)
	return s
}

// SetDispatcher sets the dispatcher used by manual tool calls and status.
// A dispatcher that can be observed reports every outcome to the console.
// Call it before Start.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
	s.observed = false
	if src, ok := d.(outcomeSource); ok {
		src.Observe(s.RecordOutcome)
		s.observed = true
	}
}

// SetAudit sets the audit trail reader. Call it before Start.
func (s *Server) SetAudit(a AuditLister) {
	s.audit = a
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start listens on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the console on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()
	s.logger.Info("console listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// UpdateState mutates the state and pushes it to status clients.
func (s *Server) UpdateState(update func(*State)) {
	s.stateMu.Lock()
	update(&s.state)
	s.stateMu.Unlock()

	_ = s.hub.PublishJSON(hub.KindStatus, s.status())
}

// AddLog appends a log entry and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format(time.TimeOnly),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	_ = s.hub.PublishJSON(hub.KindLog, entry)
}

// AddConversation appends a conversation entry.
func (s *Server) AddConversation(role, message string) {
	entry := ConversationEntry{
		Time:    time.Now().Format(time.TimeOnly),
		Role:    role,
		Message: message,
	}

	s.conversationMu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > maxConversation {
		s.conversation = s.conversation[1:]
	}
	s.conversationMu.Unlock()
}

// RecordTranscript adds model text to the conversation.
func (s *Server) RecordTranscript(text string) {
	s.AddConversation("assistant", text)
	s.UpdateState(func(st *State) { st.LastAssistantMessage = text })
}

// RecordOutcome adds a dispatched tool call to the log and conversation.
func (s *Server) RecordOutcome(o dispatch.Outcome) {
	msg := o.Call.Name + " completed"
	if o.Failed() {
		msg = o.Call.Name + " failed: " + o.Error
	}
	s.AddLog("tool", msg)
	s.AddConversation("tool", msg)
	s.UpdateState(func(st *State) { st.LastTool = o.Call.Name })
}

func (s *Server) status() Status {
	s.stateMu.RLock()
	st := Status{State: s.state}
	s.stateMu.RUnlock()

	if s.sessionMetrics != nil {
		if m, ok := s.sessionMetrics(); ok {
			st.Session = &m
		}
	}
	if s.bridgeStats != nil {
		bs := s.bridgeStats()
		st.Bridge = &bs
	}
	if s.dispatcher != nil {
		ds := s.dispatcher.Stats()
		st.Dispatch = &ds
		st.InFlight = s.dispatcher.States()
	}
	st.Clients = s.hub.ClientCount("")
	return st
}
