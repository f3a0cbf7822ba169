package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-medforce/pkg/hub"
	"github.com/teslashibe/go-medforce/pkg/tools"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

// ToolInfo describes a tool the console can trigger.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TriggerToolRequest is the body of POST /api/tools/:name.
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// TriggerToolResponse is returned for a manual dispatch.
type TriggerToolResponse struct {
	Tool       string         `json:"tool"`
	CallID     string         `json:"call_id"`
	Result     map[string]any `json:"result"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	decls := tools.Declarations()
	infos := make([]ToolInfo, len(decls))
	for i, d := range decls {
		infos[i] = ToolInfo{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return c.JSON(infos)
}

// handleTriggerTool runs a tool through the dispatcher without a session.
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	name := utils.CopyString(c.Params("name"))
	if _, ok := tools.Declaration(name); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown tool: " + name})
	}
	if s.dispatcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "dispatcher not configured"})
	}

	var req TriggerToolRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body: " + err.Error()})
		}
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	call := voice.ToolCall{ID: "manual-" + uuid.NewString()[:8], Name: name, Args: req.Args}
	o := s.dispatcher.Execute(c.UserContext(), call)
	if !s.observed {
		s.RecordOutcome(o)
	}

	resp := TriggerToolResponse{
		Tool:       name,
		CallID:     call.ID,
		Result:     o.Result.Response,
		Error:      o.Error,
		DurationMS: o.Duration.Milliseconds(),
	}

	status := fiber.StatusOK
	switch {
	case o.Err == nil:
	case errors.Is(o.Err, tools.ErrInvalidToolArguments):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(o.Err, tools.ErrUnknownTool):
		status = fiber.StatusNotFound
	default:
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(resp)
}

func (s *Server) handleAudit(c *fiber.Ctx) error {
	if s.audit == nil {
		return c.JSON([]any{})
	}
	limit := c.QueryInt("limit", defaultAudit)
	records, err := s.audit.List(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if records == nil {
		return c.JSON([]any{})
	}
	return c.JSON(records)
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	s.conversationMu.RLock()
	defer s.conversationMu.RUnlock()
	return c.JSON(s.conversation)
}

// handleLogsWS replays the buffered log then streams new entries.
func (s *Server) handleLogsWS(conn *websocket.Conn) {
	s.logsMu.RLock()
	backlog := make([][]byte, 0, len(s.logs))
	for _, entry := range s.logs {
		if data, err := json.Marshal(entry); err == nil {
			backlog = append(backlog, data)
		}
	}
	s.logsMu.RUnlock()

	hub.Subscribe(s.hub, hub.KindLog, conn, backlog...).Run()
}

// handleStatusWS sends the current status then every update.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	var initial [][]byte
	if data, err := json.Marshal(s.status()); err == nil {
		initial = append(initial, data)
	}
	hub.Subscribe(s.hub, hub.KindStatus, conn, initial...).Run()
}
