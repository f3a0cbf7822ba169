package board

import (
	"errors"
	"fmt"
)

// ErrMissingID is returned when a create call yields no id to chain on.
var ErrMissingID = errors.New("board: response missing id")

// Item is one canvas object as returned by the board service. The schema
// is owned by the service, so the record is kept as decoded JSON.
type Item map[string]any

// ID returns the object id, or "" if absent.
func (i Item) ID() string {
	return i.str("id")
}

// Kind returns the object type ("todo", "lab", "note", ...).
func (i Item) Kind() string {
	if k := i.str("type"); k != "" {
		return k
	}
	return i.str("kind")
}

func (i Item) str(key string) string {
	v, ok := i[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Todo is the payload for a new to-do card.
type Todo struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Items   []string `json:"items"`
	Area    string   `json:"area,omitempty"`
}

// LabRange holds normal and warning thresholds.
type LabRange struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	WarningMin float64 `json:"warningMin"`
	WarningMax float64 `json:"warningMax"`
}

// Lab is the payload for a new lab result card.
type Lab struct {
	Parameter string   `json:"parameter"`
	Value     string   `json:"value"`
	Unit      string   `json:"unit"`
	Status    string   `json:"status"`
	Range     LabRange `json:"range"`
	Trend     string   `json:"trend"`
}

// AgentAnswer is the analyst agent's response, passed through verbatim to
// CreateResult.
type AgentAnswer map[string]any

// Created is the response to a create call.
type Created struct {
	ID  string
	Raw map[string]any
}

// APIError represents an error response from the board service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the response body, truncated.
	Message string

	// Path is the endpoint that failed.
	Path string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("board: %s: API error %d: %s", e.Path, e.StatusCode, e.Message)
}

// IsNotFound returns true if the resource was not found (HTTP 404).
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
