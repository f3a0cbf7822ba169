// Package board is a client for the collaborative canvas service that holds
// the patient board: tasks, lab cards, agent results and the shared viewport.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/teslashibe/go-medforce/internal/httpc"
)

// Default endpoint paths on the board service.
const (
	DefaultBaseURL = "http://localhost:3001"

	PathItems       = "/api/board-items"
	PathTodos       = "/api/todos"
	PathLabResults  = "/api/lab-results"
	PathFocus       = "/api/focus"
	PathAgentAnswer = "/api/agent-answer"
	PathResults     = "/api/results"

	// TaskArea is the board zone new to-dos are placed in.
	TaskArea = "planning-zone"
)

// Config holds board client settings.
type Config struct {
	BaseURL string        `yaml:"base_url" toml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`

	// Optional OAuth2 client-credentials auth. Empty ClientID disables it.
	ClientID     string   `yaml:"client_id" toml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"-" toml:"-" json:"-"`
	TokenURL     string   `yaml:"token_url" toml:"token_url" json:"token_url"`
	Scopes       []string `yaml:"scopes" toml:"scopes" json:"scopes"`
}

// DefaultConfig returns the local board service defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: httpc.DefaultTimeout,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("board: base URL required")
	}
	if c.ClientID != "" && c.TokenURL == "" {
		return errors.New("board: token URL required when client ID is set")
	}
	return nil
}

// Client performs request/response calls against the board service.
// It holds no state besides the HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a board client. With ClientID set, requests carry a bearer
// token from the client-credentials flow.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpc.DefaultTimeout
	}

	hc := httpc.NewClient(cfg.Timeout)
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// Token requests reuse the same transport and timeouts.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		authed := cc.Client(ctx)
		authed.Timeout = cfg.Timeout
		hc = authed
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		logger:  logger,
	}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	start := time.Now()
	err := httpc.DoJSON(ctx, c.http, method, c.baseURL+path, body, out)
	c.logger.Debug("board request", "method", method, "path", path, "took", time.Since(start), "error", err)
	if err == nil {
		return nil
	}

	var se *httpc.StatusError
	if errors.As(err, &se) {
		return &APIError{StatusCode: se.StatusCode, Message: se.Body, Path: path}
	}
	return fmt.Errorf("board: %s %s: %w", method, path, err)
}

// ListItems fetches every object on the board.
func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.do(ctx, http.MethodGet, PathItems, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateTodo creates a to-do card. Area defaults to TaskArea.
func (c *Client) CreateTodo(ctx context.Context, todo Todo) (Created, error) {
	if todo.Area == "" {
		todo.Area = TaskArea
	}
	return c.create(ctx, PathTodos, todo)
}

// CreateLab creates a lab result card.
func (c *Client) CreateLab(ctx context.Context, lab Lab) (Created, error) {
	return c.create(ctx, PathLabResults, lab)
}

// Focus moves the shared viewport to objectID.
func (c *Client) Focus(ctx context.Context, objectID string) error {
	if objectID == "" {
		return ErrMissingID
	}
	return c.do(ctx, http.MethodPost, PathFocus, map[string]string{"objectId": objectID}, nil)
}

// AgentAnswer asks the analyst agent to work a task and returns its answer.
func (c *Client) AgentAnswer(ctx context.Context, todo Todo) (AgentAnswer, error) {
	var answer AgentAnswer
	if err := c.do(ctx, http.MethodPost, PathAgentAnswer, todo, &answer); err != nil {
		return nil, err
	}
	return answer, nil
}

// CreateResult posts an agent answer to the board as a result card.
func (c *Client) CreateResult(ctx context.Context, answer AgentAnswer) (Created, error) {
	return c.create(ctx, PathResults, answer)
}

func (c *Client) create(ctx context.Context, path string, body any) (Created, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, path, body, &raw); err != nil {
		return Created{}, err
	}
	created := Created{Raw: raw}
	if id, ok := raw["id"]; ok && id != nil {
		created.ID = fmt.Sprint(id)
	}
	if created.ID == "" {
		return created, fmt.Errorf("%w: POST %s", ErrMissingID, path)
	}
	return created, nil
}
