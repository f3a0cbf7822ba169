// Package dispatch executes tool calls emitted by the live session against
// the board service and the retrieval helper, and answers them on the same
// session.
//
// Board writes are chained with fixed pauses because the board service is
// eventually consistent: a card created a moment ago may not be focusable
// yet. The slow "analyse a task" step is detached onto a worker pool so the
// audio path never waits on it.
package dispatch

import (
	"fmt"
	"time"
)

// Defaults for Config.
const (
	DefaultLabDelay       = 2 * time.Second
	DefaultTaskDelay      = 3 * time.Second
	DefaultAnalysisDelay  = 2 * time.Second
	DefaultKeepAliveDelay = 500 * time.Millisecond
	DefaultKeepAliveText  = "Ready."
	DefaultTopK           = 3
	DefaultWorkers        = 2
	DefaultQueueSize      = 16
)

// Config controls choreography timing and the background pool.
type Config struct {
	// LabDelay is the pause between creating a lab card and focusing it.
	LabDelay time.Duration `yaml:"lab_delay" toml:"lab_delay" json:"lab_delay"`

	// TaskDelay is the pause between creating a to-do and focusing it.
	TaskDelay time.Duration `yaml:"task_delay" toml:"task_delay" json:"task_delay"`

	// AnalysisDelay is the pause between the agent answer and posting it.
	AnalysisDelay time.Duration `yaml:"analysis_delay" toml:"analysis_delay" json:"analysis_delay"`

	// KeepAlive sends KeepAliveText after each batch of results. Some
	// sessions otherwise stay stuck waiting for the tool turn to close.
	KeepAlive      bool          `yaml:"keep_alive" toml:"keep_alive" json:"keep_alive"`
	KeepAliveText  string        `yaml:"keep_alive_text" toml:"keep_alive_text" json:"keep_alive_text"`
	KeepAliveDelay time.Duration `yaml:"keep_alive_delay" toml:"keep_alive_delay" json:"keep_alive_delay"`

	// TopK is the number of chunks returned by retrieval tools.
	TopK int `yaml:"top_k" toml:"top_k" json:"top_k"`

	// Workers and QueueSize size the background pool.
	Workers   int `yaml:"workers" toml:"workers" json:"workers"`
	QueueSize int `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		LabDelay:       DefaultLabDelay,
		TaskDelay:      DefaultTaskDelay,
		AnalysisDelay:  DefaultAnalysisDelay,
		KeepAlive:      true,
		KeepAliveText:  DefaultKeepAliveText,
		KeepAliveDelay: DefaultKeepAliveDelay,
		TopK:           DefaultTopK,
		Workers:        DefaultWorkers,
		QueueSize:      DefaultQueueSize,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"lab_delay":        c.LabDelay,
		"task_delay":       c.TaskDelay,
		"analysis_delay":   c.AnalysisDelay,
		"keep_alive_delay": c.KeepAliveDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.KeepAlive && c.KeepAliveText == "" {
		return fmt.Errorf("keep_alive_text is required when keep_alive is set")
	}
	return nil
}
