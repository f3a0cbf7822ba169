package meet

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StepResult is the outcome of one best-effort step.
type StepResult struct {
	Name     string        `json:"name"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Fallback string        `json:"fallback,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool {
	return r.Err == nil
}

// Report lists the steps of a Join.
type Report struct {
	Steps []StepResult `json:"steps"`
}

// Failed returns the steps that need manual follow-up.
func (r Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Driver joins a call and presents the board.
type Driver struct {
	cfg     Config
	logger  *slog.Logger
	browser browser
	sleep   func(ctx context.Context, d time.Duration) error
}

// New validates cfg and creates a Chrome-backed driver. A missing profile
// fails here, before Chrome is started.
func New(cfg Config, logger *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "meet")
	return &Driver{
		cfg:     cfg,
		logger:  logger,
		browser: newChrome(cfg, logger),
		sleep:   sleepCtx,
	}, nil
}

// Join opens the call, joins it, opens the board in a second tab, and
// starts presenting. Only a failed launch or call navigation is an error;
// later steps are best-effort and reported.
func (d *Driver) Join(ctx context.Context) (Report, error) {
	var report Report

	d.logger.Info("launching chrome", "profile", d.cfg.ProfileDir, "meet_url", d.cfg.MeetURL)
	if err := d.browser.Open(ctx); err != nil {
		return report, err
	}
	if err := d.browser.Navigate(ctx, TabMeet, d.cfg.MeetURL); err != nil {
		return report, fmt.Errorf("meet: open call: %w", err)
	}
	if err := d.sleep(ctx, d.cfg.SettleDelay); err != nil {
		return report, err
	}

	steps := []struct {
		name     string
		fallback string
		run      func() error
	}{
		{
			name:     "grant media permissions",
			fallback: "allow microphone and camera in the call page prompt",
			run:      func() error { return d.browser.Click(ctx, TabMeet, PermissionSelector) },
		},
		{
			name:     "join call",
			fallback: "click \"Join now\" in the call tab",
			run:      func() error { return d.browser.Click(ctx, TabMeet, JoinSelector) },
		},
		{
			name:     "open board",
			fallback: "open " + d.cfg.BoardURL + " in a new tab",
			run: func() error {
				if err := d.browser.NewTab(ctx, TabBoard, d.cfg.BoardURL); err != nil {
					return err
				}
				return d.sleep(ctx, d.cfg.BoardLoadDelay)
			},
		},
		{
			name:     "present board",
			fallback: "click \"Present now\", choose the board tab, and tick \"Also share tab audio\"",
			run:      func() error { return d.browser.Click(ctx, TabMeet, PresentSelector) },
		},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		err := step.run()
		res := StepResult{Name: step.name, Duration: time.Since(start)}
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			res.Fallback = step.fallback
			d.logger.Warn("step failed, finish it by hand", "step", step.name, "error", err, "manual", step.fallback)
		} else {
			d.logger.Info("step completed", "step", step.name)
			if err := d.sleep(ctx, d.cfg.SettleDelay); err != nil {
				report.Steps = append(report.Steps, res)
				return report, err
			}
		}
		report.Steps = append(report.Steps, res)
	}
	return report, nil
}

// Close shuts the browser down.
func (d *Driver) Close() error {
	return d.browser.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
