package meet

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/chromedp/chromedp"
)

// Tab names used by the driver.
const (
	TabMeet  = "meet"
	TabBoard = "board"
)

// browser is the subset of browser automation the driver needs.
type browser interface {
	Open(ctx context.Context) error
	Navigate(ctx context.Context, tab, url string) error
	Click(ctx context.Context, tab, selector string) error
	NewTab(ctx context.Context, tab, url string) error
	Close() error
}

// chrome implements browser with chromedp.
type chrome struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	tabs    map[string]context.Context
}

func newChrome(cfg Config, logger *slog.Logger) *chrome {
	return &chrome{cfg: cfg, logger: logger, tabs: make(map[string]context.Context)}
}

func (c *chrome) options() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserDataDir(c.cfg.ProfileDir),
		chromedp.Flag("profile-directory", c.cfg.ProfileName),
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("auto-select-tab-capture-source-by-title", shareTitle(c.cfg)),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("mute-audio", false),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	return opts
}

// Open launches Chrome. The browser lives until Close or ctx is done.
func (c *chrome) Open(ctx context.Context) error {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.options()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			c.logger.Debug("chrome", "message", fmt.Sprintf(format, args...))
		}),
	)

	// The first Run starts the browser and attaches to its initial tab.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("meet: launch chrome: %w", err)
	}

	c.mu.Lock()
	c.cancels = append(c.cancels, cancelBrowser, cancelAlloc)
	c.tabs[TabMeet] = browserCtx
	c.mu.Unlock()
	return nil
}

func (c *chrome) tab(name string) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tctx, ok := c.tabs[name]
	if !ok {
		return nil, fmt.Errorf("meet: no %s tab", name)
	}
	return tctx, nil
}

// run executes actions on a tab, bounded by the step timeout and ctx.
func (c *chrome) run(ctx context.Context, tab string, actions ...chromedp.Action) error {
	tctx, err := c.tab(tab)
	if err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(tctx, c.cfg.StepTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(tctx, actions...)
}

func (c *chrome) Navigate(ctx context.Context, tab, target string) error {
	return c.run(ctx, tab, chromedp.Navigate(target))
}

func (c *chrome) Click(ctx context.Context, tab, selector string) error {
	return c.run(ctx, tab,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// NewTab opens target in a new tab of the same browser.
func (c *chrome) NewTab(ctx context.Context, tab, target string) error {
	parent, err := c.tab(TabMeet)
	if err != nil {
		return err
	}
	tabCtx, cancel := chromedp.NewContext(parent)

	c.mu.Lock()
	c.tabs[tab] = tabCtx
	c.cancels = append([]context.CancelFunc{cancel}, c.cancels...)
	c.mu.Unlock()

	return c.Navigate(ctx, tab, target)
}

// Close shuts the browser down.
func (c *chrome) Close() error {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.tabs = make(map[string]context.Context)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

func shareTitle(cfg Config) string {
	if cfg.ShareTabTitle != "" {
		return cfg.ShareTabTitle
	}
	if u, err := url.Parse(cfg.BoardURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return cfg.BoardURL
}
