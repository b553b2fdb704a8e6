package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// HeadlessOptions configures the headless browser provider
type HeadlessOptions struct {
	// Timeout for a single page render
	Timeout time.Duration
	// MaxTabs limits concurrent renders sharing the browser
	MaxTabs int
	// WaitSelector is awaited before the page source is captured
	WaitSelector string
	// DisableImages skips image loading
	DisableImages bool
	UserAgent     string
	// ExecPath overrides the Chrome binary lookup
	ExecPath string
}

// DefaultHeadlessOptions returns sensible defaults for headless rendering
func DefaultHeadlessOptions() HeadlessOptions {
	return HeadlessOptions{
		Timeout:       30 * time.Second,
		MaxTabs:       4,
		WaitSelector:  "body",
		DisableImages: true,
		UserAgent:     DefaultUserAgent,
	}
}

// ChromeAvailable starts a throwaway browser to check that Chrome can be
// launched with the given options
func ChromeAvailable(ctx context.Context, opts HeadlessOptions) error {
	p := NewHeadlessProvider(opts, nil)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, p.allocatorOptions()...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	testCtx, testCancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		return fmt.Errorf("chrome not available: %w", err)
	}
	return nil
}

// HeadlessProvider renders pages in headless Chrome and returns the resulting
// document. The browser is started on first use and shared between calls.
type HeadlessProvider struct {
	opts   HeadlessOptions
	logger *slog.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool

	tabs chan struct{}
}

// NewHeadlessProvider creates a provider. No browser is launched until Get.
func NewHeadlessProvider(opts HeadlessOptions, logger *slog.Logger) *HeadlessProvider {
	def := DefaultHeadlessOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTabs <= 0 {
		opts.MaxTabs = def.MaxTabs
	}
	if opts.WaitSelector == "" {
		opts.WaitSelector = def.WaitSelector
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HeadlessProvider{
		opts:   opts,
		logger: logger,
		tabs:   make(chan struct{}, opts.MaxTabs),
	}
}

// Get navigates to url and returns the rendered outer HTML
func (p *HeadlessProvider) Get(ctx context.Context, url string, opts ...Option) (string, error) {
	o := Apply(opts...)
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = p.opts.Timeout
	}

	select {
	case p.tabs <- struct{}{}:
		defer func() { <-p.tabs }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	browserCtx, err := p.browser()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	// Bound the render by both the caller context and the provider timeout.
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var html string
	start := time.Now()
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(p.opts.WaitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("headless render of %s failed: %w", url, err)
	}

	p.logger.Debug("Rendered page", "url", url, "duration", time.Since(start), "bytes", len(html))
	return html, nil
}

// Close shuts the browser down. Further calls to Get fail.
func (p *HeadlessProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	return nil
}

func (p *HeadlessProvider) browser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("headless provider is closed")
	}
	if p.browserCtx != nil {
		return p.browserCtx, nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), p.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.logger.Info("Started headless browser", "max_tabs", p.opts.MaxTabs)
	return browserCtx, nil
}

func (p *HeadlessProvider) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Headless,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(p.opts.UserAgent),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	}
	if p.opts.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if p.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.opts.ExecPath))
	}
	return opts
}
