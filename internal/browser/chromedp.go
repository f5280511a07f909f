// internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeSession implements Session using chromedp. It owns both the
// allocator (the Chrome process) and the tab context; Close tears down both.
type ChromeSession struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	config      *BrowserConfig

	mu    sync.Mutex
	stats BrowserStats
}

// NewChromeSession starts Chrome and opens a tab.
func NewChromeSession(config *BrowserConfig) (Session, error) {
	if config == nil {
		config = DefaultBrowserConfig()
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // required in containers
		chromedp.Flag("headless", config.Headless),
	)
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if config.ViewportWidth > 0 && config.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		config:      config,
	}

	// The first Run launches the browser; fail fast when Chrome is missing.
	startCtx, startCancel := context.WithTimeout(ctx, startTimeout(config))
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s, nil
}

func startTimeout(config *BrowserConfig) time.Duration {
	if config.Timeout > 0 {
		return config.Timeout
	}
	return 30 * time.Second
}

// Render navigates to url, waits for the body and the configured settle
// delay, then returns the rendered HTML.
func (s *ChromeSession) Render(ctx context.Context, url string) (string, error) {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(s.ctx, startTimeout(s.config))
	defer cancel()
	// chromedp actions must run on the tab context; tie it to the caller too.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	tasks := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.config.WaitDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(s.config.WaitDelay))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	err := chromedp.Run(runCtx, tasks...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stats.Errors++
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	loadTime := time.Since(start)
	s.stats.PagesLoaded++
	if s.stats.PagesLoaded == 1 {
		s.stats.AverageLoadTime = loadTime
	} else {
		s.stats.AverageLoadTime = (s.stats.AverageLoadTime + loadTime) / 2
	}
	return html, nil
}

// GetStats returns browser statistics
func (s *ChromeSession) GetStats() BrowserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes the tab and the browser process.
func (s *ChromeSession) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}
