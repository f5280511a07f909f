// internal/scraper/config_integration.go
package scraper

import (
	"fmt"

	"github.com/valpere/CarScrapexter/internal/browser"
	"github.com/valpere/CarScrapexter/internal/config"
	"github.com/valpere/CarScrapexter/internal/monitoring"
)

// ClientFactory builds fetchers from a run configuration
type ClientFactory struct {
	metrics *monitoring.Metrics

	// newPool starts the render pool; replaced in tests
	newPool func(cfg *browser.BrowserConfig, size int) RenderPool
}

// NewClientFactory creates a new client factory instance
func NewClientFactory(metrics *monitoring.Metrics) *ClientFactory {
	return &ClientFactory{
		metrics: metrics,
		newPool: func(cfg *browser.BrowserConfig, size int) RenderPool {
			return browser.NewBrowserPool(cfg, size)
		},
	}
}

// CreateClient builds an HTTPClient from the fetch section
func (f *ClientFactory) CreateClient(cfg *config.Config) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	clientConfig := f.buildClientConfig(cfg)
	if err := f.validateClientConfig(clientConfig); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	return NewHTTPClient(clientConfig), nil
}

// CreateSession builds the document fetcher of a run: the HTTP client plus,
// unless rendering is disabled, a bounded pool of browser sessions. Chrome
// is only started when a page first needs it.
func (f *ClientFactory) CreateSession(cfg *config.Config) (*Session, error) {
	client, err := f.CreateClient(cfg)
	if err != nil {
		return nil, err
	}

	mode := cfg.Browser.Mode
	if mode == "" || mode == RenderNever {
		return NewSession(client, nil, RenderNever, f.metrics), nil
	}
	pool := f.newPool(f.buildBrowserConfig(cfg), cfg.Browser.PoolSize)
	return NewSession(client, pool, mode, f.metrics), nil
}

// buildClientConfig transforms the fetch section into ClientConfig
func (f *ClientFactory) buildClientConfig(cfg *config.Config) ClientConfig {
	fetch := cfg.Fetch
	clientConfig := ClientConfig{
		Timeout:         fetch.Timeout,
		RetryAttempts:   fetch.RetryAttempts,
		RetryDelay:      fetch.RetryDelay,
		MaxRetryDelay:   fetch.MaxRetryDelay,
		RateLimit:       fetch.RequestsPerSecond,
		RateBurst:       fetch.Burst,
		MaxBodyBytes:    fetch.MaxBodyBytes,
		BreakerFailures: fetch.BreakerFailures,
		BreakerReset:    fetch.BreakerReset,
		Headers:         make(map[string]string),
		Metrics:         f.metrics,
	}

	if len(fetch.UserAgents) > 0 {
		clientConfig.UserAgents = make([]string, len(fetch.UserAgents))
		copy(clientConfig.UserAgents, fetch.UserAgents)
	}

	// The browser identifies itself the same way as raw fetches.
	if cfg.Browser.UserAgent != "" && cfg.Browser.Mode != RenderNever {
		clientConfig.UserAgents = []string{cfg.Browser.UserAgent}
	}

	for key, value := range fetch.Headers {
		clientConfig.Headers[key] = value
	}

	return clientConfig
}

// buildBrowserConfig maps the browser section onto the render sessions
func (f *ClientFactory) buildBrowserConfig(cfg *config.Config) *browser.BrowserConfig {
	bc := browser.DefaultBrowserConfig()
	bc.Headless = !cfg.Browser.Visible
	bc.ExecPath = cfg.Browser.ExecPath
	bc.UserAgent = cfg.Browser.UserAgent
	if cfg.Browser.Timeout > 0 {
		bc.Timeout = cfg.Browser.Timeout
	}
	if cfg.Browser.WaitDelay > 0 {
		bc.WaitDelay = cfg.Browser.WaitDelay
	}
	return bc
}

// validateClientConfig validates the client configuration
func (f *ClientFactory) validateClientConfig(clientConfig ClientConfig) error {
	if clientConfig.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %v", clientConfig.Timeout)
	}
	if clientConfig.RetryAttempts > 10 {
		return fmt.Errorf("retry attempts too high: %d (max 10)", clientConfig.RetryAttempts)
	}
	if clientConfig.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative: %f", clientConfig.RateLimit)
	}
	if clientConfig.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes cannot be negative: %d", clientConfig.MaxBodyBytes)
	}
	return nil
}
