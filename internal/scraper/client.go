// internal/scraper/client.go
package scraper

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/monitoring"
	"github.com/valpere/CarScrapexter/internal/utils"
)

// HTTPClient fetches dealer pages and images with per-host politeness,
// retry with exponential backoff and a circuit breaker per host.
type HTTPClient struct {
	httpClient    *http.Client
	userAgents    []string
	currentUA     int
	uaMutex       sync.Mutex
	rateLimiter   *utils.HostRateLimiter
	retryAttempts int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	maxBodyBytes  int64
	headers       map[string]string
	breakers      *errors.Service
	metrics       *monitoring.Metrics
	logger        utils.Logger
}

// ClientConfig defines configuration options for the HTTP client
type ClientConfig struct {
	Timeout         time.Duration
	RetryAttempts   int // negative disables retries
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	UserAgents      []string
	Headers         map[string]string
	RateLimit       float64 // requests per second per host, negative disables
	RateBurst       int
	MaxBodyBytes    int64
	BreakerFailures int
	BreakerReset    time.Duration
	Metrics         *monitoring.Metrics
	Logger          utils.Logger
}

// NewHTTPClient creates a new HTTP client with the specified configuration
func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	} else if config.RetryAttempts < 0 {
		config.RetryAttempts = 0
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 2
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 10 << 20
	}
	if len(config.UserAgents) == 0 {
		config.UserAgents = getDefaultUserAgents()
	}
	if config.Logger == nil {
		config.Logger = utils.NewComponentLogger("http-client")
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPClient{
		httpClient:    httpClient,
		userAgents:    config.UserAgents,
		rateLimiter:   utils.NewHostRateLimiter(config.RateLimit, config.RateBurst),
		retryAttempts: config.RetryAttempts,
		retryDelay:    config.RetryDelay,
		maxRetryDelay: config.MaxRetryDelay,
		maxBodyBytes:  config.MaxBodyBytes,
		headers:       config.Headers,
		breakers: errors.NewServiceWithConfig(errors.RetryConfig{}, errors.CircuitBreakerConfig{
			MaxFailures:  config.BreakerFailures,
			ResetTimeout: config.BreakerReset,
		}),
		metrics: config.Metrics,
		logger:  config.Logger,
	}
}

// Get performs a GET with retries. The caller owns the response body.
func (c *HTTPClient) Get(ctx context.Context, targetURL string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, targetURL, c.retryAttempts)
}

// FetchHTML returns the body of an HTML page and the URL it was served
// from after redirects.
func (c *HTTPClient) FetchHTML(ctx context.Context, targetURL string) ([]byte, *url.URL, error) {
	resp, err := c.Get(ctx, targetURL)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, nil, errors.Transient("read", targetURL, err)
	}
	return body, resp.Request.URL, nil
}

// FetchDocument fetches and parses an HTML page. The document's Url is the
// final URL so relative links resolve correctly.
func (c *HTTPClient) FetchDocument(ctx context.Context, targetURL string) (*goquery.Document, error) {
	body, finalURL, err := c.FetchHTML(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	return ParseDocument(body, finalURL)
}

// FetchBytes downloads a resource once, reading at most limit bytes. It does
// not retry: a missing photo is skipped, not waited for.
func (c *HTTPClient) FetchBytes(ctx context.Context, targetURL string, limit int64) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, targetURL, 0)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if limit <= 0 {
		limit = c.maxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", errors.Transient("read", targetURL, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// Exists reports whether targetURL answers with a success status. HEAD is
// tried first; servers that reject it get a GET.
func (c *HTTPClient) Exists(ctx context.Context, targetURL string) bool {
	resp, err := c.do(ctx, http.MethodHead, targetURL, 0)
	if err == nil {
		resp.Body.Close()
		return true
	}
	var status *errors.StatusError
	if !stderrors.As(err, &status) || (status.StatusCode != http.StatusMethodNotAllowed && status.StatusCode != http.StatusNotImplemented && status.StatusCode != http.StatusForbidden) {
		return false
	}

	resp, err = c.do(ctx, http.MethodGet, targetURL, 0)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (c *HTTPClient) do(ctx context.Context, method, targetURL string, retries int) (*http.Response, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" {
		return nil, errors.Parse("request", targetURL, fmt.Errorf("invalid URL: %q", targetURL))
	}

	breaker := c.breakers.Breaker(u.Host)
	if !breaker.CanExecute() {
		return nil, errors.Transient("request", targetURL, errors.ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := c.rateLimiter.Wait(ctx, targetURL); err != nil {
			return nil, errors.Transient("rate limit", targetURL, err)
		}

		req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
		if err != nil {
			return nil, errors.Parse("request", targetURL, err)
		}
		c.setRequestHeaders(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveRequest(u.Host, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, errors.Transient("request", targetURL, ctx.Err())
			}
			lastErr = errors.Transient("request", targetURL, fmt.Errorf("attempt %d/%d: %w", attempt+1, retries+1, err))
		} else {
			c.metrics.ObserveRequest(u.Host, resp.StatusCode, time.Since(start))
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				breaker.RecordSuccess()
				return resp, nil
			}
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()

			statusErr := &errors.StatusError{StatusCode: resp.StatusCode, URL: targetURL}
			lastErr = errors.Transient("request", targetURL, statusErr)
			if !statusErr.Retryable() {
				// The host answered; a 404 says nothing about its health.
				breaker.RecordSuccess()
				return nil, lastErr
			}
			if wait := retryAfter(resp); wait > 0 && attempt < retries {
				c.logger.Debugf("%s asked to retry after %v", u.Host, wait)
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, errors.Transient("request", targetURL, err)
				}
				continue
			}
		}

		if attempt < retries {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return nil, errors.Transient("request", targetURL, err)
			}
		}
	}

	breaker.RecordFailure()
	return nil, lastErr
}

// setRequestHeaders configures request headers including user agent rotation
func (c *HTTPClient) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.getNextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
}

// getNextUserAgent returns the next user agent in rotation
func (c *HTTPClient) getNextUserAgent() string {
	c.uaMutex.Lock()
	defer c.uaMutex.Unlock()

	if len(c.userAgents) == 0 {
		return "CarScrapexter/1.0"
	}

	userAgent := c.userAgents[c.currentUA]
	c.currentUA = (c.currentUA + 1) % len(c.userAgents)

	return userAgent
}

// backoff implements exponential backoff with jitter
func (c *HTTPClient) backoff(attempt int) time.Duration {
	delay := c.retryDelay * time.Duration(1<<uint(attempt))
	if delay > c.maxRetryDelay || delay <= 0 {
		delay = c.maxRetryDelay
	}
	if half := int64(delay / 2); half > 0 {
		delay += time.Duration(rand.Int63n(half))
	}
	return delay
}

// Breakers exposes the per-host circuit breakers, mostly for diagnostics.
func (c *HTTPClient) Breakers() *errors.Service {
	return c.breakers
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		d := time.Duration(secs) * time.Second
		if d > time.Minute {
			d = time.Minute
		}
		return d
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseDocument parses HTML and records the page URL on the document.
func ParseDocument(body []byte, pageURL *url.URL) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		u := ""
		if pageURL != nil {
			u = pageURL.String()
		}
		return nil, errors.Parse("parse html", u, err)
	}
	doc.Url = pageURL
	return doc, nil
}

// getDefaultUserAgents returns a set of realistic user agent strings
func getDefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	}
}
