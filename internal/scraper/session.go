// internal/scraper/session.go
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/browser"
	"github.com/valpere/CarScrapexter/internal/detect"
	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/monitoring"
	"github.com/valpere/CarScrapexter/internal/utils"
)

// Render modes.
const (
	RenderNever  = "never"
	RenderAuto   = "auto"
	RenderAlways = "always"
)

// Page kinds, as reported to metrics.
const (
	PageInventory = "inventory"
	PageDetail    = "detail"
)

// RenderPool hands out browser sessions. *browser.BrowserPool implements it.
type RenderPool interface {
	Get(ctx context.Context) (browser.Session, error)
	Put(s browser.Session)
	Discard(s browser.Session)
	Close() error
}

// Session is the document fetcher of one run. It fetches raw HTML over the
// HTTP client and, depending on the render mode, re-fetches pages through a
// headless browser. A Session owns its pool and must be closed.
type Session struct {
	client  *HTTPClient
	pool    RenderPool
	mode    string
	metrics *monitoring.Metrics
	logger  utils.Logger

	closeOnce sync.Once
}

// NewSession creates a session. pool may be nil, which forces mode never.
func NewSession(client *HTTPClient, pool RenderPool, mode string, metrics *monitoring.Metrics) *Session {
	if pool == nil || mode == "" {
		mode = RenderNever
	}
	return &Session{
		client:  client,
		pool:    pool,
		mode:    mode,
		metrics: metrics,
		logger:  utils.NewComponentLogger("session"),
	}
}

// Mode returns the effective render mode.
func (s *Session) Mode() string {
	return s.mode
}

// FetchDocument fetches a navigation page. It satisfies the planner's fetcher.
func (s *Session) FetchDocument(ctx context.Context, targetURL string) (*goquery.Document, error) {
	doc, _, err := s.FetchPage(ctx, targetURL, PageInventory)
	return doc, err
}

// FetchPage fetches one page and reports whether it was rendered. In auto
// mode a raw page that looks script-built is rendered again.
func (s *Session) FetchPage(ctx context.Context, targetURL, kind string) (*goquery.Document, bool, error) {
	if s.mode == RenderAlways {
		doc, err := s.render(ctx, targetURL)
		if err != nil {
			return nil, false, err
		}
		s.metrics.PageFetched("rendered", kind)
		return doc, true, nil
	}

	doc, err := s.client.FetchDocument(ctx, targetURL)
	if err != nil {
		return nil, false, err
	}
	s.metrics.PageFetched("raw", kind)

	if s.mode != RenderAuto || !detect.RequiresJavaScript(doc) {
		return doc, false, nil
	}

	s.logger.Debugf("%s needs scripts, rendering", targetURL)
	rendered, err := s.render(ctx, doc.Url.String())
	if err != nil {
		// without a browser the dealer cannot be read; a failed render
		// still leaves the static page
		if errors.KindOf(err) != errors.KindTransient || ctx.Err() != nil {
			return nil, false, err
		}
		s.logger.Warnf("render of %s failed, keeping static page: %v", targetURL, err)
		return doc, false, nil
	}
	s.metrics.PageFetched("rendered", kind)
	return rendered, true, nil
}

// render loads targetURL in a pooled browser session. Failing to obtain a
// session is a resource error; failing to load the page is transient.
func (s *Session) render(ctx context.Context, targetURL string) (*goquery.Document, error) {
	pageURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, errors.Parse("render", targetURL, err)
	}

	session, err := s.pool.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Transient("render", targetURL, ctx.Err())
		}
		return nil, errors.Resource("render", targetURL, err)
	}

	html, err := session.Render(ctx, targetURL)
	if err != nil {
		if ctx.Err() == nil {
			s.pool.Discard(session)
		} else {
			s.pool.Put(session)
		}
		return nil, errors.Transient("render", targetURL, err)
	}
	s.pool.Put(session)

	return ParseDocument([]byte(html), pageURL)
}

// FetchBytes downloads an image over HTTP; photos are never rendered.
func (s *Session) FetchBytes(ctx context.Context, targetURL string, limit int64) ([]byte, string, error) {
	return s.client.FetchBytes(ctx, targetURL, limit)
}

// Exists checks a URL over HTTP.
func (s *Session) Exists(ctx context.Context, targetURL string) bool {
	return s.client.Exists(ctx, targetURL)
}

// Close releases the browser pool. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.pool != nil {
			if cerr := s.pool.Close(); cerr != nil {
				err = fmt.Errorf("failed to close browser pool: %w", cerr)
			}
		}
	})
	return err
}
