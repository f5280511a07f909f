// internal/harvest/harvest.go

// Package harvest discovers, downloads and validates vehicle photos.
package harvest

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/CarScrapexter/internal/detect"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

const (
	DefaultMinBytes    int64 = 10_000
	DefaultMaxBytes    int64 = 5_000_000
	DefaultTimeout           = 10 * time.Second
	DefaultConcurrency       = 4
)

// DefaultStopwords mark site chrome rather than vehicle photos.
var DefaultStopwords = []string{"logo", "icon", "banner", "button", "arrow", "star", "header", "footer"}

// Fetcher downloads a resource, reading at most limit bytes.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string, limit int64) ([]byte, string, error)
}

// Options tune the harvester; zero values take the defaults.
type Options struct {
	MinBytes    int64
	MaxBytes    int64
	Timeout     time.Duration
	Concurrency int
	Stopwords   []string // added to DefaultStopwords
}

// Result is the outcome of one harvest.
type Result struct {
	Photos   []vehicle.Photo
	Fetched  int // downloads attempted
	Accepted int
	Rejected int // wrong size, not an image, or a duplicate payload
	Failed   int // network or HTTP errors
}

// Harvester turns image references into validated photos.
type Harvester struct {
	fetcher     Fetcher
	minBytes    int64
	maxBytes    int64
	timeout     time.Duration
	concurrency int
	stopwords   []string
	logger      utils.Logger
}

// NewHarvester creates a harvester that downloads through fetcher.
func NewHarvester(fetcher Fetcher, opts Options) *Harvester {
	if opts.MinBytes <= 0 {
		opts.MinBytes = DefaultMinBytes
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	stopwords := append([]string(nil), DefaultStopwords...)
	for _, w := range opts.Stopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			stopwords = append(stopwords, w)
		}
	}

	return &Harvester{
		fetcher:     fetcher,
		minBytes:    opts.MinBytes,
		maxBytes:    opts.MaxBytes,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		stopwords:   stopwords,
		logger:      utils.NewComponentLogger("harvester"),
	}
}

// Collect returns the photo URLs referenced inside sel, in document order,
// without site chrome.
func (h *Harvester) Collect(sel *goquery.Selection, base *url.URL) []string {
	return h.Filter(detect.ImageRefs(sel, base))
}

// Filter drops non-http references, stopword matches and duplicates.
// Stopwords are matched against the path and query only, so a dealer
// whose host name contains one still gets its photos.
func (h *Harvester) Filter(refs []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, ref := range refs {
		u, err := url.Parse(ref)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if h.isChrome(strings.ToLower(u.Path + "?" + u.RawQuery)) {
			continue
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

func (h *Harvester) isChrome(s string) bool {
	for _, w := range h.stopwords {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type download struct {
	photo vehicle.Photo
	ok    bool
	err   error
}

// Harvest downloads urls in order, in windows of the configured
// concurrency, until limit photos are accepted. A failed download is
// skipped; zero photos is a valid result.
func (h *Harvester) Harvest(ctx context.Context, urls []string, limit int) Result {
	var res Result
	if limit <= 0 {
		return res
	}
	seen := map[string]bool{}

	for start, end := 0, 0; start < len(urls) && len(res.Photos) < limit; start = end {
		if ctx.Err() != nil {
			break
		}
		end = start + h.concurrency
		if end > len(urls) {
			end = len(urls)
		}
		// Never fetch more than the photos still missing.
		if missing := limit - len(res.Photos); end-start > missing {
			end = start + missing
		}

		window := make([]download, end-start)
		var g errgroup.Group
		for i, u := range urls[start:end] {
			g.Go(func() error {
				window[i] = h.fetch(ctx, u)
				return nil
			})
		}
		g.Wait()

		for _, d := range window {
			res.Fetched++
			switch {
			case d.err != nil:
				res.Failed++
			case !d.ok || seen[d.photo.Hash]:
				res.Rejected++
			case len(res.Photos) < limit:
				seen[d.photo.Hash] = true
				res.Photos = append(res.Photos, d.photo)
				res.Accepted++
			}
		}
	}
	return res
}

func (h *Harvester) fetch(ctx context.Context, u string) download {
	fetchCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, contentType, err := h.fetcher.FetchBytes(fetchCtx, u, h.maxBytes+1)
	if err != nil {
		h.logger.Debugf("image %s skipped: %v", u, err)
		return download{err: err}
	}

	size := int64(len(body))
	if size <= h.minBytes || size >= h.maxBytes {
		return download{}
	}

	mediaType := utils.ParseContentType(contentType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = utils.ParseContentType(http.DetectContentType(body))
	}
	if !utils.IsImageContent(mediaType) {
		return download{}
	}

	return download{
		ok: true,
		photo: vehicle.Photo{
			SourceURL:   u,
			ContentType: mediaType,
			Size:        len(body),
			Hash:        utils.HashBytes(body),
			Data:        "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(body),
		},
	}
}
