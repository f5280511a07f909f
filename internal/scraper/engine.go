// internal/scraper/engine.go
package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/valpere/CarScrapexter/internal/config"
	"github.com/valpere/CarScrapexter/internal/dedup"
	"github.com/valpere/CarScrapexter/internal/detect"
	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/extract"
	"github.com/valpere/CarScrapexter/internal/harvest"
	"github.com/valpere/CarScrapexter/internal/navigate"
	"github.com/valpere/CarScrapexter/internal/output"
	"github.com/valpere/CarScrapexter/internal/pipeline"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// PageFetcher is everything the engine needs from the network. *Session
// implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, url, kind string) (*goquery.Document, bool, error)
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
	FetchBytes(ctx context.Context, url string, limit int64) ([]byte, string, error)
	Exists(ctx context.Context, url string) bool
}

// Engine runs the extraction pipeline over the dealer registry: inventory
// discovery, pagination, candidate detection, field extraction, photo
// harvesting, detail fusion, deduplication and storage.
type Engine struct {
	config    *config.Config
	fetcher   PageFetcher
	store     output.Store
	detector  *detect.Detector
	extractor *extract.Extractor
	harvester *harvest.Harvester
	planner   *navigate.Planner
	guard     *dedup.Guard
	summary   *Summary
	now       func() time.Time
	logger    utils.Logger

	reserved atomic.Int64 // store slots claimed against the target count
	stop     context.CancelFunc
}

// NewEngine wires the pipeline stages from cfg. summary may be nil.
func NewEngine(cfg *config.Config, fetcher PageFetcher, store output.Store, summary *Summary) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if summary == nil {
		summary = NewSummary(nil)
	}

	var transformer *pipeline.RecordTransformer
	if len(cfg.Extraction.Transforms) > 0 {
		transformer = &pipeline.RecordTransformer{Fields: cfg.Extraction.Transforms}
	}

	return &Engine{
		config:    cfg,
		fetcher:   fetcher,
		store:     store,
		detector:  detect.NewDetector(cfg.Detection.MaxCandidates, cfg.Detection.MinSignals),
		extractor: extract.NewExtractor(time.Now, transformer),
		harvester: harvest.NewHarvester(fetcher, harvest.Options{
			MinBytes:    cfg.Harvest.MinBytes,
			MaxBytes:    cfg.Harvest.MaxBytes,
			Timeout:     cfg.Harvest.Timeout,
			Concurrency: cfg.Harvest.Concurrency,
			Stopwords:   cfg.Harvest.Stopwords,
		}),
		planner: navigate.NewPlanner(fetcher, navigate.Options{
			MaxPages:       cfg.Navigation.MaxPages,
			MaxDetailLinks: cfg.Navigation.MaxDetailLinks,
			PageParameter:  cfg.Navigation.PageParameter,
			ProbePaths:     cfg.Navigation.ProbePaths,
		}),
		guard:   dedup.NewGuard(),
		summary: summary,
		now:     time.Now,
		logger:  utils.NewComponentLogger("engine"),
	}, nil
}

// Summary returns the live counters of the run.
func (e *Engine) Summary() *Summary {
	return e.summary
}

// Run visits every configured dealer and returns the run summary. It stops
// early at run.max_duration or once run.target_count records are stored;
// records already stored are kept. Only a persistence failure, or the
// caller cancelling ctx, is returned as an error.
func (e *Engine) Run(ctx context.Context) (SummarySnapshot, error) {
	parent := ctx
	if e.config.Run.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Run.MaxDuration)
		defer cancel()
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	e.stop = stop

	dealers := dealersFromConfig(e.config.Dealers)
	e.logger.Infof("starting run over %d dealers", len(dealers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.config.Run.DealerConcurrency))
	for _, dealer := range dealers {
		if gctx.Err() != nil || e.targetReached() {
			break
		}
		g.Go(func() error {
			// the slot may free up only after the run stopped
			if gctx.Err() != nil || e.targetReached() {
				return nil
			}
			return e.runDealer(gctx, dealer)
		})
	}
	err := g.Wait()

	e.summary.Finish()
	snap := e.summary.Result()
	e.logger.Infof("run finished in %s: %d dealers, %d stored, %d duplicates, %d errors",
		snap.Duration.Round(time.Millisecond), snap.DealersAttempted, snap.RecordsStored,
		snap.DuplicatesSuppressed, len(snap.ErrorSamples))

	if err != nil {
		return snap, err
	}
	if parent.Err() != nil {
		return snap, parent.Err()
	}
	return snap, nil
}

func dealersFromConfig(entries []config.DealerConfig) []vehicle.Dealer {
	dealers := make([]vehicle.Dealer, 0, len(entries))
	for _, d := range entries {
		name := d.Name
		if name == "" {
			name = d.URL
		}
		dealers = append(dealers, vehicle.Dealer{
			Name:          name,
			URL:           d.URL,
			Region:        d.Region,
			InventoryPath: d.InventoryPath,
		})
	}
	return dealers
}

// dealerRun is the state of one dealer unit shared by its vehicle units.
// dealer and platform are fixed before any vehicle unit starts.
type dealerRun struct {
	dealer   vehicle.Dealer
	platform vehicle.Platform
	logger   utils.Logger
	stored   atomic.Int64
}

// runDealer processes one dealer website. Failures that only concern this
// dealer are recorded and swallowed; a persistence failure is returned.
func (e *Engine) runDealer(ctx context.Context, dealer vehicle.Dealer) error {
	start := time.Now()
	e.summary.DealerStarted(dealer)
	result := DealerResult{Name: dealer.Name, URL: dealer.URL, Region: dealer.Region, Outcome: DealerSucceeded}
	defer func() {
		result.Duration = time.Since(start)
		e.summary.DealerFinished(result)
	}()

	fail := func(err error) {
		e.summary.Error(err)
		result.Outcome = DealerFailed
		result.Error = err.Error()
	}

	inv, err := e.planner.FindInventory(ctx, dealer)
	if err != nil {
		fail(classify("find inventory", dealer.URL, err))
		return nil
	}
	site := vehicle.DealerSite{
		Dealer:          dealer,
		BaseURL:         dealer.URL,
		InventoryURL:    inv.URL,
		InventorySource: inv.Source,
	}

	first := inv.Document
	if first == nil {
		doc, rendered, err := e.fetcher.FetchPage(ctx, inv.URL, PageInventory)
		if err != nil {
			fail(classify("fetch inventory", inv.URL, err))
			return nil
		}
		first = doc
		site.RequiresJavaScript = rendered
	} else {
		site.RequiresJavaScript = detect.RequiresJavaScript(first)
	}

	site.Platform = detect.Fingerprint(first, inv.URL)
	if site.Platform == vehicle.PlatformCustom && inv.Homepage != nil {
		site.Platform = detect.Fingerprint(inv.Homepage, dealer.URL)
	}

	run := &dealerRun{
		dealer:   dealer,
		platform: site.Platform,
		logger: e.logger.WithFields(map[string]interface{}{
			"dealer":   dealer.Name,
			"platform": string(site.Platform),
		}),
	}
	run.logger.Infof("inventory %s (%s)", inv.URL, inv.Source)

	units, uctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(max(1, e.config.Run.VehicleConcurrency)))
	launch := func(unit func(ctx context.Context) error) bool {
		if uctx.Err() != nil || e.targetReached() {
			return false
		}
		if err := sem.Acquire(uctx, 1); err != nil {
			return false
		}
		units.Go(func() error {
			defer sem.Release(1)
			return unit(uctx)
		})
		return true
	}

	var candidates int64
	plan := e.planner.Walk(uctx, inv.URL, first, func(page int, doc *goquery.Document) bool {
		found := e.detector.Detect(doc, site.Platform)
		candidates += int64(len(found))
		e.summary.Candidates(len(found))
		run.logger.Debugf("page %d: %d candidates", page, len(found))

		pageURL := inv.URL
		if doc.Url != nil {
			pageURL = doc.Url.String()
		}
		for _, c := range found {
			if !launch(func(ctx context.Context) error {
				return e.processCandidate(ctx, run, pageURL, c)
			}) {
				return false
			}
		}
		return uctx.Err() == nil && !e.targetReached()
	})
	e.summary.Pages(plan.PagesVisited)

	// Listings that are bare links still yield records through their
	// detail pages.
	if candidates == 0 && len(plan.DetailURLs) > 0 {
		run.logger.Infof("no listing candidates, reading %d detail pages", len(plan.DetailURLs))
		for _, link := range plan.DetailURLs {
			if !launch(func(ctx context.Context) error {
				return e.processDetailOnly(ctx, run, link)
			}) {
				break
			}
		}
	}

	err = units.Wait()

	site.Cursor = plan.PagesVisited
	result.Platform = site.Platform
	result.InventoryURL = site.InventoryURL
	result.InventorySource = site.InventorySource
	result.RequiresJavaScript = site.RequiresJavaScript
	result.PagesVisited = site.Cursor
	result.DetailLinks = len(plan.DetailURLs)
	result.Candidates = candidates
	result.Stored = run.stored.Load()

	// unit errors were counted where they happened
	if err != nil {
		result.Outcome = DealerFailed
		result.Error = err.Error()
		if errors.IsFatalForRun(err) {
			return err
		}
		return nil
	}

	if candidates == 0 && len(plan.DetailURLs) == 0 {
		e.summary.Error(errors.Structural("detect", inv.URL, fmt.Errorf("no vehicle listings found")))
		result.Outcome = DealerEmpty
	}
	run.logger.Infof("done: %d candidates, %d detail links, %d stored", candidates, len(plan.DetailURLs), result.Stored)
	return nil
}

// processCandidate turns one listing candidate into a record, completing it
// from the detail page when there is one.
func (e *Engine) processCandidate(ctx context.Context, run *dealerRun, pageURL string, c detect.Candidate) error {
	rec := e.extractor.FromCandidate(ctx, c)
	e.stamp(&rec, run)
	if rec.SourceURL == "" {
		rec.SourceURL = listingSourceURL(pageURL, rec)
	}

	photos := e.harvester.Harvest(ctx, e.harvester.Filter(c.Images), e.config.Harvest.ListingCap)
	e.countImages(photos)
	rec.Photos = photos.Photos
	rec.Refresh()

	detailAvailable := c.DetailURL != "" && !e.config.Navigation.SkipDetails
	decision := extract.Gate(rec, detailAvailable)
	e.summary.Decision(decision.String())
	if decision == extract.Reject {
		return nil
	}

	if detailAvailable {
		detail, err := e.readDetail(ctx, run, c.DetailURL)
		switch {
		case err == nil:
			rec = vehicle.Merge(rec, detail, e.config.Harvest.MergedCap)
		case errors.IsFatalForDealer(err):
			return err
		case decision == extract.Defer:
			run.logger.Debugf("dropping %s: detail page unavailable", c.DetailURL)
			return nil
		}
	}
	return e.emit(ctx, run, rec)
}

// processDetailOnly builds a record from a detail page alone.
func (e *Engine) processDetailOnly(ctx context.Context, run *dealerRun, detailURL string) error {
	rec, err := e.readDetail(ctx, run, detailURL)
	if err != nil {
		if errors.IsFatalForDealer(err) {
			return err
		}
		return nil
	}
	decision := extract.Gate(rec, false)
	e.summary.Decision(decision.String())
	if decision != extract.Accept {
		return nil
	}
	return e.emit(ctx, run, rec)
}

// readDetail fetches and extracts a detail page with its photos. Fetch
// failures are counted here.
func (e *Engine) readDetail(ctx context.Context, run *dealerRun, detailURL string) (vehicle.Record, error) {
	doc, _, err := e.fetcher.FetchPage(ctx, detailURL, PageDetail)
	if err != nil {
		err = classify("fetch detail", detailURL, err)
		e.summary.Error(err)
		run.logger.Debugf("detail %s: %v", detailURL, err)
		return vehicle.Record{}, err
	}
	e.summary.DetailPage()

	rec := e.extractor.FromDocument(ctx, doc)
	e.stamp(&rec, run)
	if rec.SourceURL == "" {
		rec.SourceURL = detailURL
	}

	base := doc.Url
	if base == nil {
		base, _ = url.Parse(detailURL)
	}
	photos := e.harvester.Harvest(ctx, e.harvester.Collect(doc.Selection, base), e.config.Harvest.DetailCap)
	e.countImages(photos)
	rec.Photos = photos.Photos
	rec.Refresh()
	return rec, nil
}

// emit stores rec unless it is a duplicate, fails the record invariants or
// the target count is already met.
func (e *Engine) emit(ctx context.Context, run *dealerRun, rec vehicle.Record) error {
	rec.Sanitize(e.now())
	rec.Refresh()
	if !rec.Emittable() {
		run.logger.Debugf("not emitting %s: incomplete record", rec.SourceURL)
		return nil
	}

	if !e.guard.Claim(rec.SourceURL) {
		e.summary.Duplicate()
		return nil
	}
	if !e.reserve() {
		e.guard.Release(rec.SourceURL)
		return nil
	}

	// A write that has started completes even when the run is stopping.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout())
	defer cancel()
	if err := e.store.Upsert(writeCtx, rec); err != nil {
		e.guard.Release(rec.SourceURL)
		e.reserved.Add(-1)
		perr := errors.Persistence("upsert", rec.SourceURL, err)
		e.summary.Error(perr)
		run.logger.Errorf("store failed: %v", err)
		return perr
	}

	run.stored.Add(1)
	e.summary.Stored()
	run.logger.Debugf("stored %s (%s)", rec.Title(), rec.SourceURL)
	if target := int64(e.config.Run.TargetCount); target > 0 && e.summary.StoredCount() >= target {
		e.logger.Infof("target of %d records reached", target)
		if e.stop != nil {
			e.stop()
		}
	}
	return nil
}

// reserve claims one store slot against the target count.
func (e *Engine) reserve() bool {
	target := int64(e.config.Run.TargetCount)
	if target <= 0 {
		e.reserved.Add(1)
		return true
	}
	for {
		n := e.reserved.Load()
		if n >= target {
			return false
		}
		if e.reserved.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (e *Engine) targetReached() bool {
	target := int64(e.config.Run.TargetCount)
	return target > 0 && e.summary.StoredCount() >= target
}

func (e *Engine) storeTimeout() time.Duration {
	if e.config.Store.Timeout > 0 {
		return e.config.Store.Timeout
	}
	return config.DefaultStoreTimeout
}

func (e *Engine) stamp(rec *vehicle.Record, run *dealerRun) {
	now := e.now()
	rec.Dealer = run.dealer
	rec.Platform = run.platform
	rec.DiscoveredAt = now
	rec.UpdatedAt = now
}

func (e *Engine) countImages(r harvest.Result) {
	e.summary.Images(r.Fetched, r.Accepted, r.Rejected, r.Failed)
}

// listingSourceURL identifies a listing without a detail page by its
// inventory page, without the pagination query, qualified by VIN, stock
// number or a digest of what the listing shows.
func listingSourceURL(pageURL string, rec vehicle.Record) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	q := url.Values{}
	switch {
	case rec.VIN != "":
		q.Set("vin", rec.VIN)
	case rec.StockNumber != "":
		q.Set("stock", rec.StockNumber)
	default:
		q.Set("listing", listingDigest(rec))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func listingDigest(rec vehicle.Record) string {
	key := strings.ToLower(rec.Title())
	if rec.Price != nil {
		key += fmt.Sprintf("|%.0f", *rec.Price)
	} else {
		key += "|"
	}
	if rec.Mileage != nil {
		key += fmt.Sprintf("|%d", *rec.Mileage)
	} else {
		key += "|"
	}
	key += "|" + strings.ToLower(rec.ExteriorColor)
	return utils.HashBytes([]byte(key))[:16]
}

// classify gives unclassified errors a kind: cancellation and network
// failures are transient, anything else found while reading a page is a
// parse failure.
func classify(op, u string, err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transient(op, u, err)
	}
	return errors.Parse(op, u, err)
}
