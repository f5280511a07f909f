// internal/scraper/summary.go
package scraper

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/monitoring"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// Dealer outcomes.
const (
	DealerRunning   = "running"
	DealerSucceeded = "succeeded"
	DealerEmpty     = "empty"
	DealerFailed    = "failed"
)

// maxErrorSamples bounds the error messages kept for the report
const maxErrorSamples = 50

// DealerResult is the report of one dealer unit.
type DealerResult struct {
	Name               string                  `json:"name"`
	URL                string                  `json:"url"`
	Region             string                  `json:"region,omitempty"`
	Outcome            string                  `json:"outcome"`
	Platform           vehicle.Platform        `json:"platform,omitempty"`
	InventoryURL       string                  `json:"inventory_url,omitempty"`
	InventorySource    vehicle.InventorySource `json:"inventory_source,omitempty"`
	RequiresJavaScript bool                    `json:"requires_javascript"`
	PagesVisited       int                     `json:"pages_visited"`
	DetailLinks        int                     `json:"detail_links"`
	Candidates         int64                   `json:"candidates"`
	Stored             int64                   `json:"stored"`
	Error              string                  `json:"error,omitempty"`
	Duration           time.Duration           `json:"duration"`
}

// SummarySnapshot is a point-in-time copy of a Summary, safe to encode.
type SummarySnapshot struct {
	StartedAt            time.Time        `json:"started_at"`
	Duration             time.Duration    `json:"duration"`
	Finished             bool             `json:"finished"`
	DealersAttempted     int64            `json:"dealers_attempted"`
	DealersSucceeded     int64            `json:"dealers_succeeded"`
	DealersEmpty         int64            `json:"dealers_empty"`
	DealersFailed        int64            `json:"dealers_failed"`
	PagesFetched         int64            `json:"pages_fetched"`
	DetailPagesFetched   int64            `json:"detail_pages_fetched"`
	CandidatesDiscovered int64            `json:"candidates_discovered"`
	CandidatesAccepted   int64            `json:"candidates_accepted"`
	CandidatesDeferred   int64            `json:"candidates_deferred"`
	CandidatesRejected   int64            `json:"candidates_rejected"`
	DuplicatesSuppressed int64            `json:"duplicates_suppressed"`
	RecordsStored        int64            `json:"records_stored"`
	ImagesFetched        int64            `json:"images_fetched"`
	ImagesAccepted       int64            `json:"images_accepted"`
	ImagesRejected       int64            `json:"images_rejected"`
	ImagesFailed         int64            `json:"images_failed"`
	ErrorsByKind         map[string]int64 `json:"errors_by_kind"`
	ErrorSamples         []string         `json:"error_samples,omitempty"`
	Dealers              []DealerResult   `json:"dealers"`
}

// Summary accumulates the counters of one run. Every method is safe for
// concurrent use; counters are mirrored into the Prometheus collectors.
type Summary struct {
	metrics *monitoring.Metrics
	started time.Time
	ended   atomic.Int64 // unix nanos, zero while running

	dealersAttempted atomic.Int64
	dealersSucceeded atomic.Int64
	dealersEmpty     atomic.Int64
	dealersFailed    atomic.Int64
	pages            atomic.Int64
	detailPages      atomic.Int64
	discovered       atomic.Int64
	accepted         atomic.Int64
	deferred         atomic.Int64
	rejected         atomic.Int64
	duplicates       atomic.Int64
	stored           atomic.Int64
	imagesFetched    atomic.Int64
	imagesAccepted   atomic.Int64
	imagesRejected   atomic.Int64
	imagesFailed     atomic.Int64

	mu           sync.Mutex
	errorsByKind map[string]int64
	errorSamples []string
	dealers      map[string]*DealerResult
	order        []string
}

// NewSummary starts a summary clock. metrics may be nil.
func NewSummary(metrics *monitoring.Metrics) *Summary {
	return &Summary{
		metrics:      metrics,
		started:      time.Now(),
		errorsByKind: make(map[string]int64),
		dealers:      make(map[string]*DealerResult),
	}
}

// DealerStarted registers a dealer unit as running.
func (s *Summary) DealerStarted(d vehicle.Dealer) {
	s.dealersAttempted.Add(1)
	s.metrics.DealerStarted()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dealers[d.Name]; !ok {
		s.order = append(s.order, d.Name)
	}
	s.dealers[d.Name] = &DealerResult{Name: d.Name, URL: d.URL, Region: d.Region, Outcome: DealerRunning}
}

// DealerFinished records the final report of a dealer unit.
func (s *Summary) DealerFinished(result DealerResult) {
	switch result.Outcome {
	case DealerSucceeded:
		s.dealersSucceeded.Add(1)
	case DealerEmpty:
		s.dealersEmpty.Add(1)
	default:
		s.dealersFailed.Add(1)
	}
	s.metrics.DealerFinished(result.Outcome)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dealers[result.Name]; !ok {
		s.order = append(s.order, result.Name)
	}
	r := result
	s.dealers[result.Name] = &r
}

// Pages counts fetched inventory pages.
func (s *Summary) Pages(n int) {
	s.pages.Add(int64(n))
}

// DetailPage counts a fetched detail page.
func (s *Summary) DetailPage() {
	s.pages.Add(1)
	s.detailPages.Add(1)
}

// Candidates counts discovered listing candidates.
func (s *Summary) Candidates(n int) {
	s.discovered.Add(int64(n))
	for i := 0; i < n; i++ {
		s.metrics.CandidateOutcome("discovered")
	}
}

// Decision counts the outcome of the acceptance gate.
func (s *Summary) Decision(d string) {
	switch d {
	case "accepted":
		s.accepted.Add(1)
	case "deferred":
		s.deferred.Add(1)
	default:
		s.rejected.Add(1)
	}
	s.metrics.CandidateOutcome(d)
}

// Images counts the downloads of one harvest.
func (s *Summary) Images(fetched, accepted, rejected, failed int) {
	s.imagesFetched.Add(int64(fetched))
	s.imagesAccepted.Add(int64(accepted))
	s.imagesRejected.Add(int64(rejected))
	s.imagesFailed.Add(int64(failed))
	s.metrics.ImageOutcome("accepted", accepted)
	s.metrics.ImageOutcome("rejected", rejected)
	s.metrics.ImageOutcome("failed", failed)
}

// Duplicate counts a suppressed re-emission.
func (s *Summary) Duplicate() {
	s.duplicates.Add(1)
	s.metrics.Duplicate()
}

// Stored counts a persisted record.
func (s *Summary) Stored() {
	s.stored.Add(1)
	s.metrics.RecordStored()
}

// StoredCount returns the number of persisted records so far.
func (s *Summary) StoredCount() int64 {
	return s.stored.Load()
}

// Error counts err under its kind and keeps a bounded sample of messages.
func (s *Summary) Error(err error) {
	if err == nil {
		return
	}
	kind := errors.KindOf(err).String()
	s.metrics.Error(kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorsByKind[kind]++
	if len(s.errorSamples) < maxErrorSamples {
		s.errorSamples = append(s.errorSamples, err.Error())
	}
}

// Finish stops the clock.
func (s *Summary) Finish() {
	s.ended.CompareAndSwap(0, time.Now().UnixNano())
}

// Result returns a snapshot of the counters.
func (s *Summary) Result() SummarySnapshot {
	snap := SummarySnapshot{
		StartedAt:            s.started,
		DealersAttempted:     s.dealersAttempted.Load(),
		DealersSucceeded:     s.dealersSucceeded.Load(),
		DealersEmpty:         s.dealersEmpty.Load(),
		DealersFailed:        s.dealersFailed.Load(),
		PagesFetched:         s.pages.Load(),
		DetailPagesFetched:   s.detailPages.Load(),
		CandidatesDiscovered: s.discovered.Load(),
		CandidatesAccepted:   s.accepted.Load(),
		CandidatesDeferred:   s.deferred.Load(),
		CandidatesRejected:   s.rejected.Load(),
		DuplicatesSuppressed: s.duplicates.Load(),
		RecordsStored:        s.stored.Load(),
		ImagesFetched:        s.imagesFetched.Load(),
		ImagesAccepted:       s.imagesAccepted.Load(),
		ImagesRejected:       s.imagesRejected.Load(),
		ImagesFailed:         s.imagesFailed.Load(),
		ErrorsByKind:         make(map[string]int64),
	}

	if ended := s.ended.Load(); ended != 0 {
		snap.Finished = true
		snap.Duration = time.Unix(0, ended).Sub(s.started)
	} else {
		snap.Duration = time.Since(s.started)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.errorsByKind {
		snap.ErrorsByKind[k] = v
	}
	snap.ErrorSamples = append([]string(nil), s.errorSamples...)
	for _, name := range s.order {
		snap.Dealers = append(snap.Dealers, *s.dealers[name])
	}
	return snap
}

// Snapshot implements monitoring.SummaryProvider.
func (s *Summary) Snapshot() interface{} {
	return s.Result()
}

// DealerSnapshot implements monitoring.SummaryProvider.
func (s *Summary) DealerSnapshot(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.dealers[name]
	if !ok {
		return nil, false
	}
	return *r, true
}

// ErrorKinds returns the error categories seen so far, sorted.
func (s *Summary) ErrorKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.errorsByKind))
	for k := range s.errorsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
