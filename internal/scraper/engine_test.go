// internal/scraper/engine_test.go
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/config"
	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/output"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// fakeSite serves canned pages and images without a network.
type fakeSite struct {
	pages  map[string]string
	images map[string][]byte

	mu      sync.Mutex
	fetched map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:   make(map[string]string),
		images:  make(map[string][]byte),
		fetched: make(map[string]int),
	}
}

func (s *fakeSite) count(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched[u]++
}

func (s *fakeSite) fetches(u string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched[u]
}

func (s *fakeSite) FetchPage(ctx context.Context, u, kind string) (*goquery.Document, bool, error) {
	s.count(u)
	page, ok := s.pages[u]
	if !ok {
		return nil, false, errors.Transient("fetch", u, &errors.StatusError{StatusCode: 404, URL: u})
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, false, err
	}
	doc.Url, _ = url.Parse(u)
	return doc, false, nil
}

func (s *fakeSite) FetchDocument(ctx context.Context, u string) (*goquery.Document, error) {
	doc, _, err := s.FetchPage(ctx, u, PageInventory)
	return doc, err
}

func (s *fakeSite) FetchBytes(ctx context.Context, u string, limit int64) ([]byte, string, error) {
	s.count(u)
	body, ok := s.images[u]
	if !ok {
		return nil, "", errors.Transient("fetch", u, &errors.StatusError{StatusCode: 404, URL: u})
	}
	return body, "image/jpeg", nil
}

func (s *fakeSite) Exists(ctx context.Context, u string) bool {
	_, ok := s.pages[u]
	return ok
}

// photo returns a distinct JPEG-looking payload above the size floor.
func photo(seed byte) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{seed}, 20_000)...)
}

// failingStore rejects every write.
type failingStore struct {
	*output.MemoryStore
}

func (failingStore) Upsert(ctx context.Context, rec vehicle.Record) error {
	return fmt.Errorf("disk full")
}

const (
	lotURL       = "https://lot.test/"
	inventoryURL = "https://lot.test/inventory"
	camryURL     = "https://lot.test/inventory/2021-toyota-camry-12345"
	civicURL     = "https://lot.test/inventory/2019-honda-civic-67890"
)

const homePage = `<html><body>
	<nav><a href="/about">About us</a> <a href="/inventory">View Inventory</a></nav>
	<p>Family owned since forever.</p>
</body></html>`

const inventoryPage = `<html><body>
	<div class="inventory-grid">
		<div class="vehicle-card"><a href="/inventory/2021-toyota-camry-12345">2021 Toyota Camry</a> <span>$24,599</span>
			<img src="/photos/camry-1.jpg"></div>
		<div class="vehicle-card"><a href="/inventory/2019-honda-civic-67890">2019 Honda Civic</a> <span>$18,250</span></div>
	</div>
</body></html>`

// the Camry is listed again on page two
const inventoryPage2 = `<html><body>
	<div class="inventory-grid">
		<div class="vehicle-card"><a href="/inventory/2021-toyota-camry-12345">2021 Toyota Camry</a> <span>$24,599</span>
			<img src="/photos/camry-1.jpg"></div>
		<div class="promo">Financing for everyone</div>
	</div>
</body></html>`

const camryPage = `<html><head><title>2021 Toyota Camry</title></head><body>
	<h1>2021 Toyota Camry</h1>
	<p>Price: $24,599</p>
	<p>Mileage: 32,000 miles</p>
	<p>VIN: 4T1G11AK5MU123456</p>
	<img src="/photos/camry-2.jpg"><img src="/photos/camry-3.jpg"><img src="/img/logo.png">
</body></html>`

func lotSite() *fakeSite {
	site := newFakeSite()
	site.pages[lotURL] = homePage
	site.pages[inventoryURL] = inventoryPage
	site.pages[inventoryURL+"?page=2"] = inventoryPage2
	site.pages[camryURL] = camryPage
	site.images["https://lot.test/photos/camry-1.jpg"] = photo(1)
	site.images["https://lot.test/photos/camry-2.jpg"] = photo(2)
	site.images["https://lot.test/photos/camry-3.jpg"] = photo(3)
	site.images["https://lot.test/img/logo.png"] = photo(4)
	return site
}

func testConfig(dealers ...config.DealerConfig) *config.Config {
	cfg := &config.Config{Name: "test", Dealers: dealers}
	cfg.ApplyDefaults()
	return cfg
}

func lakeside() config.DealerConfig {
	return config.DealerConfig{Name: "Lakeside Motors", URL: lotURL, Region: "midwest"}
}

func runEngine(t *testing.T, cfg *config.Config, site PageFetcher, store output.Store) (SummarySnapshot, error) {
	t.Helper()
	engine, err := NewEngine(cfg, site, store, nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine.Run(context.Background())
}

func TestNewEngine_Validation(t *testing.T) {
	cfg := testConfig(lakeside())
	site := newFakeSite()
	store := output.NewMemoryStore()

	if _, err := NewEngine(nil, site, store, nil); err == nil {
		t.Error("Expected error for nil configuration")
	}
	if _, err := NewEngine(cfg, nil, store, nil); err == nil {
		t.Error("Expected error for nil fetcher")
	}
	if _, err := NewEngine(cfg, site, nil, nil); err == nil {
		t.Error("Expected error for nil store")
	}

	engine, err := NewEngine(cfg, site, store, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if engine.Summary() == nil {
		t.Error("Expected a summary to be created")
	}
}

func TestEngine_Run_ListingsAndDetails(t *testing.T) {
	site := lotSite()
	store := output.NewMemoryStore()

	snap, err := runEngine(t, testConfig(lakeside()), site, store)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if store.Len() != 2 {
		t.Fatalf("Expected 2 stored records, got %d", store.Len())
	}
	if snap.RecordsStored != 2 {
		t.Errorf("Expected 2 records in summary, got %d", snap.RecordsStored)
	}
	if snap.DuplicatesSuppressed != 1 {
		t.Errorf("Expected 1 suppressed duplicate, got %d", snap.DuplicatesSuppressed)
	}
	if !snap.Finished {
		t.Error("Expected summary to be finished")
	}

	camry, err := store.FindBySourceURL(context.Background(), camryURL)
	if err != nil || camry == nil {
		t.Fatalf("Expected Camry record, got %v (err %v)", camry, err)
	}
	if camry.Make != "Toyota" || camry.Model != "Camry" {
		t.Errorf("Expected Toyota Camry, got %s %s", camry.Make, camry.Model)
	}
	if camry.Year == nil || *camry.Year != 2021 {
		t.Errorf("Expected year 2021, got %v", camry.Year)
	}
	if camry.Price == nil || *camry.Price != 24599 {
		t.Errorf("Expected price 24599, got %v", camry.Price)
	}
	if camry.Mileage == nil || *camry.Mileage != 32000 {
		t.Errorf("Expected mileage from the detail page, got %v", camry.Mileage)
	}
	if camry.VIN != "4T1G11AK5MU123456" {
		t.Errorf("Expected VIN from the detail page, got %q", camry.VIN)
	}
	if camry.PhotoCount != 3 || len(camry.Photos) != 3 {
		t.Errorf("Expected 3 photos without the logo, got %d", camry.PhotoCount)
	}
	if camry.Dealer.Name != "Lakeside Motors" || camry.Dealer.Region != "midwest" {
		t.Errorf("Expected dealer stamp, got %+v", camry.Dealer)
	}
	if camry.Platform != vehicle.PlatformCustom {
		t.Errorf("Expected custom platform, got %s", camry.Platform)
	}

	// The Civic has no detail page; its listing alone carries it.
	civic, err := store.FindBySourceURL(context.Background(), civicURL)
	if err != nil || civic == nil {
		t.Fatalf("Expected Civic record, got %v (err %v)", civic, err)
	}
	if civic.Price == nil || *civic.Price != 18250 {
		t.Errorf("Expected listing price 18250, got %v", civic.Price)
	}

	for _, rec := range store.All() {
		if !rec.Emittable() {
			t.Errorf("Stored record %s is not emittable", rec.SourceURL)
		}
		if rec.PhotoCount != len(rec.Photos) {
			t.Errorf("Expected photo count %d, got %d", len(rec.Photos), rec.PhotoCount)
		}
		if rec.Completeness != rec.ComputeCompleteness() {
			t.Errorf("Expected completeness %v, got %v", rec.ComputeCompleteness(), rec.Completeness)
		}
		if rec.DiscoveredAt.IsZero() || rec.UpdatedAt.Before(rec.DiscoveredAt) {
			t.Errorf("Bad timestamps on %s: %v / %v", rec.SourceURL, rec.DiscoveredAt, rec.UpdatedAt)
		}
	}

	if len(snap.Dealers) != 1 {
		t.Fatalf("Expected 1 dealer result, got %d", len(snap.Dealers))
	}
	d := snap.Dealers[0]
	if d.Outcome != DealerSucceeded {
		t.Errorf("Expected outcome %s, got %s", DealerSucceeded, d.Outcome)
	}
	if d.InventoryURL != inventoryURL || d.InventorySource != vehicle.InventoryFromAnchor {
		t.Errorf("Expected inventory %s from anchor, got %s from %s", inventoryURL, d.InventoryURL, d.InventorySource)
	}
	if d.PagesVisited != 2 {
		t.Errorf("Expected 2 pages visited, got %d", d.PagesVisited)
	}
	if d.Stored != 2 {
		t.Errorf("Expected 2 stored for dealer, got %d", d.Stored)
	}

	// the missing Civic detail page is a transient failure, not a dealer failure
	if snap.ErrorsByKind["transient"] != 1 {
		t.Errorf("Expected 1 transient error, got %v", snap.ErrorsByKind)
	}
}

func TestEngine_Run_SkipDetails(t *testing.T) {
	site := lotSite()
	store := output.NewMemoryStore()
	cfg := testConfig(lakeside())
	cfg.Navigation.SkipDetails = true

	if _, err := runEngine(t, cfg, site, store); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := site.fetches(camryURL); n != 0 {
		t.Errorf("Expected no detail fetches, got %d", n)
	}

	camry, _ := store.FindBySourceURL(context.Background(), camryURL)
	if camry == nil {
		t.Fatal("Expected Camry record from the listing")
	}
	if camry.Mileage != nil || camry.VIN != "" {
		t.Errorf("Expected listing fields only, got mileage %v VIN %q", camry.Mileage, camry.VIN)
	}
	if camry.PhotoCount != 1 {
		t.Errorf("Expected the listing photo only, got %d", camry.PhotoCount)
	}
}

func TestEngine_Run_DetailOnlyListings(t *testing.T) {
	site := newFakeSite()
	site.pages[lotURL] = homePage
	site.pages[inventoryURL] = `<html><body><ul>
		<li><a href="/vehicle/2020-ford-f-150-555">View details</a></li>
		<li><a href="/vehicle/2018-mazda-cx-5-777">View details</a></li>
	</ul></body></html>`
	site.pages["https://lot.test/vehicle/2020-ford-f-150-555"] = `<html><body>
		<h1>2020 Ford F-150</h1><p>Our price $31,900</p><p>41,200 miles</p></body></html>`
	site.pages["https://lot.test/vehicle/2018-mazda-cx-5-777"] = `<html><body>
		<h1>Call for details</h1></body></html>`
	store := output.NewMemoryStore()

	snap, err := runEngine(t, testConfig(lakeside()), site, store)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("Expected 1 record from the detail pages, got %d", store.Len())
	}
	rec := store.All()[0]
	if rec.Make != "Ford" || rec.SourceURL != "https://lot.test/vehicle/2020-ford-f-150-555" {
		t.Errorf("Expected the Ford from its detail page, got %s at %s", rec.Make, rec.SourceURL)
	}
	if snap.CandidatesDiscovered != 0 {
		t.Errorf("Expected no listing candidates, got %d", snap.CandidatesDiscovered)
	}
	if snap.DetailPagesFetched != 2 {
		t.Errorf("Expected 2 detail pages, got %d", snap.DetailPagesFetched)
	}
	if snap.CandidatesRejected != 1 {
		t.Errorf("Expected the empty detail page rejected, got %d", snap.CandidatesRejected)
	}
}

func TestEngine_Run_TargetCount(t *testing.T) {
	site := lotSite()
	store := output.NewMemoryStore()
	cfg := testConfig(lakeside(), config.DealerConfig{Name: "Second Lot", URL: "https://second.test/"})
	cfg.Run.TargetCount = 1
	cfg.Run.DealerConcurrency = 1
	cfg.Run.VehicleConcurrency = 1

	snap, err := runEngine(t, cfg, site, store)
	if err != nil {
		t.Fatalf("Expected no error when the target is reached, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected exactly 1 stored record, got %d", store.Len())
	}
	if snap.RecordsStored != 1 {
		t.Errorf("Expected 1 record in summary, got %d", snap.RecordsStored)
	}
	if snap.DealersAttempted != 1 {
		t.Errorf("Expected the second dealer to be skipped, got %d attempted", snap.DealersAttempted)
	}
}

func TestEngine_Run_EmptyAndUnreachableDealers(t *testing.T) {
	site := newFakeSite()
	site.pages[lotURL] = `<html><body><a href="/inventory">Inventory</a></body></html>`
	site.pages[inventoryURL] = `<html><body><p>Our lot is being restocked.</p></body></html>`
	store := output.NewMemoryStore()

	cfg := testConfig(lakeside(), config.DealerConfig{Name: "Gone Motors", URL: "https://gone.test/"})
	snap, err := runEngine(t, cfg, site, store)
	if err != nil {
		t.Fatalf("Dealer failures must not fail the run, got %v", err)
	}

	if store.Len() != 0 {
		t.Errorf("Expected no records, got %d", store.Len())
	}
	if snap.DealersEmpty != 1 || snap.DealersFailed != 1 {
		t.Errorf("Expected 1 empty and 1 failed dealer, got %d and %d", snap.DealersEmpty, snap.DealersFailed)
	}
	if snap.ErrorsByKind["structural"] != 1 {
		t.Errorf("Expected 1 structural error, got %v", snap.ErrorsByKind)
	}

	outcomes := map[string]string{}
	for _, d := range snap.Dealers {
		outcomes[d.Name] = d.Outcome
	}
	if outcomes["Lakeside Motors"] != DealerEmpty {
		t.Errorf("Expected Lakeside Motors %s, got %s", DealerEmpty, outcomes["Lakeside Motors"])
	}
	if outcomes["Gone Motors"] != DealerFailed {
		t.Errorf("Expected Gone Motors %s, got %s", DealerFailed, outcomes["Gone Motors"])
	}
}

func TestEngine_Run_StoreFailureStopsRun(t *testing.T) {
	site := lotSite()
	store := failingStore{output.NewMemoryStore()}

	snap, err := runEngine(t, testConfig(lakeside()), site, store)
	if err == nil {
		t.Fatal("Expected a persistence error")
	}
	if !errors.IsFatalForRun(err) {
		t.Errorf("Expected a run-fatal error, got %v", err)
	}
	if snap.RecordsStored != 0 {
		t.Errorf("Expected nothing stored, got %d", snap.RecordsStored)
	}
	if snap.ErrorsByKind["persistence"] == 0 {
		t.Errorf("Expected persistence errors to be counted, got %v", snap.ErrorsByKind)
	}
}

func TestEngine_Run_Cancelled(t *testing.T) {
	engine, err := NewEngine(testConfig(lakeside()), lotSite(), output.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Run(ctx); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestListingSourceURL(t *testing.T) {
	price := 18000.0
	miles := 40000
	year := 2020
	civic := vehicle.Record{Year: &year, Make: "Honda", Model: "Civic", Price: &price, Mileage: &miles}

	tests := []struct {
		name string
		rec  vehicle.Record
		want string
	}{
		{"vin", vehicle.Record{VIN: "4T1G11AK5MU123456", StockNumber: "A1"}, "https://lot.test/inventory?vin=4T1G11AK5MU123456"},
		{"stock", vehicle.Record{StockNumber: "A1"}, "https://lot.test/inventory?stock=A1"},
		{"neither", civic, "https://lot.test/inventory?listing=" + listingDigest(civic)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, page := range []string{"https://lot.test/inventory?page=2", "https://lot.test/inventory#top"} {
				if got := listingSourceURL(page, tt.rec); got != tt.want {
					t.Errorf("Expected %s, got %s", tt.want, got)
				}
			}
		})
	}
}

func TestListingDigest(t *testing.T) {
	price := 18000.0
	other := 19500.0
	year := 2020
	a := vehicle.Record{Year: &year, Make: "Honda", Model: "Civic", Price: &price}
	b := vehicle.Record{Year: &year, Make: "Honda", Model: "Civic", Price: &other}

	if listingDigest(a) != listingDigest(a.Clone()) {
		t.Error("Expected the digest to be stable")
	}
	if listingDigest(a) == listingDigest(b) {
		t.Error("Expected different prices to give different digests")
	}
	if n := len(listingDigest(vehicle.Record{})); n != 16 {
		t.Errorf("Expected a 16 character digest, got %d", n)
	}
}

func TestEngine_Run_LinklessListings(t *testing.T) {
	site := newFakeSite()
	site.pages[lotURL] = homePage
	site.pages[inventoryURL] = `<html><body>
	<div class="inventory-grid">
		<div class="vehicle-card"><h3>2021 Toyota Camry</h3> <span>$24,599</span> 32,000 miles</div>
		<div class="vehicle-card"><h3>2019 Honda Civic</h3> <span>$18,250</span> 41,000 miles</div>
		<div class="vehicle-card"><h3>2020 Ford Escape</h3> <span>$21,900</span> 28,500 miles</div>
	</div>
</body></html>`
	store := output.NewMemoryStore()

	snap, err := runEngine(t, testConfig(lakeside()), site, store)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if snap.RecordsStored != 3 {
		t.Errorf("Expected 3 stored records, got %d", snap.RecordsStored)
	}
	if snap.DuplicatesSuppressed != 0 {
		t.Errorf("Expected no duplicates, got %d", snap.DuplicatesSuppressed)
	}

	n, err := store.Count(context.Background(), output.Query{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 records in the store, got %d", n)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Kind
	}{
		{"classified", errors.Resource("render", lotURL, fmt.Errorf("no browser")), errors.KindResource},
		{"cancelled", context.Canceled, errors.KindTransient},
		{"markup", fmt.Errorf("unexpected EOF"), errors.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.KindOf(classify("fetch", lotURL, tt.err)); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
