// internal/navigate/navigate_test.go
package navigate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// testFetcher fetches over net/http and records every requested URL.
type testFetcher struct {
	mu   sync.Mutex
	seen []string
}

func (f *testFetcher) record(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, u)
}

func (f *testFetcher) FetchDocument(ctx context.Context, u string) (*goquery.Document, error) {
	f.record(u)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	doc.Url = resp.Request.URL
	return doc, nil
}

func (f *testFetcher) Exists(ctx context.Context, u string) bool {
	f.record(u)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (f *testFetcher) requested(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.seen {
		if strings.HasSuffix(u, path) {
			n++
		}
	}
	return n
}

func site(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFindInventory(t *testing.T) {
	tests := []struct {
		name     string
		pages    map[string]string
		hint     string
		wantPath string
		source   vehicle.InventorySource
	}{
		{
			name: "anchor text",
			pages: map[string]string{
				"/": `<a href="/about">About us</a><a href="/shop/all">View Inventory</a><a href="/inventory-specials">x</a>`,
			},
			wantPath: "/shop/all",
			source:   vehicle.InventoryFromAnchor,
		},
		{
			name: "anchor href",
			pages: map[string]string{
				"/": `<a href="/about">About us</a><a href="/used-cars/">Browse</a>`,
			},
			wantPath: "/used-cars/",
			source:   vehicle.InventoryFromAnchor,
		},
		{
			name: "hint",
			pages: map[string]string{
				"/":      `<a href="/inventory">Inventory</a>`,
				"/stock": `<p>stock</p>`,
			},
			hint:     "/stock",
			wantPath: "/stock",
			source:   vehicle.InventoryFromHint,
		},
		{
			name: "probe",
			pages: map[string]string{
				"/":         `<a href="/contact">Contact</a>`,
				"/vehicles": `<p>cars</p>`,
			},
			wantPath: "/vehicles",
			source:   vehicle.InventoryFromProbe,
		},
		{
			name: "homepage",
			pages: map[string]string{
				"/": `<p>2019 Ford Escape $14,999</p>`,
			},
			wantPath: "/",
			source:   vehicle.InventoryFromHomepage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := site(t, tt.pages)
			planner := NewPlanner(&testFetcher{}, Options{})

			inv, err := planner.FindInventory(context.Background(), vehicle.Dealer{Name: "test", URL: server.URL + "/", InventoryPath: tt.hint})
			if err != nil {
				t.Fatalf("FindInventory failed: %v", err)
			}
			if inv.URL != server.URL+tt.wantPath {
				t.Errorf("Expected %s, got %s", server.URL+tt.wantPath, inv.URL)
			}
			if inv.Source != tt.source {
				t.Errorf("Expected source %s, got %s", tt.source, inv.Source)
			}
		})
	}
}

func TestFindInventory_HomepageDown(t *testing.T) {
	server := site(t, map[string]string{})
	_, err := NewPlanner(&testFetcher{}, Options{}).FindInventory(context.Background(), vehicle.Dealer{URL: server.URL})
	if err == nil {
		t.Error("Expected error when the homepage cannot be fetched")
	}
}

func inventoryPage(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<a href="/inventory?page=2">Next</a>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="vehicle"><a href="/inventory/used-vehicle-%d#photos">2019 Ford Focus</a></div>`, id)
	}
	b.WriteString(`<a href="https://elsewhere.test/vehicle-details?id=9">partner</a>`)
	return b.String()
}

func TestDetailLinks_StopsOnPageWithNothingNew(t *testing.T) {
	server := site(t, map[string]string{
		"/inventory":        inventoryPage(101, 102),
		"/inventory?page=2": inventoryPage(101, 102),
		"/inventory?page=3": inventoryPage(103),
	})
	fetcher := &testFetcher{}
	planner := NewPlanner(fetcher, Options{})

	plan := planner.DetailLinks(context.Background(), server.URL+"/inventory", nil)

	if len(plan.DetailURLs) != 2 {
		t.Fatalf("Expected 2 detail links, got %v", plan.DetailURLs)
	}
	if plan.DetailURLs[0] != server.URL+"/inventory/used-vehicle-101" {
		t.Errorf("Expected fragment-free first link, got %s", plan.DetailURLs[0])
	}
	if plan.PagesVisited != 2 {
		t.Errorf("Expected 2 pages visited, got %d", plan.PagesVisited)
	}
	if n := fetcher.requested("page=3"); n != 0 {
		t.Errorf("Expected page 3 never requested, got %d requests", n)
	}
}

func TestDetailLinks_PageBoundAndCap(t *testing.T) {
	pages := map[string]string{"/inventory": inventoryPage(1, 2)}
	for p := 2; p <= 9; p++ {
		pages[fmt.Sprintf("/inventory?page=%d", p)] = inventoryPage(p*10, p*10+1)
	}
	server := site(t, pages)

	plan := NewPlanner(&testFetcher{}, Options{MaxPages: 3}).DetailLinks(context.Background(), server.URL+"/inventory", nil)
	if plan.PagesVisited != 3 || len(plan.DetailURLs) != 6 {
		t.Errorf("Expected 3 pages and 6 links, got %d pages and %d links", plan.PagesVisited, len(plan.DetailURLs))
	}

	plan = NewPlanner(&testFetcher{}, Options{MaxDetailLinks: 3}).DetailLinks(context.Background(), server.URL+"/inventory", nil)
	if len(plan.DetailURLs) != 3 {
		t.Errorf("Expected 3 links at the cap, got %d", len(plan.DetailURLs))
	}
}

func TestDetailLinks_ReusesFirstPage(t *testing.T) {
	server := site(t, map[string]string{"/inventory": inventoryPage(1)})
	fetcher := &testFetcher{}
	first, err := fetcher.FetchDocument(context.Background(), server.URL+"/inventory")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	plan := NewPlanner(fetcher, Options{}).DetailLinks(context.Background(), server.URL+"/inventory", first)
	if len(plan.DetailURLs) != 1 {
		t.Errorf("Expected 1 link, got %v", plan.DetailURLs)
	}
	if n := fetcher.requested("/inventory"); n != 1 {
		t.Errorf("Expected page 1 fetched once, got %d", n)
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		base     string
		param    string
		page     int
		expected string
	}{
		{"https://lot.test/inventory", "page", 1, "https://lot.test/inventory"},
		{"https://lot.test/inventory", "page", 2, "https://lot.test/inventory?page=2"},
		{"https://lot.test/newandusedcars?clearall=1", "page", 3, "https://lot.test/newandusedcars?clearall=1&page=3"},
		{"https://lot.test/cars?page=1", "pg", 4, "https://lot.test/cars?page=1&pg=4"},
	}

	for _, tt := range tests {
		if got := PageURL(tt.base, tt.param, tt.page); got != tt.expected {
			t.Errorf("PageURL(%q, %d): expected %q, got %q", tt.base, tt.page, tt.expected, got)
		}
	}
}

func TestWalk_VisitsPagesAndStopsOnRequest(t *testing.T) {
	pages := map[string]string{"/inventory": inventoryPage(1)}
	for p := 2; p <= 5; p++ {
		pages[fmt.Sprintf("/inventory?page=%d", p)] = inventoryPage(p)
	}
	server := site(t, pages)

	var visited []int
	plan := NewPlanner(&testFetcher{}, Options{}).Walk(context.Background(), server.URL+"/inventory", nil, func(page int, doc *goquery.Document) bool {
		visited = append(visited, page)
		return page < 2
	})

	if len(visited) != 2 || visited[0] != 1 || visited[1] != 2 {
		t.Errorf("Expected pages 1 and 2 visited, got %v", visited)
	}
	if plan.PagesVisited != 2 || len(plan.DetailURLs) != 2 {
		t.Errorf("Expected the links of both visited pages, got %d pages and %v", plan.PagesVisited, plan.DetailURLs)
	}
}
