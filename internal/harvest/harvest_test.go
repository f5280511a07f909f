// internal/harvest/harvest_test.go
package harvest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// httpFetcher is a minimal Fetcher over net/http.
type httpFetcher struct {
	calls atomic.Int32
}

func (f *httpFetcher) FetchBytes(ctx context.Context, u string, limit int64) ([]byte, string, error) {
	f.calls.Add(1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	return body, resp.Header.Get("Content-Type"), err
}

// jpeg returns n bytes starting with a JPEG signature; seed varies the payload.
func jpeg(n int, seed byte) []byte {
	b := bytes.Repeat([]byte{seed}, n)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return b
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(path string, body []byte, contentType string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if contentType != "" {
				w.Header().Set("Content-Type", contentType)
			}
			w.Write(body)
		})
	}
	serve("/small.jpg", jpeg(3_000, 1), "image/jpeg")
	serve("/huge.jpg", jpeg(6_000_000, 2), "image/jpeg")
	serve("/good.jpg", jpeg(200_000, 3), "image/jpeg")
	serve("/good2.jpg", jpeg(150_000, 4), "image/jpeg")
	serve("/copy-of-good.jpg", jpeg(200_000, 3), "image/jpeg")
	serve("/untyped.jpg", jpeg(50_000, 5), "")
	serve("/page.html", bytes.Repeat([]byte("<p>not an image</p>"), 2_000), "text/html")
	serve("/logo.png", jpeg(200_000, 6), "image/png")
	mux.HandleFunc("/missing.jpg", http.NotFound)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHarvest_SizeBand(t *testing.T) {
	server := imageServer(t)
	h := NewHarvester(&httpFetcher{}, Options{})

	tests := []struct {
		path     string
		accepted bool
	}{
		{"/small.jpg", false},
		{"/huge.jpg", false},
		{"/good.jpg", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := h.Harvest(context.Background(), []string{server.URL + tt.path}, 3)
			if got := len(res.Photos) == 1; got != tt.accepted {
				t.Errorf("Expected accepted=%v, got %v (%+v)", tt.accepted, got, res)
			}
		})
	}
}

func TestHarvest_StopwordExcludedRegardlessOfSize(t *testing.T) {
	server := imageServer(t)
	fetcher := &httpFetcher{}
	h := NewHarvester(fetcher, Options{})

	urls := h.Filter([]string{server.URL + "/assets/logo.png", server.URL + "/good.jpg"})
	if len(urls) != 1 || !strings.HasSuffix(urls[0], "/good.jpg") {
		t.Fatalf("Expected only the vehicle photo to survive, got %v", urls)
	}
	h.Harvest(context.Background(), urls, 5)
	if fetcher.calls.Load() != 1 {
		t.Errorf("Expected 1 download, got %d", fetcher.calls.Load())
	}
}

func TestHarvest_StopwordsIgnoreHost(t *testing.T) {
	h := NewHarvester(&httpFetcher{}, Options{Stopwords: []string{"placeholder"}})
	got := h.Filter([]string{
		"https://starmotors.test/photos/1.jpg",
		"https://cdn.test/img/placeholder.jpg",
		"https://cdn.test/img/header-bg.jpg",
		"https://cdn.test/img/2.jpg",
		"https://cdn.test/img/2.jpg",
		"ftp://cdn.test/img/3.jpg",
	})
	want := []string{"https://starmotors.test/photos/1.jpg", "https://cdn.test/img/2.jpg"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestHarvest_CapOrderAndFailures(t *testing.T) {
	server := imageServer(t)
	h := NewHarvester(&httpFetcher{}, Options{Concurrency: 2})

	urls := []string{
		server.URL + "/missing.jpg",
		server.URL + "/good.jpg",
		server.URL + "/copy-of-good.jpg",
		server.URL + "/page.html",
		server.URL + "/untyped.jpg",
		server.URL + "/good2.jpg",
	}
	res := h.Harvest(context.Background(), urls, 2)

	if len(res.Photos) != 2 {
		t.Fatalf("Expected 2 photos, got %d (%+v)", len(res.Photos), res)
	}
	if !strings.HasSuffix(res.Photos[0].SourceURL, "/good.jpg") || !strings.HasSuffix(res.Photos[1].SourceURL, "/untyped.jpg") {
		t.Errorf("Unexpected photo order: %s, %s", res.Photos[0].SourceURL, res.Photos[1].SourceURL)
	}
	if res.Failed != 1 {
		t.Errorf("Expected 1 failed download, got %d", res.Failed)
	}
	if res.Rejected != 2 {
		t.Errorf("Expected 2 rejected downloads (duplicate payload, html), got %d", res.Rejected)
	}
	if res.Photos[1].ContentType != "image/jpeg" {
		t.Errorf("Expected sniffed content type image/jpeg, got %q", res.Photos[1].ContentType)
	}
	if !strings.HasPrefix(res.Photos[0].Data, "data:image/jpeg;base64,") {
		t.Errorf("Expected a data URL, got %.30q", res.Photos[0].Data)
	}
}

func TestHarvest_ZeroPhotosIsValid(t *testing.T) {
	server := imageServer(t)
	res := NewHarvester(&httpFetcher{}, Options{}).Harvest(context.Background(), []string{server.URL + "/missing.jpg"}, 3)
	if len(res.Photos) != 0 || res.Failed != 1 {
		t.Errorf("Expected no photos and one failure, got %+v", res)
	}
}

func TestHarvest_CancelledContext(t *testing.T) {
	server := imageServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &httpFetcher{}
	res := NewHarvester(fetcher, Options{}).Harvest(ctx, []string{server.URL + "/good.jpg"}, 3)
	if len(res.Photos) != 0 || fetcher.calls.Load() != 0 {
		t.Errorf("Expected nothing fetched after cancellation, got %+v", res)
	}
}

func TestCollect(t *testing.T) {
	page := `<div id="v">
		<img src="/photos/1.jpg">
		<img src="/img/dealer-logo.png">
		<img data-src="/photos/2.jpg">
		<a style="background-image:url(/photos/3.jpg)">x</a>
	</div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	base, _ := url.Parse("https://lot.test/inventory")

	got := NewHarvester(&httpFetcher{}, Options{}).Collect(doc.Find("#v"), base)
	want := []string{
		"https://lot.test/photos/1.jpg",
		"https://lot.test/photos/2.jpg",
		"https://lot.test/photos/3.jpg",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
