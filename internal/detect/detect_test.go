// internal/detect/detect_test.go
package detect

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

func mustDoc(t *testing.T, page, pageURL string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	doc.Url, _ = url.Parse(pageURL)
	return doc
}

func TestSignals(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"2021 Toyota Camry $24,599 32,000 miles", 4},
		{"2021 Toyota Camry", 2},
		{"$24,599", 1},
		{"Mileage: 41,000", 1},
		{"Call us today for a test drive", 0},
		{"Our dealership opened in 1985", 1},
		{"Fordham University", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Signals(tt.text); got != tt.want {
				t.Errorf("Expected %d signals, got %d", tt.want, got)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		pageURL string
		want    vehicle.Platform
	}{
		{"dealercarsearch cdn", `<img src="https://imagescdn.dealercarsearch.com/Media/1/2.jpg">`, "https://lot.test/", vehicle.PlatformDealerCarSearch},
		{"dealercarsearch repeater", `<div class="inv-repeater"></div>`, "https://lot.test/", vehicle.PlatformDealerCarSearch},
		{"wordpress", `<link href="/wp-content/themes/x.css">`, "https://lot.test/", vehicle.PlatformWordPress},
		{"dealer inspire", `<script src="https://cdn.dealerinspire.com/x.js"></script><link href="/wp-content/a.css">`, "https://lot.test/", vehicle.PlatformDealerInspire},
		{"dealer.com", `<script src="https://static.dealer.com/x.js"></script>`, "https://lot.test/", vehicle.PlatformDealerCom},
		{"unknown", `<p>hello</p>`, "https://lot.test/", vehicle.PlatformCustom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, tt.page, tt.pageURL)
			if got := Fingerprint(doc, tt.pageURL); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDetect_ClassPatterns(t *testing.T) {
	page := `<html><body>
		<div class="inventory-grid">
			<div class="vehicle-card"><a href="/inventory/2021-toyota-camry-12345">2021 Toyota Camry</a> <span>$24,599</span>
				<img src="/photos/camry.jpg"></div>
			<div class="vehicle-card"><a href="/inventory/2019-honda-civic-67890">2019 Honda Civic</a> <span>$18,250</span></div>
			<div class="vehicle-card"><a href="/about">Financing available</a></div>
		</div>
	</body></html>`
	doc := mustDoc(t, page, "https://lot.test/inventory")

	cands := NewDetector(0, 0).Detect(doc, vehicle.PlatformCustom)
	if len(cands) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(cands))
	}
	if cands[0].DetailURL != "https://lot.test/inventory/2021-toyota-camry-12345" {
		t.Errorf("Expected detail URL for the Camry, got %q", cands[0].DetailURL)
	}
	if len(cands[0].Images) != 1 || cands[0].Images[0] != "https://lot.test/photos/camry.jpg" {
		t.Errorf("Expected one absolute image, got %v", cands[0].Images)
	}
	if cands[1].Signals < 2 {
		t.Errorf("Expected at least 2 signals, got %d", cands[1].Signals)
	}
}

func TestDetect_NestedCandidateKeepsOuter(t *testing.T) {
	page := `<html><body>
		<div class="vehicle-card">
			<h2>2021 Toyota Camry</h2>
			<div class="vehicle-price">$24,599 32,000 miles</div>
		</div>
	</body></html>`
	doc := mustDoc(t, page, "https://lot.test/")

	cands := NewDetector(0, 0).Detect(doc, vehicle.PlatformCustom)
	if len(cands) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(cands))
	}
	if class, _ := cands[0].Selection.Attr("class"); class != "vehicle-card" {
		t.Errorf("Expected the outer container, got class %q", class)
	}
	if cands[0].Signals != 4 {
		t.Errorf("Expected 4 signals, got %d", cands[0].Signals)
	}
}

func TestDetect_ListOfIdenticalTwins(t *testing.T) {
	page := `<html><body>
		<div class="inventory-list">
			<div class="vehicle-card"><a href="/vdp/1/x">2020 Honda Civic</a> $18,000 40,000 miles</div>
			<div class="vehicle-card"><a href="/vdp/2/y">2020 Honda Civic</a> $18,000 40,000 miles</div>
		</div>
	</body></html>`
	doc := mustDoc(t, page, "https://lot.test/")

	cands := NewDetector(0, 0).Detect(doc, vehicle.PlatformCustom)
	if len(cands) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(cands))
	}
	want := []string{"https://lot.test/vdp/1/x", "https://lot.test/vdp/2/y"}
	for i, c := range cands {
		if class, _ := c.Selection.Attr("class"); class != "vehicle-card" {
			t.Errorf("Expected candidate %d to be a card, got class %q", i, class)
		}
		if c.DetailURL != want[i] {
			t.Errorf("Expected detail %s, got %s", want[i], c.DetailURL)
		}
	}
}

func TestDetect_CardWithOneLinkIsNotAList(t *testing.T) {
	page := `<html><body>
		<div class="vehicle-card">
			<div class="vehicle-title"><a href="/vdp/7/camry">2021 Toyota Camry</a> $24,599</div>
			<div class="vehicle-specs">2021 Toyota Camry 32,000 miles</div>
		</div>
	</body></html>`
	doc := mustDoc(t, page, "https://lot.test/")

	cands := NewDetector(0, 0).Detect(doc, vehicle.PlatformCustom)
	if len(cands) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(cands))
	}
	if class, _ := cands[0].Selection.Attr("class"); class != "vehicle-card" {
		t.Errorf("Expected the card, got class %q", class)
	}
}

func TestDetect_FallbackBlocks(t *testing.T) {
	page := `<html><body><main>
		<article><b>2018 Ford F-150</b> 61,000 miles $27,900</article>
		<article><b>2020 Jeep Wrangler</b> 22,000 mi $33,400</article>
		<article>Visit our service department</article>
	</main></body></html>`
	doc := mustDoc(t, page, "https://lot.test/")

	cands := NewDetector(0, 0).Detect(doc, vehicle.PlatformCustom)
	if len(cands) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(cands))
	}
	if !strings.Contains(cands[1].Text, "Wrangler") {
		t.Errorf("Expected second candidate to be the Wrangler, got %q", cands[1].Text)
	}
}

func TestDetect_NoCandidates(t *testing.T) {
	doc := mustDoc(t, `<html><body><div>Welcome to our dealership</div></body></html>`, "https://lot.test/")
	if cands := NewDetector(0, 0).Detect(doc, vehicle.PlatformCustom); len(cands) != 0 {
		t.Errorf("Expected no candidates, got %d", len(cands))
	}
}

func TestDetect_Cap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 80; i++ {
		b.WriteString(`<section>2020 Honda Accord $21,000</section>`)
	}
	b.WriteString("</body></html>")
	doc := mustDoc(t, b.String(), "https://lot.test/")

	if cands := NewDetector(10, 2).Detect(doc, vehicle.PlatformCustom); len(cands) != 10 {
		t.Errorf("Expected 10 candidates, got %d", len(cands))
	}
}

func TestDetect_DealerCarSearch(t *testing.T) {
	page := `<html><body>
		<div class="inv-repeater">
			<div class="row"><div><div class="photo">
				<img src="https://imagescdn.dealercarsearch.com/Media/101/a.jpg">
			</div></div>
			<a href="/vdp/101/Used-2017-Nissan-Altima-SR">Details</a></div>
			<div class="row"><div><div class="photo">
				<img data-src="https://imagescdn.dealercarsearch.com/Media/102/b.jpg">
			</div></div>
			<a href="/vdp/102/Used-2016-Kia-Soul-Plus">Details</a></div>
		</div>
	</body></html>`
	doc := mustDoc(t, page, "https://lot.test/newandusedcars")

	platform := Fingerprint(doc, doc.Url.String())
	cands := NewDetector(0, 0).Detect(doc, platform)
	if len(cands) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(cands))
	}
	if cands[1].DetailURL != "https://lot.test/vdp/102/Used-2016-Kia-Soul-Plus" {
		t.Errorf("Unexpected detail URL %q", cands[1].DetailURL)
	}
}

func TestImageRefs(t *testing.T) {
	page := `<div id="c">
		<img src="/a.jpg">
		<img src="data:image/gif;base64,R0lGOD" data-lazy-src="/b.jpg">
		<img srcset="/c-800.jpg 800w, /c-400.jpg 400w">
		<div style="background-image: url('/d.jpg')"></div>
		<img src="/a.jpg">
	</div>`
	doc := mustDoc(t, page, "https://lot.test/cars/")

	got := ImageRefs(doc.Find("#c"), doc.Url)
	want := []string{
		"https://lot.test/a.jpg",
		"https://lot.test/b.jpg",
		"https://lot.test/c-800.jpg",
		"https://lot.test/d.jpg",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRequiresJavaScript(t *testing.T) {
	scripted := `<html><body><div id="app"></div><script>fetch('/api/inventory').then(r => r.json())</script></body></html>`
	static := `<html><body><div>2021 Toyota Camry $24,599</div><script>$.ajax({url: '/track'})</script></body></html>`

	if !RequiresJavaScript(mustDoc(t, scripted, "https://lot.test/")) {
		t.Error("Expected script-driven page to require JavaScript")
	}
	if RequiresJavaScript(mustDoc(t, static, "https://lot.test/")) {
		t.Error("Expected page with static prices not to require JavaScript")
	}
}

func TestLooksLikeInventory(t *testing.T) {
	if !LooksLikeInventory("Search by make, model and year") {
		t.Error("Expected vocabulary hits to count as inventory")
	}
	if !LooksLikeInventory("Only $9,999") {
		t.Error("Expected a price to count as inventory")
	}
	if LooksLikeInventory("Contact us") {
		t.Error("Expected plain text not to look like inventory")
	}
}

func TestIsDetailURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://lot.test/vdp/101/Used-2017-Nissan-Altima", true},
		{"https://lot.test/vehicle-details?id=5", true},
		{"https://lot.test/inventory/used-2019-honda-civic-4821", true},
		{"https://lot.test/cars/48213", true},
		{"https://lot.test/listing?vin=1HGCM82633A004352", true},
		{"https://lot.test/inventory", false},
		{"https://lot.test/inventory?page=2", false},
		{"https://lot.test/cars/page/2", false},
		{"https://lot.test/contact", false},
		{"/vdp/1/x", false},
	}

	for _, tt := range tests {
		if got := IsDetailURL(tt.url); got != tt.want {
			t.Errorf("IsDetailURL(%q): expected %v, got %v", tt.url, tt.want, got)
		}
	}
}

func TestText_SeparatesInlineElements(t *testing.T) {
	doc := mustDoc(t, `<div id="x"><span>2021</span><span>Toyota</span><script>var a=1;</script></div>`, "https://lot.test/")
	if got := Text(doc.Find("#x")); got != "2021 Toyota" {
		t.Errorf("Expected %q, got %q", "2021 Toyota", got)
	}
}
