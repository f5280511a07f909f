// internal/detect/signals.go
package detect

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

var (
	pricePattern   = regexp.MustCompile(`(?i)\$\s?\d[\d,]*|\b(?:price|msrp):?\s*\$?\d[\d,]{2,}`)
	yearPattern    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	mileagePattern = regexp.MustCompile(`(?i)\b\d[\d,]*\s*(?:miles?\b|mi\b\.?)|\b(?:mileage|odometer):?\s*\d[\d,]*`)
	scriptHints    = []string{"ajax", "fetch(", "xmlhttprequest"}

	inventoryIndicators = []string{
		"make", "model", "year", "price", "mileage", "vin",
		"vehicle details", "car details", "auto", "miles",
	}
)

// Signals counts the vehicle signals present in text: a price-shaped token,
// a year-shaped token, a known manufacturer and a mileage-shaped token.
func Signals(text string) int {
	n := 0
	if pricePattern.MatchString(text) {
		n++
	}
	if yearPattern.MatchString(text) {
		n++
	}
	if _, ok := vehicle.FindMake(text); ok {
		n++
	}
	if mileagePattern.MatchString(text) {
		n++
	}
	return n
}

// HasPrice reports whether text carries a price-shaped token.
func HasPrice(text string) bool {
	return pricePattern.MatchString(text)
}

// LooksLikeInventory reports whether page text reads like a vehicle listing
// page: several vehicle words, or any price.
func LooksLikeInventory(text string) bool {
	lower := strings.ToLower(text)
	hits := 0
	for _, indicator := range inventoryIndicators {
		if strings.Contains(lower, indicator) {
			hits++
		}
	}
	return hits >= 3 || HasPrice(text)
}

// Fingerprint identifies the template family a page was built with.
func Fingerprint(doc *goquery.Document, pageURL string) vehicle.Platform {
	raw, _ := doc.Html()
	content := strings.ToLower(raw)
	lowerURL := strings.ToLower(pageURL)

	switch {
	case strings.Contains(content, "dealercarsearch") || strings.Contains(lowerURL, "dealercarsearch"),
		strings.Contains(content, "inv-repeater"):
		return vehicle.PlatformDealerCarSearch
	case strings.Contains(content, "dealerinspire"):
		return vehicle.PlatformDealerInspire
	case strings.Contains(content, "wp-content") || strings.Contains(content, "wordpress"):
		return vehicle.PlatformWordPress
	case strings.Contains(content, "autotrader"):
		return vehicle.PlatformAutoTraderFeed
	case strings.Contains(content, "cars.com"):
		return vehicle.PlatformCarsComFeed
	case strings.Contains(content, "vinsolutions"):
		return vehicle.PlatformVinSolutions
	case strings.Contains(content, "dealer.com"):
		return vehicle.PlatformDealerCom
	}
	return vehicle.PlatformCustom
}

// RequiresJavaScript reports whether listings are likely loaded by script:
// an inline script issues XHR/fetch calls and the static body shows no price.
func RequiresJavaScript(doc *goquery.Document) bool {
	scripted := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := strings.ToLower(s.Text())
		for _, hint := range scriptHints {
			if strings.Contains(body, hint) {
				scripted = true
				return false
			}
		}
		return true
	})
	if !scripted {
		return false
	}
	return !HasPrice(Text(doc.Find("body")))
}

// Text returns the visible text of a selection with text nodes joined by
// single spaces, so adjacent inline elements never fuse into one word.
func Text(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

var detailPathPattern = regexp.MustCompile(`(?i)/vdp/|detail|/vehicle[/-]|vehicle-\d+|/(?:inventory|used|new|cars?)/[^?#]*\d|/\d{3,}/?$`)

// IsDetailURL reports whether u looks like a per-vehicle page.
func IsDetailURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	if strings.Contains(strings.ToLower(parsed.Path), "/page/") {
		return false
	}
	if detailPathPattern.MatchString(parsed.Path) {
		return true
	}
	q := parsed.Query()
	return q.Get("vin") != "" || q.Get("id") != "" || q.Get("vehicleid") != ""
}
