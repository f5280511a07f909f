// internal/detect/detect.go

// Package detect finds the page regions that describe one vehicle each and
// identifies the template family a dealer site is built with.
package detect

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

const (
	DefaultMaxCandidates = 50
	DefaultMinSignals    = 2

	// dealerCarSearchCDN hosts vehicle photos on DealerCarSearch sites.
	dealerCarSearchCDN = "imagescdn.dealercarsearch.com"
	maxAncestorClimb   = 5
)

const (
	classSelector    = `[class*="vehicle"], [class*="car"], [class*="listing"], [class*="inventory"], [class*="auto"]`
	fallbackSelector = "div, article, section, li"
)

var backgroundURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// lazyImageAttrs are checked after src, in order.
var lazyImageAttrs = []string{"data-src", "data-lazy-src", "data-lazy", "data-original"}

// Candidate is a page subtree believed to describe one vehicle.
type Candidate struct {
	Selection *goquery.Selection
	Text      string
	Images    []string // absolute, in document order
	Links     []string // absolute, in document order
	DetailURL string   // best per-vehicle link, empty when none
	Signals   int
}

// Detector locates listing candidates on a parsed page.
type Detector struct {
	MaxCandidates int
	MinSignals    int
}

// NewDetector returns a Detector with the given limits; zero values take
// the defaults.
func NewDetector(maxCandidates, minSignals int) *Detector {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	if minSignals <= 0 || minSignals > 4 {
		minSignals = DefaultMinSignals
	}
	return &Detector{MaxCandidates: maxCandidates, MinSignals: minSignals}
}

// Detect returns the outermost listing candidates of doc, at most
// MaxCandidates of them. An empty result is not an error.
func (d *Detector) Detect(doc *goquery.Document, platform vehicle.Platform) []Candidate {
	base := doc.Url

	var raw []Candidate
	if platform == vehicle.PlatformDealerCarSearch {
		raw = d.dealerCarSearch(doc, base)
	}
	if len(raw) == 0 {
		raw = d.scan(doc.Find(classSelector), base)
	}
	if len(raw) == 0 {
		raw = d.scan(doc.Find(fallbackSelector), base)
	}

	out := outermost(raw)
	if len(out) > d.MaxCandidates {
		out = out[:d.MaxCandidates]
	}
	return out
}

func (d *Detector) scan(sel *goquery.Selection, base *url.URL) []Candidate {
	var out []Candidate
	sel.Each(func(_ int, s *goquery.Selection) {
		text := Text(s)
		if text == "" {
			return
		}
		if n := Signals(text); n >= d.MinSignals {
			out = append(out, newCandidate(s, text, n, base))
		}
	})
	return out
}

// dealerCarSearch climbs from each CDN vehicle photo to the nearest
// ancestor that links to a /vdp/ page. One candidate per VDP link.
func (d *Detector) dealerCarSearch(doc *goquery.Document, base *url.URL) []Candidate {
	var out []Candidate
	seen := map[string]bool{}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if !strings.Contains(imageSource(img), dealerCarSearchCDN) {
			return
		}
		container := img.Parent()
		for i := 0; i < maxAncestorClimb && container.Length() > 0; i++ {
			href, ok := container.Find(`a[href*="/vdp/"]`).First().Attr("href")
			if !ok {
				container = container.Parent()
				continue
			}
			link := utils.ResolveURL(base, href)
			if link == "" || seen[link] {
				return
			}
			seen[link] = true
			text := Text(container)
			c := newCandidate(container, text, Signals(text), base)
			c.DetailURL = link
			out = append(out, c)
			return
		}
	})
	return out
}

func newCandidate(sel *goquery.Selection, text string, signals int, base *url.URL) Candidate {
	c := Candidate{
		Selection: sel,
		Text:      text,
		Signals:   signals,
		Images:    ImageRefs(sel, base),
	}
	seen := map[string]bool{}
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := utils.ResolveURL(base, href)
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		c.Links = append(c.Links, link)
		if c.DetailURL == "" && IsDetailURL(link) {
			c.DetailURL = link
		}
	})
	return c
}

// ImageRefs returns every image reference inside sel, resolved against
// base: src, lazy-load attributes, the first srcset entry and CSS
// background images. Duplicates and data: URIs are dropped.
func ImageRefs(sel *goquery.Selection, base *url.URL) []string {
	var out []string
	seen := map[string]bool{}
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") {
			return
		}
		abs := utils.ResolveURL(base, ref)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	}

	sel.Find("img, source").AddSelection(sel.Filter("img")).Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			add(src)
		}
		for _, attr := range lazyImageAttrs {
			if v, ok := img.Attr(attr); ok {
				add(v)
			}
		}
		for _, attr := range []string{"srcset", "data-srcset"} {
			if v, ok := img.Attr(attr); ok {
				add(firstSrcset(v))
			}
		}
	})

	sel.Find("[style]").AddSelection(sel.Filter("[style]")).Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range backgroundURLPattern.FindAllStringSubmatch(style, -1) {
			add(m[1])
		}
	})
	return out
}

func imageSource(img *goquery.Selection) string {
	if src, ok := img.Attr("src"); ok && !strings.HasPrefix(src, "data:") {
		return src
	}
	for _, attr := range lazyImageAttrs {
		if v, ok := img.Attr(attr); ok {
			return v
		}
	}
	return ""
}

func firstSrcset(v string) string {
	first := strings.TrimSpace(strings.Split(v, ",")[0])
	if fields := strings.Fields(first); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// outermost drops candidates nested inside another candidate, keeping the
// outer one. A container whose children are themselves two or more
// different vehicles (distinct detail links, or distinct text when none
// links out) is a result list, not a vehicle: it is dropped so the
// children survive.
func outermost(cands []Candidate) []Candidate {
	if len(cands) == 0 {
		return nil
	}

	index := make(map[*html.Node]int, len(cands))
	unique := cands[:0:0]
	for _, c := range cands {
		n := c.Selection.Get(0)
		if _, dup := index[n]; dup {
			continue
		}
		index[n] = len(unique)
		unique = append(unique, c)
	}

	// parent[i] is the nearest candidate ancestor of i, or -1.
	parent := make([]int, len(unique))
	depth := make([]int, len(unique))
	for i, c := range unique {
		parent[i] = -1
		for n := c.Selection.Get(0).Parent; n != nil; n = n.Parent {
			depth[i]++
			if j, ok := index[n]; ok && parent[i] == -1 {
				parent[i] = j
			}
		}
	}

	children := make([][]int, len(unique))
	for i, p := range parent {
		if p >= 0 {
			children[p] = append(children[p], i)
		}
	}

	// Deepest first so a list inside a wrapper marks the wrapper too.
	order := make([]int, len(unique))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return depth[order[a]] > depth[order[b]] })

	list := make([]bool, len(unique))
	for _, i := range order {
		// Children are told apart by detail link when any has one, by
		// text otherwise.
		links := map[string]bool{}
		texts := map[string]bool{}
		for _, ch := range children[i] {
			if list[ch] {
				list[i] = true
				break
			}
			if _, ok := vehicle.FindMake(unique[ch].Text); !ok {
				continue
			}
			if u := unique[ch].DetailURL; u != "" {
				links[u] = true
			} else {
				texts[unique[ch].Text] = true
			}
		}
		if len(links) >= 2 || (len(links) == 0 && len(texts) >= 2) {
			list[i] = true
		}
	}

	var out []Candidate
	for i, c := range unique {
		if list[i] {
			continue
		}
		nested := false
		for p := parent[i]; p >= 0; p = parent[p] {
			if !list[p] {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}
