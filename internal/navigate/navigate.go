// internal/navigate/navigate.go

// Package navigate finds a dealer's inventory page and walks its pages to
// enumerate vehicle detail links.
package navigate

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/detect"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

const (
	DefaultMaxPages       = 5
	DefaultMaxDetailLinks = 50
	DefaultPageParameter  = "page"
)

// DefaultProbePaths are tried, in order, when the homepage links nowhere
// useful.
var DefaultProbePaths = []string{
	"/inventory",
	"/newandusedcars?clearall=1",
	"/used-inventory",
	"/vehicles",
	"/used-cars",
	"/pre-owned",
	"/cars",
	"/search",
}

var inventoryKeywords = []string{
	"inventory", "vehicles", "used cars", "used-cars", "pre-owned", "preowned",
	"view inventory", "browse cars", "car search", "vehicle-search", "search cars",
	"newandusedcars", "shop",
}

// Fetcher retrieves pages for the planner.
type Fetcher interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
	Exists(ctx context.Context, url string) bool
}

// Options tune the planner; zero values take the defaults.
type Options struct {
	MaxPages       int
	MaxDetailLinks int
	PageParameter  string
	ProbePaths     []string
}

// Inventory is where a dealer's listings were found.
type Inventory struct {
	URL      string
	Source   vehicle.InventorySource
	Document *goquery.Document // the inventory page, when already fetched
	Homepage *goquery.Document
}

// Plan is the enumeration of one dealer's detail pages.
type Plan struct {
	InventoryURL string
	Source       vehicle.InventorySource
	DetailURLs   []string
	PagesVisited int
}

// Planner finds inventory pages and paginates them.
type Planner struct {
	fetcher        Fetcher
	maxPages       int
	maxDetailLinks int
	pageParam      string
	probePaths     []string
	logger         utils.Logger
}

// NewPlanner creates a planner that fetches through fetcher.
func NewPlanner(fetcher Fetcher, opts Options) *Planner {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.MaxDetailLinks <= 0 {
		opts.MaxDetailLinks = DefaultMaxDetailLinks
	}
	if opts.PageParameter == "" {
		opts.PageParameter = DefaultPageParameter
	}
	if len(opts.ProbePaths) == 0 {
		opts.ProbePaths = DefaultProbePaths
	}
	return &Planner{
		fetcher:        fetcher,
		maxPages:       opts.MaxPages,
		maxDetailLinks: opts.MaxDetailLinks,
		pageParam:      opts.PageParameter,
		probePaths:     opts.ProbePaths,
		logger:         utils.NewComponentLogger("navigator"),
	}
}

// FindInventory resolves the dealer's inventory page: the configured hint
// when it exists, then homepage links, then conventional paths, and finally
// the homepage itself. It fails only when the homepage cannot be fetched.
func (p *Planner) FindInventory(ctx context.Context, dealer vehicle.Dealer) (Inventory, error) {
	base, err := url.Parse(dealer.URL)
	if err != nil {
		return Inventory{}, err
	}

	if dealer.InventoryPath != "" {
		hint := utils.ResolveURL(base, dealer.InventoryPath)
		if hint != "" && p.fetcher.Exists(ctx, hint) {
			return Inventory{URL: hint, Source: vehicle.InventoryFromHint}, nil
		}
		p.logger.Warnf("inventory hint %s for %s did not answer", dealer.InventoryPath, dealer.Name)
	}

	home, err := p.fetcher.FetchDocument(ctx, dealer.URL)
	if err != nil {
		return Inventory{}, err
	}
	pageBase := home.Url
	if pageBase == nil {
		pageBase = base
	}

	if link := InventoryLink(home, pageBase); link != "" {
		return Inventory{URL: link, Source: vehicle.InventoryFromAnchor, Homepage: home}, nil
	}

	for _, path := range p.probePaths {
		if ctx.Err() != nil {
			break
		}
		probe := utils.ResolveURL(pageBase, path)
		if probe != "" && p.fetcher.Exists(ctx, probe) {
			return Inventory{URL: probe, Source: vehicle.InventoryFromProbe, Homepage: home}, nil
		}
	}

	return Inventory{URL: pageBase.String(), Source: vehicle.InventoryFromHomepage, Document: home, Homepage: home}, nil
}

// InventoryLink picks the best same-site homepage link to an inventory
// page. Links whose text names the inventory win over links that only
// carry a keyword in their href.
func InventoryLink(doc *goquery.Document, base *url.URL) string {
	var byText, byHref string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		link := utils.ResolveURL(base, href)
		if link == "" || !utils.SameHost(link, base.String()) || samePage(link, base) {
			return true
		}
		text := strings.ToLower(utils.CollapseSpaces(a.Text()))
		lowerHref := strings.ToLower(href)
		for _, kw := range inventoryKeywords {
			if strings.Contains(text, kw) {
				byText = link
				return false
			}
			if byHref == "" && strings.Contains(lowerHref, kw) && !detect.IsDetailURL(link) {
				byHref = link
			}
		}
		return true
	})
	if byText != "" {
		return byText
	}
	return byHref
}

func samePage(link string, base *url.URL) bool {
	a, errA := utils.NormalizeURL(link)
	b, errB := utils.NormalizeURL(base.String())
	return errA == nil && errB == nil && a == b
}

// PageURL returns the URL of page n of an inventory listing. Page 1 is the
// inventory URL itself.
func PageURL(inventoryURL, param string, n int) string {
	if n <= 1 {
		return inventoryURL
	}
	u, err := url.Parse(inventoryURL)
	if err != nil {
		return inventoryURL
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// DetailLinks walks the inventory pages and collects detail-page links,
// stopping at the first page that adds nothing new, at MaxPages, or at
// MaxDetailLinks. first, when non-nil, is used as page 1 instead of
// fetching it again. A page that fails to load ends the walk.
func (p *Planner) DetailLinks(ctx context.Context, inventoryURL string, first *goquery.Document) Plan {
	return p.Walk(ctx, inventoryURL, first, nil)
}

// Walk is DetailLinks with a visitor called for every page fetched, before
// its links are collected. A visitor returning false ends the walk after
// that page.
func (p *Planner) Walk(ctx context.Context, inventoryURL string, first *goquery.Document, visit func(page int, doc *goquery.Document) bool) Plan {
	plan := Plan{InventoryURL: inventoryURL}
	seen := map[string]bool{}

	for page := 1; page <= p.maxPages && len(plan.DetailURLs) < p.maxDetailLinks; page++ {
		if ctx.Err() != nil {
			break
		}

		doc := first
		if page > 1 || doc == nil {
			var err error
			doc, err = p.fetcher.FetchDocument(ctx, PageURL(inventoryURL, p.pageParam, page))
			if err != nil {
				p.logger.Debugf("page %d of %s: %v", page, inventoryURL, err)
				break
			}
		}
		plan.PagesVisited = page

		more := visit == nil || visit(page, doc)

		added := 0
		for _, link := range PageDetailLinks(doc) {
			key, err := utils.NormalizeURL(link)
			if err != nil || seen[key] {
				continue
			}
			seen[key] = true
			plan.DetailURLs = append(plan.DetailURLs, link)
			added++
			if len(plan.DetailURLs) == p.maxDetailLinks {
				break
			}
		}
		if added == 0 || !more {
			break
		}
	}
	return plan
}

// PageDetailLinks returns the same-site detail links of one inventory page
// in document order, without fragments.
func PageDetailLinks(doc *goquery.Document) []string {
	base := doc.Url
	if base == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := utils.ResolveURL(base, href)
		if link == "" || seen[link] || !utils.SameHost(link, base.String()) || samePage(link, base) {
			return
		}
		if detect.IsDetailURL(link) {
			seen[link] = true
			out = append(out, link)
		}
	})
	return out
}

// MaxDetailLinks is the per-dealer cap on detail pages.
func (p *Planner) MaxDetailLinks() int {
	return p.maxDetailLinks
}
