// internal/extract/extract.go

// Package extract turns a listing candidate or a vehicle detail page into a
// partially populated vehicle record. Every field is optional: a field that
// cannot be found, or whose value falls outside its valid range, is left
// unset and never causes a failure.
package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/CarScrapexter/internal/detect"
	"github.com/valpere/CarScrapexter/internal/pipeline"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

const (
	headlineSelector    = `h1, h2, h3, h4, [class*="title"], [itemprop="name"]`
	priceSelector       = `[itemprop="price"], [class*="price"], [data-price]`
	mileageSelector     = `[itemprop="mileageFromOdometer"], [class*="mileage"], [class*="odometer"], [class*="miles"]`
	vinSelector         = `[itemprop="vehicleIdentificationNumber"], [data-vin], [class*="vin"]`
	descriptionSelector = `[itemprop="description"], [class*="description"], [class*="comments"], [class*="notes"]`
	featureSelector     = `[class*="feature"] li, [class*="option"] li, [class*="equipment"] li`
)

var vdpPattern = regexp.MustCompile(`(?i)/vdp/\d+/(?:used|new|certified|pre-owned)-((?:19|20)\d{2})-([^/?#]+)`)

// Decision is the outcome of the acceptance gate.
type Decision int

const (
	// Reject drops the candidate.
	Reject Decision = iota
	// Defer keeps the candidate until its detail page has been read.
	Defer
	// Accept lets the record continue downstream.
	Accept
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accepted"
	case Defer:
		return "deferred"
	default:
		return "rejected"
	}
}

// Extractor pulls vehicle fields out of page fragments.
type Extractor struct {
	now         func() time.Time
	transformer *pipeline.RecordTransformer
	logger      utils.Logger
}

// NewExtractor creates an extractor. now defaults to time.Now and bounds the
// accepted model years; transformer may be nil.
func NewExtractor(now func() time.Time, transformer *pipeline.RecordTransformer) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{
		now:         now,
		transformer: transformer,
		logger:      utils.NewComponentLogger("extractor"),
	}
}

// FromCandidate extracts the summary view of one vehicle from a listing
// candidate. SourceURL is the candidate's detail link when it has one.
func (e *Extractor) FromCandidate(ctx context.Context, c detect.Candidate) vehicle.Record {
	rec := e.extract(c.Selection, c.Text, candidateHeadline(c.Selection))
	rec.SourceURL = c.DetailURL
	if c.DetailURL != "" {
		e.seedFromVDP(&rec, c.DetailURL)
	}
	e.finish(ctx, &rec)
	return rec
}

// FromDocument extracts the detail view of one vehicle from its own page.
func (e *Extractor) FromDocument(ctx context.Context, doc *goquery.Document) vehicle.Record {
	body := doc.Find("body")
	headline := firstText(doc.Find("h1"))
	if headline == "" {
		headline = utils.CollapseSpaces(doc.Find("title").First().Text())
	}

	rec := e.extract(body, detect.Text(body), headline)
	if doc.Url != nil {
		rec.SourceURL = doc.Url.String()
		e.seedFromVDP(&rec, rec.SourceURL)
	}
	rec.Description = firstDescription(body)
	rec.Features = features(body)
	e.finish(ctx, &rec)
	return rec
}

func (e *Extractor) extract(sel *goquery.Selection, text, headline string) vehicle.Record {
	now := e.now()
	var rec vehicle.Record

	// Headline first: it names the vehicle without the noise of the body.
	rec.Year = parseYear(headline, now)
	if rec.Year == nil {
		rec.Year = parseYear(text, now)
	}
	rec.Make, rec.Model = parseMakeModel(headline)
	if rec.Make == "" {
		rec.Make, rec.Model = parseMakeModel(text)
	} else if rec.Model == "" {
		if mk, model := parseMakeModel(text); mk == rec.Make {
			rec.Model = model
		}
	}

	rec.Price = structuredPrice(sel)
	if rec.Price == nil {
		rec.Price = parsePrice(text)
	}
	rec.Mileage = structuredMileage(sel)
	if rec.Mileage == nil {
		rec.Mileage = parseMileage(text)
	}
	rec.VIN = structuredVIN(sel)
	if rec.VIN == "" {
		rec.VIN = parseVIN(text, true)
	}

	rec.Transmission = firstKeyword(text, transmissionKeywords)
	rec.FuelType = firstKeyword(text, fuelKeywords)
	rec.Drivetrain = firstKeyword(text, drivetrainKeywords)
	rec.BodyStyle = firstKeyword(text, bodyStyleKeywords)
	rec.ExteriorColor = labelValue(text, exteriorLabels)
	rec.InteriorColor = labelValue(text, interiorLabels)
	rec.StockNumber = parseStockNumber(text)
	return rec
}

// finish runs the configured field cleanup, then drops out-of-bounds values.
func (e *Extractor) finish(ctx context.Context, rec *vehicle.Record) {
	if err := e.transformer.Apply(ctx, rec); err != nil {
		e.logger.Warnf("field cleanup skipped: %v", err)
	}
	rec.Sanitize(e.now())
}

// seedFromVDP fills year, make and model from a DealerCarSearch style
// detail URL when the page text did not yield them.
func (e *Extractor) seedFromVDP(rec *vehicle.Record, detailURL string) {
	year, mk, model, ok := ParseVDPURL(detailURL)
	if !ok {
		return
	}
	if rec.Year == nil && vehicle.ValidYear(year, e.now()) {
		rec.Year = vehicle.IntPtr(year)
	}
	if rec.Make == "" {
		rec.Make = mk
	}
	if rec.Model == "" && rec.Make == mk {
		rec.Model = model
	}
}

// ParseVDPURL reads year, make and model from URLs shaped like
// /vdp/<id>/Used-<year>-<make>-<model>-<trim>-for-sale-in-<city>.
func ParseVDPURL(detailURL string) (int, string, string, bool) {
	m := vdpPattern.FindStringSubmatch(detailURL)
	if m == nil {
		return 0, "", "", false
	}
	year, err := pipeline.ParseInt(m[1])
	if err != nil {
		return 0, "", "", false
	}

	tokens := strings.Split(m[2], "-")
	for n := 3; n >= 1; n-- {
		if n > len(tokens) {
			continue
		}
		mk, ok := vehicle.CanonicalMake(strings.Join(tokens[:n], " "))
		if !ok {
			continue
		}
		var model []string
		for _, tok := range tokens[n:] {
			if strings.EqualFold(tok, "for") {
				break
			}
			if tok != "" {
				model = append(model, tok)
			}
		}
		name := strings.TrimSpace(utils.TruncateString(strings.Join(model, " "), maxModelLength))
		return year, mk, name, true
	}
	return 0, "", "", false
}

// Gate is the acceptance gate. A record with make, model and a sane
// price is accepted. Otherwise it is deferred when a detail page can still
// complete it, accepted when photos vouch for it, and rejected when neither
// holds.
func Gate(rec vehicle.Record, detailAvailable bool) Decision {
	if rec.Make != "" && rec.Model != "" && rec.Price != nil && vehicle.ValidPrice(*rec.Price) {
		return Accept
	}
	if detailAvailable {
		return Defer
	}
	if rec.Emittable() {
		return Accept
	}
	return Reject
}

func candidateHeadline(sel *goquery.Selection) string {
	if h := firstText(sel.Find(headlineSelector)); h != "" {
		return h
	}
	return firstText(sel.Find("a"))
}

func firstText(sel *goquery.Selection) string {
	var out string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = detect.Text(s)
		return out == ""
	})
	return out
}

func structuredPrice(sel *goquery.Selection) *float64 {
	var price *float64
	sel.Find(priceSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"content", "data-price", "value"} {
			if v, ok := s.Attr(attr); ok {
				if p, err := pipeline.ParseFloat(v); err == nil && vehicle.ValidPrice(p) {
					price = vehicle.FloatPtr(p)
					return false
				}
			}
		}
		text := detect.Text(s)
		if price = parsePrice(text); price == nil {
			if p, err := pipeline.ParseFloat(text); err == nil && vehicle.ValidPrice(p) {
				price = vehicle.FloatPtr(p)
			}
		}
		return price == nil
	})
	return price
}

func structuredMileage(sel *goquery.Selection) *int {
	var mileage *int
	sel.Find(mileageSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("content"); ok {
			if mileage = parseNumber(v); mileage != nil {
				return false
			}
		}
		text := detect.Text(s)
		if mileage = parseMileage(text); mileage == nil {
			mileage = parseNumber(text)
		}
		return mileage == nil
	})
	return mileage
}

func structuredVIN(sel *goquery.Selection) string {
	var vin string
	sel.Find(vinSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"data-vin", "content"} {
			if v, ok := s.Attr(attr); ok {
				if vin = parseVIN(v, false); vin != "" {
					return false
				}
			}
		}
		vin = parseVIN(detect.Text(s), false)
		return vin == ""
	})
	return vin
}

// firstDescription returns the first descriptive block of a detail page.
func firstDescription(body *goquery.Selection) string {
	var desc string
	pick := func(_ int, s *goquery.Selection) bool {
		text := detect.Text(s)
		if len(text) > minDescriptionLength {
			desc = utils.TruncateString(text, maxDescriptionLength)
			return false
		}
		return true
	}
	body.Find(descriptionSelector).EachWithBreak(pick)
	if desc == "" {
		body.Find("p").EachWithBreak(pick)
	}
	return desc
}

func features(body *goquery.Selection) []string {
	var out []string
	seen := map[string]bool{}
	body.Find(featureSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := utils.TruncateString(detect.Text(s), maxFeatureLength)
		key := strings.ToLower(text)
		if text != "" && !seen[key] {
			seen[key] = true
			out = append(out, text)
		}
		return len(out) < maxFeatures
	})
	return out
}
