// internal/extract/fields.go
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/valpere/CarScrapexter/internal/pipeline"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

const (
	maxModelLength       = 30
	minDescriptionLength = 20
	maxDescriptionLength = 500
	maxFeatures          = 30
	maxFeatureLength     = 100
	maxLabelWords        = 3
)

var (
	yearPattern       = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	priceValuePattern = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d{1,2})?)|\b(?:price|msrp|sale price|internet price):?\s*\$?\s?(\d[\d,]{2,}(?:\.\d{1,2})?)`)
	mileagePatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(?:miles?\b|mi\b\.?)`),
		regexp.MustCompile(`(?i)\b(?:mileage|odometer):?\s*(\d[\d,]*)`),
	}
	numberPattern     = regexp.MustCompile(`\d[\d,]*`)
	vinLabelPattern   = regexp.MustCompile(`(?i)\bVIN\b\s*(?:#|number)?\s*:?\s*([A-HJ-NPR-Z0-9]{17})\b`)
	vinTokenPattern   = regexp.MustCompile(`(?i)\b[A-HJ-NPR-Z0-9]{17}\b`)
	stockPattern      = regexp.MustCompile(`(?i)\bstock\s*(?:#|no\.?|number)?\s*:?\s*#?\s*([A-Z0-9][A-Z0-9-]{2,19})\b`)
	modelStopPattern  = regexp.MustCompile(`(?i)\$|\b(?:19|20)\d{2}\b|\b\d[\d,]*\s*(?:miles?|mi)\b|[|•·(),;:]|\s-\s|\b(?:price|msrp|mileage|odometer|vin|stock|call|for sale|only)\b`)
	labelWordsPattern = regexp.MustCompile(`(?i)^(?:interior|exterior|color|colour|transmission|engine|mileage|stock|vin|drivetrain|drive|fuel|body|price|msrp|odometer|trim|doors?|mpg|style|type)$`)
)

type keyword struct {
	pattern *regexp.Regexp
	value   string
}

func keywords(pairs ...string) []keyword {
	out := make([]keyword, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, keyword{pattern: regexp.MustCompile(`(?i)\b(?:` + pairs[i] + `)\b`), value: pairs[i+1]})
	}
	return out
}

var (
	transmissionKeywords = keywords(
		`automatic|auto trans`, "Automatic",
		`manual|stick shift`, "Manual",
		`cvt`, "CVT",
	)
	fuelKeywords = keywords(
		`gasoline|gas`, "Gasoline",
		`diesel`, "Diesel",
		`plug-in hybrid|hybrid`, "Hybrid",
		`electric|ev`, "Electric",
		`flex fuel|e85`, "Flex Fuel",
	)
	drivetrainKeywords = keywords(
		`awd|all[- ]wheel drive`, "AWD",
		`4wd|4x4|four[- ]wheel drive`, "4WD",
		`fwd|front[- ]wheel drive`, "FWD",
		`rwd|rear[- ]wheel drive`, "RWD",
	)
	bodyStyleKeywords = keywords(
		`sedan`, "sedan",
		`suv|sport utility`, "SUV",
		`pickup|truck|crew cab`, "truck",
		`coupe`, "coupe",
		`convertible`, "convertible",
		`hatchback`, "hatchback",
		`wagon`, "wagon",
		`minivan|van`, "van",
	)
	exteriorLabels = regexp.MustCompile(`(?i)\b(?:exterior(?:\s+colou?r)?|ext\.?\s+colou?r)\s*:\s*`)
	interiorLabels = regexp.MustCompile(`(?i)\b(?:interior(?:\s+colou?r)?|int\.?\s+colou?r)\s*:\s*`)
)

// firstKeyword returns the value of the keyword occurring earliest in text.
func firstKeyword(text string, table []keyword) string {
	best, value := -1, ""
	for _, kw := range table {
		loc := kw.pattern.FindStringIndex(text)
		if loc != nil && (best < 0 || loc[0] < best) {
			best, value = loc[0], kw.value
		}
	}
	if value == "" {
		return ""
	}
	if value == strings.ToLower(value) {
		return pipeline.Title(value)
	}
	return value
}

// parseYear returns the first in-range year token of text.
func parseYear(text string, now time.Time) *int {
	for _, tok := range yearPattern.FindAllString(text, -1) {
		y, err := pipeline.ParseInt(tok)
		if err == nil && vehicle.ValidYear(y, now) {
			return vehicle.IntPtr(y)
		}
	}
	return nil
}

// parsePrice returns the first in-range currency amount of text.
func parsePrice(text string) *float64 {
	for _, m := range priceValuePattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		p, err := pipeline.ParseFloat(raw)
		if err == nil && vehicle.ValidPrice(p) {
			return vehicle.FloatPtr(p)
		}
	}
	return nil
}

// parseMileage returns the first in-range odometer reading of text.
func parseMileage(text string) *int {
	for _, re := range mileagePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, err := pipeline.ParseInt(m[1])
			if err == nil && vehicle.ValidMileage(v) {
				return vehicle.IntPtr(v)
			}
		}
	}
	return nil
}

// parseNumber reads the leading number of a structured mileage element
// such as "32,000" that carries no unit.
func parseNumber(text string) *int {
	tok := numberPattern.FindString(text)
	if tok == "" {
		return nil
	}
	v, err := pipeline.ParseInt(tok)
	if err != nil || !vehicle.ValidMileage(v) {
		return nil
	}
	return vehicle.IntPtr(v)
}

func parseVIN(text string, labelled bool) string {
	var raw string
	if labelled {
		if m := vinLabelPattern.FindStringSubmatch(text); m != nil {
			raw = m[1]
		}
	} else {
		raw = vinTokenPattern.FindString(text)
	}
	vin := strings.ToUpper(raw)
	if !vehicle.ValidVIN(vin) {
		return ""
	}
	return vin
}

// parseMakeModel finds the manufacturer and the model text that follows
// it, cut at the next year, price or mileage marker.
func parseMakeModel(text string) (string, string) {
	m, ok := vehicle.FindMake(text)
	if !ok {
		return "", ""
	}
	rest := text[m.End:]
	if loc := modelStopPattern.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	model := strings.Trim(utils.CollapseSpaces(rest), " -/.")
	model = strings.TrimSpace(utils.TruncateString(model, maxModelLength))
	return m.Name, model
}

// labelValue returns up to maxLabelWords words that follow a label such as
// "Exterior Color:", stopping at the next label or number.
func labelValue(text string, label *regexp.Regexp) string {
	loc := label.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	var words []string
	for _, w := range strings.Fields(text[loc[1]:]) {
		clean := strings.Trim(w, ",;|")
		if clean == "" || labelWordsPattern.MatchString(clean) || strings.ContainsAny(clean, "0123456789:$") {
			break
		}
		words = append(words, clean)
		if len(words) == maxLabelWords || clean != w {
			break
		}
	}
	if len(words) == 0 {
		return ""
	}
	return pipeline.Title(strings.Join(words, " "))
}

func parseStockNumber(text string) string {
	m := stockPattern.FindStringSubmatch(text)
	if m == nil || !strings.ContainsAny(m[1], "0123456789") {
		return ""
	}
	return strings.ToUpper(m[1])
}
