// internal/vehicle/types.go

// Package vehicle defines the vehicle record produced by the pipeline, its
// invariants, and the fusion of a listing summary with a detail page.
package vehicle

import (
	"strconv"
	"time"
)

// Platform tags the template family a dealer site is built on.
type Platform string

const (
	PlatformDealerCarSearch Platform = "dealercarsearch"
	PlatformDealerCom       Platform = "dealer_dot_com"
	PlatformDealerInspire   Platform = "dealerinspire"
	PlatformVinSolutions    Platform = "vinsolutions"
	PlatformWordPress       Platform = "wordpress"
	PlatformAutoTraderFeed  Platform = "autotrader_feed"
	PlatformCarsComFeed     Platform = "cars_dot_com_feed"
	PlatformCustom          Platform = "custom"
)

// Dealer is one entry of the dealer registry.
type Dealer struct {
	Name          string `json:"name" bson:"name"`
	URL           string `json:"url" bson:"url"`
	Region        string `json:"region,omitempty" bson:"region,omitempty"`
	InventoryPath string `json:"-" bson:"-"`
}

// InventorySource records how a dealer's inventory page was found.
type InventorySource string

const (
	InventoryFromHint     InventorySource = "hint"
	InventoryFromAnchor   InventorySource = "anchor"
	InventoryFromProbe    InventorySource = "probe"
	InventoryFromHomepage InventorySource = "homepage"
)

// DealerSite is the per-run state of one dealer website.
type DealerSite struct {
	Dealer             Dealer
	BaseURL            string
	Platform           Platform
	InventoryURL       string
	InventorySource    InventorySource
	Cursor             int // last page visited
	RequiresJavaScript bool
}

// Photo is one validated vehicle image. Data holds the payload as a
// data: URL so records never hot-link dealer assets.
type Photo struct {
	SourceURL   string `json:"source_url" bson:"source_url"`
	ContentType string `json:"content_type" bson:"content_type"`
	Size        int    `json:"size" bson:"size"`
	Hash        string `json:"hash" bson:"hash"`
	Data        string `json:"data,omitempty" bson:"data,omitempty"`
}

// Record is one vehicle offered for sale. Optional numeric fields are nil
// when unknown; optional strings are empty.
type Record struct {
	Make          string   `json:"make" bson:"make"`
	Model         string   `json:"model" bson:"model"`
	Year          *int     `json:"year,omitempty" bson:"year,omitempty"`
	Price         *float64 `json:"price,omitempty" bson:"price,omitempty"`
	Mileage       *int     `json:"mileage,omitempty" bson:"mileage,omitempty"`
	VIN           string   `json:"vin,omitempty" bson:"vin,omitempty"`
	Transmission  string   `json:"transmission,omitempty" bson:"transmission,omitempty"`
	FuelType      string   `json:"fuel_type,omitempty" bson:"fuel_type,omitempty"`
	Drivetrain    string   `json:"drivetrain,omitempty" bson:"drivetrain,omitempty"`
	BodyStyle     string   `json:"body_style,omitempty" bson:"body_style,omitempty"`
	ExteriorColor string   `json:"exterior_color,omitempty" bson:"exterior_color,omitempty"`
	InteriorColor string   `json:"interior_color,omitempty" bson:"interior_color,omitempty"`
	StockNumber   string   `json:"stock_number,omitempty" bson:"stock_number,omitempty"`
	Description   string   `json:"description,omitempty" bson:"description,omitempty"`
	Features      []string `json:"features,omitempty" bson:"features,omitempty"`

	Photos            []Photo `json:"photos,omitempty" bson:"photos,omitempty"`
	PhotoCount        int     `json:"photo_count" bson:"photo_count"`
	HasMultiplePhotos bool    `json:"has_multiple_photos" bson:"has_multiple_photos"`

	Completeness float64 `json:"completeness" bson:"completeness"`
	Detailed     bool    `json:"detailed" bson:"detailed"`

	SourceURL string   `json:"source_url" bson:"source_url"`
	Dealer    Dealer   `json:"dealer" bson:"dealer"`
	Platform  Platform `json:"platform,omitempty" bson:"platform,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at" bson:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// Title renders "YEAR MAKE MODEL" from whatever is known.
func (r Record) Title() string {
	s := ""
	if r.Year != nil {
		s = strconv.Itoa(*r.Year)
	}
	for _, part := range []string{r.Make, r.Model} {
		if part == "" {
			continue
		}
		if s != "" {
			s += " "
		}
		s += part
	}
	return s
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	if r.Year != nil {
		y := *r.Year
		out.Year = &y
	}
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	if r.Mileage != nil {
		m := *r.Mileage
		out.Mileage = &m
	}
	if r.Features != nil {
		out.Features = append([]string(nil), r.Features...)
	}
	if r.Photos != nil {
		out.Photos = append([]Photo(nil), r.Photos...)
	}
	return out
}

// IntPtr and FloatPtr build optional fields.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
