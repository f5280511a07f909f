// internal/vehicle/invariants.go
package vehicle

import (
	"regexp"
	"time"
)

// Plausibility bounds for extracted values.
const (
	MinYear    = 1990
	MinPrice   = 1000.0
	MaxPrice   = 500000.0
	MinMileage = 0
	MaxMileage = 500000

	// DetailedThreshold is the completeness above which a record counts as detailed.
	DetailedThreshold = 0.6
)

var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// MaxYear is the newest acceptable model year: next year's models are
// already on lots.
func MaxYear(now time.Time) int {
	return now.Year() + 1
}

// ValidYear reports whether y is a plausible model year at time now.
func ValidYear(y int, now time.Time) bool {
	return y >= MinYear && y <= MaxYear(now)
}

// ValidPrice reports whether p is a plausible asking price.
func ValidPrice(p float64) bool {
	return p >= MinPrice && p <= MaxPrice
}

// ValidMileage reports whether m is a plausible odometer reading.
func ValidMileage(m int) bool {
	return m >= MinMileage && m <= MaxMileage
}

// ValidVIN reports whether v is a 17-character VIN without I, O or Q.
func ValidVIN(v string) bool {
	return vinPattern.MatchString(v)
}

// Sanitize clears every field that violates its bounds, so a stored record
// never carries an implausible value.
func (r *Record) Sanitize(now time.Time) {
	if r.Year != nil && !ValidYear(*r.Year, now) {
		r.Year = nil
	}
	if r.Price != nil && !ValidPrice(*r.Price) {
		r.Price = nil
	}
	if r.Mileage != nil && !ValidMileage(*r.Mileage) {
		r.Mileage = nil
	}
	if r.VIN != "" && !ValidVIN(r.VIN) {
		r.VIN = ""
	}
}

// Emittable reports whether the record may be stored: make and model are
// resolved, and either the price is sane or there is photographic evidence.
func (r Record) Emittable() bool {
	if r.Make == "" || r.Model == "" {
		return false
	}
	return (r.Price != nil && ValidPrice(*r.Price)) || len(r.Photos) > 0
}

// ComputeCompleteness returns the fraction of the checklist that is
// populated: make, model, year, price, mileage, photos and VIN.
func (r Record) ComputeCompleteness() float64 {
	checks := []bool{
		r.Make != "",
		r.Model != "",
		r.Year != nil,
		r.Price != nil,
		r.Mileage != nil,
		len(r.Photos) > 0,
		r.VIN != "",
	}
	filled := 0
	for _, ok := range checks {
		if ok {
			filled++
		}
	}
	return float64(filled) / float64(len(checks))
}

// Refresh recomputes every derived field.
func (r *Record) Refresh() {
	r.PhotoCount = len(r.Photos)
	r.HasMultiplePhotos = r.PhotoCount > 1
	r.Completeness = r.ComputeCompleteness()
	r.Detailed = r.Completeness > DetailedThreshold
}
