// internal/vehicle/merge.go
package vehicle

// Merge fuses the listing summary of a vehicle with its detail page. Every
// field the detail view populated overrides the summary; fields it left
// unset keep the summary value. Photos are concatenated summary first,
// deduplicated by payload hash and cut to photoCap (no cap when <= 0).
//
// Merge is pure: neither input is modified and merging the same pair twice
// yields the same record.
func Merge(summary, detail Record, photoCap int) Record {
	out := summary.Clone()

	mergeString(&out.Make, detail.Make)
	mergeString(&out.Model, detail.Model)
	if detail.Year != nil {
		y := *detail.Year
		out.Year = &y
	}
	if detail.Price != nil {
		p := *detail.Price
		out.Price = &p
	}
	if detail.Mileage != nil {
		m := *detail.Mileage
		out.Mileage = &m
	}
	mergeString(&out.VIN, detail.VIN)
	mergeString(&out.Transmission, detail.Transmission)
	mergeString(&out.FuelType, detail.FuelType)
	mergeString(&out.Drivetrain, detail.Drivetrain)
	mergeString(&out.BodyStyle, detail.BodyStyle)
	mergeString(&out.ExteriorColor, detail.ExteriorColor)
	mergeString(&out.InteriorColor, detail.InteriorColor)
	mergeString(&out.StockNumber, detail.StockNumber)
	mergeString(&out.Description, detail.Description)
	if len(detail.Features) > 0 {
		out.Features = append([]string(nil), detail.Features...)
	}

	mergeString(&out.SourceURL, detail.SourceURL)
	mergeString(&out.Dealer.Name, detail.Dealer.Name)
	mergeString(&out.Dealer.URL, detail.Dealer.URL)
	mergeString(&out.Dealer.Region, detail.Dealer.Region)
	if detail.Platform != "" {
		out.Platform = detail.Platform
	}

	if out.DiscoveredAt.IsZero() || (!detail.DiscoveredAt.IsZero() && detail.DiscoveredAt.Before(out.DiscoveredAt)) {
		out.DiscoveredAt = detail.DiscoveredAt
	}
	if detail.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = detail.UpdatedAt
	}

	out.Photos = MergePhotos(summary.Photos, detail.Photos, photoCap)
	out.Refresh()
	return out
}

// MergePhotos concatenates photo lists in order, drops payload duplicates
// and truncates to limit (no limit when <= 0).
func MergePhotos(first, second []Photo, limit int) []Photo {
	seen := make(map[string]bool, len(first)+len(second))
	var out []Photo
	for _, list := range [][]Photo{first, second} {
		for _, p := range list {
			key := p.Hash
			if key == "" {
				key = "url:" + p.SourceURL
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
