// internal/output/file.go
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

var fileLogger = utils.NewComponentLogger("file-store")

// exporter writes a snapshot of records to path.
type exporter func(path string, records []vehicle.Record) error

// FileStore collects records in memory and exports them to a file on Flush
// and Close. Upserts replace earlier versions, so the file never holds the
// same vehicle twice.
type FileStore struct {
	*MemoryStore

	path   string
	format StoreType
	export exporter

	mu     sync.Mutex
	closed bool
}

func newFileStore(path string, format StoreType, export exporter) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s output path is required", format)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		format:      format,
		export:      export,
	}, nil
}

// Path returns the export file path.
func (s *FileStore) Path() string {
	return s.path
}

// Flush rewrites the export file with the current records.
func (s *FileStore) Flush(ctx context.Context) error {
	records, err := s.Find(ctx, Query{})
	if err != nil {
		return err
	}
	if err := s.export(s.path, records); err != nil {
		return fmt.Errorf("failed to write %s output %s: %w", s.format, s.path, err)
	}
	fileLogger.Debugf("wrote %d records to %s", len(records), s.path)
	return nil
}

// Close exports the records. Calling it again is a no-op.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Flush(context.Background())
}

// flatColumns is the column order of the tabular exporters.
var flatColumns = []string{
	"source_url", "make", "model", "year", "price", "mileage", "vin",
	"transmission", "fuel_type", "drivetrain", "body_style",
	"exterior_color", "interior_color", "stock_number",
	"features", "photo_count", "photo_urls", "completeness", "detailed",
	"dealer_name", "dealer_url", "dealer_region", "platform",
	"discovered_at", "updated_at", "description",
}

// flatRecord renders rec in flatColumns order. Missing numbers are nil;
// lists are joined.
func flatRecord(rec vehicle.Record) []interface{} {
	photoURLs := make([]string, 0, len(rec.Photos))
	for _, p := range rec.Photos {
		if p.SourceURL != "" {
			photoURLs = append(photoURLs, p.SourceURL)
		}
	}
	return []interface{}{
		rec.SourceURL, rec.Make, rec.Model,
		nullInt(rec.Year), nullFloat(rec.Price), nullInt(rec.Mileage), rec.VIN,
		rec.Transmission, rec.FuelType, rec.Drivetrain, rec.BodyStyle,
		rec.ExteriorColor, rec.InteriorColor, rec.StockNumber,
		strings.Join(rec.Features, "; "), rec.PhotoCount, strings.Join(photoURLs, " "),
		rec.Completeness, rec.Detailed,
		rec.Dealer.Name, rec.Dealer.URL, rec.Dealer.Region, string(rec.Platform),
		formatTime(rec.DiscoveredAt), formatTime(rec.UpdatedAt), rec.Description,
	}
}
