// internal/output/csv.go
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// NewCSVStore creates a file store that writes one row per vehicle.
func NewCSVStore(path string) (*FileStore, error) {
	return newFileStore(path, StoreCSV, writeCSV)
}

func writeCSV(path string, records []vehicle.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(flatColumns); err != nil {
		file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range records {
		values := flatRecord(rec)
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = csvValue(v)
		}
		if err := writer.Write(row); err != nil {
			file.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func csvValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
