// internal/output/json.go
package output

import (
	"encoding/json"
	"os"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// NewJSONStore creates a file store that writes an indented JSON array.
func NewJSONStore(path string) (*FileStore, error) {
	return newFileStore(path, StoreJSON, writeJSON)
}

func writeJSON(path string, records []vehicle.Record) error {
	if records == nil {
		records = []vehicle.Record{}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
