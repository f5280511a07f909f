// internal/config/validation.go - validation with detailed error messages
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/valpere/CarScrapexter/internal/pipeline"
	"github.com/valpere/CarScrapexter/internal/utils"
)

// ValidationError represents a detailed validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

func (r *ValidationResult) addError(field, value, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
}

var (
	validBrowserModes = []string{"never", "auto", "always"}
	validStoreTypes   = []string{"memory", "mongodb", "postgres", "mysql", "sqlite", "json", "csv", "excel"}
)

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	result := c.ValidateWithDetails()
	if !result.Valid {
		return formatValidationError(result)
	}
	return nil
}

// ValidateWithDetails provides detailed validation results
func (c *Config) ValidateWithDetails() *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]ValidationError, 0),
		Warnings: make([]string, 0),
	}

	if c.Name == "" {
		result.addError("name", "", "Configuration name is required")
	}

	c.validateDealers(result)
	c.validateFetch(result)
	c.validatePipeline(result)
	c.validateStore(result)

	if _, err := utils.ParseLevel(c.Logging.Level); err != nil {
		result.addError("logging.level", c.Logging.Level, err.Error())
	}

	return result
}

func (c *Config) validateDealers(result *ValidationResult) {
	if len(c.Dealers) == 0 {
		result.addError("dealers", "[]", "At least one dealer must be configured")
		return
	}

	seen := make(map[string]bool, len(c.Dealers))
	for i, d := range c.Dealers {
		field := fmt.Sprintf("dealers[%d].url", i)
		if d.URL == "" {
			result.addError(field, "", "Dealer URL is required")
			continue
		}
		u, err := url.Parse(d.URL)
		if err != nil {
			result.addError(field, d.URL, fmt.Sprintf("Invalid URL format: %s", err.Error()))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			result.addError(field, d.URL, "URL must include protocol (http:// or https://)")
		}
		if u.Host == "" {
			result.addError(field, d.URL, "URL must include hostname")
		}

		key, err := utils.NormalizeURL(d.URL)
		if err == nil {
			if seen[key] {
				result.Warnings = append(result.Warnings, fmt.Sprintf("Dealer %s is listed more than once", d.URL))
			}
			seen[key] = true
		}
		if d.InventoryPath != "" && !strings.HasPrefix(d.InventoryPath, "/") {
			result.addError(fmt.Sprintf("dealers[%d].inventory_path", i), d.InventoryPath, "Inventory path must start with /")
		}
	}
}

func (c *Config) validateFetch(result *ValidationResult) {
	if c.Fetch.Timeout < 0 {
		result.addError("fetch.timeout", c.Fetch.Timeout.String(), "Timeout cannot be negative")
	}
	if c.Fetch.RetryAttempts < 0 || c.Fetch.RetryAttempts > 10 {
		result.addError("fetch.retry_attempts", fmt.Sprint(c.Fetch.RetryAttempts), "Retry attempts must be between 0 and 10")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		result.addError("fetch.requests_per_second", fmt.Sprint(c.Fetch.RequestsPerSecond), "Rate cannot be negative")
	}
	if c.Fetch.RequestsPerSecond > 10 {
		result.Warnings = append(result.Warnings, "More than 10 requests per second per dealer is impolite")
	}
	if !contains(validBrowserModes, c.Browser.Mode) {
		result.addError("browser.mode", c.Browser.Mode, fmt.Sprintf("Invalid browser mode. Valid modes: %s", strings.Join(validBrowserModes, ", ")))
	}
}

func (c *Config) validatePipeline(result *ValidationResult) {
	if c.Detection.MinSignals < 1 || c.Detection.MinSignals > 4 {
		result.addError("detection.min_signals", fmt.Sprint(c.Detection.MinSignals), "Minimum signals must be between 1 and 4")
	}
	if c.Detection.MaxCandidates < 1 {
		result.addError("detection.max_candidates", fmt.Sprint(c.Detection.MaxCandidates), "Candidate cap must be positive")
	}
	h := c.Harvest
	if h.MinBytes >= h.MaxBytes {
		result.addError("harvest.min_bytes", fmt.Sprint(h.MinBytes), "Minimum image size must be below the maximum")
	}
	if h.ListingCap < 0 || h.DetailCap < 0 || h.MergedCap < 0 {
		result.addError("harvest", "", "Photo caps cannot be negative")
	}
	if c.Navigation.MaxPages < 1 {
		result.addError("navigation.max_pages", fmt.Sprint(c.Navigation.MaxPages), "At least one page must be visited")
	}
	if c.Run.DealerConcurrency < 1 || c.Run.VehicleConcurrency < 1 {
		result.addError("run", "", "Concurrency limits must be positive")
	}
	if err := pipeline.ValidateFieldTransforms(c.Extraction.Transforms); err != nil {
		result.addError("extraction.transforms", "", err.Error())
	}
	if c.Run.TargetCount < 0 {
		result.addError("run.target_count", fmt.Sprint(c.Run.TargetCount), "Target count cannot be negative")
	}
}

func (c *Config) validateStore(result *ValidationResult) {
	s := c.Store
	if !contains(validStoreTypes, s.Type) {
		result.addError("store.type", s.Type, fmt.Sprintf("Invalid store type. Valid types: %s", strings.Join(validStoreTypes, ", ")))
		return
	}
	switch s.Type {
	case "mongodb", "postgres", "mysql":
		if s.ConnectionString == "" {
			result.addError("store.connection_string", "", fmt.Sprintf("Connection string is required for %s", s.Type))
		}
	case "sqlite", "json", "csv", "excel":
		if s.Path == "" {
			result.addError("store.path", "", fmt.Sprintf("Path is required for %s", s.Type))
		}
	}
}

// formatValidationError creates a comprehensive error message
func formatValidationError(result *ValidationResult) error {
	var msg strings.Builder

	msg.WriteString("configuration validation failed:\n")
	for i, err := range result.Errors {
		msg.WriteString(fmt.Sprintf("  %d. %s", i+1, err.Message))
		if err.Field != "" {
			msg.WriteString(fmt.Sprintf(" (field: %s)", err.Field))
		}
		if err.Value != "" {
			msg.WriteString(fmt.Sprintf(" (value: %s)", err.Value))
		}
		msg.WriteString("\n")
	}

	return fmt.Errorf("%s", msg.String())
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
