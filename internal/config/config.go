// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/CarScrapexter/internal/errors"
)

// Default values applied to zero fields after loading.
const (
	DefaultFetchTimeout       = 30 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = time.Second
	DefaultMaxRetryDelay      = 30 * time.Second
	DefaultRequestsPerSecond  = 1.0
	DefaultBurst              = 2
	DefaultMaxBodyBytes       = 10 << 20
	DefaultBreakerFailures    = 5
	DefaultBreakerReset       = time.Minute
	DefaultBrowserTimeout     = 30 * time.Second
	DefaultBrowserWaitDelay   = 2 * time.Second
	DefaultBrowserPoolSize    = 2
	DefaultMaxCandidates      = 50
	DefaultMinSignals         = 2
	DefaultListingPhotoCap    = 3
	DefaultDetailPhotoCap     = 15
	DefaultMergedPhotoCap     = 15
	DefaultMinImageBytes      = 10_000
	DefaultMaxImageBytes      = 5_000_000
	DefaultImageTimeout       = 10 * time.Second
	DefaultImageConcurrency   = 4
	DefaultMaxPages           = 5
	DefaultMaxDetailLinks     = 50
	DefaultPageParameter      = "page"
	DefaultDealerConcurrency  = 4
	DefaultVehicleConcurrency = 4
	DefaultStoreTimeout       = 10 * time.Second
	DefaultMetricsAddress     = ":9090"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "carscrapexter"
)

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, errors.Config("load", fmt.Errorf("configuration filename cannot be empty"))
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Config("load", fmt.Errorf("failed to read configuration file: %w", err))
	}

	return LoadFromBytes(data)
}

// LoadFromReader loads configuration from an io.Reader
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, errors.Config("load", fmt.Errorf("reader cannot be nil"))
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Config("load", fmt.Errorf("failed to read from reader: %w", err))
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML, expands ${VAR} and ${VAR:-default}
// references, applies defaults and validates.
func LoadFromBytes(data []byte) (*Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.Config("load", fmt.Errorf("configuration data cannot be empty"))
	}

	expanded := expandEnvironmentVariables(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Config("parse", fmt.Errorf("failed to parse YAML configuration: %w", err))
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Config("validate", err)
	}

	return &cfg, nil
}

// SaveToWriter writes the configuration as YAML.
func SaveToWriter(cfg *Config, writer io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}
	return enc.Close()
}

// expandEnvironmentVariables substitutes $VAR, ${VAR} and ${VAR:-default}.
func expandEnvironmentVariables(content string) string {
	return os.Expand(content, func(name string) string {
		if key, def, ok := strings.Cut(name, ":-"); ok {
			if v, set := os.LookupEnv(key); set && v != "" {
				return v
			}
			return def
		}
		return os.Getenv(name)
	})
}

// ApplyDefaults fills every zero field with its default.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	for i := range c.Dealers {
		c.Dealers[i].URL = strings.TrimSpace(c.Dealers[i].URL)
		if c.Dealers[i].Name == "" {
			c.Dealers[i].Name = c.Dealers[i].URL
		}
	}

	f := &c.Fetch
	if f.Timeout == 0 {
		f.Timeout = DefaultFetchTimeout
	}
	if f.RetryAttempts == 0 {
		f.RetryAttempts = DefaultRetryAttempts
	}
	if f.RetryDelay == 0 {
		f.RetryDelay = DefaultRetryDelay
	}
	if f.MaxRetryDelay == 0 {
		f.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if f.RequestsPerSecond == 0 {
		f.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if f.Burst == 0 {
		f.Burst = DefaultBurst
	}
	if f.MaxBodyBytes == 0 {
		f.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if f.BreakerFailures == 0 {
		f.BreakerFailures = DefaultBreakerFailures
	}
	if f.BreakerReset == 0 {
		f.BreakerReset = DefaultBreakerReset
	}

	b := &c.Browser
	if b.Mode == "" {
		b.Mode = "auto"
	}
	b.Mode = strings.ToLower(b.Mode)
	if b.Timeout == 0 {
		b.Timeout = DefaultBrowserTimeout
	}
	if b.WaitDelay == 0 {
		b.WaitDelay = DefaultBrowserWaitDelay
	}
	if b.PoolSize == 0 {
		b.PoolSize = DefaultBrowserPoolSize
	}

	if c.Detection.MaxCandidates == 0 {
		c.Detection.MaxCandidates = DefaultMaxCandidates
	}
	if c.Detection.MinSignals == 0 {
		c.Detection.MinSignals = DefaultMinSignals
	}

	h := &c.Harvest
	if h.ListingCap == 0 {
		h.ListingCap = DefaultListingPhotoCap
	}
	if h.DetailCap == 0 {
		h.DetailCap = DefaultDetailPhotoCap
	}
	if h.MergedCap == 0 {
		h.MergedCap = DefaultMergedPhotoCap
	}
	if h.MinBytes == 0 {
		h.MinBytes = DefaultMinImageBytes
	}
	if h.MaxBytes == 0 {
		h.MaxBytes = DefaultMaxImageBytes
	}
	if h.Timeout == 0 {
		h.Timeout = DefaultImageTimeout
	}
	if h.Concurrency == 0 {
		h.Concurrency = DefaultImageConcurrency
	}

	n := &c.Navigation
	if n.MaxPages == 0 {
		n.MaxPages = DefaultMaxPages
	}
	if n.MaxDetailLinks == 0 {
		n.MaxDetailLinks = DefaultMaxDetailLinks
	}
	if n.PageParameter == "" {
		n.PageParameter = DefaultPageParameter
	}

	if c.Run.DealerConcurrency == 0 {
		c.Run.DealerConcurrency = DefaultDealerConcurrency
	}
	if c.Run.VehicleConcurrency == 0 {
		c.Run.VehicleConcurrency = DefaultVehicleConcurrency
	}

	s := &c.Store
	if s.Type == "" {
		s.Type = "memory"
	}
	s.Type = strings.ToLower(s.Type)
	if s.Timeout == 0 {
		s.Timeout = DefaultStoreTimeout
	}
	if s.Database == "" {
		s.Database = "carscrapexter"
	}
	if s.Collection == "" {
		s.Collection = "vehicles"
	}

	m := &c.Metrics
	if m.ListenAddress == "" {
		m.ListenAddress = DefaultMetricsAddress
	}
	if m.MetricsPath == "" {
		m.MetricsPath = DefaultMetricsPath
	}
	if m.Namespace == "" {
		m.Namespace = DefaultMetricsNamespace
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// GenerateTemplate returns a starter configuration. templateType selects the
// store: memory (default), mongodb, postgres, mysql, sqlite, json, csv or excel.
func GenerateTemplate(templateType string) Config {
	cfg := Config{
		Name:    "dealer_inventory",
		Version: "1",
		Dealers: []DealerConfig{
			{Name: "Example Motors", URL: "https://www.example-motors.com", Region: "TX"},
			{Name: "Sample Auto Sales", URL: "https://www.sample-auto.com", Region: "FL", InventoryPath: "/inventory"},
		},
		Run: RunConfig{
			MaxDuration: 30 * time.Minute,
			TargetCount: 1000,
		},
		Store: StoreConfig{Type: "memory"},
	}

	switch strings.ToLower(templateType) {
	case "mongodb", "mongo":
		cfg.Store = StoreConfig{Type: "mongodb", ConnectionString: "${MONGO_URL:-mongodb://localhost:27017}", Database: "carscrapexter", Collection: "vehicles"}
	case "postgres", "postgresql":
		cfg.Store = StoreConfig{Type: "postgres", ConnectionString: "${DATABASE_URL:-postgres://localhost/carscrapexter?sslmode=disable}", Collection: "vehicles"}
	case "mysql":
		cfg.Store = StoreConfig{Type: "mysql", ConnectionString: "${DATABASE_URL:-root@tcp(localhost:3306)/carscrapexter}", Collection: "vehicles"}
	case "sqlite":
		cfg.Store = StoreConfig{Type: "sqlite", Path: "vehicles.db", Collection: "vehicles"}
	case "json", "csv", "excel":
		ext := templateType
		if ext == "excel" {
			ext = "xlsx"
		}
		cfg.Store = StoreConfig{Type: strings.ToLower(templateType), Path: "vehicles." + ext}
	}

	cfg.ApplyDefaults()
	return cfg
}
