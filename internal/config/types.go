// internal/config/types.go

// Package config provides configuration types and loading for CarScrapexter.
// A configuration names the dealers to visit and tunes every stage of the
// pipeline: fetching, structural detection, image harvesting, navigation,
// run budgets, the record store and observability.
package config

import (
	"time"

	"github.com/valpere/CarScrapexter/internal/pipeline"
	"github.com/valpere/CarScrapexter/internal/utils"
)

// Config is the root of a run configuration.
type Config struct {
	// Name identifies this configuration
	Name string `yaml:"name" json:"name"`

	// Version of the configuration format
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Dealers is the registry of dealer websites to visit
	Dealers []DealerConfig `yaml:"dealers" json:"dealers"`

	Fetch      FetchConfig          `yaml:"fetch" json:"fetch"`
	Browser    BrowserConfig        `yaml:"browser" json:"browser"`
	Detection  DetectionConfig      `yaml:"detection" json:"detection"`
	Extraction ExtractionConfig     `yaml:"extraction" json:"extraction"`
	Harvest    HarvestConfig        `yaml:"harvest" json:"harvest"`
	Navigation NavigationConfig     `yaml:"navigation" json:"navigation"`
	Run        RunConfig            `yaml:"run" json:"run"`
	Store      StoreConfig          `yaml:"store" json:"store"`
	Metrics    MetricsConfig        `yaml:"metrics" json:"metrics"`
	Logging    utils.LoggingOptions `yaml:"logging" json:"logging"`
}

// DealerConfig is one entry of the dealer registry.
type DealerConfig struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	Region string `yaml:"region,omitempty" json:"region,omitempty"`

	// InventoryPath skips inventory discovery when the listing page is known
	InventoryPath string `yaml:"inventory_path,omitempty" json:"inventory_path,omitempty"`
}

// FetchConfig tunes the HTTP document fetcher.
type FetchConfig struct {
	Timeout           time.Duration     `yaml:"timeout" json:"timeout"`
	RetryAttempts     int               `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay        time.Duration     `yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay     time.Duration     `yaml:"max_retry_delay" json:"max_retry_delay"`
	RequestsPerSecond float64           `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int               `yaml:"burst" json:"burst"`
	MaxBodyBytes      int64             `yaml:"max_body_bytes" json:"max_body_bytes"`
	UserAgents        []string          `yaml:"user_agents,omitempty" json:"user_agents,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// BreakerFailures consecutive failures against one host open its breaker
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
}

// BrowserConfig tunes headless rendering for script-built inventories.
type BrowserConfig struct {
	// Mode is one of never, auto (render when the raw page needs scripts) or always
	Mode      string        `yaml:"mode" json:"mode"`
	Visible   bool          `yaml:"visible" json:"visible"` // run with a window, for debugging
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	WaitDelay time.Duration `yaml:"wait_delay" json:"wait_delay"`
	PoolSize  int           `yaml:"pool_size" json:"pool_size"`
	ExecPath  string        `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	UserAgent string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// DetectionConfig tunes the structural pattern detector.
type DetectionConfig struct {
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`
	MinSignals    int `yaml:"min_signals" json:"min_signals"`
}

// ExtractionConfig holds cleanup rules applied to every extracted record.
type ExtractionConfig struct {
	Transforms []pipeline.FieldTransform `yaml:"transforms,omitempty" json:"transforms,omitempty"`
}

// HarvestConfig tunes photo discovery and download.
type HarvestConfig struct {
	ListingCap  int           `yaml:"listing_cap" json:"listing_cap"`
	DetailCap   int           `yaml:"detail_cap" json:"detail_cap"`
	MergedCap   int           `yaml:"merged_cap" json:"merged_cap"`
	MinBytes    int64         `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes    int64         `yaml:"max_bytes" json:"max_bytes"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	Stopwords   []string      `yaml:"stopwords,omitempty" json:"stopwords,omitempty"`
}

// NavigationConfig tunes inventory discovery and pagination.
type NavigationConfig struct {
	MaxPages       int      `yaml:"max_pages" json:"max_pages"`
	MaxDetailLinks int      `yaml:"max_detail_links" json:"max_detail_links"`
	PageParameter  string   `yaml:"page_parameter" json:"page_parameter"`
	ProbePaths     []string `yaml:"probe_paths,omitempty" json:"probe_paths,omitempty"`

	// SkipDetails disables fetching each candidate's detail page
	SkipDetails bool `yaml:"skip_details" json:"skip_details"`
}

// RunConfig bounds a whole run.
type RunConfig struct {
	DealerConcurrency  int           `yaml:"dealer_concurrency" json:"dealer_concurrency"`
	VehicleConcurrency int           `yaml:"vehicle_concurrency" json:"vehicle_concurrency"`
	MaxDuration        time.Duration `yaml:"max_duration" json:"max_duration"`
	TargetCount        int           `yaml:"target_count" json:"target_count"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	// Type is one of memory, mongodb, postgres, mysql, sqlite, json, csv, excel
	Type string `yaml:"type" json:"type"`

	// ConnectionString is a Mongo URI or a database/sql DSN
	ConnectionString string        `yaml:"connection_string,omitempty" json:"connection_string,omitempty"`
	Database         string        `yaml:"database,omitempty" json:"database,omitempty"`
	Collection       string        `yaml:"collection,omitempty" json:"collection,omitempty"`
	Path             string        `yaml:"path,omitempty" json:"path,omitempty"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxOpenConns     int           `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`
	ConnectRetries   int           `yaml:"connect_retries,omitempty" json:"connect_retries,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
	MetricsPath   string `yaml:"metrics_path" json:"metrics_path"`
	Namespace     string `yaml:"namespace" json:"namespace"`
}
