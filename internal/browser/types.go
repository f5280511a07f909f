// internal/browser/types.go
package browser

import (
	"context"
	"time"
)

// BrowserConfig defines headless rendering configuration
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" json:"headless"`
	ExecPath       string        `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	WaitDelay      time.Duration `yaml:"wait_delay,omitempty" json:"wait_delay,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	DisableImages  bool          `yaml:"disable_images" json:"disable_images"`
}

// DefaultBrowserConfig returns default browser configuration
func DefaultBrowserConfig() *BrowserConfig {
	return &BrowserConfig{
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		WaitDelay:      2 * time.Second,
		DisableImages:  true, // photos are downloaded separately over HTTP
	}
}

// Session is one rendering browser tab. A session is used by one goroutine
// at a time; the pool hands it out exclusively.
type Session interface {
	// Render navigates to url, lets scripts settle and returns the document HTML
	Render(ctx context.Context, url string) (string, error)

	// Close releases the browser process behind the session
	Close() error
}

// SessionFactory starts a new session.
type SessionFactory func(config *BrowserConfig) (Session, error)

// BrowserStats contains rendering statistics
type BrowserStats struct {
	PagesLoaded     int           `json:"pages_loaded"`
	AverageLoadTime time.Duration `json:"average_load_time"`
	Errors          int           `json:"errors"`
}
