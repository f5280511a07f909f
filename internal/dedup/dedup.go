// internal/dedup/dedup.go

// Package dedup keeps one run from emitting the same vehicle twice.
package dedup

import (
	"strings"
	"sync"

	"github.com/valpere/CarScrapexter/internal/utils"
)

// Guard is a concurrency-safe set of canonical source URLs.
type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

// Key canonicalizes a source URL. Unparseable input is trimmed and used as is.
func Key(sourceURL string) string {
	if key, err := utils.NormalizeURL(sourceURL); err == nil {
		return key
	}
	return strings.TrimSpace(sourceURL)
}

// Claim marks sourceURL as emitted and reports whether this call was the
// first to do so. An empty URL is never claimable.
func (g *Guard) Claim(sourceURL string) bool {
	key := Key(sourceURL)
	if key == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

// Release forgets a claim, for a record whose emission failed.
func (g *Guard) Release(sourceURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, Key(sourceURL))
}

// Seen reports whether sourceURL has been claimed.
func (g *Guard) Seen(sourceURL string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[Key(sourceURL)]
	return ok
}

// Len returns the number of claimed URLs.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
