// internal/output/memory.go
package output

import (
	"context"
	"sort"
	"sync"

	"github.com/valpere/CarScrapexter/internal/dedup"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// MemoryStore keeps records in a map keyed by canonical source URL. It
// backs dry runs, tests and the file exporters.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]vehicle.Record
	order   []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]vehicle.Record)}
}

// Upsert stores a deep copy of rec, keeping the earliest discovery time.
func (s *MemoryStore) Upsert(ctx context.Context, rec vehicle.Record) error {
	key := dedup.Key(rec.SourceURL)
	rec = rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[key]; ok {
		if !prev.DiscoveredAt.IsZero() && prev.DiscoveredAt.Before(rec.DiscoveredAt) {
			rec.DiscoveredAt = prev.DiscoveredAt
		}
	} else {
		s.order = append(s.order, key)
	}
	s.records[key] = rec
	return nil
}

// FindBySourceURL returns a copy of the record stored under sourceURL.
func (s *MemoryStore) FindBySourceURL(ctx context.Context, sourceURL string) (*vehicle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[dedup.Key(sourceURL)]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

// Find returns matching records ordered by source URL.
func (s *MemoryStore) Find(ctx context.Context, q Query) ([]vehicle.Record, error) {
	var out []vehicle.Record
	for _, rec := range s.sorted() {
		if !q.Matches(rec) {
			continue
		}
		out = append(out, rec.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Distinct returns the sorted, non-empty values of field among matching records.
func (s *MemoryStore) Distinct(ctx context.Context, field string, q Query) ([]string, error) {
	f, err := lookupDistinct(field)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, rec := range s.sorted() {
		if !q.Matches(rec) {
			continue
		}
		if v := f.value(rec); v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of matching records.
func (s *MemoryStore) Count(ctx context.Context, q Query) (int64, error) {
	var n int64
	for _, rec := range s.sorted() {
		if q.Matches(rec) {
			n++
		}
	}
	return n, nil
}

// All returns every record in insertion order.
func (s *MemoryStore) All() []vehicle.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vehicle.Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key].Clone())
	}
	return out
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) sorted() []vehicle.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]vehicle.Record, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.records[key])
	}
	return out
}
