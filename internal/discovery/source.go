package discovery

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/BidWorks/Outreach/internal/models"
)

// Query describes one discovery call: what to look for and around where.
// Exclude carries identity keys the caller already holds; sources may ignore
// it (the caller dedups anyway) but well-behaved ones use it to save quota.
type Query struct {
	Category string
	Center   models.Location
	Exclude  map[string]struct{}
}

// Source is the uniform adapter over one provider pool. Implementations must
// tolerate repeated calls with overlapping radii; dedup is the caller's job.
type Source interface {
	Query(ctx context.Context, q Query, radius int) ([]models.Candidate, error)
}

// TieredSource fans a query out to one source per tier concurrently and merges
// the results, tagging each candidate with its tier. A tier whose source fails
// is logged and skipped; TieredSource only errors when every configured tier
// fails, so a single flaky pool never sinks an expansion stage.
type TieredSource struct {
	sources map[models.Tier]Source
}

// NewTieredSource builds a TieredSource from per-tier adapters. At least one
// tier must be configured; running with no discovery source at all is a
// configuration error, not a degraded mode.
func NewTieredSource(sources map[models.Tier]Source) (*TieredSource, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("discovery: at least one tier source required")
	}
	return &TieredSource{sources: sources}, nil
}

// Query implements Source over all configured tiers.
func (t *TieredSource) Query(ctx context.Context, q Query, radius int) ([]models.Candidate, error) {
	var (
		mu       sync.Mutex
		merged   []models.Candidate
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	for tier, src := range t.sources {
		tier, src := tier, src
		g.Go(func() error {
			found, err := src.Query(gctx, q, radius)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// SourceUnavailable: skip the tier, keep the stage alive.
				log.Printf("[discovery] tier %s source failed at r=%d: %v", tier, radius, err)
				failures++
				return nil
			}
			for _, c := range found {
				c.Tier = tier
				if c.Key == "" {
					c.Key = models.NormalizeKey(c.Name)
				}
				merged = append(merged, c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures == len(t.sources) {
		return nil, fmt.Errorf("discovery: all %d tier sources failed at r=%d", failures, radius)
	}
	return merged, nil
}

// StaticSource serves a fixed candidate list filtered by radius; each
// candidate carries the minimum radius at which it becomes visible. Used in
// tests and dev wiring.
type StaticSource struct {
	mu         sync.Mutex
	candidates []StaticEntry
	calls      int
	fail       error
}

// StaticEntry pairs a candidate with the radius at which it appears.
type StaticEntry struct {
	Candidate models.Candidate
	MinRadius int
}

func NewStaticSource(entries ...StaticEntry) *StaticSource {
	return &StaticSource{candidates: entries}
}

// Fail makes every subsequent Query return err (nil restores normal behavior).
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Calls reports how many Query invocations the source has served.
func (s *StaticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StaticSource) Query(ctx context.Context, q Query, radius int) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	var out []models.Candidate
	for _, e := range s.candidates {
		if e.MinRadius > radius {
			continue
		}
		if _, excluded := q.Exclude[e.Candidate.Key]; excluded {
			continue
		}
		out = append(out, e.Candidate)
	}
	return out, nil
}
