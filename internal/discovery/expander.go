package discovery

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/BidWorks/Outreach/internal/models"
)

// diminishingReturns is the per-stage unique-find floor: once the minimum
// acceptable count is in hand, a stage yielding fewer unique candidates than
// this stops the expansion.
const diminishingReturns = 2

// Expander widens a geographic search across fixed radius stages until the
// target count is met or further stages stop paying off.
type Expander struct {
	source     Source
	stageRadii []int
	stagePause time.Duration
}

// ExpanderOption tweaks an Expander.
type ExpanderOption func(*Expander)

// WithStagePause sets the courtesy pause between non-final stages. Zero
// disables it (tests).
func WithStagePause(d time.Duration) ExpanderOption {
	return func(e *Expander) { e.stagePause = d }
}

// WithStageRadii overrides the default 15/25/40/60/100 stage sequence.
func WithStageRadii(radii []int) ExpanderOption {
	return func(e *Expander) {
		if len(radii) > 0 {
			e.stageRadii = radii
		}
	}
}

func NewExpander(source Source, opts ...ExpanderOption) *Expander {
	e := &Expander{
		source:     source,
		stageRadii: []int{15, 25, 40, 60, 100},
		stagePause: 150 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinAcceptable is the default floor below which an expansion reports
// Success=false: max(4, ceil(0.5 × target)).
func MinAcceptable(target int) int {
	return max(4, int(math.Ceil(0.5*float64(target))))
}

// NextRadius returns the first stage radius strictly above the given one, or
// 0 when the stages are exhausted. Escalation uses it to resume expansion
// where a previous run stopped.
func (e *Expander) NextRadius(after int) int {
	for _, r := range e.stageRadii {
		if r > after {
			return r
		}
	}
	return 0
}

// Expand runs the staged search. minAcceptable <= 0 selects the default
// floor. The returned list is duplicate-free (by identity key), never longer
// than target, and accompanied by a stage-by-stage report. Per-stage source
// failures are logged and skipped; Expand itself never fails.
func (e *Expander) Expand(ctx context.Context, q Query, target, minAcceptable int) ([]models.Candidate, models.ExpansionReport) {
	return e.expand(ctx, q, target, minAcceptable, 0)
}

// ExpandFrom behaves like Expand but skips stages at or below afterRadius.
// Used on escalation so a re-run only pays for new ground.
func (e *Expander) ExpandFrom(ctx context.Context, q Query, target, minAcceptable, afterRadius int) ([]models.Candidate, models.ExpansionReport) {
	return e.expand(ctx, q, target, minAcceptable, afterRadius)
}

func (e *Expander) expand(ctx context.Context, q Query, target, minAcceptable, afterRadius int) ([]models.Candidate, models.ExpansionReport) {
	if minAcceptable <= 0 {
		minAcceptable = MinAcceptable(target)
	}

	seen := make(map[string]struct{}, target)
	for k := range q.Exclude {
		seen[k] = struct{}{}
	}

	var (
		collected []models.Candidate
		report    models.ExpansionReport
	)

	stages := make([]int, 0, len(e.stageRadii))
	for _, r := range e.stageRadii {
		if r > afterRadius {
			stages = append(stages, r)
		}
	}

	for i, radius := range stages {
		if ctx.Err() != nil {
			break
		}
		need := target - len(collected)
		if need <= 0 {
			break
		}

		report.ExternalCalls++
		found, err := e.source.Query(ctx, Query{Category: q.Category, Center: q.Center, Exclude: seen}, radius)
		if err != nil {
			// Stage failure is not fatal; wider stages may still deliver.
			log.Printf("[expander] stage r=%d failed, continuing: %v", radius, err)
			report.Stages = append(report.Stages, models.ExpansionStage{Radius: radius, NewFound: 0, RunningTotal: len(collected)})
			report.FinalRadius = radius
			continue
		}

		uniqueNew := 0
		for _, c := range found {
			if len(collected) >= target {
				break
			}
			key := c.Key
			if key == "" {
				key = models.NormalizeKey(c.Name)
				c.Key = key
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			collected = append(collected, c)
			uniqueNew++
		}

		report.Stages = append(report.Stages, models.ExpansionStage{Radius: radius, NewFound: uniqueNew, RunningTotal: len(collected)})
		report.FinalRadius = radius
		log.Printf("[expander] stage r=%d found %d new (total %d/%d)", radius, uniqueNew, len(collected), target)

		if len(collected) >= target {
			break
		}
		if len(collected) >= minAcceptable && uniqueNew < diminishingReturns {
			log.Printf("[expander] stopping at r=%d: diminishing returns", radius)
			break
		}
		if i < len(stages)-1 && e.stagePause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.stagePause):
			}
		}
	}

	report.Success = len(collected) >= minAcceptable
	if target > 0 {
		report.CompletionRate = float64(len(collected)) / float64(target) * 100
	}
	return collected, report
}
