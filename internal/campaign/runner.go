package campaign

import (
	"context"
	"log"
	"time"

	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
	"github.com/BidWorks/Outreach/internal/stream"
)

// Escalator decides and performs the reaction to an underperforming check-in.
// The Service implements it; the indirection keeps the runner testable.
type Escalator interface {
	CanExpand(c models.Campaign) bool
	Escalate(ctx context.Context, c models.Campaign, ci models.CheckIn, action models.EscalationAction) error
}

// Archiver receives completed campaigns for long-term storage. Optional.
type Archiver interface {
	ArchiveCampaign(ctx context.Context, c models.Campaign, m models.CampaignMetrics) error
}

// Runner is the timer loop that fires due check-ins and sweeps deadlines.
// Check-ins for a campaign fire in increasing offset order (the store returns
// them oldest first) and are idempotent: the executed claim is first-writer-
// wins, so a concurrent or repeated evaluation is a no-op.
type Runner struct {
	store     store.Store
	orch      *Orchestrator
	escalator Escalator
	archiver  Archiver
	events    stream.Sink
	poll      time.Duration
}

func NewRunner(st store.Store, orch *Orchestrator, escalator Escalator, archiver Archiver, events stream.Sink, poll time.Duration) *Runner {
	if events == nil {
		events = stream.NopSink{}
	}
	if poll <= 0 {
		poll = 15 * time.Second
	}
	return &Runner{
		store:     st,
		orch:      orch,
		escalator: escalator,
		archiver:  archiver,
		events:    events,
		poll:      poll,
	}
}

// Run blocks until ctx is cancelled, sweeping due check-ins and passed
// deadlines on every tick.
func (r *Runner) Run(ctx context.Context) error {
	log.Printf("[runner] starting (poll=%s)", r.poll)
	defer log.Printf("[runner] stopped")

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx, time.Now().UTC())
		}
	}
}

// Sweep performs one pass: evaluate every due check-in, then complete every
// campaign whose deadline has passed. Exported so tests can drive the clock.
func (r *Runner) Sweep(ctx context.Context, now time.Time) {
	r.sweepCheckIns(ctx, now)
	r.sweepDeadlines(ctx, now)
}

func (r *Runner) sweepCheckIns(ctx context.Context, now time.Time) {
	due, err := r.store.ListDueCheckIns(ctx, now)
	if err != nil {
		log.Printf("[runner] list due check-ins: %v", err)
		return
	}

	for _, ci := range due {
		c, err := r.store.GetCampaign(ctx, ci.CampaignID)
		if err != nil {
			log.Printf("[runner] check-in %s: load campaign: %v", ci.ID, err)
			continue
		}

		if c.Status != models.CampaignRunning {
			// Terminal or not-yet-executed campaign: retire the check-in so
			// it stops surfacing, without escalating.
			if _, err := r.store.MarkCheckInExecuted(ctx, ci.ID, 0, models.ActionNone, now); err != nil {
				log.Printf("[runner] retire check-in %s: %v", ci.ID, err)
			}
			continue
		}

		actual, err := r.orch.CountResponses(ctx, c.ID)
		if err != nil {
			log.Printf("[runner] check-in %s: count responses: %v", ci.ID, err)
			continue
		}

		ratio, action := Evaluate(ci, c.Strategy, actual, r.escalator.CanExpand(c))
		claimed, err := r.store.MarkCheckInExecuted(ctx, ci.ID, ratio, action, now)
		if err != nil {
			log.Printf("[runner] claim check-in %s: %v", ci.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		r.events.Publish(ctx, stream.EventCheckInEvaluated, c.ID.String(), map[string]interface{}{
			"offset":   ci.Offset,
			"ratio":    ratio,
			"decision": action,
		})
		log.Printf("[runner] campaign %s check-in %.2f: ratio=%.1f decision=%s", c.ID, ci.Offset, ratio, action)

		if action != models.ActionNone {
			if err := r.escalator.Escalate(ctx, c, ci, action); err != nil {
				log.Printf("[runner] escalate campaign %s: %v", c.ID, err)
			}
		}
	}
}

func (r *Runner) sweepDeadlines(ctx context.Context, now time.Time) {
	active, err := r.store.ListActiveCampaigns(ctx)
	if err != nil {
		log.Printf("[runner] list active campaigns: %v", err)
		return
	}

	for _, c := range active {
		if c.Deadline.After(now) {
			continue
		}

		responses, err := r.orch.CountResponses(ctx, c.ID)
		if err != nil {
			log.Printf("[runner] campaign %s: count responses: %v", c.ID, err)
			continue
		}
		// Below target at the deadline is a shortfall, not an error.
		shortfall := responses < c.Request.RequiredResponses

		c, err = r.store.UpdateCampaignStatus(ctx, c.ID, models.CampaignCompleted, shortfall)
		if err != nil {
			log.Printf("[runner] complete campaign %s: %v", c.ID, err)
			continue
		}

		r.events.Publish(ctx, stream.EventCampaignCompleted, c.ID.String(), map[string]interface{}{
			"responses": responses,
			"shortfall": shortfall,
		})
		log.Printf("[runner] campaign %s completed at deadline: %d/%d responses (shortfall=%t)",
			c.ID, responses, c.Request.RequiredResponses, shortfall)

		if r.archiver != nil {
			metrics, err := r.orch.Metrics(ctx, c.ID)
			if err == nil {
				err = r.archiver.ArchiveCampaign(ctx, c, metrics)
			}
			if err != nil {
				log.Printf("[runner] archive campaign %s: %v", c.ID, err)
			}
		}
	}
}
