package campaign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/discovery"
	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/scoring"
	"github.com/BidWorks/Outreach/internal/store"
	"github.com/BidWorks/Outreach/internal/strategy"
)

// Service ties discovery, strategy, scoring and the orchestrator into the
// launch-and-escalate flow the composition layer calls.
type Service struct {
	store    store.Store
	orch     *Orchestrator
	planner  *strategy.Planner
	expander *discovery.Expander
}

func NewService(st store.Store, orch *Orchestrator, planner *strategy.Planner, expander *discovery.Expander) *Service {
	return &Service{store: st, orch: orch, planner: planner, expander: expander}
}

// LaunchResult reports everything a launch produced. Expansion and Execution
// carry partial data even when the run fell short of its targets.
type LaunchResult struct {
	Campaign  models.Campaign         `json:"campaign"`
	Strategy  models.OutreachStrategy `json:"strategy"`
	Expansion models.ExpansionReport  `json:"expansion"`
	Execution models.ExecutionResult  `json:"execution"`
}

// Launch runs the full pipeline for a request: size the campaign, discover
// candidates across tiers and radii (seeded by any upstream hints), rank,
// create and execute. Discovery shortfalls degrade the campaign rather than
// fail it; only a malformed request is fatal.
func (s *Service) Launch(ctx context.Context, req models.Request, hints []models.Candidate) (LaunchResult, error) {
	if req.Category == "" {
		return LaunchResult{}, fmt.Errorf("launch: request category required")
	}
	if req.RequiredResponses <= 0 {
		return LaunchResult{}, fmt.Errorf("launch: required responses must be positive")
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	// Seed from hints, dedup by identity key.
	seen := map[string]struct{}{}
	collected := make([]models.Candidate, 0, len(hints))
	for _, h := range hints {
		if h.Key == "" {
			h.Key = models.NormalizeKey(h.Name)
		}
		if _, dup := seen[h.Key]; dup {
			continue
		}
		seen[h.Key] = struct{}{}
		collected = append(collected, h)
	}

	target := 0
	for _, tier := range models.Tiers {
		target += s.planner.CapFor(tier, req.RequiredResponses)
	}

	var report models.ExpansionReport
	if need := target - len(collected); need > 0 {
		q := discovery.Query{Category: req.Category, Center: req.Location, Exclude: seen}
		var found []models.Candidate
		found, report = s.expander.Expand(ctx, q, need, 0)
		collected = append(collected, found...)
	}

	availability := map[models.Tier]int{}
	for _, c := range collected {
		availability[c.Tier]++
	}

	strat, err := s.planner.Plan(req.RequiredResponses, availability)
	if err != nil {
		return LaunchResult{}, err
	}

	ranked := scoring.Rank(collected, req)
	selected := selectByTier(ranked, strat)

	c, err := s.orch.CreateCampaign(ctx, req, selected, strat, nil, report.FinalRadius)
	if err != nil {
		return LaunchResult{}, err
	}
	exec, err := s.orch.Execute(ctx, c.ID)
	if err != nil {
		return LaunchResult{}, err
	}

	return LaunchResult{Campaign: c, Strategy: strat, Expansion: report, Execution: exec}, nil
}

// selectByTier takes candidates in rank order up to each tier's to_contact
// allocation.
func selectByTier(ranked []models.ScoredCandidate, strat models.OutreachStrategy) []models.ScoredCandidate {
	taken := map[models.Tier]int{}
	var out []models.ScoredCandidate
	for _, sc := range ranked {
		plan, ok := strat.Tiers[sc.Tier]
		if !ok || taken[sc.Tier] >= plan.ToContact {
			continue
		}
		taken[sc.Tier]++
		out = append(out, sc)
	}
	return out
}

// CanExpand reports whether wider radius stages remain for the campaign.
func (s *Service) CanExpand(c models.Campaign) bool {
	return s.expander.NextRadius(c.DiscoveryRadius) > 0
}

// Escalate reacts to an underperforming check-in: rediscover (beyond the
// campaign's current radius for expand-radius, across all tiers at full depth
// for add-tier), re-plan against the remaining shortfall, and add the best new
// candidates to the running campaign. Adding is idempotent; already-contacted
// candidates are never re-added.
func (s *Service) Escalate(ctx context.Context, c models.Campaign, ci models.CheckIn, action models.EscalationAction) error {
	if action == models.ActionNone {
		return nil
	}

	exclude := map[string]struct{}{}
	for _, a := range c.Assignments {
		exclude[a.CandidateKey] = struct{}{}
	}

	remaining := c.Request.RequiredResponses
	if responses, err := s.orch.CountResponses(ctx, c.ID); err == nil {
		remaining -= responses
	}
	if remaining < 1 {
		remaining = 1
	}

	target := 0
	for _, tier := range models.Tiers {
		target += s.planner.CapFor(tier, remaining)
	}

	q := discovery.Query{Category: c.Request.Category, Center: c.Request.Location, Exclude: exclude}
	var (
		found  []models.Candidate
		report models.ExpansionReport
	)
	if action == models.ActionExpandRadius {
		found, report = s.expander.ExpandFrom(ctx, q, target, 1, c.DiscoveryRadius)
	} else {
		// Tiers may have fresh capacity at already-covered radii.
		found, report = s.expander.Expand(ctx, q, target, 1)
	}
	if len(found) == 0 {
		log.Printf("[service] escalation for campaign %s found no new candidates", c.ID)
		return nil
	}

	availability := map[models.Tier]int{}
	for _, cand := range found {
		availability[cand.Tier]++
	}
	strat, err := s.planner.Plan(remaining, availability)
	if err != nil {
		return err
	}

	ranked := scoring.Rank(found, c.Request)
	selected := selectByTier(ranked, strat)

	added, err := s.orch.AddCandidates(ctx, c.ID, selected, report.FinalRadius)
	if err != nil {
		return fmt.Errorf("escalate campaign %s: %w", c.ID, err)
	}
	log.Printf("[service] campaign %s check-in %.2f escalated (%s): %d candidates added", c.ID, ci.Offset, action, added)
	return nil
}

// DispatchFollowUps sends one follow-up to every eligible candidate: latest
// attempt at least minDays old, no response yet, fewer than maxFollowUps
// follow-ups so far. Returns how many follow-ups went out; per-item failures
// are logged and skipped.
func (s *Service) DispatchFollowUps(ctx context.Context, minDays, maxFollowUps int) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(minDays) * 24 * time.Hour)
	eligible, err := s.store.ListFollowUpEligible(ctx, cutoff, maxFollowUps)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, attempt := range eligible {
		if err := s.orch.FollowUp(ctx, attempt); err != nil {
			if err != ErrClosed {
				log.Printf("[service] follow-up %s/%s: %v", attempt.CampaignID, attempt.CandidateKey, err)
			}
			continue
		}
		sent++
	}
	return sent, nil
}
