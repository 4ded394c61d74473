package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/channel"
	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
	"github.com/BidWorks/Outreach/internal/stream"
)

// ErrClosed is returned when an operation targets a campaign that no longer
// accepts attempts or evaluations.
var ErrClosed = errors.New("campaign closed")

// DefaultDurations maps urgency buckets to campaign length when the caller
// does not configure its own bands.
var DefaultDurations = map[models.Urgency]time.Duration{
	models.UrgencyEmergency: 2 * time.Hour,
	models.UrgencyUrgent:    8 * time.Hour,
	models.UrgencyStandard:  48 * time.Hour,
	models.UrgencyFlexible:  168 * time.Hour,
}

// Orchestrator creates campaigns and drives outreach attempts against them.
// It is the only writer of a campaign's assignments and attempts; concurrent
// campaigns share no mutable state beyond the store.
type Orchestrator struct {
	store         store.Store
	sender        channel.Sender
	events        stream.Sink
	durations     map[models.Urgency]time.Duration
	maxConcurrent int
}

func NewOrchestrator(st store.Store, sender channel.Sender, events stream.Sink, durations map[models.Urgency]time.Duration, maxConcurrent int) *Orchestrator {
	if events == nil {
		events = stream.NopSink{}
	}
	if len(durations) == 0 {
		durations = DefaultDurations
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Orchestrator{
		store:         st,
		sender:        sender,
		events:        events,
		durations:     durations,
		maxConcurrent: maxConcurrent,
	}
}

// Duration returns the campaign length for an urgency bucket, falling back to
// the standard band for unknown values.
func (o *Orchestrator) Duration(u models.Urgency) time.Duration {
	if d, ok := o.durations[u]; ok {
		return d
	}
	return o.durations[models.UrgencyStandard]
}

// CreateCampaign assembles and persists a campaign from ranked candidates.
// Channel selection is data-driven: a channel is kept only if at least one
// candidate is reachable on it; candidates with no usable channel are
// dropped. Each candidate appears at most once regardless of how many tiers
// discovered it. Check-ins are scheduled from the strategy offsets.
func (o *Orchestrator) CreateCampaign(ctx context.Context, req models.Request, ranked []models.ScoredCandidate, strat models.OutreachStrategy, channels []models.Channel, discoveryRadius int) (models.Campaign, error) {
	if req.Category == "" {
		return models.Campaign{}, fmt.Errorf("create campaign: request category required")
	}
	if req.RequiredResponses <= 0 {
		return models.Campaign{}, fmt.Errorf("create campaign: required responses must be positive")
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	if len(channels) == 0 {
		channels = []models.Channel{models.ChannelMessage, models.ChannelEmail, models.ChannelSMS, models.ChannelForm}
	}
	usable := map[models.Channel]bool{}
	for _, sc := range ranked {
		for _, ch := range channels {
			if sc.Contacts.Usable(ch) {
				usable[ch] = true
			}
		}
	}

	seen := map[string]struct{}{}
	var assignments []models.Assignment
	for _, sc := range ranked {
		if _, dup := seen[sc.Key]; dup {
			continue
		}
		seen[sc.Key] = struct{}{}

		var chs []models.Channel
		for _, ch := range channels {
			if usable[ch] && sc.Contacts.Usable(ch) {
				chs = append(chs, ch)
			}
		}
		if len(chs) == 0 {
			log.Printf("[orchestrator] dropping %q: no usable channel", sc.Key)
			continue
		}
		assignments = append(assignments, models.Assignment{
			CandidateKey: sc.Key,
			Candidate:    sc.Candidate,
			Channels:     chs,
			Score:        sc.FinalScore,
		})
	}

	now := time.Now().UTC()
	c := models.Campaign{
		ID:              uuid.New(),
		RequestID:       req.ID,
		Request:         req,
		Strategy:        strat,
		Assignments:     assignments,
		Status:          models.CampaignCreated,
		DiscoveryRadius: discoveryRadius,
		StartAt:         now,
		Deadline:        now.Add(o.Duration(req.Urgency)),
	}

	c, err := o.store.CreateCampaign(ctx, c)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("persist campaign: %w", err)
	}

	checkIns, err := Schedule(c, strat)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("schedule check-ins: %w", err)
	}
	if err := o.store.InsertCheckIns(ctx, checkIns); err != nil {
		return models.Campaign{}, fmt.Errorf("persist check-ins: %w", err)
	}

	o.events.Publish(ctx, stream.EventCampaignCreated, c.ID.String(), map[string]interface{}{
		"requestId":  c.RequestID,
		"candidates": len(assignments),
		"deadline":   c.Deadline,
	})
	log.Printf("[orchestrator] campaign %s created: %d candidates, deadline %s", c.ID, len(assignments), c.Deadline.Format(time.RFC3339))
	return c, nil
}

// Execute transitions the campaign to running and attempts every assignment
// on each of its channels, bounded by the concurrency limit. Attempts are
// independent; one failure never blocks the rest. Candidate+channel pairs
// already attempted (e.g. a retried Execute) are skipped.
func (o *Orchestrator) Execute(ctx context.Context, campaignID uuid.UUID) (models.ExecutionResult, error) {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	switch c.Status {
	case models.CampaignCreated:
		if c, err = o.store.UpdateCampaignStatus(ctx, c.ID, models.CampaignRunning, false); err != nil {
			return models.ExecutionResult{}, fmt.Errorf("start campaign: %w", err)
		}
	case models.CampaignRunning:
		// Re-entrant execute; already-attempted pairs are skipped below.
	default:
		return models.ExecutionResult{}, ErrClosed
	}

	attempted, err := o.attemptedPairs(ctx, c.ID)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	result := o.attemptAll(ctx, c, c.Assignments, attempted)
	log.Printf("[orchestrator] campaign %s executed: %d attempts, %d contacted", c.ID, result.TotalAttempts, result.SuccessfulContacts)
	return result, nil
}

// attemptedPairs returns the candidate+channel pairs already attempted.
func (o *Orchestrator) attemptedPairs(ctx context.Context, campaignID uuid.UUID) (map[string]struct{}, error) {
	attempts, err := o.store.ListAttempts(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	pairs := make(map[string]struct{}, len(attempts))
	for _, a := range attempts {
		pairs[a.CandidateKey+"|"+string(a.Channel)] = struct{}{}
	}
	return pairs, nil
}

// attemptAll fans sends out across assignments with a bounded semaphore and
// records every outcome. Failures are isolated per attempt.
func (o *Orchestrator) attemptAll(ctx context.Context, c models.Campaign, assignments []models.Assignment, attempted map[string]struct{}) models.ExecutionResult {
	result := models.ExecutionResult{
		CampaignID: c.ID,
		PerChannel: map[models.Channel]models.ChannelMetrics{},
	}

	payload := channel.Payload{
		CampaignID: c.ID.String(),
		RequestID:  c.RequestID.String(),
		Category:   c.Request.Category,
		Subject:    fmt.Sprintf("New %s request in your area", c.Request.Category),
		Body:       fmt.Sprintf("A customer is looking for %s services (budget up to %.0f). Reply if interested.", c.Request.Category, c.Request.Budget.Max),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, o.maxConcurrent)
	)

	for _, a := range assignments {
		for _, ch := range a.Channels {
			if _, done := attempted[a.CandidateKey+"|"+string(ch)]; done {
				continue
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(a models.Assignment, ch models.Channel) {
				defer wg.Done()
				defer func() { <-sem }()

				attempt := o.sendOne(ctx, c, a, ch, payload, 0)

				mu.Lock()
				defer mu.Unlock()
				result.TotalAttempts++
				m := result.PerChannel[ch]
				m.Attempts++
				if attempt.Status != models.AttemptFailed {
					result.SuccessfulContacts++
					m.Successes++
				}
				result.PerChannel[ch] = m
			}(a, ch)
		}
	}
	wg.Wait()
	return result
}

// sendOne performs a single send and records the attempt. A transport error
// (outcome unknown) is recorded as failed but logged distinctly from a
// definitive rejection.
func (o *Orchestrator) sendOne(ctx context.Context, c models.Campaign, a models.Assignment, ch models.Channel, payload channel.Payload, followUps int) models.OutreachAttempt {
	res, err := o.sender.Send(ctx, a.Candidate, ch, payload)
	status := res.Status
	if err != nil {
		log.Printf("[orchestrator] send %s/%s on %s: outcome unknown: %v", c.ID, a.CandidateKey, ch, err)
		status = models.AttemptFailed
	} else if status == models.AttemptFailed {
		log.Printf("[orchestrator] send %s/%s on %s rejected by transport", c.ID, a.CandidateKey, ch)
	}

	attempt := models.OutreachAttempt{
		CampaignID:   c.ID,
		CandidateKey: a.CandidateKey,
		Channel:      ch,
		Status:       status,
		ExternalRef:  res.ExternalRef,
		Score:        a.Score,
		FollowUps:    followUps,
		SentAt:       time.Now().UTC(),
	}
	recorded, err := o.store.InsertAttempt(ctx, attempt)
	if err != nil {
		log.Printf("[orchestrator] record attempt %s/%s: %v", c.ID, a.CandidateKey, err)
		return attempt
	}
	o.events.Publish(ctx, stream.EventAttemptRecorded, c.ID.String(), map[string]interface{}{
		"candidateKey": recorded.CandidateKey,
		"channel":      recorded.Channel,
		"status":       recorded.Status,
	})
	return recorded
}

// AddCandidates appends newly discovered candidates to a running campaign and
// attempts them immediately. The operation is idempotent: candidates already
// assigned or already attempted are skipped, so an escalation replay cannot
// double-contact anyone.
func (o *Orchestrator) AddCandidates(ctx context.Context, campaignID uuid.UUID, ranked []models.ScoredCandidate, discoveryRadius int) (int, error) {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status != models.CampaignRunning {
		return 0, ErrClosed
	}

	existing := map[string]struct{}{}
	for _, a := range c.Assignments {
		existing[a.CandidateKey] = struct{}{}
	}
	attempted, err := o.attemptedPairs(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	attemptedKeys := map[string]struct{}{}
	for pair := range attempted {
		if key, _, ok := strings.Cut(pair, "|"); ok {
			attemptedKeys[key] = struct{}{}
		}
	}

	var added []models.Assignment
	for _, sc := range ranked {
		if _, dup := existing[sc.Key]; dup {
			continue
		}
		if _, dup := attemptedKeys[sc.Key]; dup {
			continue
		}
		chs := sc.Contacts.Channels()
		if len(chs) == 0 {
			continue
		}
		existing[sc.Key] = struct{}{}
		added = append(added, models.Assignment{
			CandidateKey: sc.Key,
			Candidate:    sc.Candidate,
			Channels:     chs,
			Score:        sc.FinalScore,
		})
	}
	if len(added) == 0 {
		return 0, nil
	}

	if discoveryRadius < c.DiscoveryRadius {
		discoveryRadius = c.DiscoveryRadius
	}
	c, err = o.store.UpdateCampaignAssignments(ctx, c.ID, append(c.Assignments, added...), discoveryRadius)
	if err != nil {
		return 0, fmt.Errorf("extend assignments: %w", err)
	}

	o.attemptAll(ctx, c, added, attempted)
	log.Printf("[orchestrator] campaign %s escalated: %d candidates added (radius %d)", c.ID, len(added), discoveryRadius)
	return len(added), nil
}

// RecordResponse stores a provider's answer on its latest attempt and
// completes the campaign early once the response target is met. Responses
// arriving after close are recorded for audit but do not re-open the campaign.
func (o *Orchestrator) RecordResponse(ctx context.Context, campaignID uuid.UUID, candidateKey string, outcome models.ResponseOutcome) (models.OutreachAttempt, error) {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return models.OutreachAttempt{}, err
	}

	attempt, err := o.store.RecordResponse(ctx, campaignID, candidateKey, outcome, time.Now().UTC())
	if err != nil {
		return models.OutreachAttempt{}, err
	}

	if c.Status != models.CampaignRunning {
		return attempt, nil
	}

	responses, err := o.CountResponses(ctx, campaignID)
	if err != nil {
		return attempt, nil
	}
	if responses >= c.Request.RequiredResponses {
		if _, err := o.store.UpdateCampaignStatus(ctx, c.ID, models.CampaignCompleted, false); err != nil {
			log.Printf("[orchestrator] complete campaign %s: %v", c.ID, err)
			return attempt, nil
		}
		o.events.Publish(ctx, stream.EventCampaignCompleted, c.ID.String(), map[string]interface{}{
			"responses": responses,
			"shortfall": false,
		})
		log.Printf("[orchestrator] campaign %s completed: target met (%d responses)", c.ID, responses)
	}
	return attempt, nil
}

// CountResponses counts distinct candidates that have answered at all.
func (o *Orchestrator) CountResponses(ctx context.Context, campaignID uuid.UUID) (int, error) {
	attempts, err := o.store.ListAttempts(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	responded := map[string]struct{}{}
	for _, a := range attempts {
		if a.Responded() {
			responded[a.CandidateKey] = struct{}{}
		}
	}
	return len(responded), nil
}

// FollowUp re-sends to a candidate on the channel of its original attempt and
// bumps the follow-up counter. Closed campaigns reject follow-ups.
func (o *Orchestrator) FollowUp(ctx context.Context, attempt models.OutreachAttempt) error {
	c, err := o.store.GetCampaign(ctx, attempt.CampaignID)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignClosed {
		return ErrClosed
	}

	var assignment *models.Assignment
	for i := range c.Assignments {
		if c.Assignments[i].CandidateKey == attempt.CandidateKey {
			assignment = &c.Assignments[i]
			break
		}
	}
	if assignment == nil {
		return fmt.Errorf("follow-up: candidate %q not assigned to campaign %s", attempt.CandidateKey, c.ID)
	}

	payload := channel.Payload{
		CampaignID: c.ID.String(),
		RequestID:  c.RequestID.String(),
		Category:   c.Request.Category,
		Subject:    fmt.Sprintf("Following up: %s request", c.Request.Category),
		Body:       fmt.Sprintf("Checking back on the %s request we sent you. The customer is still looking.", c.Request.Category),
	}
	res, err := o.sender.Send(ctx, assignment.Candidate, attempt.Channel, payload)
	if err != nil {
		return fmt.Errorf("follow-up send: %w", err)
	}
	if res.Status == models.AttemptFailed {
		return fmt.Errorf("follow-up send rejected by transport")
	}

	if _, err := o.store.IncrementFollowUp(ctx, attempt.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("record follow-up: %w", err)
	}
	return nil
}

// Close terminates a campaign; no further attempts or check-in evaluations
// take effect afterwards. Closing a terminal campaign is a no-op.
func (o *Orchestrator) Close(ctx context.Context, campaignID uuid.UUID) (models.Campaign, error) {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return models.Campaign{}, err
	}
	if c.Status == models.CampaignClosed {
		return c, nil
	}
	return o.store.UpdateCampaignStatus(ctx, campaignID, models.CampaignClosed, c.Shortfall)
}

// Metrics aggregates attempt and response tallies for a campaign.
func (o *Orchestrator) Metrics(ctx context.Context, campaignID uuid.UUID) (models.CampaignMetrics, error) {
	attempts, err := o.store.ListAttempts(ctx, campaignID)
	if err != nil {
		return models.CampaignMetrics{}, err
	}

	m := models.CampaignMetrics{PerChannel: map[models.Channel]models.ChannelMetrics{}}
	responded := map[string]struct{}{}
	interested := map[string]struct{}{}
	for _, a := range attempts {
		m.TotalAttempts++
		cm := m.PerChannel[a.Channel]
		cm.Attempts++
		if a.Status != models.AttemptFailed {
			m.SuccessfulContacts++
			cm.Successes++
		}
		m.PerChannel[a.Channel] = cm
		if a.Responded() {
			responded[a.CandidateKey] = struct{}{}
		}
		if a.Response == models.ResponseInterested {
			interested[a.CandidateKey] = struct{}{}
		}
	}
	m.Responses = len(responded)
	m.Interested = len(interested)
	if m.TotalAttempts > 0 {
		m.OpenRate = float64(m.SuccessfulContacts) / float64(m.TotalAttempts) * 100
	}
	if m.SuccessfulContacts > 0 {
		m.ResponseRate = float64(m.Responses) / float64(m.SuccessfulContacts) * 100
		m.InterestRate = float64(m.Interested) / float64(m.SuccessfulContacts) * 100
	}
	return m, nil
}
