package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
)

// Tracker answers distribution and follow-up queries over the attempt ledger.
// It is read-only; the orchestrator owns all writes.
type Tracker struct {
	store store.Store
}

func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Summary reports who was contacted for a request and where each candidate
// stands, using each candidate's latest attempt.
func (t *Tracker) Summary(ctx context.Context, requestID uuid.UUID) (models.DistributionSummary, error) {
	c, err := t.store.GetCampaignByRequest(ctx, requestID)
	if err != nil {
		return models.DistributionSummary{}, err
	}
	attempts, err := t.store.ListAttempts(ctx, c.ID)
	if err != nil {
		return models.DistributionSummary{}, err
	}

	latest := map[string]models.OutreachAttempt{}
	order := []string{}
	for _, a := range attempts {
		if _, seen := latest[a.CandidateKey]; !seen {
			order = append(order, a.CandidateKey)
		}
		// Attempts arrive sorted by SentAt ascending; last write wins.
		latest[a.CandidateKey] = a
	}

	s := models.DistributionSummary{
		RequestID:  requestID,
		CampaignID: c.ID,
		Candidates: make([]models.DistributionEntry, 0, len(order)),
	}
	for _, key := range order {
		a := latest[key]
		s.TotalDistributed++
		if a.Responded() {
			s.Responses++
		}
		s.Candidates = append(s.Candidates, models.DistributionEntry{
			CandidateKey: key,
			Method:       a.Channel,
			Score:        a.Score,
			Status:       a.Status,
			Response:     a.Response,
			FollowUps:    a.FollowUps,
		})
	}
	if s.TotalDistributed > 0 {
		s.ResponseRate = float64(s.Responses) / float64(s.TotalDistributed) * 100
	}
	return s, nil
}

// FollowUpCandidates lists attempts eligible for a follow-up: at least
// minDays since the last send, no response, and fewer than maxFollowUps
// follow-ups so far.
func (t *Tracker) FollowUpCandidates(ctx context.Context, minDays, maxFollowUps int) ([]models.OutreachAttempt, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(minDays) * 24 * time.Hour)
	return t.store.ListFollowUpEligible(ctx, cutoff, maxFollowUps)
}
