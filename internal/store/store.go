package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence boundary for campaigns, outreach attempts and
// check-ins. Attempts and check-ins outlive their campaign for audit and
// follow-up queries.
type Store interface {
	CreateCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error)
	GetCampaignByRequest(ctx context.Context, requestID uuid.UUID) (models.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status models.CampaignStatus, shortfall bool) (models.Campaign, error)

	// UpdateCampaignAssignments replaces the assignment set and the discovery
	// radius after an escalation added candidates to a running campaign.
	UpdateCampaignAssignments(ctx context.Context, id uuid.UUID, assignments []models.Assignment, discoveryRadius int) (models.Campaign, error)

	// ListActiveCampaigns returns campaigns in created or running state; the
	// check-in runner sweeps these for passed deadlines.
	ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error)

	InsertAttempt(ctx context.Context, a models.OutreachAttempt) (models.OutreachAttempt, error)
	ListAttempts(ctx context.Context, campaignID uuid.UUID) ([]models.OutreachAttempt, error)

	// RecordResponse sets the response outcome on the latest attempt for the
	// candidate within the campaign. Re-recording an outcome overwrites the
	// previous one (a pending answer may later firm up either way).
	RecordResponse(ctx context.Context, campaignID uuid.UUID, candidateKey string, outcome models.ResponseOutcome, at time.Time) (models.OutreachAttempt, error)

	// IncrementFollowUp bumps the follow-up counter and refreshes SentAt on
	// an attempt after a follow-up send.
	IncrementFollowUp(ctx context.Context, attemptID uuid.UUID, at time.Time) (models.OutreachAttempt, error)

	// ListFollowUpEligible returns the latest attempt per campaign+candidate
	// where no response has arrived, the attempt is older than the cutoff and
	// fewer than maxFollowUps follow-ups were sent.
	ListFollowUpEligible(ctx context.Context, olderThan time.Time, maxFollowUps int) ([]models.OutreachAttempt, error)

	InsertCheckIns(ctx context.Context, checkIns []models.CheckIn) error
	ListCheckIns(ctx context.Context, campaignID uuid.UUID) ([]models.CheckIn, error)

	// ListDueCheckIns returns unexecuted check-ins scheduled at or before now,
	// oldest first.
	ListDueCheckIns(ctx context.Context, now time.Time) ([]models.CheckIn, error)

	// MarkCheckInExecuted claims a check-in and records its evaluation. The
	// claim is first-writer-wins: it returns false when the check-in was
	// already executed, which makes re-evaluation a no-op.
	MarkCheckInExecuted(ctx context.Context, id uuid.UUID, ratio float64, decision models.EscalationAction, at time.Time) (bool, error)

	Ping(ctx context.Context) error
}
