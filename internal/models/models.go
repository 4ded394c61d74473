package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier identifies which provider pool a candidate came from. Tier A providers
// are pre-vetted internal partners, tier B were previously engaged, tier C are
// newly discovered.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// Tiers lists all tiers in priority order (A first).
var Tiers = []Tier{TierA, TierB, TierC}

// Urgency buckets a request's timeline. The absolute campaign duration is
// derived from it; check-in offsets are the same for every bucket.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyStandard  Urgency = "standard"
	UrgencyFlexible  Urgency = "flexible"
)

// Channel is an outbound contact method.
type Channel string

const (
	ChannelMessage Channel = "message"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelForm    Channel = "form"
)

type CampaignStatus string

const (
	CampaignCreated   CampaignStatus = "created"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignClosed    CampaignStatus = "closed"
)

type AttemptStatus string

const (
	AttemptSent      AttemptStatus = "sent"
	AttemptFailed    AttemptStatus = "failed"
	AttemptDelivered AttemptStatus = "delivered"
)

// ResponseOutcome is what a contacted provider eventually said, if anything.
type ResponseOutcome string

const (
	ResponseNone       ResponseOutcome = ""
	ResponseInterested ResponseOutcome = "interested"
	ResponseDeclined   ResponseOutcome = "declined"
	ResponsePending    ResponseOutcome = "pending"
)

// EscalationAction is the decision a check-in evaluation produces.
type EscalationAction string

const (
	ActionNone         EscalationAction = "none"
	ActionExpandRadius EscalationAction = "expand-radius"
	ActionAddTier      EscalationAction = "add-tier"
)

// Location is a request or candidate position. Either the coordinate pair or
// the postal code may be zero-valued depending on what the upstream producer knew.
type Location struct {
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	PostalCode string  `json:"postalCode,omitempty"`
}

// BudgetRange is the requester's budget in whole currency units.
type BudgetRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Request is the service-seeking request ("bid card") an upstream agent
// produced. Immutable once a campaign starts.
type Request struct {
	ID                uuid.UUID   `json:"id"`
	Category          string      `json:"category"`
	Location          Location    `json:"location"`
	Budget            BudgetRange `json:"budget"`
	Urgency           Urgency     `json:"urgency"`
	RequiredResponses int         `json:"requiredResponses"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// ContactPoints holds the per-channel contact data a candidate exposes.
// An empty field means the channel is unusable for that candidate.
type ContactPoints struct {
	MessageID string `json:"messageId,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FormURL   string `json:"formUrl,omitempty"`
}

// Usable reports whether the candidate can be reached on the given channel.
func (c ContactPoints) Usable(ch Channel) bool {
	switch ch {
	case ChannelMessage:
		return c.MessageID != ""
	case ChannelEmail:
		return c.Email != ""
	case ChannelSMS:
		return c.Phone != ""
	case ChannelForm:
		return c.FormURL != ""
	}
	return false
}

// Channels returns the channels this candidate is reachable on, in the fixed
// preference order message, email, sms, form.
func (c ContactPoints) Channels() []Channel {
	var out []Channel
	for _, ch := range []Channel{ChannelMessage, ChannelEmail, ChannelSMS, ChannelForm} {
		if c.Usable(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Candidate is a provider pulled from one of the tier sources. Key is the
// normalized identity used for dedup across tiers and radii.
type Candidate struct {
	Key               string          `json:"key"`
	Name              string          `json:"name"`
	Tier              Tier            `json:"tier"`
	SourceID          string          `json:"sourceId,omitempty"`
	Contacts          ContactPoints   `json:"contacts"`
	Rating            float64         `json:"rating"`
	CompletedProjects int             `json:"completedProjects"`
	Specialties       []string        `json:"specialties,omitempty"`
	ServiceAreaCodes  []string        `json:"serviceAreaCodes,omitempty"`
	Availability      string          `json:"availability"`
	PriorEngagement   bool            `json:"priorEngagement"`
	LastResponse      ResponseOutcome `json:"lastResponse,omitempty"`
	Licensed          bool            `json:"licensed"`
	InsuranceVerified bool            `json:"insuranceVerified"`
	MinProjectSize    float64         `json:"minProjectSize"`
	MaxProjectSize    float64         `json:"maxProjectSize"`
	MatchScore        float64         `json:"matchScore"`
}

// NormalizeKey derives the dedup identity for a provider name: lowercase,
// punctuation stripped, whitespace collapsed.
func NormalizeKey(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '-' || r == '_':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// ScoreBreakdown itemizes a candidate's final score. Informational only;
// ordering uses FinalScore.
type ScoreBreakdown struct {
	TierBase     float64 `json:"tierBase"`
	Match        float64 `json:"match"`
	Quality      float64 `json:"quality"`
	Fit          float64 `json:"fit"`
	Availability float64 `json:"availability"`
	Verification float64 `json:"verification"`
}

// ScoredCandidate pairs a candidate with its bounded final score.
type ScoredCandidate struct {
	Candidate
	FinalScore float64        `json:"finalScore"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
}

// TierPlan is the per-tier slice of an outreach strategy.
type TierPlan struct {
	Available         int     `json:"available"`
	ToContact         int     `json:"toContact"`
	ResponseRate      float64 `json:"responseRate"`
	ExpectedResponses float64 `json:"expectedResponses"`
}

// OutreachStrategy sizes a campaign: how many candidates to contact per tier,
// the expected yield, and when to check in.
type OutreachStrategy struct {
	Tiers           map[Tier]TierPlan `json:"tiers"`
	TotalToContact  int               `json:"totalToContact"`
	ExpectedTotal   float64           `json:"expectedTotalResponses"`
	ConfidenceScore float64           `json:"confidenceScore"`
	CheckInOffsets  []float64         `json:"checkInOffsets"`
}

// Assignment binds one campaign candidate to the channels it will be attempted on.
type Assignment struct {
	CandidateKey string    `json:"candidateKey"`
	Candidate    Candidate `json:"candidate"`
	Channels     []Channel `json:"channels"`
	Score        float64   `json:"score"`
}

// Campaign is the time-boxed outreach run for a single request.
type Campaign struct {
	ID          uuid.UUID        `json:"id"`
	RequestID   uuid.UUID        `json:"requestId"`
	Request     Request          `json:"request"`
	Strategy    OutreachStrategy `json:"strategy"`
	Assignments []Assignment     `json:"assignments"`
	Status      CampaignStatus   `json:"status"`
	// DiscoveryRadius is the widest radius discovery has reached for this
	// campaign; escalation resumes expansion beyond it.
	DiscoveryRadius int       `json:"discoveryRadius"`
	StartAt         time.Time `json:"startAt"`
	Deadline        time.Time `json:"deadline"`
	Shortfall       bool      `json:"shortfall"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// OutreachAttempt records one send to one candidate on one channel, plus the
// response once it arrives.
type OutreachAttempt struct {
	ID           uuid.UUID       `json:"id"`
	CampaignID   uuid.UUID       `json:"campaignId"`
	CandidateKey string          `json:"candidateKey"`
	Channel      Channel         `json:"channel"`
	Status       AttemptStatus   `json:"status"`
	ExternalRef  string          `json:"externalRef,omitempty"`
	Score        float64         `json:"score"`
	FollowUps    int             `json:"followUps"`
	SentAt       time.Time       `json:"sentAt"`
	Response     ResponseOutcome `json:"response,omitempty"`
	RespondedAt  *time.Time      `json:"respondedAt,omitempty"`
}

// Responded reports whether the provider has answered at all.
func (a OutreachAttempt) Responded() bool { return a.Response != ResponseNone }

// CheckIn is one scheduled evaluation point on a campaign timeline.
type CheckIn struct {
	ID               uuid.UUID        `json:"id"`
	CampaignID       uuid.UUID        `json:"campaignId"`
	Offset           float64          `json:"offset"`
	ScheduledAt      time.Time        `json:"scheduledAt"`
	PerformanceRatio float64          `json:"performanceRatio"`
	Decision         EscalationAction `json:"decision"`
	Executed         bool             `json:"executed"`
	EvaluatedAt      *time.Time       `json:"evaluatedAt,omitempty"`
}

// ExpansionStage records the outcome of one radius stage.
type ExpansionStage struct {
	Radius       int `json:"radius"`
	NewFound     int `json:"newFound"`
	RunningTotal int `json:"runningTotal"`
}

// ExpansionReport summarizes an adaptive radius expansion run. Success means
// the minimum acceptable count was reached, not necessarily the target.
type ExpansionReport struct {
	Stages         []ExpansionStage `json:"stages"`
	FinalRadius    int              `json:"finalRadius"`
	Success        bool             `json:"success"`
	CompletionRate float64          `json:"completionRate"`
	ExternalCalls  int              `json:"externalCalls"`
}

// ChannelMetrics is the per-channel attempt tally for a campaign.
type ChannelMetrics struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// ExecutionResult aggregates an Execute run.
type ExecutionResult struct {
	CampaignID         uuid.UUID                  `json:"campaignId"`
	TotalAttempts      int                        `json:"totalAttempts"`
	SuccessfulContacts int                        `json:"successfulContacts"`
	PerChannel         map[Channel]ChannelMetrics `json:"perChannel"`
}

// CampaignMetrics folds response data into the attempt tallies.
type CampaignMetrics struct {
	TotalAttempts      int                        `json:"totalAttempts"`
	SuccessfulContacts int                        `json:"successfulContacts"`
	Responses          int                        `json:"responses"`
	Interested         int                        `json:"interested"`
	OpenRate           float64                    `json:"openRate"`
	ResponseRate       float64                    `json:"responseRate"`
	InterestRate       float64                    `json:"interestRate"`
	PerChannel         map[Channel]ChannelMetrics `json:"perChannel"`
}

// AttemptResult is what a channel sender reports for one send. A failed status
// is a definitive rejection by the transport; timeouts and unknown outcomes
// surface as errors instead.
type AttemptResult struct {
	Status      AttemptStatus `json:"status"`
	ExternalRef string        `json:"externalRef,omitempty"`
}

// DistributionEntry is the per-candidate line of a distribution summary.
type DistributionEntry struct {
	CandidateKey string          `json:"candidateKey"`
	Method       Channel         `json:"method"`
	Score        float64         `json:"score"`
	Status       AttemptStatus   `json:"status"`
	Response     ResponseOutcome `json:"response,omitempty"`
	FollowUps    int             `json:"followUps"`
}

// DistributionSummary answers "who did we contact for this request and how is
// it going" for the composition layer.
type DistributionSummary struct {
	RequestID        uuid.UUID           `json:"requestId"`
	CampaignID       uuid.UUID           `json:"campaignId"`
	TotalDistributed int                 `json:"totalDistributed"`
	Responses        int                 `json:"responses"`
	ResponseRate     float64             `json:"responseRate"`
	Candidates       []DistributionEntry `json:"candidates"`
}
