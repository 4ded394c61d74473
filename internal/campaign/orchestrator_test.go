package campaign

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BidWorks/Outreach/internal/channel"
	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
	"github.com/BidWorks/Outreach/internal/stream"
)

type orchFixture struct {
	store  *store.MemoryStore
	sender *channel.MemorySender
	sink   *stream.MemorySink
	orch   *Orchestrator
}

func newOrchFixture() *orchFixture {
	st := store.NewMemoryStore()
	sender := channel.NewMemorySender()
	sink := stream.NewMemorySink()
	return &orchFixture{
		store:  st,
		sender: sender,
		sink:   sink,
		orch:   NewOrchestrator(st, sender, sink, nil, 4),
	}
}

func testRequest(required int) models.Request {
	return models.Request{
		ID:                uuid.New(),
		Category:          "plumbing",
		Urgency:           models.UrgencyStandard,
		RequiredResponses: required,
		Budget:            models.BudgetRange{Min: 500, Max: 3000},
	}
}

func scored(key string, score float64, contacts models.ContactPoints) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate:  models.Candidate{Key: key, Name: key, Tier: models.TierA, Contacts: contacts},
		FinalScore: score,
	}
}

func emailOnly(addr string) models.ContactPoints { return models.ContactPoints{Email: addr} }

func testStrategy() models.OutreachStrategy {
	return models.OutreachStrategy{
		ExpectedTotal:  4,
		CheckInOffsets: []float64{0.25, 0.50, 0.75},
	}
}

func TestCreateCampaignDedupsAndDropsUnreachable(t *testing.T) {
	f := newOrchFixture()
	ranked := []models.ScoredCandidate{
		scored("ace", 200, emailOnly("ace@x.test")),
		scored("ace", 180, emailOnly("dup@x.test")), // same identity, different record
		scored("ghost", 150, models.ContactPoints{}),
		scored("brick", 120, models.ContactPoints{Email: "b@x.test", Phone: "555"}),
	}

	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2), ranked, testStrategy(), nil, 25)
	require.NoError(t, err)

	require.Len(t, c.Assignments, 2)
	assert.Equal(t, "ace", c.Assignments[0].CandidateKey)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, c.Assignments[0].Channels)
	assert.Equal(t, "brick", c.Assignments[1].CandidateKey)
	assert.ElementsMatch(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, c.Assignments[1].Channels)

	assert.Equal(t, models.CampaignCreated, c.Status)
	assert.Equal(t, 25, c.DiscoveryRadius)
	assert.Equal(t, c.StartAt.Add(DefaultDurations[models.UrgencyStandard]), c.Deadline)

	checkIns, err := f.store.ListCheckIns(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, checkIns, 3)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventCampaignCreated, events[0].Type)
}

func TestCreateCampaignValidatesRequest(t *testing.T) {
	f := newOrchFixture()
	ranked := []models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}

	req := testRequest(2)
	req.Category = ""
	_, err := f.orch.CreateCampaign(context.Background(), req, ranked, testStrategy(), nil, 15)
	assert.Error(t, err)

	req = testRequest(0)
	_, err = f.orch.CreateCampaign(context.Background(), req, ranked, testStrategy(), nil, 15)
	assert.Error(t, err)
}

func TestExecuteAttemptsEveryAssignmentOnce(t *testing.T) {
	f := newOrchFixture()
	ranked := []models.ScoredCandidate{
		scored("a", 100, emailOnly("a@x.test")),
		scored("b", 90, models.ContactPoints{Email: "b@x.test", Phone: "555"}),
	}
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2), ranked, testStrategy(), nil, 15)
	require.NoError(t, err)

	result, err := f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	// a on email, b on email and sms.
	assert.Equal(t, 3, result.TotalAttempts)
	assert.Equal(t, 3, result.SuccessfulContacts)
	assert.Equal(t, 2, result.PerChannel[models.ChannelEmail].Attempts)
	assert.Equal(t, 1, result.PerChannel[models.ChannelSMS].Attempts)

	got, err := f.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignRunning, got.Status)

	// Re-running skips every already-attempted pair.
	again, err := f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.TotalAttempts)
	assert.Len(t, f.sender.Sent(), 3)
}

func TestExecuteIsolatesFailures(t *testing.T) {
	f := newOrchFixture()
	f.sender.Reject("rejected")
	f.sender.Err("flaky", errors.New("gateway timeout"))
	ranked := []models.ScoredCandidate{
		scored("rejected", 100, emailOnly("r@x.test")),
		scored("flaky", 95, emailOnly("f@x.test")),
		scored("fine", 90, emailOnly("ok@x.test")),
	}
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2), ranked, testStrategy(), nil, 15)
	require.NoError(t, err)

	result, err := f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalAttempts)
	assert.Equal(t, 1, result.SuccessfulContacts)

	// Every outcome is recorded, failures included.
	attempts, err := f.store.ListAttempts(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	byKey := map[string]models.AttemptStatus{}
	for _, a := range attempts {
		byKey[a.CandidateKey] = a.Status
	}
	assert.Equal(t, models.AttemptFailed, byKey["rejected"])
	assert.Equal(t, models.AttemptFailed, byKey["flaky"])
	assert.Equal(t, models.AttemptSent, byKey["fine"])
}

func TestExecuteRefusesClosedCampaign(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)

	_, err = f.orch.Close(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = f.orch.Execute(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, f.sender.Sent())
}

func TestRecordResponseCompletesEarlyAtTarget(t *testing.T) {
	f := newOrchFixture()
	ranked := []models.ScoredCandidate{
		scored("a", 100, emailOnly("a@x.test")),
		scored("b", 90, emailOnly("b@x.test")),
	}
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(1), ranked, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	attempt, err := f.orch.RecordResponse(context.Background(), c.ID, "a", models.ResponseInterested)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseInterested, attempt.Response)
	require.NotNil(t, attempt.RespondedAt)

	got, err := f.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, got.Status)
	assert.False(t, got.Shortfall)

	var completed bool
	for _, ev := range f.sink.Events() {
		if ev.Type == stream.EventCampaignCompleted {
			completed = true
		}
	}
	assert.True(t, completed)
}

func TestRecordResponseDeclinedStillCountsTowardTarget(t *testing.T) {
	// A declined answer is still an answer; the target counts responses,
	// not acceptances.
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(1),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = f.orch.RecordResponse(context.Background(), c.ID, "a", models.ResponseDeclined)
	require.NoError(t, err)

	got, err := f.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, got.Status)
}

func TestRecordResponseAfterCloseIsAuditOnly(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(1),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)
	_, err = f.orch.Close(context.Background(), c.ID)
	require.NoError(t, err)

	attempt, err := f.orch.RecordResponse(context.Background(), c.ID, "a", models.ResponseInterested)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseInterested, attempt.Response)

	got, err := f.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignClosed, got.Status)
}

func TestRecordResponseUnknownCandidate(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(1),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)

	_, err = f.orch.RecordResponse(context.Background(), c.ID, "stranger", models.ResponseInterested)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddCandidatesIsIdempotent(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(3),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	extra := []models.ScoredCandidate{
		scored("a", 100, emailOnly("a@x.test")),  // already assigned
		scored("new", 80, emailOnly("n@x.test")), // genuinely new
		scored("mute", 70, models.ContactPoints{}),
	}
	added, err := f.orch.AddCandidates(context.Background(), c.ID, extra, 40)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	got, err := f.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Assignments, 2)
	assert.Equal(t, 40, got.DiscoveryRadius)

	// New candidate was attempted immediately.
	assert.Len(t, f.sender.Sent(), 2)

	// Replaying the same escalation adds nobody and sends nothing.
	added, err = f.orch.AddCandidates(context.Background(), c.ID, extra, 40)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, f.sender.Sent(), 2)
}

func TestAddCandidatesNeverShrinksRadius(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(3),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 60)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = f.orch.AddCandidates(context.Background(), c.ID,
		[]models.ScoredCandidate{scored("b", 80, emailOnly("b@x.test"))}, 15)
	require.NoError(t, err)

	got, err := f.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.DiscoveryRadius)
}

func TestAddCandidatesRequiresRunningCampaign(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(3),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)

	// Still in created status.
	_, err = f.orch.AddCandidates(context.Background(), c.ID,
		[]models.ScoredCandidate{scored("b", 80, emailOnly("b@x.test"))}, 25)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFollowUpResendsOnOriginalChannel(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	attempts, err := f.store.ListAttempts(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	require.NoError(t, f.orch.FollowUp(context.Background(), attempts[0]))

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, models.ChannelEmail, sent[1].Channel)
	assert.Contains(t, sent[1].Payload.Subject, "Following up")

	after, err := f.store.ListAttempts(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, 1, after[0].FollowUps)
}

func TestFollowUpRejectedOnClosedCampaign(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)
	attempts, err := f.store.ListAttempts(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	_, err = f.orch.Close(context.Background(), c.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.orch.FollowUp(context.Background(), attempts[0]), ErrClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newOrchFixture()
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(2),
		[]models.ScoredCandidate{scored("a", 100, emailOnly("a@x.test"))}, testStrategy(), nil, 15)
	require.NoError(t, err)

	first, err := f.orch.Close(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignClosed, first.Status)

	second, err := f.orch.Close(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignClosed, second.Status)
}

func TestMetricsAggregatesPerChannel(t *testing.T) {
	f := newOrchFixture()
	f.sender.Reject("deaf")
	ranked := []models.ScoredCandidate{
		scored("a", 100, emailOnly("a@x.test")),
		scored("b", 90, emailOnly("b@x.test")),
		scored("deaf", 80, emailOnly("d@x.test")),
	}
	c, err := f.orch.CreateCampaign(context.Background(), testRequest(3), ranked, testStrategy(), nil, 15)
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = f.orch.RecordResponse(context.Background(), c.ID, "a", models.ResponseInterested)
	require.NoError(t, err)
	_, err = f.orch.RecordResponse(context.Background(), c.ID, "b", models.ResponseDeclined)
	require.NoError(t, err)

	m, err := f.orch.Metrics(context.Background(), c.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, m.TotalAttempts)
	assert.Equal(t, 2, m.SuccessfulContacts)
	assert.Equal(t, 2, m.Responses)
	assert.Equal(t, 1, m.Interested)
	assert.InDelta(t, 66.67, m.OpenRate, 0.01)
	assert.InDelta(t, 100, m.ResponseRate, 0.001)
	assert.InDelta(t, 50, m.InterestRate, 0.001)
}
