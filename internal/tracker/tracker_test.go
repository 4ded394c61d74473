package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/store"
)

func TestSummaryUsesLatestAttemptPerCandidate(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	requestID := uuid.New()
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	c, err := m.CreateCampaign(ctx, models.Campaign{RequestID: requestID})
	require.NoError(t, err)

	// ace: contacted on email then sms; the summary should show the sms attempt.
	_, err = m.InsertAttempt(ctx, models.OutreachAttempt{
		CampaignID: c.ID, CandidateKey: "ace", Channel: models.ChannelEmail,
		Status: models.AttemptSent, Score: 210, SentAt: base,
	})
	require.NoError(t, err)
	_, err = m.InsertAttempt(ctx, models.OutreachAttempt{
		CampaignID: c.ID, CandidateKey: "ace", Channel: models.ChannelSMS,
		Status: models.AttemptSent, Score: 210, SentAt: base.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = m.InsertAttempt(ctx, models.OutreachAttempt{
		CampaignID: c.ID, CandidateKey: "brick", Channel: models.ChannelEmail,
		Status: models.AttemptFailed, Score: 140, SentAt: base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	_, err = m.RecordResponse(ctx, c.ID, "ace", models.ResponseInterested, base.Add(3*time.Hour))
	require.NoError(t, err)

	s, err := New(m).Summary(ctx, requestID)
	require.NoError(t, err)

	assert.Equal(t, requestID, s.RequestID)
	assert.Equal(t, c.ID, s.CampaignID)
	assert.Equal(t, 2, s.TotalDistributed)
	assert.Equal(t, 1, s.Responses)
	assert.InDelta(t, 50, s.ResponseRate, 0.001)

	require.Len(t, s.Candidates, 2)
	assert.Equal(t, "ace", s.Candidates[0].CandidateKey)
	assert.Equal(t, models.ChannelSMS, s.Candidates[0].Method)
	assert.Equal(t, models.ResponseInterested, s.Candidates[0].Response)
	assert.Equal(t, "brick", s.Candidates[1].CandidateKey)
	assert.Equal(t, models.AttemptFailed, s.Candidates[1].Status)
}

func TestSummaryUnknownRequest(t *testing.T) {
	_, err := New(store.NewMemoryStore()).Summary(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFollowUpCandidates(t *testing.T) {
	m := store.NewMemoryStore()
	ctx := context.Background()
	campaignID := uuid.New()

	_, err := m.InsertAttempt(ctx, models.OutreachAttempt{
		CampaignID: campaignID, CandidateKey: "quiet", Channel: models.ChannelEmail,
		SentAt: time.Now().UTC().Add(-5 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = m.InsertAttempt(ctx, models.OutreachAttempt{
		CampaignID: campaignID, CandidateKey: "fresh", Channel: models.ChannelEmail,
		SentAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	eligible, err := New(m).FollowUpCandidates(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "quiet", eligible[0].CandidateKey)
}
