package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests and dev.
type MemoryStore struct {
	mu        sync.RWMutex
	campaigns map[uuid.UUID]models.Campaign
	attempts  map[uuid.UUID]models.OutreachAttempt
	checkIns  map[uuid.UUID]models.CheckIn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: map[uuid.UUID]models.Campaign{},
		attempts:  map[uuid.UUID]models.OutreachAttempt{},
		checkIns:  map[uuid.UUID]models.CheckIn{},
	}
}

func (m *MemoryStore) CreateCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.CampaignCreated
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	return c, nil
}

func (m *MemoryStore) GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return models.Campaign{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) GetCampaignByRequest(ctx context.Context, requestID uuid.UUID) (models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found  models.Campaign
		exists bool
	)
	for _, c := range m.campaigns {
		if c.RequestID == requestID && (!exists || c.CreatedAt.After(found.CreatedAt)) {
			found = c
			exists = true
		}
	}
	if !exists {
		return models.Campaign{}, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status models.CampaignStatus, shortfall bool) (models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return models.Campaign{}, ErrNotFound
	}
	c.Status = status
	c.Shortfall = shortfall
	c.UpdatedAt = time.Now().UTC()
	m.campaigns[id] = c
	return c, nil
}

func (m *MemoryStore) UpdateCampaignAssignments(ctx context.Context, id uuid.UUID, assignments []models.Assignment, discoveryRadius int) (models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return models.Campaign{}, ErrNotFound
	}
	c.Assignments = append([]models.Assignment(nil), assignments...)
	c.DiscoveryRadius = discoveryRadius
	c.UpdatedAt = time.Now().UTC()
	m.campaigns[id] = c
	return c, nil
}

func (m *MemoryStore) ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Campaign
	for _, c := range m.campaigns {
		if c.Status == models.CampaignCreated || c.Status == models.CampaignRunning {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) InsertAttempt(ctx context.Context, a models.OutreachAttempt) (models.OutreachAttempt, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.SentAt.IsZero() {
		a.SentAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) ListAttempts(ctx context.Context, campaignID uuid.UUID) ([]models.OutreachAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.OutreachAttempt
	for _, a := range m.attempts {
		if a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (m *MemoryStore) RecordResponse(ctx context.Context, campaignID uuid.UUID, candidateKey string, outcome models.ResponseOutcome, at time.Time) (models.OutreachAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest models.OutreachAttempt
		exists bool
	)
	for _, a := range m.attempts {
		if a.CampaignID == campaignID && a.CandidateKey == candidateKey {
			if !exists || a.SentAt.After(latest.SentAt) {
				latest = a
				exists = true
			}
		}
	}
	if !exists {
		return models.OutreachAttempt{}, ErrNotFound
	}
	latest.Response = outcome
	latest.RespondedAt = &at
	m.attempts[latest.ID] = latest
	return latest, nil
}

func (m *MemoryStore) IncrementFollowUp(ctx context.Context, attemptID uuid.UUID, at time.Time) (models.OutreachAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return models.OutreachAttempt{}, ErrNotFound
	}
	a.FollowUps++
	a.SentAt = at
	m.attempts[attemptID] = a
	return a, nil
}

func (m *MemoryStore) ListFollowUpEligible(ctx context.Context, olderThan time.Time, maxFollowUps int) ([]models.OutreachAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type pair struct {
		campaign uuid.UUID
		key      string
	}
	latest := map[pair]models.OutreachAttempt{}
	for _, a := range m.attempts {
		p := pair{a.CampaignID, a.CandidateKey}
		if cur, ok := latest[p]; !ok || a.SentAt.After(cur.SentAt) {
			latest[p] = a
		}
	}

	var out []models.OutreachAttempt
	for _, a := range latest {
		if a.Responded() || a.FollowUps >= maxFollowUps || a.SentAt.After(olderThan) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (m *MemoryStore) InsertCheckIns(ctx context.Context, checkIns []models.CheckIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ci := range checkIns {
		if ci.ID == uuid.Nil {
			ci.ID = uuid.New()
		}
		m.checkIns[ci.ID] = ci
	}
	return nil
}

func (m *MemoryStore) ListCheckIns(ctx context.Context, campaignID uuid.UUID) ([]models.CheckIn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CheckIn
	for _, ci := range m.checkIns {
		if ci.CampaignID == campaignID {
			out = append(out, ci)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

func (m *MemoryStore) ListDueCheckIns(ctx context.Context, now time.Time) ([]models.CheckIn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CheckIn
	for _, ci := range m.checkIns {
		if !ci.Executed && !ci.ScheduledAt.After(now) {
			out = append(out, ci)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *MemoryStore) MarkCheckInExecuted(ctx context.Context, id uuid.UUID, ratio float64, decision models.EscalationAction, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ci, ok := m.checkIns[id]
	if !ok {
		return false, ErrNotFound
	}
	if ci.Executed {
		return false, nil
	}
	ci.Executed = true
	ci.PerformanceRatio = ratio
	ci.Decision = decision
	ci.EvaluatedAt = &at
	m.checkIns[id] = ci
	return true, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
