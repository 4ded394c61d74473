package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BidWorks/Outreach/internal/models"
)

func TestPlanFourRequiredWithDeepAvailability(t *testing.T) {
	p := New(nil, nil)
	availability := map[models.Tier]int{
		models.TierA: 5,
		models.TierB: 10,
		models.TierC: 100,
	}

	s, err := p.Plan(4, availability)
	require.NoError(t, err)

	// Tier A alone covers the target (5 × 0.9 = 4.5); B and C drop to buffer
	// allocations instead of their full caps.
	assert.Equal(t, 5, s.Tiers[models.TierA].ToContact)
	assert.Equal(t, 5, s.Tiers[models.TierB].ToContact)
	assert.Equal(t, 8, s.Tiers[models.TierC].ToContact)
	assert.Equal(t, 18, s.TotalToContact)
	assert.InDelta(t, 9.64, s.ExpectedTotal, 0.01)
	assert.InDelta(t, 100, s.ConfidenceScore, 0.001)
	assert.Equal(t, []float64{0.25, 0.50, 0.75}, s.CheckInOffsets)
}

func TestPlanNeverContactsMoreThanAvailable(t *testing.T) {
	p := New(nil, nil)
	availability := map[models.Tier]int{
		models.TierA: 2,
		models.TierB: 3,
		// Tier C absent from the map entirely.
	}

	s, err := p.Plan(10, availability)
	require.NoError(t, err)

	for tier, plan := range s.Tiers {
		assert.LessOrEqual(t, plan.ToContact, plan.Available, tier)
	}
	assert.Equal(t, 0, s.Tiers[models.TierC].ToContact)
	assert.Equal(t, 5, s.TotalToContact)
}

func TestPlanLowConfidenceWhenSupplyShort(t *testing.T) {
	p := New(nil, nil)
	s, err := p.Plan(10, map[models.Tier]int{models.TierA: 2})
	require.NoError(t, err)

	// 2 × 0.9 = 1.8 expected against 10 required.
	assert.InDelta(t, 18, s.ConfidenceScore, 0.001)
	assert.Less(t, s.ConfidenceScore, 100.0)
}

func TestPlanIsDeterministic(t *testing.T) {
	p := New(nil, nil)
	availability := map[models.Tier]int{
		models.TierA: 4,
		models.TierB: 9,
		models.TierC: 30,
	}
	first, err := p.Plan(6, availability)
	require.NoError(t, err)
	second, err := p.Plan(6, availability)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPlanRejectsNonPositiveRequired(t *testing.T) {
	p := New(nil, nil)
	_, err := p.Plan(0, nil)
	assert.Error(t, err)
	_, err = p.Plan(-3, nil)
	assert.Error(t, err)
}

func TestCapForScalesAboveBase(t *testing.T) {
	p := New(nil, nil)

	assert.Equal(t, 5, p.CapFor(models.TierA, 4))
	assert.Equal(t, 5, p.CapFor(models.TierA, 6))
	// required 12 doubles every cap.
	assert.Equal(t, 10, p.CapFor(models.TierA, 12))
	assert.Equal(t, 20, p.CapFor(models.TierB, 12))
	assert.Equal(t, 30, p.CapFor(models.TierC, 12))
}

func TestNewFillsPartialOverridesFromDefaults(t *testing.T) {
	p := New(
		map[models.Tier]float64{models.TierA: 0.5},
		map[models.Tier]int{models.TierC: 40},
	)

	s, err := p.Plan(100, map[models.Tier]int{
		models.TierA: 1000,
		models.TierB: 1000,
		models.TierC: 1000,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, s.Tiers[models.TierA].ResponseRate, 0.001)
	assert.InDelta(t, 0.50, s.Tiers[models.TierB].ResponseRate, 0.001)
	// Overridden cap still scales: ceil(40 × 100/6) = 667.
	assert.Equal(t, 667, p.CapFor(models.TierC, 100))
}

func TestExpectedByOffsetClampsAndScalesLinearly(t *testing.T) {
	s := models.OutreachStrategy{ExpectedTotal: 8}
	assert.InDelta(t, 2, ExpectedByOffset(s, 0.25), 0.001)
	assert.InDelta(t, 4, ExpectedByOffset(s, 0.50), 0.001)
	assert.InDelta(t, 8, ExpectedByOffset(s, 1.5), 0.001)
	assert.InDelta(t, 0, ExpectedByOffset(s, -1), 0.001)
}
