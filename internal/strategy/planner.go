package strategy

import (
	"fmt"
	"math"

	"github.com/BidWorks/Outreach/internal/models"
)

// Default per-tier behavior when no historical data is supplied: response
// rates of 90/50/33% and the 5/10/15 contact caps. Both are defaults to be
// replaced by measured data, not business rules.
var (
	DefaultRates = map[models.Tier]float64{
		models.TierA: 0.90,
		models.TierB: 0.50,
		models.TierC: 0.33,
	}
	DefaultCaps = map[models.Tier]int{
		models.TierA: 5,
		models.TierB: 10,
		models.TierC: 15,
	}
)

// CheckInOffsets are fixed fractions of the campaign timeline; urgency only
// changes the absolute duration, never the fractions.
var CheckInOffsets = []float64{0.25, 0.50, 0.75}

// capScaleBase is the required-response count the default caps were tuned
// for; larger targets scale the caps proportionally.
const capScaleBase = 6.0

// Planner computes outreach strategies. It is stateless and safe to re-invoke
// mid-campaign with updated availability.
type Planner struct {
	rates map[models.Tier]float64
	caps  map[models.Tier]int
}

// New builds a Planner. Nil maps select the defaults; partial maps are filled
// from the defaults per tier.
func New(rates map[models.Tier]float64, caps map[models.Tier]int) *Planner {
	p := &Planner{
		rates: make(map[models.Tier]float64, len(models.Tiers)),
		caps:  make(map[models.Tier]int, len(models.Tiers)),
	}
	for _, t := range models.Tiers {
		p.rates[t] = DefaultRates[t]
		p.caps[t] = DefaultCaps[t]
		if r, ok := rates[t]; ok && r > 0 {
			p.rates[t] = r
		}
		if c, ok := caps[t]; ok && c > 0 {
			p.caps[t] = c
		}
	}
	return p
}

// CapFor returns the (scaled) contact cap for a tier at a given target. The
// expander uses it to size per-tier discovery before a strategy exists.
func (p *Planner) CapFor(tier models.Tier, required int) int {
	cap := p.caps[tier]
	if float64(required) > capScaleBase {
		cap = int(math.Ceil(float64(cap) * float64(required) / capScaleBase))
	}
	return cap
}

// Plan sizes the campaign: walk tiers A→B→C, contacting up to the tier cap
// until the cumulative expected yield covers the required responses; tiers
// after that point are included at half allocation as buffer. to_contact
// never exceeds availability. Plan is deterministic and idempotent.
func (p *Planner) Plan(required int, availability map[models.Tier]int) (models.OutreachStrategy, error) {
	if required <= 0 {
		return models.OutreachStrategy{}, fmt.Errorf("strategy: required responses must be positive, got %d", required)
	}

	s := models.OutreachStrategy{
		Tiers:          make(map[models.Tier]models.TierPlan, len(models.Tiers)),
		CheckInOffsets: append([]float64(nil), CheckInOffsets...),
	}

	targetMet := false
	for _, tier := range models.Tiers {
		avail := availability[tier]
		cap := p.CapFor(tier, required)
		if targetMet {
			// Buffer allocation once the target is already covered.
			cap = (cap + 1) / 2
		}
		toContact := min(avail, cap)
		if toContact < 0 {
			toContact = 0
		}
		rate := p.rates[tier]
		expected := float64(toContact) * rate

		s.Tiers[tier] = models.TierPlan{
			Available:         avail,
			ToContact:         toContact,
			ResponseRate:      rate,
			ExpectedResponses: expected,
		}
		s.TotalToContact += toContact
		s.ExpectedTotal += expected

		if s.ExpectedTotal >= float64(required) {
			targetMet = true
		}
	}

	if s.ExpectedTotal >= float64(required) {
		s.ConfidenceScore = 100
	} else if s.ExpectedTotal > 0 {
		s.ConfidenceScore = s.ExpectedTotal / float64(required) * 100
	}

	return s, nil
}

// ExpectedByOffset returns the yield the strategy predicts by a given
// fraction of the timeline, assuming responses accrue linearly.
func ExpectedByOffset(s models.OutreachStrategy, offset float64) float64 {
	if offset < 0 {
		offset = 0
	}
	if offset > 1 {
		offset = 1
	}
	return s.ExpectedTotal * offset
}
