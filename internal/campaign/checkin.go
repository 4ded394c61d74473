package campaign

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/strategy"
)

// escalationThreshold is the performance ratio below which a check-in
// escalates. Exactly at the threshold no action is taken.
const escalationThreshold = 75.0

// Schedule maps a strategy's check-in offsets onto a campaign's absolute
// timeline. Offsets must be strictly increasing fractions in (0,1).
func Schedule(c models.Campaign, s models.OutreachStrategy) ([]models.CheckIn, error) {
	duration := c.Deadline.Sub(c.StartAt)
	if duration <= 0 {
		return nil, fmt.Errorf("campaign %s: deadline not after start", c.ID)
	}

	prev := 0.0
	out := make([]models.CheckIn, 0, len(s.CheckInOffsets))
	for _, off := range s.CheckInOffsets {
		if off <= prev || off >= 1 {
			return nil, fmt.Errorf("campaign %s: check-in offset %.2f not strictly increasing in (0,1)", c.ID, off)
		}
		prev = off
		out = append(out, models.CheckIn{
			ID:          uuid.New(),
			CampaignID:  c.ID,
			Offset:      off,
			ScheduledAt: c.StartAt.Add(time.Duration(float64(duration) * off)),
			Decision:    models.ActionNone,
		})
	}
	return out, nil
}

// Evaluate compares actual responses against the yield expected by the
// check-in's offset and decides whether to escalate. canExpand tells the
// evaluator whether wider radius stages remain; when they are exhausted an
// underperforming campaign escalates to add-tier instead.
func Evaluate(ci models.CheckIn, s models.OutreachStrategy, actualResponses int, canExpand bool) (ratio float64, action models.EscalationAction) {
	expected := strategy.ExpectedByOffset(s, ci.Offset)
	if expected <= 0 {
		// Nothing was ever expected by now; no basis to escalate.
		return 100, models.ActionNone
	}
	ratio = float64(actualResponses) / expected * 100

	if ratio >= escalationThreshold {
		return ratio, models.ActionNone
	}
	if canExpand {
		return ratio, models.ActionExpandRadius
	}
	return ratio, models.ActionAddTier
}
