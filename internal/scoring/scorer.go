package scoring

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/BidWorks/Outreach/internal/models"
)

// Final scores are clamped to this range no matter how many bonuses stack.
const (
	MinScore = 0.0
	MaxScore = 300.0
)

var tierBase = map[models.Tier]float64{
	models.TierA: 100,
	models.TierB: 80,
	models.TierC: 50,
}

var matchWeight = map[models.Tier]float64{
	models.TierA: 0.5,
	models.TierB: 0.4,
	models.TierC: 0.3,
}

// Score converts a candidate plus the request it would serve into a bounded
// final score with an itemized breakdown. It errors only on malformed input
// (unknown tier, match score outside 0-100); callers drop such candidates and
// keep going.
func Score(c models.Candidate, req models.Request) (models.ScoredCandidate, error) {
	base, ok := tierBase[c.Tier]
	if !ok {
		return models.ScoredCandidate{}, fmt.Errorf("score %q: unknown tier %q", c.Key, c.Tier)
	}
	if c.MatchScore < 0 || c.MatchScore > 100 {
		return models.ScoredCandidate{}, fmt.Errorf("score %q: match score %.1f out of range", c.Key, c.MatchScore)
	}

	bd := models.ScoreBreakdown{
		TierBase:     base,
		Match:        c.MatchScore * matchWeight[c.Tier],
		Quality:      ratingPoints(c.Rating) + projectPoints(c.CompletedProjects),
		Fit:          fitPoints(c, req),
		Availability: availabilityPoints(c),
		Verification: verificationPoints(c),
	}

	total := bd.TierBase + bd.Match + bd.Quality + bd.Fit + bd.Availability + bd.Verification
	if total > MaxScore {
		total = MaxScore
	}
	if total < MinScore {
		total = MinScore
	}

	return models.ScoredCandidate{Candidate: c, FinalScore: total, Breakdown: bd}, nil
}

// Rank scores every candidate and orders the survivors highest-first, ties
// broken by identity key so the order never depends on sort stability alone.
// Candidates that fail to score are dropped with a warning. If nothing scores
// at all, the input is returned unscored in its original order so the caller
// degrades instead of failing.
func Rank(candidates []models.Candidate, req models.Request) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sc, err := Score(c, req)
		if err != nil {
			log.Printf("[scoring] dropping candidate: %v", err)
			continue
		}
		scored = append(scored, sc)
	}

	if len(scored) == 0 && len(candidates) > 0 {
		log.Printf("[scoring] ranking degraded: 0 of %d candidates scored, returning unscored input", len(candidates))
		for _, c := range candidates {
			scored = append(scored, models.ScoredCandidate{Candidate: c})
		}
		return scored
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].Key < scored[j].Key
	})
	return scored
}

func ratingPoints(rating float64) float64 {
	switch {
	case rating >= 4.8:
		return 50
	case rating >= 4.5:
		return 40
	case rating >= 4.0:
		return 30
	case rating >= 3.5:
		return 20
	case rating >= 3.0:
		return 10
	}
	return 0
}

func projectPoints(n int) float64 {
	switch {
	case n >= 200:
		return 30
	case n >= 100:
		return 25
	case n >= 50:
		return 20
	case n >= 20:
		return 15
	case n >= 10:
		return 10
	case n >= 5:
		return 5
	}
	return 0
}

func fitPoints(c models.Candidate, req models.Request) float64 {
	var pts float64

	// Specialty: first category match wins; a generic capability is worth less.
	category := strings.ToLower(req.Category)
	matched := false
	for _, s := range c.Specialties {
		if strings.ToLower(s) == category {
			pts += 25
			matched = true
			break
		}
	}
	if !matched {
		for _, s := range c.Specialties {
			if strings.EqualFold(s, "general") {
				pts += 10
				break
			}
		}
	}

	// Budget fit against the candidate's declared project-size range.
	budget := req.Budget.Max
	switch {
	case budget >= c.MinProjectSize && (c.MaxProjectSize == 0 || budget <= c.MaxProjectSize):
		pts += 20
	case budget < c.MinProjectSize:
		if c.MinProjectSize > 0 {
			pts += 10 * (budget / c.MinProjectSize)
		}
	case c.MaxProjectSize > 0 && budget > c.MaxProjectSize:
		pts += 15
	}

	// Service area.
	if req.Location.PostalCode != "" {
		for _, code := range c.ServiceAreaCodes {
			if code == req.Location.PostalCode {
				pts += 15
				break
			}
		}
	}

	return pts
}

func availabilityPoints(c models.Candidate) float64 {
	var pts float64
	switch c.Availability {
	case "available":
		pts = 20
	case "busy":
		pts = 5
	}
	if c.PriorEngagement {
		pts += 10
	}
	return pts
}

func verificationPoints(c models.Candidate) float64 {
	var pts float64
	if c.Licensed {
		pts += 15
	}
	if c.InsuranceVerified {
		pts += 15
	}
	if c.Tier == models.TierA {
		pts += 10
	}
	if c.Tier == models.TierB {
		switch c.LastResponse {
		case models.ResponseInterested:
			pts += 8
		case models.ResponsePending:
			pts += 4
		}
	}
	return pts
}
