package pm

import (
	"sort"

	"github.com/orchid-dev/orchid/pkg/models"
)

// tagBonuses are the additive scoring bonuses per tag. Every matching
// tag applies; the bonuses are not exclusive.
var tagBonuses = map[string]float64{
	"security":        8,
	"performance":     6,
	"user_experience": 7,
	"revenue":         9,
}

// Score computes the urgency of a requirement; higher is more urgent.
// The score is the base priority weight, plus any tag bonuses, plus an
// effort term that shrinks with larger estimates but never below 1.
func Score(req *models.Requirement) float64 {
	score := req.Priority.Weight()

	for _, tag := range req.Tags {
		score += tagBonuses[tag]
	}

	effort := 10 - req.EstimatedHours/10
	if effort < 1 {
		effort = 1
	}
	return score + effort
}

// BacklogSummary reports counts for a prioritization pass.
type BacklogSummary struct {
	// Total is the number of requirements in the backlog.
	Total int
	// HighPriority is the number of high-priority requirements.
	HighPriority int
}

// PrioritizeRequirements returns the requirements sorted by descending
// score. The sort is stable, so insertion order breaks ties. The input
// slice is not mutated: ordering is a read-time projection.
func PrioritizeRequirements(reqs []*models.Requirement) ([]*models.Requirement, BacklogSummary) {
	sorted := append([]*models.Requirement(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Score(sorted[i]) > Score(sorted[j])
	})

	summary := BacklogSummary{Total: len(sorted)}
	for _, req := range sorted {
		if req.Priority == models.PriorityHigh {
			summary.HighPriority++
		}
	}
	return sorted, summary
}
