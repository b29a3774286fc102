// Package pm implements the coordinating project-management agent: it
// converts requirements into SMART objectives and concrete subtasks,
// dispatches subtasks to downstream agents, and prioritizes the backlog.
package pm

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/orchid-dev/orchid/pkg/models"
)

// hoursPerDay is the fixed conversion used to derive completion dates
// from effort estimates. Not configurable.
const hoursPerDay = 8.0

// BuildObjective computes the SMART view of a requirement. The
// time-bound deadline is counted from the given start date, normally
// the requirement's creation date. The result is derived on demand and
// never stored apart from the requirement.
func BuildObjective(req *models.Requirement, from time.Time) *models.Objective {
	return &models.Objective{
		Specific:      req.Description,
		Measurable:    measurable(req.AcceptanceCriteria),
		Achievable:    fmt.Sprintf("Achievable within %g estimated hours", req.EstimatedHours),
		Relevant:      relevant(req.Tags),
		TimeBound:     "Complete by " + deadlineDate(from, req.EstimatedHours).Format("2006-01-02"),
		RequirementID: req.ID,
		Priority:      req.Priority,
		Tags:          req.Tags,
	}
}

// measurable renders the acceptance criteria as a numbered list.
func measurable(criteria []string) string {
	if len(criteria) == 0 {
		return "No acceptance criteria defined"
	}

	var b strings.Builder
	for i, c := range criteria {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, c)
	}
	return b.String()
}

// relevant describes the requirement's relevance from its tags.
func relevant(tags []string) string {
	if len(tags) == 0 {
		return "Relevant to: general"
	}
	return "Relevant to: " + strings.Join(tags, ", ")
}

// deadlineDate converts an hour estimate into a calendar deadline at
// hoursPerDay hours per day, rounded up to whole days.
func deadlineDate(from time.Time, estimatedHours float64) time.Time {
	days := int(math.Ceil(estimatedHours / hoursPerDay))
	return from.AddDate(0, 0, days)
}
