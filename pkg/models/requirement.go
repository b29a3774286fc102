package models

import "time"

// Requirement is a high-level unit of desired work. Requirements enter
// the backlog when processed and stay there until explicitly removed.
type Requirement struct {
	// ID is the unique identifier for this requirement.
	ID string `json:"id" yaml:"id"`
	// Title is the short name of the requirement.
	Title string `json:"title" yaml:"title"`
	// Description provides detailed information about the desired work.
	Description string `json:"description,omitempty" yaml:"description"`
	// Priority is the urgency of this requirement.
	Priority Priority `json:"priority" yaml:"priority"`
	// Tags drive decomposition rules and backlog scoring bonuses.
	Tags []string `json:"tags,omitempty" yaml:"tags"`
	// AcceptanceCriteria is the ordered list of completion criteria.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria"`
	// EstimatedHours is the estimated effort in hours.
	EstimatedHours float64 `json:"estimated_hours" yaml:"estimated_hours"`
	// Dependencies lists ids of requirements this one depends on.
	// Declared but not enforced by the decomposer.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies"`
	// CreatedAt is when the requirement was submitted.
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at"`
}

// HasTag returns true if the requirement carries the given tag.
func (r *Requirement) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Objective is a derived, read-only SMART view over a Requirement.
// It is computed on demand and never persisted independently.
type Objective struct {
	// Specific restates what is to be built.
	Specific string `json:"specific"`
	// Measurable is the numbered concatenation of acceptance criteria.
	Measurable string `json:"measurable"`
	// Achievable cites the estimated effort.
	Achievable string `json:"achievable"`
	// Relevant is derived from the requirement's tags.
	Relevant string `json:"relevant"`
	// TimeBound is the derived completion date string.
	TimeBound string `json:"time_bound"`
	// RequirementID echoes the source requirement id.
	RequirementID string `json:"requirement_id"`
	// Priority echoes the source requirement priority.
	Priority Priority `json:"priority"`
	// Tags echoes the source requirement tags.
	Tags []string `json:"tags,omitempty"`
}

// Sprint is a named, fixed grouping of tasks. Membership is set at
// creation; there is no add or remove operation.
type Sprint struct {
	// ID is the unique identifier for this sprint.
	ID string `json:"id"`
	// Tasks is the ordered collection of tasks assigned at creation.
	Tasks []*Task `json:"tasks"`
	// CreatedAt is when the sprint was created.
	CreatedAt time.Time `json:"created_at"`
}
