package pm

import (
	"fmt"
	"time"

	"github.com/orchid-dev/orchid/pkg/models"
)

// subtaskSpec describes one subtask emitted by a decomposition rule.
type subtaskSpec struct {
	// taskType is both the task's type tag and its id suffix.
	taskType string
	// description is a format string taking the requirement title.
	description string
	// component is the metadata component the work belongs to.
	component string
	// skill is the metadata skill required for the work.
	skill string
	// deadlineDays is the deadline offset from decomposition time.
	deadlineDays int
}

// decompositionRule matches a requirement's tags and contributes
// subtasks. Rules are independent and additive: a requirement may match
// several rules, one subtask set per rule.
type decompositionRule struct {
	matches  func(req *models.Requirement) bool
	subtasks []subtaskSpec
}

// decompositionRules is evaluated in order so subtask output is
// deterministic for a given tag set.
var decompositionRules = []decompositionRule{
	{
		matches: func(req *models.Requirement) bool { return req.HasTag("frontend") },
		subtasks: []subtaskSpec{
			{taskType: "ui_design", description: "Design the user interface for %s", component: "frontend", skill: "design", deadlineDays: 2},
			{taskType: "frontend_implementation", description: "Implement the frontend for %s", component: "frontend", skill: "development", deadlineDays: 5},
		},
	},
	{
		matches: func(req *models.Requirement) bool { return req.HasTag("backend") || req.HasTag("api") },
		subtasks: []subtaskSpec{
			{taskType: "api_design", description: "Design the API for %s", component: "backend", skill: "architecture", deadlineDays: 1},
			{taskType: "backend_implementation", description: "Implement the backend for %s", component: "backend", skill: "development", deadlineDays: 4},
		},
	},
	{
		matches: func(req *models.Requirement) bool { return req.HasTag("database") },
		subtasks: []subtaskSpec{
			{taskType: "database_design", description: "Design the database schema for %s", component: "database", skill: "data_modeling", deadlineDays: 1},
		},
	},
	{
		matches: func(req *models.Requirement) bool { return req.HasTag("testing") },
		subtasks: []subtaskSpec{
			{taskType: "test_implementation", description: "Implement tests for %s", component: "testing", skill: "qa", deadlineDays: 3},
		},
	},
}

// DecomposeRequirement scans the requirement's tags and emits the
// subtasks of every matching rule. Subtask ids are derived as
// "{requirementId}_{taskType}", so re-running decomposition for the
// same requirement produces the same ids (overwrite, not duplicate).
func DecomposeRequirement(req *models.Requirement, now time.Time) []*models.Task {
	var tasks []*models.Task

	for _, rule := range decompositionRules {
		if !rule.matches(req) {
			continue
		}
		for _, spec := range rule.subtasks {
			task := models.NewTask(
				req.ID+"_"+spec.taskType,
				spec.taskType,
				fmt.Sprintf(spec.description, req.Title),
				req.Priority,
			)
			deadline := now.AddDate(0, 0, spec.deadlineDays)
			task.Deadline = &deadline
			task.Metadata["parentRequirement"] = req.ID
			task.Metadata["component"] = spec.component
			task.Metadata["skill"] = spec.skill
			tasks = append(tasks, task)
		}
	}

	return tasks
}

// genericStep describes one step of the fixed fallback breakdown.
type genericStep struct {
	taskType       string
	description    string
	estimatedHours float64
}

// genericSteps is the fixed four-step breakdown applied to arbitrary
// parent tasks, independent of their content.
var genericSteps = []genericStep{
	{taskType: "analysis", description: "Analyze the work for %s", estimatedHours: 2},
	{taskType: "implementation", description: "Implement %s", estimatedHours: 6},
	{taskType: "testing", description: "Test %s", estimatedHours: 3},
	{taskType: "review", description: "Review %s", estimatedHours: 1},
}

// DecomposeTask breaks an arbitrary parent task into the fixed
// analysis/implementation/testing/review sequence. This is the generic
// fallback, distinct from the tag-driven requirement decomposition.
func DecomposeTask(parent *models.Task) []*models.Task {
	tasks := make([]*models.Task, 0, len(genericSteps))

	for _, step := range genericSteps {
		task := models.NewTask(
			parent.ID+"_"+step.taskType,
			step.taskType,
			fmt.Sprintf(step.description, parent.ID),
			parent.Priority,
		)
		task.Metadata["parentTask"] = parent.ID
		task.Metadata["estimatedHours"] = step.estimatedHours
		tasks = append(tasks, task)
	}

	return tasks
}
