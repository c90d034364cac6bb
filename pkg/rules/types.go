// Package rules implements the workflow rule engine: trigger matching,
// conjunctive condition evaluation, ordered action execution with
// per-action failure isolation, and execution-history records.
//
// Condition and action "type" strings dispatch through lookup tables built
// once when the engine is constructed; adding a kind means registering a
// handler, not touching the evaluator.
package rules

import (
	"sync/atomic"
	"time"

	"cascade/pkg/domain"
)

// Rule is a user-defined trigger → conditions → actions automation.
type Rule struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	TriggerType   domain.EventType `yaml:"trigger"`
	TriggerConfig map[string]any   `yaml:"trigger_config"`
	ProjectFilter string           `yaml:"project"`
	Active        bool             `yaml:"active"`
	Conditions    []Condition      `yaml:"conditions"`
	Actions       []Action         `yaml:"actions"`

	ExecutionCount int        `yaml:"-"`
	LastExecutedAt *time.Time `yaml:"-"`
}

// Condition must hold for the rule to fire. All conditions of a rule are
// ANDed; evaluation short-circuits on the first false.
type Condition struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// Action is one ordered side effect of a firing rule.
type Action struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
	Order  int            `yaml:"order"`
}

// ExecStatus is the lifecycle status of one rule firing.
type ExecStatus string

// Execution status constants.
const (
	ExecPending   ExecStatus = "pending"
	ExecRunning   ExecStatus = "running"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
	ExecSkipped   ExecStatus = "skipped"
)

// Execution records one rule firing. It is created per firing and immutable
// after completion except for status and result data. The record is the
// caller's handle on an asynchronous run: poll the store, or check Done.
type Execution struct {
	ID             string
	RuleID         string
	Status         ExecStatus
	TriggerContext map[string]any
	ResultData     map[string]any
	StartedAt      time.Time
	CompletedAt    *time.Time

	cancelled atomic.Bool
}

// Cancel marks the execution for cancellation. The flag is checked before
// each action dispatch; an action already started runs to completion.
func (e *Execution) Cancel() { e.cancelled.Store(true) }

// Cancelled reports whether cancellation was requested.
func (e *Execution) Cancelled() bool { return e.cancelled.Load() }

// Done reports whether the execution reached a terminal status.
func (e *Execution) Done() bool {
	switch e.Status {
	case ExecCompleted, ExecFailed, ExecSkipped:
		return true
	}
	return false
}

// Context is the evaluation context a rule fires against: the triggering
// event plus the resolved task and user views. Condition evaluation and
// template rendering over a Context are pure.
type Context struct {
	Event    domain.Event
	Task     *domain.TaskView
	User     *domain.UserInfo
	Assignee *domain.UserInfo
	Now      time.Time
}

// Field resolves a named context field to its string form. Unknown names
// and absent values yield "".
func (c *Context) Field(name string) string {
	switch name {
	case "event_type":
		return string(c.Event.Type)
	case "old_status":
		return string(c.Event.OldStatus)
	case "new_status":
		return string(c.Event.NewStatus)
	case "project_id":
		if c.Task != nil && c.Task.ProjectID != "" {
			return c.Task.ProjectID
		}
		return c.Event.ProjectID
	case "user_id":
		return c.Event.UserID
	}

	if c.Task == nil {
		return ""
	}
	switch name {
	case "task_id":
		return c.Task.ID
	case "task_title":
		return c.Task.Title
	case "task_status":
		return string(c.Task.Status)
	case "task_priority":
		return string(c.Task.Priority)
	case "assignee_id":
		return c.Task.AssigneeID
	case "task_deadline":
		if c.Task.Deadline != nil {
			return c.Task.Deadline.Format(time.RFC3339)
		}
	}
	return ""
}
