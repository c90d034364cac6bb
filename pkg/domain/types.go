// Package domain holds the shared vocabulary of the cascade engine: task
// projections, dependency edges, events, and the typed errors exchanged
// between the graph, timeline, rule, and scheduler packages.
package domain

import "time"

// Status is a task lifecycle status.
type Status string

// Task status constants.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ActiveStatuses are statuses of tasks still in play. Bottleneck analysis
// and overdue scans only consider these.
var ActiveStatuses = []Status{StatusOpen, StatusInProgress, StatusBlocked}

// Terminal reports whether the status ends the task lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether the status is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusReview,
		StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Priority is a task priority level.
type Priority string

// Task priority constants.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is one of the known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// PriorityColor returns the hex color used in chat payloads for a priority.
func PriorityColor(p Priority) string {
	switch p {
	case PriorityLow:
		return "#28a745"
	case PriorityMedium:
		return "#ffc107"
	case PriorityHigh:
		return "#fd7e14"
	case PriorityUrgent:
		return "#dc3545"
	default:
		return "#6c757d"
	}
}

// TaskView is the read projection of a task used by the engine. The task
// record itself is owned by the external task store; the engine reads views
// and requests updates through the TaskStore interface.
type TaskView struct {
	ID              string
	Title           string
	ProjectID       string
	Status          Status
	Priority        Priority
	AssigneeID      string
	CreatorID       string
	ProgressPercent int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Deadline        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Overdue reports whether the task's deadline has passed at the given time.
func (t *TaskView) Overdue(now time.Time) bool {
	return t.Deadline != nil && !t.Status.Terminal() && now.After(*t.Deadline)
}

// DependencyType describes how a predecessor constrains a successor.
type DependencyType string

// Dependency type constants.
const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

// Valid reports whether the dependency type is one of the four known kinds.
func (d DependencyType) Valid() bool {
	switch d {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// Edge is a typed dependency between two tasks. LagDays may be negative for
// lead time. An edge is unique per (predecessor, successor) pair and is only
// ever created or deleted, never mutated in place.
type Edge struct {
	PredecessorID string
	SuccessorID   string
	Type          DependencyType
	LagDays       int
	AutoAdjust    bool
	CreatedAt     time.Time
}

// Severity classifies a bottleneck finding.
type Severity string

// Bottleneck severity constants, ordered low to critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a sortable weight for the severity (critical highest).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// SuggestedAction is a deterministic remediation hint attached to
// bottlenecks and escalations.
type SuggestedAction struct {
	Action      string `json:"action" yaml:"action"`
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Bottleneck is an open or resolved finding produced by the analyzer.
// At most one unresolved record exists per task; re-analysis updates it
// in place.
type Bottleneck struct {
	ID               int64
	TaskID           string
	Severity         Severity
	BlockingCount    int
	CascadeDelayDays float64
	DelayProbability float64
	SuggestedActions []SuggestedAction
	IsResolved       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EscalationStatus is the lifecycle status of an escalation record.
type EscalationStatus string

// Escalation status constants. Transitions run forward only
// (pending → acknowledged → in_progress → resolved), with dismissed
// reachable from any non-terminal status.
const (
	EscalationPending      EscalationStatus = "pending"
	EscalationAcknowledged EscalationStatus = "acknowledged"
	EscalationInProgress   EscalationStatus = "in_progress"
	EscalationResolved     EscalationStatus = "resolved"
	EscalationDismissed    EscalationStatus = "dismissed"
)

// Terminal reports whether the escalation status is final.
func (s EscalationStatus) Terminal() bool {
	return s == EscalationResolved || s == EscalationDismissed
}

// OpenEscalationStatuses are the non-terminal statuses that count toward
// the one-open-escalation-per-(task, rule) dedup invariant.
var OpenEscalationStatuses = []EscalationStatus{
	EscalationPending, EscalationAcknowledged, EscalationInProgress,
}

// Escalation is a tracked, deduplicated alert raised against a task.
type Escalation struct {
	ID               string
	TaskID           string
	RuleID           string
	Status           EscalationStatus
	Reason           string
	SuggestedActions []SuggestedAction
	EscalatedTo      []string
	ResolutionNotes  string
	CreatedAt        time.Time
	AcknowledgedAt   *time.Time
	ResolvedAt       *time.Time
}
