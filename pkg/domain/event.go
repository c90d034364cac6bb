package domain

import "time"

// EventType identifies the kind of domain event submitted to the scheduler.
type EventType string

// Event type constants. The first group is emitted by callers at the point
// of mutation; the second group is synthesized by the periodic scans.
const (
	EventTaskCreated       EventType = "task_created"
	EventTaskStatusChange  EventType = "task_status_change"
	EventTaskAssigned      EventType = "task_assigned"
	EventProgressUpdate    EventType = "progress_update"
	EventDependencyCreated EventType = "dependency_created"

	EventTaskOverdue         EventType = "task_overdue"
	EventTaskBlocked         EventType = "task_blocked"
	EventDeadlineApproaching EventType = "deadline_approaching"
	EventSchedule            EventType = "schedule"
)

// Valid reports whether the event type is one of the known kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCreated, EventTaskStatusChange, EventTaskAssigned,
		EventProgressUpdate, EventDependencyCreated, EventTaskOverdue,
		EventTaskBlocked, EventDeadlineApproaching, EventSchedule:
		return true
	}
	return false
}

// Event is a domain event. Callers construct one explicitly at the point of
// mutation and submit it to the scheduler; there is no implicit save-hook
// chain. Optional fields are populated per event type.
type Event struct {
	Type      EventType
	TaskID    string
	ProjectID string
	UserID    string

	// Status transition context for EventTaskStatusChange.
	OldStatus Status
	NewStatus Status

	// Assignment context for EventTaskAssigned.
	OldAssigneeID string
	NewAssigneeID string

	// Dependency context for EventDependencyCreated.
	Edge *Edge

	// Hours remaining for EventDeadlineApproaching.
	HoursUntilDeadline float64

	OccurredAt time.Time
}
