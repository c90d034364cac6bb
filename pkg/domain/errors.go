package domain

import "fmt"

// CycleError reports an edge insertion that would create a dependency
// cycle. The insertion is rejected and the graph left unchanged.
type CycleError struct {
	PredecessorID string
	SuccessorID   string
}

func (e *CycleError) Error() string {
	if e.PredecessorID == e.SuccessorID {
		return fmt.Sprintf("task %s cannot depend on itself", e.PredecessorID)
	}
	return fmt.Sprintf("dependency %s -> %s would create a cycle",
		e.PredecessorID, e.SuccessorID)
}

// DuplicateEscalationError reports an attempt to open a second
// escalation for a (task, rule) pair that already has a non-terminal
// one. The attempted insert is discarded.
type DuplicateEscalationError struct {
	TaskID string
	RuleID string
}

func (e *DuplicateEscalationError) Error() string {
	return fmt.Sprintf("task %s already has an open escalation from rule %s",
		e.TaskID, e.RuleID)
}

// NotFoundError reports a missing task, rule, edge, or escalation.
type NotFoundError struct {
	Kind string // "task", "rule", "edge", "escalation", "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ActionError captures a single failed action inside a rule execution. It
// is recorded in the execution's result data and never propagates as a
// hard failure of the dispatcher.
type ActionError struct {
	ActionType string
	Order      int
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s (order %d): %v", e.ActionType, e.Order, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ConfigError reports a malformed rule, condition, or action configuration.
// The affected rule is skipped with a logged reason; other rules continue.
type ConfigError struct {
	RuleID string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("rule %s: invalid configuration: %s", e.RuleID, e.Reason)
}
