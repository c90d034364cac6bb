package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cascade/pkg/domain"
	"cascade/pkg/graph"
	"cascade/pkg/timeline"
)

// RuleSource provides the active rule set. The store-backed implementation
// caches and is invalidated by the rules-directory watcher.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}

// ExecutionStore persists execution records and per-rule firing stats.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *Execution) error
	UpdateExecution(ctx context.Context, exec *Execution) error
	// TouchRule increments the rule's execution count and stamps its last
	// execution time. Called after every run regardless of outcome.
	TouchRule(ctx context.Context, ruleID string, at time.Time) error
}

// EscalationStore persists escalations and answers the dedup check.
type EscalationStore interface {
	OpenEscalationExists(ctx context.Context, taskID, ruleID string) (bool, error)
	CreateEscalation(ctx context.Context, esc *domain.Escalation) error
}

// EventLogger appends to the audit event log.
type EventLogger interface {
	LogEvent(ctx context.Context, eventType, source, taskID, ruleID, payload string) error
}

// Engine matches domain events to rules and runs them.
type Engine struct {
	rules       RuleSource
	tasks       domain.TaskStore
	users       domain.UserDirectory
	notify      domain.NotificationSink
	messaging   domain.MessagingSink
	graph       *graph.Graph
	timeline    *timeline.Engine
	execs       ExecutionStore
	escalations EscalationStore
	events      EventLogger

	conditions map[string]ConditionFunc
	actions    map[string]ActionFunc

	mu       sync.Mutex
	inflight map[string]*Execution

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// Deps bundles the collaborators an Engine needs.
type Deps struct {
	Rules       RuleSource
	Tasks       domain.TaskStore
	Users       domain.UserDirectory
	Notify      domain.NotificationSink
	Messaging   domain.MessagingSink
	Graph       *graph.Graph
	Timeline    *timeline.Engine
	Executions  ExecutionStore
	Escalations EscalationStore
	Events      EventLogger
}

// New creates an Engine and resolves the condition and action dispatch
// tables once, up front.
func New(deps Deps) *Engine {
	e := &Engine{
		rules:       deps.Rules,
		tasks:       deps.Tasks,
		users:       deps.Users,
		notify:      deps.Notify,
		messaging:   deps.Messaging,
		graph:       deps.Graph,
		timeline:    deps.Timeline,
		execs:       deps.Executions,
		escalations: deps.Escalations,
		events:      deps.Events,
		conditions:  builtinConditions(),
		inflight:    make(map[string]*Execution),
		nowFunc:     time.Now,
	}
	e.actions = e.builtinActions()
	return e
}

// KnownCondition reports whether a condition type has a registered
// evaluator. Used by the loader to reject malformed rule files early.
func (e *Engine) KnownCondition(condType string) bool {
	_, ok := e.conditions[condType]
	return ok
}

// KnownAction reports whether an action type has a registered handler.
func (e *Engine) KnownAction(actionType string) bool {
	_, ok := e.actions[actionType]
	return ok
}

// Cancel requests cancellation of an in-flight execution. Returns false if
// the execution is not in flight (unknown or already finished).
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.inflight[executionID]
	if !ok {
		return false
	}
	exec.Cancel()
	return true
}

// Evaluate matches the event against the active rules and runs every match.
// One Execution record is returned per matching rule. A misconfigured rule
// is skipped with the reason recorded; it never blocks other rules.
func (e *Engine) Evaluate(ctx context.Context, event domain.Event) ([]*Execution, error) {
	active, err := e.rules.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}

	var out []*Execution
	for i := range active {
		rule := &active[i]
		if !rule.Active {
			continue
		}
		if rule.TriggerType != event.Type {
			continue
		}
		if rule.ProjectFilter != "" && rule.ProjectFilter != event.ProjectID {
			continue
		}
		if !triggerMatches(rule, event) {
			continue
		}
		out = append(out, e.runRule(ctx, rule, event))
	}
	return out, nil
}

// triggerMatches applies trigger_config refinements beyond the type match.
func triggerMatches(rule *Rule, event domain.Event) bool {
	switch event.Type {
	case domain.EventTaskStatusChange:
		if from := cfgStringDefault(rule.TriggerConfig, "from_status", ""); from != "" && from != string(event.OldStatus) {
			return false
		}
		if to := cfgStringDefault(rule.TriggerConfig, "to_status", ""); to != "" && to != string(event.NewStatus) {
			return false
		}
	case domain.EventDeadlineApproaching:
		hoursBefore := cfgFloat(rule.TriggerConfig, "hours_before", 24)
		if event.HoursUntilDeadline > hoursBefore {
			return false
		}
	}
	return true
}

// runRule executes one matching rule end to end and returns its execution
// record. All failure modes land in the record; runRule itself never
// returns an error.
func (e *Engine) runRule(ctx context.Context, rule *Rule, event domain.Event) *Execution {
	now := e.nowFunc()
	exec := &Execution{
		ID:     uuid.New().String(),
		RuleID: rule.ID,
		Status: ExecPending,
		TriggerContext: map[string]any{
			"event_type": string(event.Type),
			"task_id":    event.TaskID,
			"project_id": event.ProjectID,
		},
		ResultData: map[string]any{},
		StartedAt:  now,
	}
	if err := e.execs.CreateExecution(ctx, exec); err != nil {
		e.log(ctx, "execution_create_failed", event.TaskID, rule.ID, err.Error())
	}

	e.mu.Lock()
	e.inflight[exec.ID] = exec
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, exec.ID)
		e.mu.Unlock()
	}()

	ec, err := e.buildContext(ctx, event, now)
	if err != nil {
		e.finish(ctx, exec, ExecSkipped, map[string]any{"reason": err.Error()})
		e.log(ctx, "rule_skipped", event.TaskID, rule.ID, err.Error())
		e.touch(ctx, rule)
		return exec
	}

	exec.Status = ExecRunning
	_ = e.execs.UpdateExecution(ctx, exec)

	// Conditions: all must hold, short-circuit on the first miss. A
	// malformed condition skips the rule with the config error recorded.
	for i, cond := range rule.Conditions {
		fn, ok := e.conditions[cond.Type]
		if !ok {
			reason := fmt.Sprintf("unknown condition type %q", cond.Type)
			e.finish(ctx, exec, ExecSkipped, map[string]any{"reason": reason})
			e.log(ctx, "rule_config_error", event.TaskID, rule.ID, reason)
			e.touch(ctx, rule)
			return exec
		}
		held, err := fn(cond.Config, ec)
		if err != nil {
			var cfgErr *domain.ConfigError
			reason := err.Error()
			if errors.As(err, &cfgErr) {
				reason = fmt.Sprintf("condition %d (%s): %s", i, cond.Type, cfgErr.Reason)
			}
			e.finish(ctx, exec, ExecSkipped, map[string]any{"reason": reason})
			e.log(ctx, "rule_config_error", event.TaskID, rule.ID, reason)
			e.touch(ctx, rule)
			return exec
		}
		if !held {
			e.finish(ctx, exec, ExecSkipped, map[string]any{
				"reason":    "condition not met",
				"condition": cond.Type,
				"index":     i,
			})
			e.touch(ctx, rule)
			return exec
		}
	}

	// Actions: declared order, each attempted even after earlier failures.
	// Failures are captured per action; prior side effects are not rolled
	// back (at-least-once, no rollback).
	actions := make([]Action, len(rule.Actions))
	copy(actions, rule.Actions)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Order < actions[j].Order })

	var actionErrs []string
	for _, action := range actions {
		if exec.Cancelled() {
			exec.ResultData["cancelled_before"] = action.Type
			break
		}
		fn, ok := e.actions[action.Type]
		if !ok {
			actionErrs = append(actionErrs, (&domain.ActionError{
				ActionType: action.Type,
				Order:      action.Order,
				Err:        fmt.Errorf("unknown action type"),
			}).Error())
			continue
		}
		if err := fn(ctx, action, ec, exec); err != nil {
			aerr := &domain.ActionError{ActionType: action.Type, Order: action.Order, Err: err}
			actionErrs = append(actionErrs, aerr.Error())
			e.log(ctx, "action_failed", event.TaskID, rule.ID, aerr.Error())
		}
	}

	if len(actionErrs) > 0 {
		e.finish(ctx, exec, ExecFailed, map[string]any{"errors": actionErrs})
	} else {
		e.finish(ctx, exec, ExecCompleted, nil)
	}
	e.touch(ctx, rule)
	e.log(ctx, "rule_executed", event.TaskID, rule.ID, string(exec.Status))
	return exec
}

// buildContext resolves the event's task and user views. Directory lookups
// are best-effort; a missing task is a skip reason.
func (e *Engine) buildContext(ctx context.Context, event domain.Event, now time.Time) (*Context, error) {
	ec := &Context{Event: event, Now: now}

	if event.TaskID != "" {
		task, err := e.tasks.Get(ctx, event.TaskID)
		if err != nil {
			return nil, fmt.Errorf("resolve task: %w", err)
		}
		ec.Task = task
		if task.AssigneeID != "" && e.users != nil {
			ec.Assignee, _ = e.users.Resolve(ctx, task.AssigneeID)
		}
	}
	if event.UserID != "" && e.users != nil {
		ec.User, _ = e.users.Resolve(ctx, event.UserID)
	}
	return ec, nil
}

func (e *Engine) finish(ctx context.Context, exec *Execution, status ExecStatus, result map[string]any) {
	exec.Status = status
	for k, v := range result {
		exec.ResultData[k] = v
	}
	done := e.nowFunc()
	exec.CompletedAt = &done
	_ = e.execs.UpdateExecution(ctx, exec)
}

func (e *Engine) touch(ctx context.Context, rule *Rule) {
	if err := e.execs.TouchRule(ctx, rule.ID, e.nowFunc()); err != nil {
		e.log(ctx, "rule_touch_failed", "", rule.ID, err.Error())
	}
}

func (e *Engine) log(ctx context.Context, eventType, taskID, ruleID, payload string) {
	if e.events != nil {
		_ = e.events.LogEvent(ctx, eventType, "rules", taskID, ruleID, payload)
	}
}
