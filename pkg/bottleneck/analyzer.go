// Package bottleneck scores active tasks by how badly a slip would ripple
// through the dependency graph and produces ranked, severity-tagged
// findings with deterministic remediation suggestions.
package bottleneck

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cascade/pkg/domain"
	"cascade/pkg/graph"
)

// blockingThreshold is the minimum successor fan-out for a task to qualify
// as a bottleneck candidate.
const blockingThreshold = 2

// RecordStore persists bottleneck findings. UpsertOpen updates the
// existing unresolved record for the task if one exists, otherwise creates
// one; there is never more than one open finding per task. The caller
// supplies the timestamp so all findings of one analysis share it.
type RecordStore interface {
	UpsertOpen(ctx context.Context, b *domain.Bottleneck, at time.Time) error
	ResolveBottleneck(ctx context.Context, taskID string, resolvedAt time.Time) error
}

// Analyzer computes bottleneck findings for a project scope.
type Analyzer struct {
	graph   *graph.Graph
	tasks   domain.TaskStore
	records RecordStore

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an analyzer over the given graph, task store, and record store.
func New(g *graph.Graph, tasks domain.TaskStore, records RecordStore) *Analyzer {
	return &Analyzer{graph: g, tasks: tasks, records: records, nowFunc: time.Now}
}

// Analyze scores every active task in the project and returns the open
// findings ranked by severity, then cascade delay. Re-running with no
// intervening task changes updates the same open records with identical
// scores; it never duplicates them.
func (a *Analyzer) Analyze(ctx context.Context, projectID string) ([]domain.Bottleneck, error) {
	tasks, err := a.tasks.Query(ctx, domain.TaskFilter{
		ProjectID: projectID,
		Statuses:  domain.ActiveStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("query active tasks: %w", err)
	}

	now := a.nowFunc()
	var findings []domain.Bottleneck

	for i := range tasks {
		task := &tasks[i]
		blocking := len(a.graph.Successors(task.ID))
		if blocking < blockingThreshold {
			continue
		}

		cascade := a.cascadeDelay(task.ID)
		b := domain.Bottleneck{
			TaskID:           task.ID,
			Severity:         severityFor(blocking, cascade),
			BlockingCount:    blocking,
			CascadeDelayDays: cascade,
			DelayProbability: delayProbability(task, now),
			SuggestedActions: suggestions(task, blocking),
		}
		if err := a.records.UpsertOpen(ctx, &b, now); err != nil {
			return nil, fmt.Errorf("upsert bottleneck for %s: %w", task.ID, err)
		}
		findings = append(findings, b)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity.Rank() != findings[j].Severity.Rank() {
			return findings[i].Severity.Rank() > findings[j].Severity.Rank()
		}
		if findings[i].CascadeDelayDays != findings[j].CascadeDelayDays {
			return findings[i].CascadeDelayDays > findings[j].CascadeDelayDays
		}
		return findings[i].TaskID < findings[j].TaskID
	})
	return findings, nil
}

// Resolve closes the open finding for a task. Operator action; analysis
// never resolves findings on its own.
func (a *Analyzer) Resolve(ctx context.Context, taskID string) error {
	return a.records.ResolveBottleneck(ctx, taskID, a.nowFunc())
}

// cascadeDelay estimates the total downstream slip, in days, if the task
// runs late: every traversed edge contributes its lag plus one day of
// minimum hand-off delay. Each node's out-edges are counted once.
func (a *Analyzer) cascadeDelay(taskID string) float64 {
	total := 0.0
	visited := map[string]bool{}
	stack := []string{taskID}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		for _, e := range a.graph.Successors(cur) {
			total += float64(e.LagDays) + 1
			stack = append(stack, e.SuccessorID)
		}
	}
	return total
}

// severityFor bands the fan-out and cascade estimate; the worse of the two
// bands wins.
func severityFor(blocking int, cascade float64) domain.Severity {
	switch {
	case blocking >= 5 || cascade >= 10:
		return domain.SeverityCritical
	case blocking >= 3 || cascade >= 5:
		return domain.SeverityHigh
	case blocking >= 2 || cascade >= 2:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// delayProbability is an additive heuristic bounded to [0,1].
func delayProbability(task *domain.TaskView, now time.Time) float64 {
	p := 0.0

	if task.Deadline != nil {
		daysUntil := int(task.Deadline.Sub(now).Hours() / 24)
		switch {
		case daysUntil <= 0:
			p += 0.5
		case daysUntil <= 2:
			p += 0.3
		case daysUntil <= 7:
			p += 0.1
		}
	}

	switch task.Status {
	case domain.StatusBlocked:
		p += 0.3
	case domain.StatusOpen:
		p += 0.1
	}

	if task.ProgressPercent < 50 && int(now.Sub(task.CreatedAt).Hours()/24) > 7 {
		p += 0.2
	}

	if p > 1.0 {
		return 1.0
	}
	return p
}

// suggestions produces the deterministic remediation list for a finding.
func suggestions(task *domain.TaskView, blocking int) []domain.SuggestedAction {
	var out []domain.SuggestedAction

	if task.Status == domain.StatusBlocked {
		out = append(out, domain.SuggestedAction{
			Action:      "resolve_blocker",
			Description: "Resolve the blocker preventing progress on this task",
			Priority:    "high",
		})
	}
	if task.AssigneeID == "" {
		out = append(out, domain.SuggestedAction{
			Action:      "assign_task",
			Description: "Assign this task to a team member",
			Priority:    "high",
		})
	}
	if blocking >= 3 {
		out = append(out,
			domain.SuggestedAction{
				Action:      "split_task",
				Description: "Consider splitting this task to reduce dependencies",
				Priority:    "medium",
			},
			domain.SuggestedAction{
				Action:      "parallel_work",
				Description: "Identify work that can be done in parallel",
				Priority:    "medium",
			})
	}
	if task.Priority != domain.PriorityUrgent {
		out = append(out, domain.SuggestedAction{
			Action:      "increase_priority",
			Description: fmt.Sprintf("Increase priority (currently %s)", task.Priority),
			Priority:    "low",
		})
	}
	return out
}
