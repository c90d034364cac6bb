// Package timeline recomputes successor deadlines when a predecessor's
// schedule changes, walking the dependency graph breadth-first over
// auto-adjust edges.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cascade/pkg/domain"
	"cascade/pkg/graph"
)

// Engine propagates date changes through the dependency graph. Deadlines
// only ever move forward: a candidate earlier than the current deadline is
// discarded, so repeated propagation converges instead of oscillating.
type Engine struct {
	graph *graph.Graph
	tasks domain.TaskStore

	// mu serializes traversals. The forward-only update reads a
	// successor's deadline and then writes; two interleaved traversals
	// could let a stale earlier candidate overwrite a later one.
	mu sync.Mutex

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a timeline engine over the given graph and task store.
func New(g *graph.Graph, tasks domain.TaskStore) *Engine {
	return &Engine{graph: g, tasks: tasks, nowFunc: time.Now}
}

// PropagateFrom recomputes deadlines downstream of the changed task and
// returns the IDs of tasks whose deadline moved, sorted. Each node is
// visited at most once per traversal; cycle-freedom of the graph
// guarantees termination. Concurrent calls are serialized, so workers
// may call it directly.
func (e *Engine) PropagateFrom(ctx context.Context, taskID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.tasks.Get(ctx, taskID); err != nil {
		return nil, fmt.Errorf("propagate from %s: %w", taskID, err)
	}

	now := e.nowFunc()
	visited := map[string]bool{}
	updated := map[string]bool{}
	queue := []string{taskID}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]
		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		current, err := e.tasks.Get(ctx, currentID)
		if err != nil {
			return nil, fmt.Errorf("load task %s: %w", currentID, err)
		}

		for _, edge := range e.graph.Successors(currentID) {
			if !edge.AutoAdjust {
				continue
			}

			candidate := candidateDeadline(edge, current, now)
			if candidate != nil {
				successor, err := e.tasks.Get(ctx, edge.SuccessorID)
				if err != nil {
					return nil, fmt.Errorf("load successor %s: %w", edge.SuccessorID, err)
				}
				if successor.Deadline == nil || candidate.After(*successor.Deadline) {
					if err := e.tasks.Update(ctx, edge.SuccessorID, domain.TaskFields{Deadline: candidate}); err != nil {
						return nil, fmt.Errorf("update deadline of %s: %w", edge.SuccessorID, err)
					}
					updated[edge.SuccessorID] = true
				}
			}

			queue = append(queue, edge.SuccessorID)
		}
	}

	out := make([]string, 0, len(updated))
	for id := range updated {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// candidateDeadline computes the successor deadline implied by one edge, or
// nil when the edge has nothing to contribute yet.
//
// A start_to_finish edge whose predecessor has not started contributes
// nothing: falling back to the current time would push the successor's
// deadline forward on every re-run before the predecessor starts.
func candidateDeadline(edge domain.Edge, predecessor *domain.TaskView, now time.Time) *time.Time {
	var base *time.Time
	switch edge.Type {
	case domain.FinishToStart, domain.FinishToFinish:
		base = predecessor.CompletedAt
		if base == nil {
			base = predecessor.Deadline
		}
	case domain.StartToStart:
		base = predecessor.StartedAt
		if base == nil {
			base = &now
		}
	case domain.StartToFinish:
		base = predecessor.StartedAt
	}
	if base == nil {
		return nil
	}
	d := base.AddDate(0, 0, edge.LagDays)
	return &d
}
