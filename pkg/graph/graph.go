// Package graph maintains the in-memory directed dependency graph of task
// nodes and typed edges. Insertion enforces the no-cycle invariant with a
// reachability check, so every traversal elsewhere in the engine is
// guaranteed to terminate.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"cascade/pkg/domain"
)

// Graph is a concurrency-safe directed dependency graph. Adjacency lists
// are kept sorted by the far endpoint for deterministic traversal order.
type Graph struct {
	mu   sync.RWMutex
	succ map[string][]domain.Edge // predecessor -> outgoing edges
	pred map[string][]domain.Edge // successor -> incoming edges
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		succ: make(map[string][]domain.Edge),
		pred: make(map[string][]domain.Edge),
	}
}

// NewFromEdges builds a graph from persisted edges, re-validating each
// insertion. A cycle in the input surfaces as a CycleError.
func NewFromEdges(edges []domain.Edge) (*Graph, error) {
	g := New()
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("load edge %s -> %s: %w", e.PredecessorID, e.SuccessorID, err)
		}
	}
	return g, nil
}

// AddEdge inserts an edge after checking that it cannot create a cycle.
// A self-loop is rejected unconditionally. The check walks existing edges
// from the new edge's successor; if the predecessor is reachable, the
// insertion would close a loop and is rejected with CycleError, leaving
// the graph unchanged. Runs in O(V+E).
func (g *Graph) AddEdge(e domain.Edge) error {
	if !e.Type.Valid() {
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown dependency type %q", e.Type)}
	}
	if e.PredecessorID == e.SuccessorID {
		return &domain.CycleError{PredecessorID: e.PredecessorID, SuccessorID: e.SuccessorID}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.succ[e.PredecessorID] {
		if existing.SuccessorID == e.SuccessorID {
			return fmt.Errorf("dependency %s -> %s already exists", e.PredecessorID, e.SuccessorID)
		}
	}

	if g.reachableLocked(e.SuccessorID, e.PredecessorID) {
		return &domain.CycleError{PredecessorID: e.PredecessorID, SuccessorID: e.SuccessorID}
	}

	g.succ[e.PredecessorID] = insertSorted(g.succ[e.PredecessorID], e, func(x domain.Edge) string { return x.SuccessorID })
	g.pred[e.SuccessorID] = insertSorted(g.pred[e.SuccessorID], e, func(x domain.Edge) string { return x.PredecessorID })
	return nil
}

// RemoveEdge deletes the edge between the two tasks. No recomputation is
// needed on removal; deleting an edge cannot introduce a cycle.
func (g *Graph) RemoveEdge(predecessorID, successorID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	out, ok := removeEdge(g.succ[predecessorID], func(x domain.Edge) bool { return x.SuccessorID == successorID })
	if !ok {
		return &domain.NotFoundError{Kind: "edge", ID: predecessorID + " -> " + successorID}
	}
	g.succ[predecessorID] = out

	in, _ := removeEdge(g.pred[successorID], func(x domain.Edge) bool { return x.PredecessorID == predecessorID })
	g.pred[successorID] = in
	return nil
}

// Successors returns the outgoing edges of a task, sorted by successor ID.
func (g *Graph) Successors(taskID string) []domain.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Edge, len(g.succ[taskID]))
	copy(out, g.succ[taskID])
	return out
}

// Predecessors returns the incoming edges of a task, sorted by predecessor ID.
func (g *Graph) Predecessors(taskID string) []domain.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Edge, len(g.pred[taskID]))
	copy(out, g.pred[taskID])
	return out
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, edges := range g.succ {
		n += len(edges)
	}
	return n
}

// reachableLocked reports whether to is reachable from from following
// successor edges. Caller holds g.mu.
func (g *Graph) reachableLocked(from, to string) bool {
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, e := range g.succ[cur] {
			if !visited[e.SuccessorID] {
				visited[e.SuccessorID] = true
				stack = append(stack, e.SuccessorID)
			}
		}
	}
	return false
}

func insertSorted(edges []domain.Edge, e domain.Edge, key func(domain.Edge) string) []domain.Edge {
	i := sort.Search(len(edges), func(i int) bool { return key(edges[i]) >= key(e) })
	edges = append(edges, domain.Edge{})
	copy(edges[i+1:], edges[i:])
	edges[i] = e
	return edges
}

func removeEdge(edges []domain.Edge, match func(domain.Edge) bool) ([]domain.Edge, bool) {
	for i, e := range edges {
		if match(e) {
			return append(edges[:i:i], edges[i+1:]...), true
		}
	}
	return edges, false
}
