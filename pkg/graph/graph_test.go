package graph

import (
	"errors"
	"testing"

	"cascade/pkg/domain"
)

func edge(pred, succ string) domain.Edge {
	return domain.Edge{
		PredecessorID: pred,
		SuccessorID:   succ,
		Type:          domain.FinishToStart,
		AutoAdjust:    true,
	}
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New()
	err := g.AddEdge(edge("a", "a"))
	var cycleErr *domain.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Fatalf("graph should be unchanged, has %d edges", g.EdgeCount())
	}
}

func TestAddEdgeRejectsCycle(t *testing.T) {
	g := New()
	for _, e := range []domain.Edge{edge("a", "b"), edge("b", "c")} {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}

	// c -> a would close the loop a -> b -> c -> a.
	err := g.AddEdge(edge("c", "a"))
	var cycleErr *domain.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if cycleErr.PredecessorID != "c" || cycleErr.SuccessorID != "a" {
		t.Fatalf("unexpected cycle endpoints: %+v", cycleErr)
	}

	// Direct reversal b -> a is also a cycle.
	if err := g.AddEdge(edge("b", "a")); !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError for reversed edge, got %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Fatalf("rejected insertions must not modify the graph, got %d edges", g.EdgeCount())
	}
}

func TestAddEdgeRejectsDuplicatePair(t *testing.T) {
	g := New()
	if err := g.AddEdge(edge("a", "b")); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	dup := edge("a", "b")
	dup.Type = domain.StartToStart
	if err := g.AddEdge(dup); err == nil {
		t.Fatal("expected error for duplicate (predecessor, successor) pair")
	}
}

func TestAddEdgeRejectsUnknownType(t *testing.T) {
	g := New()
	e := edge("a", "b")
	e.Type = "whenever"
	err := g.AddEdge(e)
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestSuccessorsAndPredecessorsSorted(t *testing.T) {
	g := New()
	for _, e := range []domain.Edge{edge("t", "c"), edge("t", "a"), edge("t", "b"), edge("x", "b")} {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}

	succs := g.Successors("t")
	want := []string{"a", "b", "c"}
	if len(succs) != len(want) {
		t.Fatalf("got %d successors, want %d", len(succs), len(want))
	}
	for i, s := range succs {
		if s.SuccessorID != want[i] {
			t.Errorf("successor[%d] = %s, want %s", i, s.SuccessorID, want[i])
		}
	}

	preds := g.Predecessors("b")
	if len(preds) != 2 || preds[0].PredecessorID != "t" || preds[1].PredecessorID != "x" {
		t.Fatalf("unexpected predecessors of b: %+v", preds)
	}
}

func TestRemoveEdge(t *testing.T) {
	g := New()
	if err := g.AddEdge(edge("a", "b")); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.RemoveEdge("a", "b"); err != nil {
		t.Fatalf("RemoveEdge: %v", err)
	}
	if len(g.Successors("a")) != 0 || len(g.Predecessors("b")) != 0 {
		t.Fatal("edge not fully removed")
	}

	// Removal allows re-insertion in the opposite direction.
	if err := g.AddEdge(edge("b", "a")); err != nil {
		t.Fatalf("AddEdge after removal: %v", err)
	}

	var nfErr *domain.NotFoundError
	if err := g.RemoveEdge("a", "b"); !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestNewFromEdgesRejectsCyclicInput(t *testing.T) {
	edges := []domain.Edge{edge("a", "b"), edge("b", "c"), edge("c", "a")}
	if _, err := NewFromEdges(edges); err == nil {
		t.Fatal("expected error loading cyclic edge set")
	}
}
