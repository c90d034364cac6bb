package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"cascade/pkg/domain"
	"cascade/pkg/graph"
	"cascade/pkg/rules"
	"cascade/pkg/timeline"
)

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type mockEvaluator struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockEvaluator) Evaluate(ctx context.Context, event domain.Event) ([]*rules.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil, nil
}

func (m *mockEvaluator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockEvaluator) byType(kind domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

type mockTasks struct {
	mu    sync.Mutex
	tasks map[string]*domain.TaskView
}

func (m *mockTasks) Get(ctx context.Context, id string) (*domain.TaskView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (m *mockTasks) Update(ctx context.Context, id string, fields domain.TaskFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && fields.Deadline != nil {
		t.Deadline = fields.Deadline
	}
	return nil
}

func (m *mockTasks) Query(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TaskView
	for _, t := range m.tasks {
		if len(filter.Statuses) > 0 {
			found := false
			for _, st := range filter.Statuses {
				if t.Status == st {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		if filter.DeadlineBefore != nil && (t.Deadline == nil || t.Deadline.After(*filter.DeadlineBefore)) {
			continue
		}
		if filter.DeadlineAfter != nil && (t.Deadline == nil || t.Deadline.Before(*filter.DeadlineAfter)) {
			continue
		}
		if filter.UpdatedBefore != nil && t.UpdatedAt.After(*filter.UpdatedBefore) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockTasks) AddComment(ctx context.Context, taskID, userID, text string) error {
	return nil
}

type mockEdges struct {
	mu    sync.Mutex
	saved []domain.Edge
}

func (m *mockEdges) SaveEdge(ctx context.Context, e domain.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, e)
	return nil
}

func (m *mockEdges) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type harness struct {
	sched  *Scheduler
	eval   *mockEvaluator
	tasks  *mockTasks
	edges  *mockEdges
	graph  *graph.Graph
	cancel context.CancelFunc
	done   chan struct{}
}

func startScheduler(t *testing.T, cfg Config, tasks map[string]*domain.TaskView) *harness {
	t.Helper()
	h := &harness{
		eval:  &mockEvaluator{},
		tasks: &mockTasks{tasks: tasks},
		edges: &mockEdges{},
		graph: graph.New(),
	}
	h.sched = New(cfg, Deps{
		Engine:   h.eval,
		Tasks:    h.tasks,
		Graph:    h.graph,
		Timeline: timeline.New(h.graph, h.tasks),
		Edges:    h.edges,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		_ = h.sched.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("scheduler did not shut down")
		}
	})
	return h
}

func TestSubmitEventReachesEngine(t *testing.T) {
	h := startScheduler(t, Config{Workers: 2}, map[string]*domain.TaskView{
		"t1": {ID: "t1", Status: domain.StatusOpen},
	})

	for i := 0; i < 3; i++ {
		if !h.sched.SubmitEvent(domain.Event{Type: domain.EventProgressUpdate, TaskID: "t1"}) {
			t.Fatal("SubmitEvent returned false")
		}
	}
	waitFor(t, time.Second, func() bool { return h.eval.count() == 3 }, "3 evaluations")
}

func TestDependencyCreatedAdmitsAndPersistsEdge(t *testing.T) {
	h := startScheduler(t, Config{}, map[string]*domain.TaskView{
		"a": {ID: "a", Status: domain.StatusOpen},
		"b": {ID: "b", Status: domain.StatusOpen},
	})

	edge := domain.Edge{PredecessorID: "a", SuccessorID: "b", Type: domain.FinishToStart, AutoAdjust: true}
	h.sched.SubmitEvent(domain.Event{Type: domain.EventDependencyCreated, TaskID: "b", Edge: &edge})

	waitFor(t, time.Second, func() bool { return h.edges.count() == 1 }, "edge persisted")
	if h.graph.EdgeCount() != 1 {
		t.Errorf("graph edge count = %d", h.graph.EdgeCount())
	}
}

func TestDependencyCreatedRejectsCycle(t *testing.T) {
	h := startScheduler(t, Config{}, map[string]*domain.TaskView{
		"a": {ID: "a", Status: domain.StatusOpen},
		"b": {ID: "b", Status: domain.StatusOpen},
	})

	forward := domain.Edge{PredecessorID: "a", SuccessorID: "b", Type: domain.FinishToStart}
	backward := domain.Edge{PredecessorID: "b", SuccessorID: "a", Type: domain.FinishToStart}
	h.sched.SubmitEvent(domain.Event{Type: domain.EventDependencyCreated, TaskID: "b", Edge: &forward})
	h.sched.SubmitEvent(domain.Event{Type: domain.EventDependencyCreated, TaskID: "a", Edge: &backward})

	waitFor(t, time.Second, func() bool { return h.eval.count() == 2 }, "both events processed")
	if h.graph.EdgeCount() != 1 {
		t.Errorf("graph edge count = %d, want 1 (cycle rejected)", h.graph.EdgeCount())
	}
	if h.edges.count() != 1 {
		t.Errorf("saved %d edges, want 1", h.edges.count())
	}
}

func TestOverdueScanSynthesizesOnce(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	h := startScheduler(t, Config{
		OverdueScanInterval:  10 * time.Millisecond,
		BlockedScanInterval:  time.Hour,
		DeadlineScanInterval: time.Hour,
	}, map[string]*domain.TaskView{
		"late": {ID: "late", ProjectID: "p1", Status: domain.StatusInProgress, Deadline: &past},
		"ok":   {ID: "ok", Status: domain.StatusOpen},
	})

	waitFor(t, time.Second, func() bool {
		return len(h.eval.byType(domain.EventTaskOverdue)) >= 1
	}, "overdue event")

	// Several more scan ticks; the same task must not be re-announced.
	time.Sleep(50 * time.Millisecond)
	got := h.eval.byType(domain.EventTaskOverdue)
	if len(got) != 1 {
		t.Fatalf("got %d overdue events, want 1", len(got))
	}
	if got[0].TaskID != "late" {
		t.Errorf("overdue task = %s", got[0].TaskID)
	}
}

func TestDeadlineScanReportsHoursRemaining(t *testing.T) {
	soon := time.Now().Add(6 * time.Hour)
	h := startScheduler(t, Config{
		OverdueScanInterval:  time.Hour,
		BlockedScanInterval:  time.Hour,
		DeadlineScanInterval: 10 * time.Millisecond,
	}, map[string]*domain.TaskView{
		"due": {ID: "due", ProjectID: "p1", Status: domain.StatusOpen, Deadline: &soon},
	})

	waitFor(t, time.Second, func() bool {
		return len(h.eval.byType(domain.EventDeadlineApproaching)) >= 1
	}, "deadline event")

	ev := h.eval.byType(domain.EventDeadlineApproaching)[0]
	if ev.HoursUntilDeadline < 5.9 || ev.HoursUntilDeadline > 6.1 {
		t.Errorf("hours until deadline = %v", ev.HoursUntilDeadline)
	}
}

func TestBlockedScanUsesStalenessCutoff(t *testing.T) {
	stale := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()
	h := startScheduler(t, Config{
		OverdueScanInterval:  time.Hour,
		BlockedScanInterval:  10 * time.Millisecond,
		DeadlineScanInterval: time.Hour,
	}, map[string]*domain.TaskView{
		"stuck":  {ID: "stuck", Status: domain.StatusBlocked, UpdatedAt: stale},
		"recent": {ID: "recent", Status: domain.StatusBlocked, UpdatedAt: fresh},
	})

	waitFor(t, time.Second, func() bool {
		return len(h.eval.byType(domain.EventTaskBlocked)) >= 1
	}, "blocked event")

	got := h.eval.byType(domain.EventTaskBlocked)
	if len(got) != 1 || got[0].TaskID != "stuck" {
		t.Errorf("blocked events = %v", got)
	}
}

func TestRunScansOnDemand(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	h := startScheduler(t, Config{
		OverdueScanInterval:  time.Hour,
		BlockedScanInterval:  time.Hour,
		DeadlineScanInterval: time.Hour,
		ScheduleScanInterval: time.Hour,
	}, map[string]*domain.TaskView{
		"late": {ID: "late", Status: domain.StatusInProgress, Deadline: &past},
	})

	h.sched.RunScans(context.Background())
	waitFor(t, time.Second, func() bool {
		return len(h.eval.byType(domain.EventTaskOverdue)) == 1
	}, "overdue event from on-demand scan")

	// A second immediate run is rate-limited.
	h.sched.RunScans(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := h.eval.byType(domain.EventTaskOverdue); len(got) != 1 {
		t.Fatalf("got %d overdue events, want 1", len(got))
	}
}

func TestScheduleScanSweepsActiveTasks(t *testing.T) {
	h := startScheduler(t, Config{
		OverdueScanInterval:  time.Hour,
		BlockedScanInterval:  time.Hour,
		DeadlineScanInterval: time.Hour,
		ScheduleScanInterval: 10 * time.Millisecond,
	}, map[string]*domain.TaskView{
		"active": {ID: "active", ProjectID: "p1", Status: domain.StatusOpen},
		"closed": {ID: "closed", ProjectID: "p1", Status: domain.StatusCompleted},
	})

	waitFor(t, time.Second, func() bool {
		return len(h.eval.byType(domain.EventSchedule)) >= 1
	}, "schedule event")

	// Several more ticks; the resignal guard holds the cadence.
	time.Sleep(50 * time.Millisecond)
	got := h.eval.byType(domain.EventSchedule)
	if len(got) != 1 || got[0].TaskID != "active" {
		t.Errorf("schedule events = %v", got)
	}
}

func TestSubmitEventFullQueue(t *testing.T) {
	s := New(Config{QueueSize: 1}, Deps{})
	if !s.SubmitEvent(domain.Event{Type: domain.EventTaskCreated}) {
		t.Fatal("first submit should fit")
	}
	if s.SubmitEvent(domain.Event{Type: domain.EventTaskCreated}) {
		t.Fatal("second submit should report a full queue")
	}
}
