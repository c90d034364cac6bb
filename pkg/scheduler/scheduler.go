// Package scheduler is the cascade engine's event pump. It accepts domain
// events from callers, fans them out to a worker pool that runs the rule
// engine, routes dependency and completion events through the graph and
// timeline, and synthesizes overdue / blocked / deadline-approaching events
// from periodic scans.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cascade/pkg/bottleneck"
	"cascade/pkg/domain"
	"cascade/pkg/graph"
	"cascade/pkg/rules"
	"cascade/pkg/timeline"
)

// Evaluator runs the rule engine for one event. *rules.Engine implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, event domain.Event) ([]*rules.Execution, error)
}

// EdgeStore persists dependency edges accepted by the graph.
type EdgeStore interface {
	SaveEdge(ctx context.Context, e domain.Edge) error
}

type eventLogger interface {
	LogEvent(ctx context.Context, eventType, source, taskID, ruleID, payload string) error
}

// Config holds Scheduler configuration.
type Config struct {
	Workers              int           // Event worker pool size (default 4).
	QueueSize            int           // Buffered event queue size (default 256).
	OverdueScanInterval  time.Duration // Overdue task scan interval (default 5m).
	BlockedScanInterval  time.Duration // Stuck-blocked task scan interval (default 15m).
	DeadlineScanInterval time.Duration // Approaching-deadline scan interval (default 10m).
	ScheduleScanInterval time.Duration // Schedule-trigger sweep interval (default 1h).
	BlockedAfter         time.Duration // How long a task sits blocked before it counts as stuck (default 24h).
	DeadlineWindow       time.Duration // Deadline-approaching lookahead (default 24h).
	ResignalAfter        time.Duration // Minimum gap before re-synthesizing the same event for a task (default 24h).
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Workers == 0 {
		out.Workers = 4
	}
	if out.QueueSize == 0 {
		out.QueueSize = 256
	}
	if out.OverdueScanInterval == 0 {
		out.OverdueScanInterval = 5 * time.Minute
	}
	if out.BlockedScanInterval == 0 {
		out.BlockedScanInterval = 15 * time.Minute
	}
	if out.DeadlineScanInterval == 0 {
		out.DeadlineScanInterval = 10 * time.Minute
	}
	if out.ScheduleScanInterval == 0 {
		out.ScheduleScanInterval = time.Hour
	}
	if out.BlockedAfter == 0 {
		out.BlockedAfter = 24 * time.Hour
	}
	if out.DeadlineWindow == 0 {
		out.DeadlineWindow = 24 * time.Hour
	}
	if out.ResignalAfter == 0 {
		out.ResignalAfter = 24 * time.Hour
	}
	return out
}

// Scheduler owns the event queue and the periodic scans.
type Scheduler struct {
	cfg      Config
	engine   Evaluator
	tasks    domain.TaskStore
	graph    *graph.Graph
	timeline *timeline.Engine
	analyzer *bottleneck.Analyzer
	edges    EdgeStore
	log      eventLogger

	events chan domain.Event
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	signaledAt map[string]time.Time

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// Deps bundles the collaborators a Scheduler needs. Analyzer, EdgeStore,
// and the event logger are optional.
type Deps struct {
	Engine   Evaluator
	Tasks    domain.TaskStore
	Graph    *graph.Graph
	Timeline *timeline.Engine
	Analyzer *bottleneck.Analyzer
	Edges    EdgeStore
	Events   eventLogger
}

// New creates a Scheduler. It does not start the workers or scans; call Run.
func New(cfg Config, deps Deps) *Scheduler {
	resolved := cfg.withDefaults()
	return &Scheduler{
		cfg:        resolved,
		engine:     deps.Engine,
		tasks:      deps.Tasks,
		graph:      deps.Graph,
		timeline:   deps.Timeline,
		analyzer:   deps.Analyzer,
		edges:      deps.Edges,
		log:        deps.Events,
		events:     make(chan domain.Event, resolved.QueueSize),
		signaledAt: make(map[string]time.Time),
		nowFunc:    time.Now,
	}
}

// SubmitEvent enqueues an event for processing. It never blocks; when the
// queue is full the event is dropped and false returned.
func (s *Scheduler) SubmitEvent(event domain.Event) bool {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.nowFunc()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- event:
		return true
	default:
		s.logEvent("event_dropped", event.TaskID, string(event.Type))
		return false
	}
}

// Run starts the worker pool and the scan tickers, then blocks until ctx is
// cancelled. Events already in the queue are drained before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx)
	}

	s.wg.Add(4)
	go s.scanLoop(ctx, s.cfg.OverdueScanInterval, s.scanOverdue)
	go s.scanLoop(ctx, s.cfg.BlockedScanInterval, s.scanBlocked)
	go s.scanLoop(ctx, s.cfg.DeadlineScanInterval, s.scanDeadlines)
	go s.scanLoop(ctx, s.cfg.ScheduleScanInterval, s.scanSchedule)

	<-ctx.Done()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.events)
	s.wg.Wait()
	return nil
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	defer s.wg.Done()
	for event := range s.events {
		s.handleEvent(context.WithoutCancel(ctx), event)
	}
}

// handleEvent routes one event: structural effects first (graph, timeline,
// analyzer), then rule evaluation. A failure in one stage never stops the
// others.
func (s *Scheduler) handleEvent(ctx context.Context, event domain.Event) {
	switch event.Type {
	case domain.EventDependencyCreated:
		s.handleDependencyCreated(ctx, event)
	case domain.EventTaskStatusChange:
		if event.NewStatus.Terminal() {
			s.handleTaskClosed(ctx, event)
		}
	}

	if s.engine == nil {
		return
	}
	if _, err := s.engine.Evaluate(ctx, event); err != nil {
		s.logEvent("evaluate_failed", event.TaskID, err.Error())
	}
}

// handleDependencyCreated admits the edge into the graph (cycle check
// included), persists it, and ripples deadlines forward from the
// predecessor.
func (s *Scheduler) handleDependencyCreated(ctx context.Context, event domain.Event) {
	if event.Edge == nil || s.graph == nil {
		return
	}
	edge := *event.Edge
	if err := s.graph.AddEdge(edge); err != nil {
		s.logEvent("dependency_rejected", event.TaskID, err.Error())
		return
	}
	if s.edges != nil {
		if err := s.edges.SaveEdge(ctx, edge); err != nil {
			s.logEvent("dependency_save_failed", event.TaskID, err.Error())
		}
	}
	if s.timeline != nil {
		if adjusted, err := s.timeline.PropagateFrom(ctx, edge.PredecessorID); err != nil {
			s.logEvent("propagate_failed", edge.PredecessorID, err.Error())
		} else if len(adjusted) > 0 {
			s.logEvent("deadlines_adjusted", edge.PredecessorID, fmt.Sprintf("%d tasks", len(adjusted)))
		}
	}
}

// handleTaskClosed reacts to a task leaving the active set: its downstream
// deadlines are recalculated and any open bottleneck finding on it closed.
func (s *Scheduler) handleTaskClosed(ctx context.Context, event domain.Event) {
	if s.timeline != nil && event.NewStatus == domain.StatusCompleted {
		if _, err := s.timeline.PropagateFrom(ctx, event.TaskID); err != nil {
			s.logEvent("propagate_failed", event.TaskID, err.Error())
		}
	}
	if s.analyzer != nil {
		if err := s.analyzer.Resolve(ctx, event.TaskID); err != nil {
			s.logEvent("bottleneck_resolve_failed", event.TaskID, err.Error())
		}
	}
}

func (s *Scheduler) scanLoop(ctx context.Context, interval time.Duration, scan func(ctx context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan(ctx)
		}
	}
}

// shouldSignal rate-limits synthesized events so a task that stays overdue
// is not re-announced on every scan.
func (s *Scheduler) shouldSignal(kind domain.EventType, taskID string, now time.Time) bool {
	key := string(kind) + "|" + taskID
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.signaledAt[key]; ok && now.Sub(last) < s.cfg.ResignalAfter {
		return false
	}
	s.signaledAt[key] = now
	return true
}

func (s *Scheduler) scanOverdue(ctx context.Context) {
	now := s.nowFunc()
	tasks, err := s.tasks.Query(ctx, domain.TaskFilter{
		Statuses:       domain.ActiveStatuses,
		DeadlineBefore: &now,
	})
	if err != nil {
		s.logEvent("scan_failed", "", "overdue: "+err.Error())
		return
	}
	for i := range tasks {
		t := &tasks[i]
		if !t.Overdue(now) {
			continue
		}
		if !s.shouldSignal(domain.EventTaskOverdue, t.ID, now) {
			continue
		}
		s.SubmitEvent(domain.Event{
			Type:      domain.EventTaskOverdue,
			TaskID:    t.ID,
			ProjectID: t.ProjectID,
		})
	}
}

func (s *Scheduler) scanBlocked(ctx context.Context) {
	now := s.nowFunc()
	cutoff := now.Add(-s.cfg.BlockedAfter)
	tasks, err := s.tasks.Query(ctx, domain.TaskFilter{
		Statuses:      []domain.Status{domain.StatusBlocked},
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		s.logEvent("scan_failed", "", "blocked: "+err.Error())
		return
	}
	for i := range tasks {
		t := &tasks[i]
		if !s.shouldSignal(domain.EventTaskBlocked, t.ID, now) {
			continue
		}
		s.SubmitEvent(domain.Event{
			Type:      domain.EventTaskBlocked,
			TaskID:    t.ID,
			ProjectID: t.ProjectID,
		})
	}
}

func (s *Scheduler) scanDeadlines(ctx context.Context) {
	now := s.nowFunc()
	horizon := now.Add(s.cfg.DeadlineWindow)
	tasks, err := s.tasks.Query(ctx, domain.TaskFilter{
		Statuses:       domain.ActiveStatuses,
		DeadlineAfter:  &now,
		DeadlineBefore: &horizon,
	})
	if err != nil {
		s.logEvent("scan_failed", "", "deadline: "+err.Error())
		return
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Deadline == nil {
			continue
		}
		if !s.shouldSignal(domain.EventDeadlineApproaching, t.ID, now) {
			continue
		}
		s.SubmitEvent(domain.Event{
			Type:               domain.EventDeadlineApproaching,
			TaskID:             t.ID,
			ProjectID:          t.ProjectID,
			HoursUntilDeadline: t.Deadline.Sub(now).Hours(),
		})
	}
}

// RunScans executes every periodic scan once, immediately. Synthesized
// events go through the normal queue; the resignal guard applies, so
// running scans on demand between ticks is safe.
func (s *Scheduler) RunScans(ctx context.Context) {
	s.scanOverdue(ctx)
	s.scanBlocked(ctx)
	s.scanDeadlines(ctx)
	s.scanSchedule(ctx)
}

// scanSchedule sweeps the active tasks and offers each one to the
// schedule-triggered rules. Rules narrow the sweep with their project
// filter and conditions; the resignal guard keeps the cadence per task.
func (s *Scheduler) scanSchedule(ctx context.Context) {
	now := s.nowFunc()
	tasks, err := s.tasks.Query(ctx, domain.TaskFilter{Statuses: domain.ActiveStatuses})
	if err != nil {
		s.logEvent("scan_failed", "", "schedule: "+err.Error())
		return
	}
	for i := range tasks {
		t := &tasks[i]
		if !s.shouldSignal(domain.EventSchedule, t.ID, now) {
			continue
		}
		s.SubmitEvent(domain.Event{
			Type:      domain.EventSchedule,
			TaskID:    t.ID,
			ProjectID: t.ProjectID,
		})
	}
}

func (s *Scheduler) logEvent(eventType, taskID, payload string) {
	if s.log != nil {
		_ = s.log.LogEvent(context.Background(), eventType, "scheduler", taskID, "", payload)
	}
}
