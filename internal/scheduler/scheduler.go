package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/logging"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

// DefaultInterval is how often the store is polled for due workflows.
const DefaultInterval = 60 * time.Second

// DefaultMaxConcurrent bounds how many scheduled runs execute at once.
const DefaultMaxConcurrent = 8

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Runner starts a workflow run. Satisfied by *engine.Driver.
type Runner interface {
	Run(ctx context.Context, workflowID string, initial map[string]any) (*schema.WorkflowRun, error)
}

type entry struct {
	expr     string
	schedule cron.Schedule
	next     time.Time
}

// Scheduler fires enabled schedule-triggered workflows when their cron
// expression comes due. At most one run per workflow is in flight.
type Scheduler struct {
	store    store.Store
	runner   Runner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	entriesMu sync.Mutex
	entries   map[string]*entry

	inflightMu sync.Mutex
	inflight   map[string]struct{}
	pool       *runPool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent bounds concurrent scheduled runs. A due workflow that
// finds the pool full stays due and is retried on the next tick.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) { s.pool = newRunPool(n) }
}

// NewScheduler creates a scheduler. A non-positive interval selects DefaultInterval.
func NewScheduler(s store.Store, runner Runner, interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched := &Scheduler{
		store:    s,
		runner:   runner,
		logger:   logger,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		entries:  make(map[string]*entry),
		inflight: make(map[string]struct{}),
		pool:     newRunPool(DefaultMaxConcurrent),
	}
	for _, opt := range opts {
		opt(sched)
	}
	return sched
}

// Start launches the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.pool.reopen()
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick refreshes the schedule table and fires every due workflow.
// A workflow seen for the first time is scheduled for its next cron
// occurrence rather than fired immediately.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{
		TriggerKind: schema.TriggerSchedule,
		Enabled:     &enabled,
	})
	if err != nil {
		s.logger.Error("failed to list scheduled workflows", slog.String("error", err.Error()))
		return
	}

	now := s.now()
	seen := make(map[string]struct{}, len(workflows))
	for _, wf := range workflows {
		seen[wf.ID] = struct{}{}
		e, err := s.entryFor(wf, now)
		if err != nil {
			s.logger.Warn("skipping scheduled workflow",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if e.next.After(now) {
			continue
		}
		due := e.next
		if !s.tryAcquire(wf.ID) {
			continue
		}
		err = s.pool.trySubmit(ctx, func(ctx context.Context) error {
			defer s.release(wf.ID)
			return s.fire(ctx, wf, due, now)
		})
		if err != nil {
			s.release(wf.ID)
			s.logger.Debug("scheduled run deferred",
				slog.String("workflow_id", wf.ID),
				slog.String("reason", err.Error()),
			)
			continue
		}
		s.setNext(wf.ID, e.schedule.Next(now))
	}

	s.entriesMu.Lock()
	for id := range s.entries {
		if _, ok := seen[id]; !ok {
			delete(s.entries, id)
		}
	}
	s.entriesMu.Unlock()
}

func (s *Scheduler) entryFor(wf *schema.Workflow, now time.Time) (*entry, error) {
	expr, _ := wf.TriggerConfig["cron"].(string)
	if expr == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "schedule trigger requires trigger_config.cron")
	}

	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	if e, ok := s.entries[wf.ID]; ok && e.expr == expr {
		cp := *e
		return &cp, nil
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	e := &entry{expr: expr, schedule: sched, next: sched.Next(now)}
	s.entries[wf.ID] = e
	cp := *e
	return &cp, nil
}

func (s *Scheduler) setNext(workflowID string, next time.Time) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	if e, ok := s.entries[workflowID]; ok {
		e.next = next
	}
}

// NextRun returns when the workflow is next due, if it is scheduled.
func (s *Scheduler) NextRun(workflowID string) (time.Time, bool) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	e, ok := s.entries[workflowID]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// fire runs wf once. The error feeds pool accounting only.
func (s *Scheduler) fire(ctx context.Context, wf *schema.Workflow, due, now time.Time) error {
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	initial := map[string]any{}
	if c, ok := wf.TriggerConfig["context"].(map[string]any); ok {
		maps.Copy(initial, c)
	}
	initial = engine.WithTrigger(initial, engine.Trigger{
		Kind:    schema.TriggerSchedule,
		FiredAt: now,
		Payload: map[string]any{
			"cron":          wf.TriggerConfig["cron"],
			"scheduled_for": due.Format(time.RFC3339),
		},
	})

	s.logger.InfoContext(ctx, "running scheduled workflow", slog.Time("scheduled_for", due))
	run, err := s.runner.Run(ctx, wf.ID, initial)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled workflow failed to start", slog.String("error", err.Error()))
		return err
	}
	s.logger.InfoContext(ctx, "scheduled run finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
	)
	if run.Status == schema.RunStatusFailed {
		return fmt.Errorf("run %s failed", run.ID)
	}
	return nil
}

// Stats reports scheduled run accounting.
func (s *Scheduler) Stats() PoolStats {
	return s.pool.stats()
}

func (s *Scheduler) tryAcquire(workflowID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[workflowID]; ok {
		return false
	}
	s.inflight[workflowID] = struct{}{}
	return true
}

func (s *Scheduler) release(workflowID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, workflowID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	sched, err := ParseSchedule(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Stop shuts down the loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.pool.shutdown()
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
