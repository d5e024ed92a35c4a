package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/gosubarr/internal/metrics"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrQueueFull   = errors.New("task queue is full")
	ErrNotStarted  = errors.New("scheduler is not started")
)

// State is the live state of a task
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Task is a named unit of periodic work. Spec is a standard cron expression
// and wins over Interval; a task with neither only runs when triggered.
type Task struct {
	Name     string
	Interval time.Duration
	Spec     string
	Run      func(ctx context.Context, run *Run) error
}

// Status is a snapshot of a task
type Status struct {
	Name         string     `json:"name"`
	State        State      `json:"state"`
	RunID        string     `json:"run_id,omitempty"`
	Processed    int        `json:"processed"`
	Total        int        `json:"total"`
	Percentage   float64    `json:"percentage"`
	Current      string     `json:"current,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// Options configures the scheduler
type Options struct {
	Workers       int
	QueueSize     int
	CheckInterval time.Duration
}

type taskState struct {
	task     Task
	schedule cron.Schedule
	state    State
	run      *Run
	record   models.TaskRecord
	adhoc    bool
}

type job struct {
	state *taskState
	run   *Run
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron   *cron.Cron
	store  *store.TaskStateStore
	opts   Options
	logger *logrus.Logger

	mu      sync.Mutex
	tasks   map[string]*taskState
	order   []string
	queue   chan job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler creates a new scheduler
func NewScheduler(taskStore *store.TaskStateStore, opts Options, logger *logrus.Logger) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 16
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	return &Scheduler{
		store:  taskStore,
		opts:   opts,
		logger: logger,
		tasks:  make(map[string]*taskState),
	}
}

// Register adds a task and loads its history
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("task needs a name and a body")
	}

	st := &taskState{task: task, state: StateIdle}
	if task.Spec != "" {
		schedule, err := cron.ParseStandard(task.Spec)
		if err != nil {
			return fmt.Errorf("failed to parse schedule for task %s: %w", task.Name, err)
		}
		st.schedule = schedule
	}

	record, _, err := s.store.Get(task.Name)
	if err != nil {
		return fmt.Errorf("failed to load state for task %s: %w", task.Name, err)
	}
	st.record = record

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task %s is already registered", task.Name)
	}
	s.tasks[task.Name] = st
	s.order = append(s.order, task.Name)
	return nil
}

// Start starts the workers and the due-task check. Each start gets its own
// cron so a restart never doubles the check.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.CheckInterval), s.runDue); err != nil {
		return fmt.Errorf("failed to add due check job: %w", err)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.cron = c
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = make(chan job, s.opts.QueueSize)
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	c.Start()

	s.logger.WithFields(logrus.Fields{
		"workers": s.opts.Workers,
		"check":   s.opts.CheckInterval.String(),
	}).Info("Scheduler started")

	// Tasks that never ran are due right away
	go s.runDue()

	return nil
}

// Stop stops the scheduler and cancels running tasks
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.cron
	s.cancel()
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()

	// Jobs still queued never ran
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case j := <-s.queue:
			s.finish(j.state, j.run)
		default:
			return
		}
	}
}

// Trigger queues a registered task unless it is already running.
// started is false when the task was running already.
func (s *Scheduler) Trigger(name string) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[name]
	if !ok || st.adhoc {
		return Status{}, false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.enqueue(st)
}

// Dispatch runs fn once under name, with the same one-at-a-time guard as
// tasks. The run is not persisted.
func (s *Scheduler) Dispatch(name string, fn func(ctx context.Context, run *Run) error) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[name]
	if ok && !st.adhoc {
		return Status{}, false, fmt.Errorf("task %s is registered, trigger it instead", name)
	}
	if !ok {
		if !s.started {
			return Status{}, false, ErrNotStarted
		}
		st = &taskState{task: Task{Name: name, Run: fn}, state: StateIdle, adhoc: true}
		s.tasks[name] = st
	}
	status, started, err := s.enqueue(st)
	if err != nil {
		delete(s.tasks, name)
	}
	return status, started, err
}

// enqueue must be called with s.mu held
func (s *Scheduler) enqueue(st *taskState) (Status, bool, error) {
	if !s.started {
		return Status{}, false, ErrNotStarted
	}
	if st.state == StateRunning {
		return s.status(st), false, nil
	}

	run := newRun(uuid.New().String())
	st.state = StateRunning
	st.run = run

	select {
	case s.queue <- job{state: st, run: run}:
	default:
		st.state = StateIdle
		st.run = nil
		return s.status(st), false, fmt.Errorf("%w: %s", ErrQueueFull, st.task.Name)
	}

	s.logger.WithFields(logrus.Fields{
		"task":   st.task.Name,
		"run_id": run.ID,
	}).Debug("Task queued")
	return s.status(st), true, nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.queue:
			s.execute(j)
		}
	}
}

func (s *Scheduler) execute(j job) {
	name := j.state.task.Name
	logger := s.logger.WithFields(logrus.Fields{
		"task":   name,
		"run_id": j.run.ID,
	})
	logger.Info("Running task")

	err := s.invoke(j)
	duration := time.Since(j.run.Started)

	result := "success"
	if err != nil {
		result = "error"
		logger.WithError(err).Error("Task failed")
	} else {
		processed, total, _ := j.run.Progress()
		logger.WithFields(logrus.Fields{
			"processed": processed,
			"total":     total,
			"duration":  duration.Round(time.Millisecond).String(),
		}).Info("Task completed")
	}
	if !j.state.adhoc {
		metrics.TaskRuns.WithLabelValues(name, result).Inc()
		metrics.TaskDuration.WithLabelValues(name).Observe(duration.Seconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j.state.record.LastError = ""
	if err != nil {
		j.state.record.LastError = err.Error()
	}
	s.finish(j.state, j.run)
}

// invoke runs the task body, turning a panic into an error
func (s *Scheduler) invoke(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return j.state.task.Run(s.ctx, j.run)
}

// finish records a run and returns the task to idle. Must be called with s.mu held.
func (s *Scheduler) finish(st *taskState, run *Run) {
	processed, total, _ := run.Progress()
	st.record.Name = st.task.Name
	st.record.LastRun = run.Started
	st.record.LastDuration = time.Since(run.Started)
	st.record.LastProcessed = processed
	st.record.LastTotal = total
	st.state = StateIdle
	st.run = nil

	if st.adhoc {
		delete(s.tasks, st.task.Name)
		return
	}
	if err := s.store.Save(st.record); err != nil {
		s.logger.WithError(err).WithField("task", st.task.Name).Error("Failed to save task state")
	}
}

// runDue triggers every scheduled task whose next run has passed
func (s *Scheduler) runDue() {
	now := time.Now()

	s.mu.Lock()
	var due []string
	for _, name := range s.order {
		st := s.tasks[name]
		if next, ok := st.nextRun(); ok && st.state == StateIdle && !next.After(now) {
			due = append(due, name)
		}
	}
	s.mu.Unlock()

	for _, name := range due {
		if _, _, err := s.Trigger(name); err != nil && !errors.Is(err, ErrNotStarted) {
			s.logger.WithError(err).WithField("task", name).Warn("Failed to trigger due task")
		}
	}
}

// nextRun is zero when the task never ran. ok is false for manual tasks.
func (st *taskState) nextRun() (time.Time, bool) {
	switch {
	case st.schedule == nil && st.task.Interval <= 0:
		return time.Time{}, false
	case st.record.LastRun.IsZero():
		return time.Time{}, true
	case st.schedule != nil:
		return st.schedule.Next(st.record.LastRun), true
	default:
		return st.record.LastRun.Add(st.task.Interval), true
	}
}

// ReloadState drops cached task history and reads it again, e.g. after a reset
func (s *Scheduler) ReloadState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		record, _, err := s.store.Get(name)
		if err != nil {
			return fmt.Errorf("failed to reload state for task %s: %w", name, err)
		}
		s.tasks[name].record = record
	}
	s.logger.Info("Task state reloaded")
	return nil
}

// Status returns a snapshot of one task or ad-hoc job
func (s *Scheduler) Status(name string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[name]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.status(st), nil
}

// Statuses returns every registered task in registration order
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.status(s.tasks[name]))
	}
	return out
}

func (s *Scheduler) status(st *taskState) Status {
	status := Status{Name: st.task.Name, State: st.state}
	if st.run != nil {
		started := st.run.Started
		status.RunID = st.run.ID
		status.StartedAt = &started
		status.Processed, status.Total, status.Current = st.run.Progress()
		status.Percentage = st.run.Percentage()
	}
	if !st.record.LastRun.IsZero() {
		last := st.record.LastRun
		status.LastRun = &last
		status.LastDuration = st.record.LastDuration.Round(time.Millisecond).String()
		status.LastError = st.record.LastError
	}
	if next, ok := st.nextRun(); ok {
		if next.IsZero() {
			next = time.Now()
		}
		status.NextRun = &next
	}
	return status
}
