package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, opts Options) (*Scheduler, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if opts.CheckInterval == 0 {
		opts.CheckInterval = time.Hour
	}
	return NewScheduler(db.Tasks, opts, utils.NewTestLogger()), db
}

func waitIdle(t *testing.T, s *Scheduler, name string) Status {
	t.Helper()
	var status Status
	require.Eventually(t, func() bool {
		var err error
		status, err = s.Status(name)
		return err == nil && status.State == StateIdle && status.LastRun != nil
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestTriggerIsMutuallyExclusive(t *testing.T) {
	s, _ := newTestScheduler(t, Options{Workers: 4})

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Register(Task{Name: "scan", Run: func(ctx context.Context, run *Run) error {
		runs.Add(1)
		<-release
		return nil
	}}))
	require.NoError(t, s.Start())
	defer s.Stop()

	status, started, err := s.Trigger("scan")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, StateRunning, status.State)
	assert.NotEmpty(t, status.RunID)

	for i := 0; i < 5; i++ {
		again, started, err := s.Trigger("scan")
		require.NoError(t, err)
		assert.False(t, started)
		assert.Equal(t, StateRunning, again.State)
		assert.Equal(t, status.RunID, again.RunID)
	}

	close(release)
	waitIdle(t, s, "scan")
	assert.Equal(t, int32(1), runs.Load())

	_, started, err = s.Trigger("scan")
	require.NoError(t, err)
	assert.True(t, started)
}

func TestTriggerErrors(t *testing.T) {
	s, _ := newTestScheduler(t, Options{})
	require.NoError(t, s.Register(Task{Name: "scan", Run: func(context.Context, *Run) error { return nil }}))

	_, _, err := s.Trigger("scan")
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, s.Start())
	defer s.Stop()

	_, _, err = s.Trigger("missing")
	assert.ErrorIs(t, err, ErrUnknownTask)

	err = s.Register(Task{Name: "bad", Spec: "not a cron", Run: func(context.Context, *Run) error { return nil }})
	assert.Error(t, err)
}

func TestQueueFullRevertsState(t *testing.T) {
	s, _ := newTestScheduler(t, Options{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	blocking := func(ctx context.Context, run *Run) error {
		<-release
		return nil
	}
	require.NoError(t, s.Register(Task{Name: "a", Run: blocking}))
	require.NoError(t, s.Register(Task{Name: "b", Run: blocking}))
	require.NoError(t, s.Register(Task{Name: "c", Run: blocking}))
	require.NoError(t, s.Start())
	defer s.Stop()
	defer close(release)

	_, _, err := s.Trigger("a")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.queue) == 0 }, time.Second, 5*time.Millisecond)

	_, started, err := s.Trigger("b")
	require.NoError(t, err)
	require.True(t, started)

	status, started, err := s.Trigger("c")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, started)
	assert.Equal(t, StateIdle, status.State)
}

func TestRunRecordsAndPersistsState(t *testing.T) {
	s, db := newTestScheduler(t, Options{})
	require.NoError(t, s.Register(Task{Name: "scan", Interval: time.Hour, Run: func(ctx context.Context, run *Run) error {
		run.SetItems([]string{"a", "b", "c"})
		for _, item := range []string{"a", "b"} {
			run.Begin(item)
			run.Done(item)
		}
		return errors.New("provider down")
	}}))
	require.NoError(t, s.Start())
	defer s.Stop()

	status := waitIdle(t, s, "scan")
	assert.Equal(t, "provider down", status.LastError)
	require.NotNil(t, status.NextRun)
	assert.WithinDuration(t, status.LastRun.Add(time.Hour), *status.NextRun, time.Second)

	rec, found, err := db.Tasks.Get("scan")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, rec.LastProcessed)
	assert.Equal(t, 3, rec.LastTotal)
	assert.Equal(t, "provider down", rec.LastError)
}

func TestPanicReturnsTaskToIdle(t *testing.T) {
	s, _ := newTestScheduler(t, Options{})
	require.NoError(t, s.Register(Task{Name: "boom", Run: func(context.Context, *Run) error {
		panic("nil map")
	}}))
	require.NoError(t, s.Start())
	defer s.Stop()

	_, _, err := s.Trigger("boom")
	require.NoError(t, err)

	status := waitIdle(t, s, "boom")
	assert.Contains(t, status.LastError, "panicked")
}

func TestDueTasksRunAtStart(t *testing.T) {
	s, db := newTestScheduler(t, Options{})
	var scheduled, manual, recent atomic.Int32
	require.NoError(t, db.Tasks.Save(models.TaskRecord{Name: "recent", LastRun: time.Now()}))

	require.NoError(t, s.Register(Task{Name: "scheduled", Interval: time.Hour, Run: func(context.Context, *Run) error {
		scheduled.Add(1)
		return nil
	}}))
	require.NoError(t, s.Register(Task{Name: "recent", Spec: "0 3 * * *", Run: func(context.Context, *Run) error {
		recent.Add(1)
		return nil
	}}))
	require.NoError(t, s.Register(Task{Name: "manual", Run: func(context.Context, *Run) error {
		manual.Add(1)
		return nil
	}}))
	require.NoError(t, s.Start())
	defer s.Stop()

	waitIdle(t, s, "scheduled")
	assert.Equal(t, int32(1), scheduled.Load())
	assert.Zero(t, manual.Load())
	assert.Zero(t, recent.Load())

	status, err := s.Status("manual")
	require.NoError(t, err)
	assert.Nil(t, status.NextRun)
}

func TestDispatchGuardsByName(t *testing.T) {
	s, db := newTestScheduler(t, Options{Workers: 2})
	require.NoError(t, s.Start())
	defer s.Stop()

	release := make(chan struct{})
	var runs atomic.Int32
	job := func(ctx context.Context, run *Run) error {
		runs.Add(1)
		<-release
		return nil
	}

	_, started, err := s.Dispatch("refresh:1", job)
	require.NoError(t, err)
	assert.True(t, started)
	_, started, err = s.Dispatch("refresh:1", job)
	require.NoError(t, err)
	assert.False(t, started)

	close(release)
	require.Eventually(t, func() bool {
		_, err := s.Status("refresh:1")
		return errors.Is(err, ErrUnknownTask)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	records, err := db.Tasks.All()
	require.NoError(t, err)
	assert.Empty(t, records, "ad-hoc runs are not persisted")
}

func TestStopCancelsRunningTask(t *testing.T) {
	s, _ := newTestScheduler(t, Options{})
	entered := make(chan struct{})
	require.NoError(t, s.Register(Task{Name: "long", Run: func(ctx context.Context, run *Run) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}}))
	require.NoError(t, s.Start())

	_, _, err := s.Trigger("long")
	require.NoError(t, err)
	<-entered

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not cancel the running task")
	}
}

func TestRestartKeepsSingleDueCheck(t *testing.T) {
	s, _ := newTestScheduler(t, Options{Workers: 1})
	var runs atomic.Int32
	require.NoError(t, s.Register(Task{Name: "scan", Run: func(context.Context, *Run) error {
		runs.Add(1)
		return nil
	}}))

	s.Stop()
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	s.Stop()

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 1)

	_, started, err := s.Trigger("scan")
	require.NoError(t, err)
	if started {
		waitIdle(t, s, "scan")
	}
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestReloadStateAfterReset(t *testing.T) {
	s, db := newTestScheduler(t, Options{})
	require.NoError(t, db.Tasks.Save(models.TaskRecord{Name: "scan", LastRun: time.Now()}))
	require.NoError(t, s.Register(Task{Name: "scan", Interval: time.Hour, Run: func(context.Context, *Run) error { return nil }}))

	status, err := s.Status("scan")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)

	require.NoError(t, db.Reset(models.ScopeTasks))
	require.NoError(t, s.ReloadState())

	status, err = s.Status("scan")
	require.NoError(t, err)
	assert.Nil(t, status.LastRun)
}

func TestRunProgress(t *testing.T) {
	run := newRun("id")
	assert.Zero(t, run.Percentage())
	run.Done("x")

	run.SetItems([]string{"a", "b", "c", "d"})
	run.SetItems([]string{"ignored"})
	run.Begin("a")
	run.Done("a")

	processed, total, current := run.Progress()
	assert.Equal(t, 1, processed)
	assert.Equal(t, 4, total)
	assert.Empty(t, current)
	assert.Equal(t, 25.0, run.Percentage())

	for i := 0; i < 10; i++ {
		run.Done("more")
	}
	processed, _, _ = run.Progress()
	assert.Equal(t, 4, processed)
	assert.Equal(t, 100.0, run.Percentage())
}
