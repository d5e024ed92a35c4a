package controllers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/scheduler"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLibrary struct {
	videos []models.Video
	maxAge time.Duration
	limit  int
}

func (l *fakeLibrary) All(ctx context.Context) ([]models.Video, error) {
	return l.videos, nil
}

func (l *fakeLibrary) Recent(ctx context.Context, maxAge time.Duration, limit int) ([]models.Video, error) {
	l.maxAge, l.limit = maxAge, limit
	return l.videos[:1], nil
}

func (l *fakeLibrary) Item(ctx context.Context, id string) (models.Video, error) {
	for _, v := range l.videos {
		if v.ID == id {
			return v, nil
		}
	}
	return models.Video{}, errors.New("not found")
}

type fakeAcquirer struct {
	mu       sync.Mutex
	requests []Request
	fail     map[string]bool
	cancel   context.CancelFunc
}

func (a *fakeAcquirer) Process(ctx context.Context, req Request) (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.cancel != nil {
		a.cancel()
	}
	if a.fail[req.Video.ID] {
		return nil, errors.New("ledger unavailable")
	}
	return &Outcome{Languages: map[string]models.LanguageStatus{"en": models.StatusStored}}, nil
}

type fakeDispatcher struct {
	names []string
	fn    func(ctx context.Context, run *scheduler.Run) error
}

func (d *fakeDispatcher) Dispatch(name string, fn func(ctx context.Context, run *scheduler.Run) error) (scheduler.Status, bool, error) {
	d.names = append(d.names, name)
	d.fn = fn
	return scheduler.Status{Name: name, State: scheduler.StateRunning}, true, nil
}

func library3() *fakeLibrary {
	return &fakeLibrary{videos: []models.Video{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
}

func TestSearchAllMissingSkipsFailingItems(t *testing.T) {
	acq := &fakeAcquirer{fail: map[string]bool{"b": true}}
	c := NewTaskController(library3(), acq, TaskOptions{}, utils.NewTestLogger())

	var run scheduler.Run
	require.NoError(t, c.SearchAllMissing(context.Background(), &run))

	assert.Len(t, acq.requests, 3)
	processed, total, _ := run.Progress()
	assert.Equal(t, 3, processed)
	assert.Equal(t, 3, total)
	assert.Equal(t, 100.0, run.Percentage())
}

func TestSearchRecentlyAddedUsesLimits(t *testing.T) {
	lib := library3()
	acq := &fakeAcquirer{}
	c := NewTaskController(lib, acq, TaskOptions{RecentDays: 14, MaxRecentItems: 2000}, utils.NewTestLogger())

	var run scheduler.Run
	require.NoError(t, c.SearchRecentlyAddedMissing(context.Background(), &run))
	assert.Equal(t, 14*24*time.Hour, lib.maxAge)
	assert.Equal(t, 2000, lib.limit)
	assert.Len(t, acq.requests, 1)
}

func TestScanStopsBetweenItemsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	acq := &fakeAcquirer{cancel: cancel}
	c := NewTaskController(library3(), acq, TaskOptions{}, utils.NewTestLogger())

	var run scheduler.Run
	err := c.SearchAllMissing(ctx, &run)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, acq.requests, 1)
}

func TestRefreshItemDispatchesForcedPass(t *testing.T) {
	acq := &fakeAcquirer{}
	c := NewTaskController(library3(), acq, TaskOptions{}, utils.NewTestLogger())
	d := &fakeDispatcher{}

	_, started, err := c.RefreshItem(context.Background(), d, "b", true)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, []string{"refresh:b"}, d.names)

	var run scheduler.Run
	require.NoError(t, d.fn(context.Background(), &run))
	require.Len(t, acq.requests, 1)
	assert.Equal(t, "b", acq.requests[0].Video.ID)
	assert.True(t, acq.requests[0].Force)

	_, _, err = c.RefreshItem(context.Background(), d, "missing", false)
	assert.Error(t, err)
}

func TestTaskDefinitions(t *testing.T) {
	c := NewTaskController(library3(), &fakeAcquirer{}, TaskOptions{ScanInterval: 6 * time.Hour}, utils.NewTestLogger())
	tasks := c.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, TaskRecentlyAddedMissing, tasks[0].Name)
	assert.Equal(t, 6*time.Hour, tasks[0].Interval)
	assert.Equal(t, TaskAllMissing, tasks[1].Name)
	assert.Zero(t, tasks[1].Interval)
	assert.Empty(t, tasks[1].Spec)
}
