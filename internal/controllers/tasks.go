package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Task names
const (
	TaskRecentlyAddedMissing = "searchAllRecentlyAddedMissing"
	TaskAllMissing           = "searchAllMissing"
)

// LibrarySource lists the videos subtitles are searched for
type LibrarySource interface {
	All(ctx context.Context) ([]models.Video, error)
	Recent(ctx context.Context, maxAge time.Duration, limit int) ([]models.Video, error)
	Item(ctx context.Context, id string) (models.Video, error)
}

// Acquirer runs one acquisition pass
type Acquirer interface {
	Process(ctx context.Context, req Request) (*Outcome, error)
}

// Dispatcher runs ad-hoc jobs under a name
type Dispatcher interface {
	Dispatch(name string, fn func(ctx context.Context, run *scheduler.Run) error) (scheduler.Status, bool, error)
}

// TaskOptions configures the periodic scans
type TaskOptions struct {
	RecentDays     int
	MaxRecentItems int
	ScanInterval   time.Duration
	ScanSpec       string
}

// TaskController holds the bodies of the scheduled tasks
type TaskController struct {
	library  LibrarySource
	acquirer Acquirer
	opts     TaskOptions
	logger   *logrus.Logger
}

// NewTaskController creates a new task controller
func NewTaskController(library LibrarySource, acquirer Acquirer, opts TaskOptions, logger *logrus.Logger) *TaskController {
	return &TaskController{
		library:  library,
		acquirer: acquirer,
		opts:     opts,
		logger:   logger,
	}
}

// Tasks returns the scheduler definitions of the scans
func (c *TaskController) Tasks() []scheduler.Task {
	return []scheduler.Task{
		{
			Name:     TaskRecentlyAddedMissing,
			Interval: c.opts.ScanInterval,
			Spec:     c.opts.ScanSpec,
			Run:      c.SearchRecentlyAddedMissing,
		},
		{
			Name: TaskAllMissing,
			Run:  c.SearchAllMissing,
		},
	}
}

// SearchRecentlyAddedMissing searches subtitles for recently added videos
func (c *TaskController) SearchRecentlyAddedMissing(ctx context.Context, run *scheduler.Run) error {
	maxAge := time.Duration(c.opts.RecentDays) * 24 * time.Hour
	videos, err := c.library.Recent(ctx, maxAge, c.opts.MaxRecentItems)
	if err != nil {
		return fmt.Errorf("failed to list recently added videos: %w", err)
	}
	return c.processAll(ctx, run, videos)
}

// SearchAllMissing searches subtitles for the whole library
func (c *TaskController) SearchAllMissing(ctx context.Context, run *scheduler.Run) error {
	videos, err := c.library.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list library: %w", err)
	}
	return c.processAll(ctx, run, videos)
}

// RefreshItem queues a search for one item. force bypasses the ledger.
func (c *TaskController) RefreshItem(ctx context.Context, dispatcher Dispatcher, id string, force bool) (scheduler.Status, bool, error) {
	video, err := c.library.Item(ctx, id)
	if err != nil {
		return scheduler.Status{}, false, err
	}
	return c.RefreshVideo(dispatcher, video, force)
}

// RefreshVideo queues a search for a video already described
func (c *TaskController) RefreshVideo(dispatcher Dispatcher, video models.Video, force bool) (scheduler.Status, bool, error) {
	return dispatcher.Dispatch("refresh:"+video.ID, func(ctx context.Context, run *scheduler.Run) error {
		run.SetItems([]string{video.ID})
		run.Begin(video.ID)
		defer run.Done(video.ID)

		_, err := c.acquirer.Process(ctx, Request{Video: video, Force: force})
		if err != nil {
			return fmt.Errorf("failed to refresh %s: %w", video.Name(), err)
		}
		return nil
	})
}

// processAll runs an acquisition pass per video. A failing item is logged
// and skipped; cancellation is checked between items.
func (c *TaskController) processAll(ctx context.Context, run *scheduler.Run, videos []models.Video) error {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	run.SetItems(ids)

	stored, failed := 0, 0
	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.Begin(video.ID)
		out, err := c.acquirer.Process(ctx, Request{Video: video})
		if err != nil {
			failed++
			c.logger.WithFields(logrus.Fields{
				"item":  video.ID,
				"video": video.Name(),
				"error": err,
			}).Warn("Failed to process video, skipping")
		} else {
			stored += out.Stored()
		}
		run.Done(video.ID)
	}

	c.logger.WithFields(logrus.Fields{
		"videos": len(videos),
		"stored": stored,
		"failed": failed,
	}).Info("Library scan completed")
	return nil
}
