package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amaumene/gosubarr/internal/api"
	"github.com/amaumene/gosubarr/internal/config"
	"github.com/amaumene/gosubarr/internal/controllers"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/mods"
	"github.com/amaumene/gosubarr/internal/scheduler"
	"github.com/amaumene/gosubarr/internal/services/library"
	"github.com/amaumene/gosubarr/internal/services/notify"
	"github.com/amaumene/gosubarr/internal/services/opensubtitles"
	"github.com/amaumene/gosubarr/internal/services/podnapisi"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/services/writer"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const notifyTimeout = 60 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the library watcher and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(utils.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	logger.WithField("version", version).Info("Starting gosubarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Setup tracing
	shutdownTracing := utils.SetupTracing(cfg.TracingSampleRatio)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	// 4. Initialize database
	db, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 5. Load blacklist and text mods
	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist, continuing without it")
		blacklist = utils.NewBlacklist(nil)
	} else {
		logger.Info("Blacklist loaded")
	}

	pipeline, err := mods.NewPipeline(cfg.Mods, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize subtitle mods: %w", err)
	}

	languages, err := models.ParseLanguages(cfg.Languages)
	if err != nil {
		return fmt.Errorf("failed to parse LANGUAGES: %w", err)
	}

	// 6. Initialize providers
	scorer := controllers.NewMatchScorer(cfg.MinScore, cfg.ProviderMinScore(), cfg.HearingImpaired, logger)
	adapters, err := buildAdapters(cfg, scorer, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, a := range adapters {
			if closer, ok := a.(io.Closer); ok {
				closer.Close()
			}
		}
	}()

	pool, err := provider.NewPool(context.Background(), adapters, provider.Options{
		Timeout:     cfg.ProviderTimeout,
		Retries:     cfg.ProviderRetries,
		RetryDelay:  cfg.ProviderRetryDelay,
		CacheTTL:    cfg.ProviderCacheTTL,
		Concurrency: cfg.ProviderWorkers,
	}, logger)
	var cfgErr *provider.ConfigurationError
	if errors.As(err, &cfgErr) {
		logger.WithError(err).Warn("Some providers are disabled")
	} else if err != nil {
		return fmt.Errorf("failed to initialize provider pool: %w", err)
	}
	logger.WithField("providers", pool.Providers()).Info("Provider pool initialized")

	// 7. Initialize storage and notification
	var fsWriter *writer.Filesystem
	if cfg.SaveFilesystem {
		fsWriter = writer.NewFilesystem(cfg.SubtitleSubfolder)
	}
	var metaWriter *writer.Metadata
	if cfg.SaveMetadataFallback {
		metaWriter = writer.NewMetadata(cfg.MetadataDir)
	}
	persister := writer.NewChain(fsWriter, metaWriter, logger)

	notifier := notify.New(cfg.NotifyExecutable, notifyTimeout, logger)
	if waiter, ok := notifier.(interface{ Wait() }); ok {
		defer waiter.Wait()
	}

	// 8. Initialize controllers
	lib := library.New(cfg.LibraryPaths, cfg.SubtitleSubfolder, logger)
	acquisitionCtrl := controllers.NewAcquisitionController(pool, scorer, db, persister, notifier, pipeline, blacklist, controllers.AcquisitionOptions{
		Languages:     languages,
		DownloadTries: cfg.DownloadTries,
		NoMatchRetry:  cfg.NoMatchRetry,
	}, logger)
	taskCtrl := controllers.NewTaskController(lib, acquisitionCtrl, controllers.TaskOptions{
		RecentDays:     cfg.LibraryRecentDays,
		MaxRecentItems: cfg.LibraryMaxRecentItems,
		ScanInterval:   cfg.ScanInterval,
		ScanSpec:       cfg.ScanSpec,
	}, logger)
	logger.Info("Controllers initialized")

	// 9. Initialize scheduler
	sched := scheduler.NewScheduler(db.Tasks, scheduler.Options{
		Workers:       cfg.SchedulerWorkers,
		CheckInterval: cfg.SchedulerCheck,
	}, logger)
	for _, task := range taskCtrl.Tasks() {
		if err := sched.Register(task); err != nil {
			return fmt.Errorf("failed to register task %s: %w", task.Name, err)
		}
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 10. Watch the library for new videos
	if cfg.LibraryWatch {
		watcher, err := library.NewWatcher(lib, 0, func(video models.Video) {
			if _, _, err := taskCtrl.RefreshVideo(sched, video, false); err != nil {
				logger.WithError(err).WithField("video", video.Name()).Warn("Failed to queue new video")
			}
		}, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start library watcher: %w", err)
		}
		defer watcher.Stop()
	}

	// 11. Initialize HTTP server
	server := api.NewServer(cfg.ServerPort, db, sched, taskCtrl, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 12. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("gosubarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("gosubarr stopped")
	return nil
}

// buildAdapters creates the enabled adapters in priority order
func buildAdapters(cfg *config.Config, picker podnapisi.ArchivePicker, logger *logrus.Logger) ([]provider.QueryableProvider, error) {
	var adapters []provider.QueryableProvider
	for _, name := range cfg.Providers {
		switch name {
		case opensubtitles.Name:
			client, err := opensubtitles.NewClient(opensubtitles.Config{
				BaseURL:   cfg.OpenSubtitlesURL,
				APIKey:    cfg.OpenSubtitlesAPIKey,
				Username:  cfg.OpenSubtitlesUsername,
				Password:  cfg.OpenSubtitlesPassword,
				UserAgent: "gosubarr " + version,
				Timeout:   cfg.ProviderTimeout,
			}, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize OpenSubtitles client: %w", err)
			}
			adapters = append(adapters, client)
		case podnapisi.Name:
			client, err := podnapisi.NewClient(podnapisi.Config{
				BaseURL: cfg.PodnapisiURL,
				Timeout: cfg.ProviderTimeout,
			}, picker, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize Podnapisi client: %w", err)
			}
			adapters = append(adapters, client)
		}
	}
	return adapters, nil
}
