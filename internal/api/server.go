package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/gosubarr/internal/api/handlers"
	"github.com/amaumene/gosubarr/internal/api/middleware"
	"github.com/amaumene/gosubarr/internal/controllers"
	"github.com/amaumene/gosubarr/internal/scheduler"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	app    *fiber.App
	port   string
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(port string, db *store.DB, sched *scheduler.Scheduler, tasks *controllers.TaskController, logger *logrus.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          handlers.ErrorHandler,
	})
	app.Use(middleware.Logging(logger))

	s := &Server{
		app:    app,
		port:   port,
		logger: logger,
	}
	s.setupRoutes(db, sched, tasks)

	return s
}

// App exposes the fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(db *store.DB, sched *scheduler.Scheduler, tasks *controllers.TaskController) {
	// Health check and metrics
	healthHandler := handlers.NewHealthHandler()
	s.app.Get("/health", healthHandler.Get)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")

	taskHandler := handlers.NewTaskHandler(sched, s.logger)
	api.Get("/tasks", taskHandler.List)
	api.Get("/tasks/:name", taskHandler.Get)
	api.Post("/tasks/:name/trigger", taskHandler.Trigger)

	itemHandler := handlers.NewItemHandler(tasks, sched, s.logger)
	api.Post("/items/:id/refresh", itemHandler.Refresh)

	storageHandler := handlers.NewStorageHandler(db, sched, s.logger)
	api.Get("/storage/:scope", storageHandler.Dump)
	api.Delete("/storage/:scope", storageHandler.Reset)

	ignoreHandler := handlers.NewIgnoreHandler(db.Ignore, s.logger)
	api.Get("/ignore/:kind", ignoreHandler.List)
	api.Post("/ignore/:kind/:id", ignoreHandler.Add)
	api.Delete("/ignore/:kind/:id", ignoreHandler.Remove)
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.port).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(":" + s.port); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
