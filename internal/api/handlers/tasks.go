package handlers

import (
	"errors"

	"github.com/amaumene/gosubarr/internal/scheduler"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// TaskScheduler is the part of the scheduler the task endpoints use
type TaskScheduler interface {
	Trigger(name string) (scheduler.Status, bool, error)
	Status(name string) (scheduler.Status, error)
	Statuses() []scheduler.Status
}

// TaskHandler exposes scheduled tasks
type TaskHandler struct {
	scheduler TaskScheduler
	logger    *logrus.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(scheduler TaskScheduler, logger *logrus.Logger) *TaskHandler {
	return &TaskHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// TriggerResponse is returned when a task or a refresh is requested
type TriggerResponse struct {
	Started bool             `json:"started"`
	Status  scheduler.Status `json:"status"`
}

// List returns the status of every task
func (h *TaskHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.scheduler.Statuses())
}

// Get returns the status of one task
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	status, err := h.scheduler.Status(c.Params("name"))
	if err != nil {
		return schedulerError(err)
	}
	return c.JSON(status)
}

// Trigger starts a task unless it is already running
func (h *TaskHandler) Trigger(c *fiber.Ctx) error {
	name := c.Params("name")
	status, started, err := h.scheduler.Trigger(name)
	if err != nil {
		return schedulerError(err)
	}

	h.logger.WithFields(logrus.Fields{
		"task":    name,
		"started": started,
		"run_id":  status.RunID,
	}).Info("Task triggered")

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{Started: started, Status: status})
}

func schedulerError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrNotStarted):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}
