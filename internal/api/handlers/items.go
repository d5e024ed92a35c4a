package handlers

import (
	"errors"

	"github.com/amaumene/gosubarr/internal/controllers"
	"github.com/amaumene/gosubarr/internal/services/library"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ItemHandler handles single item refreshes
type ItemHandler struct {
	tasks      *controllers.TaskController
	dispatcher controllers.Dispatcher
	logger     *logrus.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(tasks *controllers.TaskController, dispatcher controllers.Dispatcher, logger *logrus.Logger) *ItemHandler {
	return &ItemHandler{
		tasks:      tasks,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Refresh queues an acquisition pass for one item. ?force=true bypasses the ledger.
func (h *ItemHandler) Refresh(c *fiber.Ctx) error {
	id := c.Params("id")
	force := c.QueryBool("force", false)

	status, started, err := h.tasks.RefreshItem(c.UserContext(), h.dispatcher, id, force)
	if err != nil {
		if errors.Is(err, library.ErrItemNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return schedulerError(err)
	}

	h.logger.WithFields(logrus.Fields{
		"item":    id,
		"force":   force,
		"started": started,
	}).Info("Item refresh requested")

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{Started: started, Status: status})
}
