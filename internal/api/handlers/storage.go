package handlers

import (
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// StateReloader reloads task state after the tasks scope is cleared
type StateReloader interface {
	ReloadState() error
}

// StorageHandler dumps and resets persistent scopes
type StorageHandler struct {
	db       *store.DB
	reloader StateReloader
	logger   *logrus.Logger
}

// NewStorageHandler creates a new storage handler
func NewStorageHandler(db *store.DB, reloader StateReloader, logger *logrus.Logger) *StorageHandler {
	return &StorageHandler{
		db:       db,
		reloader: reloader,
		logger:   logger,
	}
}

// Dump returns every record of a scope
func (h *StorageHandler) Dump(c *fiber.Ctx) error {
	scope, err := store.ParseScope(c.Params("scope"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	records, err := h.db.Dump(scope)
	if err != nil {
		h.logger.WithError(err).WithField("scope", scope).Error("Failed to dump storage")
		return err
	}
	return c.JSON(records)
}

// Reset clears a whole scope
func (h *StorageHandler) Reset(c *fiber.Ctx) error {
	scope, err := store.ParseScope(c.Params("scope"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.db.Reset(scope); err != nil {
		h.logger.WithError(err).WithField("scope", scope).Error("Failed to reset storage")
		return err
	}
	if scope == models.ScopeTasks {
		if err := h.reloader.ReloadState(); err != nil {
			h.logger.WithError(err).Error("Failed to reload task state")
			return err
		}
	}

	h.logger.WithField("scope", scope).Info("Storage scope reset")
	return c.JSON(fiber.Map{"scope": scope, "reset": true})
}
