package handlers

import (
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// IgnoreList is the ignore list storage
type IgnoreList interface {
	Add(kind models.IgnoreKind, id, title string) error
	Remove(kind models.IgnoreKind, id string) error
	List(kind models.IgnoreKind) ([]models.IgnoreEntry, error)
}

// IgnoreHandler manages the ignore list
type IgnoreHandler struct {
	ignore IgnoreList
	logger *logrus.Logger
}

// NewIgnoreHandler creates a new ignore handler
func NewIgnoreHandler(ignore IgnoreList, logger *logrus.Logger) *IgnoreHandler {
	return &IgnoreHandler{
		ignore: ignore,
		logger: logger,
	}
}

type ignoreRequest struct {
	Title string `json:"title"`
}

func ignoreKind(c *fiber.Ctx) (models.IgnoreKind, error) {
	kind := models.IgnoreKind(c.Params("kind"))
	if !kind.Valid() {
		return "", fiber.NewError(fiber.StatusBadRequest, "kind must be sections, series or items")
	}
	return kind, nil
}

// List returns the entries of one kind
func (h *IgnoreHandler) List(c *fiber.Ctx) error {
	kind, err := ignoreKind(c)
	if err != nil {
		return err
	}
	entries, err := h.ignore.List(kind)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.IgnoreEntry{}
	}
	return c.JSON(entries)
}

// Add puts an entity on the ignore list. The body may carry a title.
func (h *IgnoreHandler) Add(c *fiber.Ctx) error {
	kind, err := ignoreKind(c)
	if err != nil {
		return err
	}

	var req ignoreRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
	}

	id := c.Params("id")
	if err := h.ignore.Add(kind, id, req.Title); err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"kind": kind,
		"id":   id,
	}).Info("Added to ignore list")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"kind": kind, "id": id})
}

// Remove takes an entity off the ignore list
func (h *IgnoreHandler) Remove(c *fiber.Ctx) error {
	kind, err := ignoreKind(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if err := h.ignore.Remove(kind, id); err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"kind": kind,
		"id":   id,
	}).Info("Removed from ignore list")
	return c.SendStatus(fiber.StatusNoContent)
}
