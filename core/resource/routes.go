package resource

import (
	"errors"

	"site-controller/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DecodeFunc builds a new object from a create request body. Validation
// errors are returned to the client as 400.
type DecodeFunc[M any] func(body []byte) (*M, error)

// Routes serves one object collection.
type Routes[M any] struct {
	store  *Store[M]
	decode DecodeFunc[M]
	logger *zap.Logger
}

// NewRoutes creates the routes of a collection.
func NewRoutes[M any](store *Store[M], decode DecodeFunc[M], logger *zap.Logger) *Routes[M] {
	return &Routes[M]{store: store, decode: decode, logger: logger}
}

// RegisterRoutes registers the collection under path.
func (r *Routes[M]) RegisterRoutes(app fiber.Router, path string) {
	group := app.Group(path)
	group.Get("/", r.HandleList)
	group.Get("/:id", r.HandleGet)
	group.Post("/", r.HandleCreate)
	group.Delete("/:id", r.HandleMarkDeleted)
}

// HandleList returns the collection.
func (r *Routes[M]) HandleList(c *fiber.Ctx) error {
	items, err := r.store.List(c.UserContext(), c.QueryBool("deleted", false))
	if err != nil {
		logger.WithRayID(r.logger, c).Error("List failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(items)
}

// HandleGet returns one object.
func (r *Routes[M]) HandleGet(c *fiber.Ctx) error {
	item, err := r.store.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(item)
}

// HandleCreate decodes and inserts a new object.
func (r *Routes[M]) HandleCreate(c *fiber.Ctx) error {
	item, err := r.decode(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := r.store.Create(c.UserContext(), item); err != nil {
		logger.WithRayID(r.logger, c).Error("Create failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// HandleMarkDeleted marks an object deleted.
func (r *Routes[M]) HandleMarkDeleted(c *fiber.Ctx) error {
	err := r.store.MarkDeleted(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrAlreadyDeleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		logger.WithRayID(r.logger, c).Error("Mark deleted failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}
