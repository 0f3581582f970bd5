package controller

import (
	"errors"
	"net/url"

	"site-controller/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// API exposes controller status and object inspection over HTTP.
type API struct {
	registry *Registry
	logger   *zap.Logger
	runs     singleflight.Group
}

// NewAPI creates the controller API.
func NewAPI(registry *Registry, logger *zap.Logger) *API {
	return &API{registry: registry, logger: logger}
}

// RegisterRoutes registers the controller routes.
func (a *API) RegisterRoutes(app fiber.Router) {
	group := app.Group("/controllers")
	group.Get("/", a.HandleListControllers)
	group.Get("/:kind", a.HandleGetController)
	group.Post("/:kind/trigger", a.HandleTrigger)
	group.Post("/:kind/run", a.HandleRunIteration)
	group.Get("/:kind/objects/*", a.HandleInspectObject)
	group.Get("/:kind/history/*", a.HandleObjectHistory)
}

// HandleListControllers returns the status of every controller.
func (a *API) HandleListControllers(c *fiber.Ctx) error {
	return c.JSON(a.registry.Statuses())
}

// HandleGetController returns the status of one controller.
func (a *API) HandleGetController(c *fiber.Ctx) error {
	runner, ok := a.registry.Get(c.Params("kind"))
	if !ok {
		return unknownKind(c)
	}
	return c.JSON(runner.Status())
}

// HandleTrigger asks a controller to start its next iteration early.
func (a *API) HandleTrigger(c *fiber.Ctx) error {
	runner, ok := a.registry.Get(c.Params("kind"))
	if !ok {
		return unknownKind(c)
	}
	runner.Trigger()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"kind": runner.Kind(), "triggered": true})
}

// HandleRunIteration runs one iteration synchronously and returns its summary.
// Concurrent requests for the same kind share a single iteration.
func (a *API) HandleRunIteration(c *fiber.Ctx) error {
	runner, ok := a.registry.Get(c.Params("kind"))
	if !ok {
		return unknownKind(c)
	}
	l := logger.WithRayID(a.logger, c)

	ctx := c.UserContext()
	v, err, shared := a.runs.Do(runner.Kind(), func() (any, error) {
		return runner.RunIteration(ctx)
	})
	if err != nil {
		l.Error("Iteration failed", zap.String("kind", runner.Kind()), zap.Error(err))
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrIterationInProgress) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set("X-Iteration-Shared", boolHeader(shared))
	return c.JSON(v)
}

// HandleInspectObject returns the controller's view of one object.
func (a *API) HandleInspectObject(c *fiber.Ctx) error {
	runner, ok := a.registry.Get(c.Params("kind"))
	if !ok {
		return unknownKind(c)
	}
	id, err := url.PathUnescape(c.Params("*"))
	if err != nil || id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid object id"})
	}

	report, err := runner.Inspect(c.UserContext(), id)
	if errors.Is(err, ErrObjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(a.logger, c).Error("Object inspection failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleObjectHistory returns the recorded state changes of one object.
func (a *API) HandleObjectHistory(c *fiber.Ctx) error {
	runner, ok := a.registry.Get(c.Params("kind"))
	if !ok {
		return unknownKind(c)
	}
	id, err := url.PathUnescape(c.Params("*"))
	if err != nil || id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid object id"})
	}

	entries, err := runner.History(c.UserContext(), id, c.QueryInt("limit", 50))
	if errors.Is(err, ErrObjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

func unknownKind(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown controller kind " + c.Params("kind")})
}

func boolHeader(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
