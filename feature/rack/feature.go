package rack

import (
	"context"
	"errors"
	"fmt"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/logger"
	"site-controller/core/resource"
	"site-controller/feature/rack/models"

	powershelfmodels "site-controller/feature/powershelf/models"
	switchmodels "site-controller/feature/switches/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.ControllerFeature interface.
type Feature struct {
	enabled    bool
	controller controller.Runner
	store      *resource.Store[models.Rack]
	routes     *resource.Routes[models.Rack]
	db         *gorm.DB
	logger     *zap.Logger
}

// NewFeature creates the rack feature.
func NewFeature(deps controller.Dependencies) *Feature {
	store := resource.NewStore[models.Rack](deps.Services.DB, Table)
	return &Feature{
		enabled: deps.Config.IsEnabled(Kind),
		controller: controller.New[models.RackID, models.Rack, models.ControllerState, controller.NoMetrics](
			NewAdapter(), StateHandler{}, controller.NoopMetricsEmitter{}, deps),
		store:  store,
		routes: resource.NewRoutes(store, decodeRack, deps.Logger),
		db:     deps.Services.DB,
		logger: deps.Logger,
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string { return Kind }

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool { return f.enabled }

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.routes.RegisterRoutes(app, "/racks")
	app.Put("/racks/:id/compute-trays", f.HandleReportComputeTrays)
	return nil
}

// Migrate creates the rack table and its controller tables. The switch and
// power shelf tables are created too since discovery counts their rows.
func (f *Feature) Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.Rack{}, &switchmodels.Switch{}, &powershelfmodels.PowerShelf{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", Table, err)
	}
	return controller.EnsureTables(ctx, db, f.controller.Descriptor())
}

// Runner returns the rack controller.
func (f *Feature) Runner() controller.Runner { return f.controller }

// HandleReportComputeTrays records how many compute trays were discovered in
// a rack.
func (f *Feature) HandleReportComputeTrays(c *fiber.Ctx) error {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Count < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "count must be a non-negative integer"})
	}

	rack, err := f.store.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, resource.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if err := f.db.WithContext(c.UserContext()).Table(Table).Where("id = ?", rack.ID).
		UpdateColumn("compute_trays", req.Count).Error; err != nil {
		logger.WithRayID(f.logger, c).Error("Compute tray report failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"id": rack.ID, "compute_trays": req.Count})
}

func decodeRack(body []byte) (*models.Rack, error) {
	var req struct {
		ID     string        `json:"id"`
		Name   string        `json:"name"`
		Config models.Config `json:"config"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	id := models.NewRackID()
	if req.ID != "" {
		parsed, err := models.ParseRackID(req.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &models.Rack{
		ID:                id.String(),
		Name:              req.Name,
		Config:            database.NewJSON(req.Config),
		Status:            database.NewJSON(models.Status{}),
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateExpected}),
	}, nil
}
