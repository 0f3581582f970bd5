package powershelf

import (
	"context"
	"errors"
	"fmt"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/resource"
	"site-controller/feature/powershelf/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Feature implements the loader.ControllerFeature interface.
type Feature struct {
	enabled    bool
	controller controller.Runner
	routes     *resource.Routes[models.PowerShelf]
}

// NewFeature creates the power shelf feature.
func NewFeature(deps controller.Dependencies) *Feature {
	ctrl := controller.New[models.PowerShelfID, models.PowerShelf, models.ControllerState, controller.NoMetrics](
		NewAdapter(), StateHandler{}, controller.NoopMetricsEmitter{}, deps)
	return &Feature{
		enabled:    deps.Config.IsEnabled(Kind),
		controller: ctrl,
		routes:     resource.NewRoutes(resource.NewStore[models.PowerShelf](deps.Services.DB, Table), decodePowerShelf, deps.Logger),
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string { return Kind }

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool { return f.enabled }

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.routes.RegisterRoutes(app, "/power-shelves")
	return nil
}

// Migrate creates the power shelf table and its controller tables.
func (f *Feature) Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.PowerShelf{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", Table, err)
	}
	return controller.EnsureTables(ctx, db, f.controller.Descriptor())
}

// Runner returns the power shelf controller.
func (f *Feature) Runner() controller.Runner { return f.controller }

func decodePowerShelf(body []byte) (*models.PowerShelf, error) {
	var req struct {
		ID     string        `json:"id"`
		Name   string        `json:"name"`
		RackID *string       `json:"rack_id"`
		Config models.Config `json:"config"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	id := models.NewPowerShelfID()
	if req.ID != "" {
		parsed, err := models.ParsePowerShelfID(req.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &models.PowerShelf{
		ID:                id.String(),
		Name:              req.Name,
		RackID:            req.RackID,
		Config:            database.NewJSON(req.Config),
		Status:            database.NewJSON(models.Status{}),
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateInitializing}),
	}, nil
}
