package switches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/resource"
	"site-controller/feature/switches/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Feature implements the loader.ControllerFeature interface.
type Feature struct {
	enabled    bool
	controller *controller.Controller[models.SwitchID, models.Switch, models.ControllerState, controller.NoMetrics]
	routes     *resource.Routes[models.Switch]
}

// NewFeature creates the switch feature.
func NewFeature(deps controller.Dependencies) *Feature {
	ctrl := controller.New[models.SwitchID, models.Switch, models.ControllerState, controller.NoMetrics](
		NewAdapter(), StateHandler{}, controller.NoopMetricsEmitter{}, deps)
	store := resource.NewStore[models.Switch](deps.Services.DB, Table)
	return &Feature{
		enabled:    deps.Config.IsEnabled(Kind),
		controller: ctrl,
		routes:     resource.NewRoutes(store, decodeSwitch, deps.Logger),
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return Kind
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.routes.RegisterRoutes(app, "/"+Table)
	return nil
}

// Migrate creates the switch table and its controller tables.
func (f *Feature) Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.Switch{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", Table, err)
	}
	return controller.EnsureTables(ctx, db, f.controller.Descriptor())
}

// Runner returns the switch controller.
func (f *Feature) Runner() controller.Runner {
	return f.controller
}

type createRequest struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	RackID *string       `json:"rack_id"`
	Config models.Config `json:"config"`
}

// decodeSwitch builds a new switch in the initializing state.
func decodeSwitch(body []byte) (*models.Switch, error) {
	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("name is required")
	}
	id := models.NewSwitchID()
	if req.ID != "" {
		parsed, err := models.ParseSwitchID(req.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &models.Switch{
		ID:                id.String(),
		Name:              req.Name,
		RackID:            req.RackID,
		Config:            database.NewJSON(req.Config),
		Status:            database.NewJSON(models.Status{}),
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateInitializing}),
	}, nil
}
