package ibpartition

import (
	"context"
	"errors"
	"fmt"

	"site-controller/core/controller"
	"site-controller/core/resource"
	"site-controller/feature/ibpartition/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Feature implements the loader.ControllerFeature interface.
type Feature struct {
	enabled    bool
	controller controller.Runner
	routes     *resource.Routes[models.IBPartition]
}

// NewFeature creates the IB partition feature.
func NewFeature(deps controller.Dependencies) *Feature {
	return &Feature{
		enabled: deps.Config.IsEnabled(Kind),
		controller: controller.New[models.PartitionID, models.IBPartition, models.ControllerState, controller.NoMetrics](
			NewAdapter(), StateHandler{}, controller.NoopMetricsEmitter{}, deps),
		routes: resource.NewRoutes(resource.NewStore[models.IBPartition](deps.Services.DB, Table), decodePartition, deps.Logger),
	}
}

func (f *Feature) Name() string { return Kind }

func (f *Feature) IsEnabled() bool { return f.enabled }

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.routes.RegisterRoutes(app, "/ib-partitions")
	return nil
}

// Migrate creates the partition table and its controller tables.
func (f *Feature) Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.IBPartition{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", Table, err)
	}
	return controller.EnsureTables(ctx, db, f.controller.Descriptor())
}

func (f *Feature) Runner() controller.Runner { return f.controller }

func decodePartition(body []byte) (*models.IBPartition, error) {
	var req struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		PKey         *string `json:"pkey"`
		MTU          int     `json:"mtu"`
		ServiceLevel int     `json:"service_level"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if req.MTU == 0 {
		req.MTU = 4096
	}
	if req.ServiceLevel < 0 || req.ServiceLevel > 15 {
		return nil, errors.New("service_level must be between 0 and 15")
	}
	id := models.NewPartitionID()
	if req.ID != "" {
		parsed, err := models.ParsePartitionID(req.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &models.IBPartition{
		ID:                id.String(),
		Name:              req.Name,
		PKey:              req.PKey,
		MTU:               req.MTU,
		ServiceLevel:      req.ServiceLevel,
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateProvisioning}),
	}, nil
}
