package networksegment

import (
	"context"
	"errors"
	"fmt"

	"site-controller/core/controller"
	"site-controller/core/logger"
	"site-controller/core/resource"
	"site-controller/feature/networksegment/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.ControllerFeature interface.
type Feature struct {
	enabled    bool
	controller controller.Runner
	routes     *resource.Routes[models.NetworkSegment]
	services   *controller.Services
	logger     *zap.Logger
}

// NewFeature creates the network segment feature.
func NewFeature(deps controller.Dependencies) *Feature {
	handler := StateHandler{DrainPeriod: DefaultDrainPeriod}
	return &Feature{
		enabled: deps.Config.IsEnabled(Kind),
		controller: controller.New[models.SegmentID, models.NetworkSegment, models.ControllerState, SegmentMetrics](
			NewAdapter(), handler, MetricsEmitter{}, deps),
		routes:   resource.NewRoutes(resource.NewStore[models.NetworkSegment](deps.Services.DB, Table), decodeSegment, deps.Logger),
		services: deps.Services,
		logger:   deps.Logger,
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string { return Kind }

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool { return f.enabled }

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.routes.RegisterRoutes(app, "/network-segments")
	app.Post("/network-segments/:id/addresses", f.HandleAllocate)
	app.Delete("/network-segments/:id/addresses/:address", f.HandleRelease)
	return nil
}

// Migrate creates the segment and address tables and the controller tables.
func (f *Feature) Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.NetworkSegment{}, &models.Address{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", Table, err)
	}
	return controller.EnsureTables(ctx, db, f.controller.Descriptor())
}

// Runner returns the network segment controller.
func (f *Feature) Runner() controller.Runner { return f.controller }

// HandleAllocate assigns the next free address of a segment.
func (f *Feature) HandleAllocate(c *fiber.Ctx) error {
	addr, err := Allocate(c.UserContext(), f.services.DB, c.Params("id"), f.services.CurrentTime().UTC())
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "network segment not found"})
	case errors.Is(err, ErrPoolExhausted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		logger.WithRayID(f.logger, c).Warn("Address allocation failed", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(addr)
}

// HandleRelease frees an allocated address.
func (f *Feature) HandleRelease(c *fiber.Ctx) error {
	err := Release(c.UserContext(), f.services.DB, c.Params("id"), c.Params("address"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "address not allocated"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func decodeSegment(body []byte) (*models.NetworkSegment, error) {
	var req struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		SegmentType string `json:"segment_type"`
		Prefix      string `json:"prefix"`
		Gateway     string `json:"gateway"`
		ReservedIPs int    `json:"reserved_ips"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Name == "" || req.Prefix == "" {
		return nil, errors.New("name and prefix are required")
	}
	switch req.SegmentType {
	case "":
		req.SegmentType = models.TypeTenant
	case models.TypeAdmin, models.TypeTenant, models.TypeUnderlay:
	default:
		return nil, fmt.Errorf("unknown segment type %q", req.SegmentType)
	}
	if req.ReservedIPs < 0 {
		return nil, errors.New("reserved_ips must not be negative")
	}
	id := models.NewSegmentID()
	if req.ID != "" {
		parsed, err := models.ParseSegmentID(req.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &models.NetworkSegment{
		ID:                id.String(),
		Name:              req.Name,
		SegmentType:       req.SegmentType,
		Prefix:            req.Prefix,
		Gateway:           req.Gateway,
		ReservedIPs:       req.ReservedIPs,
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateProvisioning}),
	}, nil
}
