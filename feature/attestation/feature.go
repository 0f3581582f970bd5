package attestation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"site-controller/core/controller"
	"site-controller/core/logger"
	"site-controller/core/storage"
	"site-controller/feature/attestation/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Feature implements the loader.ControllerFeature interface.
type Feature struct {
	enabled    bool
	controller controller.Runner
	db         *gorm.DB
	storage    storage.Client
	bucket     string
	maxBytes   int64
	logger     *zap.Logger
}

// NewFeature creates the attestation feature.
func NewFeature(deps controller.Dependencies, handler StateHandler) *Feature {
	return &Feature{
		enabled: deps.Config.IsEnabled(Kind),
		controller: controller.New[models.SessionID, models.Session, models.ControllerState, SessionMetrics](
			NewAdapter(), handler, MetricsEmitter{}, deps),
		db:       deps.Services.DB,
		storage:  deps.Services.Storage,
		bucket:   deps.Services.Bucket,
		maxBytes: handler.maxEvidenceBytes(),
		logger:   deps.Logger,
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string { return Kind }

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool { return f.enabled }

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	group := app.Group("/attestations")
	group.Post("/", f.HandleCreate)
	group.Put("/golden/:device", f.HandlePutGolden)
	group.Get("/:machine", f.HandleListMachine)
	group.Post("/:machine/restart", f.HandleRestart)
	group.Put("/:machine/evidence/:device", f.HandleUploadEvidence)
	return nil
}

// Migrate creates the session and golden measurement tables and the
// controller tables.
func (f *Feature) Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.Session{}, &models.GoldenMeasurement{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", Table, err)
	}
	return controller.EnsureTables(ctx, db, f.controller.Descriptor())
}

// Runner returns the attestation controller.
func (f *Feature) Runner() controller.Runner { return f.controller }

// HandleCreate starts attestation of a machine.
func (f *Feature) HandleCreate(c *fiber.Ctx) error {
	var req struct {
		MachineID string `json:"machine_id"`
		Supported bool   `json:"supported"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.MachineID == "" || strings.Contains(req.MachineID, "/") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "machine_id must be set and must not contain '/'"})
	}

	session := models.Session{
		MachineID:         req.MachineID,
		Supported:         req.Supported,
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateCheckIfAttestationSupported}),
	}
	res := f.db.WithContext(c.UserContext()).Clauses(clause.OnConflict{DoNothing: true}).Create(&session)
	if res.Error != nil {
		logger.WithRayID(f.logger, c).Error("Attestation create failed", zap.Error(res.Error))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "machine " + req.MachineID + " already has an attestation session"})
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// HandleListMachine returns all sessions of a machine.
func (f *Feature) HandleListMachine(c *fiber.Ctx) error {
	var sessions []models.Session
	err := f.db.WithContext(c.UserContext()).
		Where("machine_id = ?", c.Params("machine")).
		Order("device_id").
		Find(&sessions).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(sessions) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no attestation sessions for machine " + c.Params("machine")})
	}
	return c.JSON(sessions)
}

// HandlePutGolden stores the golden measurement of a device.
func (f *Feature) HandlePutGolden(c *fiber.Ctx) error {
	var req struct {
		Digest string `json:"digest"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if b, err := hex.DecodeString(req.Digest); err != nil || len(b) != 32 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "digest must be 64 hex characters"})
	}

	golden := models.GoldenMeasurement{
		DeviceID:  c.Params("device"),
		Digest:    strings.ToLower(req.Digest),
		UpdatedAt: time.Now().UTC(),
	}
	err := f.db.WithContext(c.UserContext()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"digest", "updated_at"}),
	}).Create(&golden).Error
	if err != nil {
		logger.WithRayID(f.logger, c).Error("Golden measurement update failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(golden)
}

// HandleRestart discards the device sessions of a machine and restarts its
// machine session. The restart is a versioned write and fails with 409 if the
// controller changed the session concurrently.
func (f *Feature) HandleRestart(c *fiber.Ctx) error {
	id := models.MachineSession(c.Params("machine"))
	ctx := c.UserContext()

	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.Where(keys(id)).Take(&session).Error; err != nil {
			return err
		}
		if err := tx.Where("machine_id = ? AND device_id <> ''", id.MachineID).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return controller.PersistWithHistory(ctx, tx, f.controller.Descriptor(), keys(id), id.String(),
			session.ControllerStateVersion, models.ControllerState{State: models.StateCheckIfAttestationSupported})
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no attestation session for machine " + id.MachineID})
	case errors.Is(err, controller.ErrStaleVersion):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		logger.WithRayID(f.logger, c).Error("Attestation restart failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// HandleUploadEvidence stores the request body as the evidence of one device.
// The device session is created by the next target discovery.
func (f *Feature) HandleUploadEvidence(c *fiber.Ctx) error {
	if f.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no evidence storage configured"})
	}
	machine, device := c.Params("machine"), c.Params("device")
	if strings.Contains(device, ".") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "device id must not contain '.'"})
	}
	body := c.Body()
	if len(body) == 0 || int64(len(body)) > f.maxBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("evidence must be between 1 and %d bytes", f.maxBytes)})
	}

	key := EvidencePrefix(machine) + device + ".bin"
	if err := storage.WriteObject(c.UserContext(), f.storage, f.bucket, key, body); err != nil {
		logger.WithRayID(f.logger, c).Error("Evidence upload failed", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": key, "digest": Digest(body)})
}
