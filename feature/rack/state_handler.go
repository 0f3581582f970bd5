package rack

import (
	"context"
	"fmt"
	"strings"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/feature/rack/models"

	"gorm.io/gorm"
)

const labelCountDevices = "count_devices"

// Tables holding the devices counted towards a rack.
const (
	switchTable     = "switches"
	powerShelfTable = "power_shelves"
)

// StateHandler walks a rack from expected to ready once all of its devices
// are discovered.
type StateHandler struct{}

func to(state, reason string) controller.Outcome[models.ControllerState] {
	return controller.Transition(models.ControllerState{State: state, Reason: reason})
}

// HandleObjectState implements controller.StateHandler.
func (StateHandler) HandleObjectState(ctx context.Context, id models.RackID, rack *models.Rack, cs configversion.Versioned[models.ControllerState], hctx *controller.HandlerContext[controller.NoMetrics]) (controller.Outcome[models.ControllerState], error) {
	noop := controller.DoNothing[models.ControllerState]()
	cfg := rack.Config.Data

	if rack.Deleted != nil && cs.Value.State != models.StateDeleting {
		return to(models.StateDeleting, ""), nil
	}

	switch cs.Value.State {
	case models.StateExpected:
		return to(models.StateDiscovering, ""), nil

	case models.StateDiscovering:
		status, err := discover(ctx, hctx.Services.DB, id, rack.Status.Data)
		if err != nil {
			return noop, controller.NewHandlerError(labelCountDevices, err)
		}
		status.LastDiscoveryAt = ptr(hctx.Services.CurrentTime().UTC())
		hctx.Batch.Push(func(ctx context.Context, tx *gorm.DB) error {
			return tx.WithContext(ctx).Table(Table).Where("id = ?", id.String()).
				Update("status", database.NewJSON(status)).Error
		})
		if missing := missingDevices(cfg, rack.ComputeTrays, status); missing != "" {
			return controller.Wait[models.ControllerState]("waiting for " + missing), nil
		}
		return to(models.StateReady, ""), nil

	case models.StateReady:
		if cfg.MaintenanceRequested {
			return to(models.StateMaintenance, cfg.MaintenanceReason), nil
		}
		return noop, nil

	case models.StateMaintenance:
		if !cfg.MaintenanceRequested {
			return to(models.StateDiscovering, ""), nil
		}
		return noop, nil

	case models.StateError:
		return noop, nil

	case models.StateDeleting:
		tx := hctx.Services.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return noop, tx.Error
		}
		if err := tx.Table(Table).Where("id = ?", id.String()).Delete(&models.Rack{}).Error; err != nil {
			tx.Rollback()
			return noop, fmt.Errorf("failed to delete rack: %w", err)
		}
		return controller.Deleted[models.ControllerState]().WithTxn(tx), nil
	}

	return to(models.StateError, fmt.Sprintf("rack in unknown state %q", cs.Value.State)), nil
}

// discover counts the switches and power shelves assigned to the rack.
func discover(ctx context.Context, db *gorm.DB, id models.RackID, current models.Status) (models.Status, error) {
	status := current
	var n int64
	if err := countAssigned(ctx, db, switchTable, id, &n); err != nil {
		return status, err
	}
	status.DiscoveredSwitches = int(n)
	if err := countAssigned(ctx, db, powerShelfTable, id, &n); err != nil {
		return status, err
	}
	status.DiscoveredPowerShelves = int(n)
	return status, nil
}

func countAssigned(ctx context.Context, db *gorm.DB, table string, id models.RackID, n *int64) error {
	err := db.WithContext(ctx).Table(table).
		Where("rack_id = ? AND deleted IS NULL", id.String()).
		Count(n).Error
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", table, err)
	}
	return nil
}

func missingDevices(cfg models.Config, computeTrays int, status models.Status) string {
	var parts []string
	check := func(name string, have, want int) {
		if have < want {
			parts = append(parts, fmt.Sprintf("%d/%d %s", have, want, name))
		}
	}
	check("compute trays", computeTrays, cfg.ExpectedComputeTrays)
	check("switches", status.DiscoveredSwitches, cfg.ExpectedSwitches)
	check("power shelves", status.DiscoveredPowerShelves, cfg.ExpectedPowerShelves)
	return strings.Join(parts, ", ")
}

func ptr[T any](v T) *T { return &v }
