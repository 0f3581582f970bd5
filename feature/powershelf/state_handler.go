package powershelf

import (
	"context"
	"fmt"
	"net"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/feature/powershelf/models"

	"gorm.io/gorm"
)

// StateHandler drives a power shelf to ready and removes it once deleted.
type StateHandler struct{}

func transition(state string) controller.Outcome[models.ControllerState] {
	return controller.Transition(models.ControllerState{State: state})
}

// HandleObjectState implements controller.StateHandler.
func (StateHandler) HandleObjectState(ctx context.Context, id models.PowerShelfID, shelf *models.PowerShelf, cs configversion.Versioned[models.ControllerState], hctx *controller.HandlerContext[controller.NoMetrics]) (controller.Outcome[models.ControllerState], error) {
	noop := controller.DoNothing[models.ControllerState]()

	switch cs.Value.State {
	case models.StateInitializing:
		return transition(models.StateFetchingData), nil

	case models.StateFetchingData:
		now := hctx.Services.CurrentTime().UTC()
		status := models.Status{LastFetchedAt: &now, PSUsOnline: shelf.Config.Data.PSUCount}
		hctx.Batch.Push(func(ctx context.Context, tx *gorm.DB) error {
			return tx.WithContext(ctx).Table(Table).
				Where("id = ?", id.String()).
				Update("status", database.NewJSON(status)).Error
		})
		return transition(models.StateConfiguring), nil

	case models.StateConfiguring:
		cfg := shelf.Config.Data
		if cfg.PSUCount <= 0 {
			return controller.Transition(models.ControllerState{State: models.StateError, Reason: "psu_count must be positive"}), nil
		}
		if _, err := net.ParseMAC(cfg.BMCMac); err != nil {
			return controller.Transition(models.ControllerState{State: models.StateError, Reason: fmt.Sprintf("invalid bmc mac %q", cfg.BMCMac)}), nil
		}
		return transition(models.StateReady), nil

	case models.StateReady, models.StateError:
		if shelf.Deleted != nil {
			return transition(models.StateDeleting), nil
		}
		return noop, nil

	case models.StateDeleting:
		tx := hctx.Services.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return noop, tx.Error
		}
		if err := tx.Table(Table).Where("id = ?", id.String()).Delete(&models.PowerShelf{}).Error; err != nil {
			tx.Rollback()
			return noop, fmt.Errorf("failed to delete power shelf: %w", err)
		}
		return controller.Deleted[models.ControllerState]().WithTxn(tx), nil
	}

	return noop, controller.HandlerErrorf(controller.LabelUnknown, "unknown power shelf state %q", cs.Value.State)
}
