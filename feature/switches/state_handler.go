package switches

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/feature/switches/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StateHandler drives a switch through initialization, configuration and
// removal.
type StateHandler struct{}

// HandleObjectState implements controller.StateHandler.
func (StateHandler) HandleObjectState(ctx context.Context, id models.SwitchID, sw *models.Switch, cs configversion.Versioned[models.ControllerState], hctx *controller.HandlerContext[controller.NoMetrics]) (controller.Outcome[models.ControllerState], error) {
	switch cs.Value.State {
	case models.StateInitializing:
		return controller.Transition(models.ControllerState{State: models.StateFetchingData}), nil

	case models.StateFetchingData:
		now := hctx.Services.CurrentTime().UTC()
		status := models.Status{
			LastFetchedAt: &now,
			Reachable:     validManagementIP(sw.Config.Data.ManagementIP) == nil,
		}
		hctx.Batch.Push(func(ctx context.Context, tx *gorm.DB) error {
			return tx.WithContext(ctx).Table(Table).
				Where("id = ?", id.String()).
				Update("status", database.NewJSON(status)).Error
		})
		return controller.Transition(models.ControllerState{State: models.StateConfiguring}), nil

	case models.StateConfiguring:
		if err := validateConfig(sw.Config.Data); err != nil {
			hctx.Logger.Warn("Switch configuration rejected", zap.Error(err))
			return controller.Transition(models.ControllerState{State: models.StateError, Reason: err.Error()}), nil
		}
		return controller.Transition(models.ControllerState{State: models.StateReady}), nil

	case models.StateReady, models.StateError:
		if sw.IsMarkedDeleted() {
			return controller.Transition(models.ControllerState{State: models.StateDeleting}), nil
		}
		return controller.DoNothing[models.ControllerState](), nil

	case models.StateDeleting:
		tx := hctx.Services.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return controller.DoNothing[models.ControllerState](), tx.Error
		}
		if err := tx.Table(Table).Where("id = ?", id.String()).Delete(&models.Switch{}).Error; err != nil {
			tx.Rollback()
			return controller.DoNothing[models.ControllerState](), fmt.Errorf("failed to delete switch: %w", err)
		}
		return controller.Deleted[models.ControllerState]().WithTxn(tx), nil
	}

	return controller.DoNothing[models.ControllerState](), controller.HandlerErrorf(controller.LabelUnknown, "unknown switch state %q", cs.Value.State)
}

func validManagementIP(raw string) error {
	if _, err := netip.ParseAddr(raw); err != nil {
		return fmt.Errorf("invalid management ip %q", raw)
	}
	return nil
}

func validateConfig(cfg models.Config) error {
	if _, err := net.ParseMAC(cfg.BMCMac); err != nil {
		return fmt.Errorf("invalid bmc mac %q", cfg.BMCMac)
	}
	return validManagementIP(cfg.ManagementIP)
}
