package ibpartition

import (
	"context"
	"fmt"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/ibpartition/models"
)

// StateHandler provisions IB partitions.
type StateHandler struct{}

// HandleObjectState implements controller.StateHandler.
func (StateHandler) HandleObjectState(ctx context.Context, id models.PartitionID, p *models.IBPartition, cs configversion.Versioned[models.ControllerState], hctx *controller.HandlerContext[controller.NoMetrics]) (controller.Outcome[models.ControllerState], error) {
	noop := controller.DoNothing[models.ControllerState]()

	switch cs.Value.State {
	case models.StateProvisioning:
		if p.PKey == nil {
			return controller.Transition(models.ControllerState{State: models.StateError, Reason: "partition has no pkey"}), nil
		}
		if _, err := models.ParsePKey(*p.PKey); err != nil {
			return controller.Transition(models.ControllerState{State: models.StateError, Reason: err.Error()}), nil
		}
		return controller.Transition(models.ControllerState{State: models.StateReady}), nil

	case models.StateReady, models.StateError:
		if p.Deleted != nil {
			return controller.Transition(models.ControllerState{State: models.StateDeleting}), nil
		}
		return noop, nil

	case models.StateDeleting:
		tx := hctx.Services.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return noop, tx.Error
		}
		if err := tx.Table(Table).Where("id = ?", id.String()).Delete(&models.IBPartition{}).Error; err != nil {
			tx.Rollback()
			return noop, fmt.Errorf("failed to delete ib partition: %w", err)
		}
		return controller.Deleted[models.ControllerState]().WithTxn(tx), nil
	}

	return noop, controller.HandlerErrorf(controller.LabelUnknown, "unknown ib partition state %q", cs.Value.State)
}
