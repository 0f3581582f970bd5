package networksegment

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/networksegment/models"

	"go.uber.org/zap"
)

// DefaultDrainPeriod is how long a deleted segment waits before its row is removed.
const DefaultDrainPeriod = 5 * time.Minute

// StateHandler provisions segments and drains them before deletion.
type StateHandler struct {
	DrainPeriod time.Duration
}

type outcome = controller.Outcome[models.ControllerState]

func startDeleting(deleteAt time.Time) outcome {
	return controller.Transition(models.ControllerState{
		State:    models.StateDeleting,
		Deleting: &models.DeletingState{Phase: models.DeletingDrainAllocatedIPs, DeleteAt: &deleteAt},
	})
}

// HandleObjectState implements controller.StateHandler.
func (h StateHandler) HandleObjectState(ctx context.Context, id models.SegmentID, seg *models.NetworkSegment, cs configversion.Versioned[models.ControllerState], hctx *controller.HandlerContext[SegmentMetrics]) (outcome, error) {
	noop := controller.DoNothing[models.ControllerState]()
	now := hctx.Services.CurrentTime().UTC()
	db := hctx.Services.DB

	switch cs.Value.State {
	case models.StateProvisioning:
		if seg.Deleted != nil {
			return startDeleting(now.Add(h.DrainPeriod)), nil
		}
		if _, err := netip.ParsePrefix(seg.Prefix); err != nil {
			return controller.Wait[models.ControllerState](fmt.Sprintf("invalid prefix %q", seg.Prefix)), nil
		}
		return controller.Transition(models.ControllerState{State: models.StateReady}), nil

	case models.StateReady:
		if seg.Deleted != nil {
			return startDeleting(now.Add(h.DrainPeriod)), nil
		}
		prefix, err := netip.ParsePrefix(seg.Prefix)
		if err != nil {
			return noop, controller.HandlerErrorf(controller.LabelLoadObjectState, "ready segment has invalid prefix %q", seg.Prefix)
		}
		allocated, err := countAllocated(ctx, db, id.String())
		if err != nil {
			return noop, err
		}
		*hctx.Metrics = SegmentMetrics{
			SegmentID: id.String(),
			Name:      seg.Name,
			Type:      seg.SegmentType,
			Prefix:    prefix.String(),
			Stats: IPStats{
				Total:     prefixSize(prefix),
				Reserved:  float64(seg.ReservedIPs),
				Allocated: float64(allocated),
			},
		}
		return noop, nil

	case models.StateDeleting:
		return h.handleDeleting(ctx, id, cs.Value, now, hctx)
	}

	return noop, controller.HandlerErrorf(controller.LabelUnknown, "unknown network segment state %q", cs.Value.State)
}

func (h StateHandler) handleDeleting(ctx context.Context, id models.SegmentID, cs models.ControllerState, now time.Time, hctx *controller.HandlerContext[SegmentMetrics]) (outcome, error) {
	noop := controller.DoNothing[models.ControllerState]()
	if cs.Deleting == nil {
		return startDeleting(now.Add(h.DrainPeriod)), nil
	}

	switch cs.Deleting.Phase {
	case models.DeletingDrainAllocatedIPs:
		allocated, err := countAllocated(ctx, hctx.Services.DB, id.String())
		if err != nil {
			return noop, err
		}
		if allocated > 0 {
			return controller.Wait[models.ControllerState](fmt.Sprintf("%d addresses still allocated", allocated)), nil
		}
		if cs.Deleting.DeleteAt != nil && now.Before(*cs.Deleting.DeleteAt) {
			return controller.Wait[models.ControllerState]("drain period ends at " + cs.Deleting.DeleteAt.Format(time.RFC3339)), nil
		}
		return controller.Transition(models.ControllerState{
			State:    models.StateDeleting,
			Deleting: &models.DeletingState{Phase: models.DeletingDBDelete},
		}), nil

	case models.DeletingDBDelete:
		tx := hctx.Services.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return noop, tx.Error
		}
		if err := tx.Where("segment_id = ?", id.String()).Delete(&models.Address{}).Error; err != nil {
			tx.Rollback()
			return noop, fmt.Errorf("failed to delete segment addresses: %w", err)
		}
		if err := tx.Table(Table).Where("id = ?", id.String()).Delete(&models.NetworkSegment{}).Error; err != nil {
			tx.Rollback()
			return noop, fmt.Errorf("failed to delete segment: %w", err)
		}
		hctx.Logger.Info("Network segment removed", zap.String("segment", id.String()))
		return controller.Deleted[models.ControllerState]().WithTxn(tx), nil
	}

	return noop, controller.HandlerErrorf(controller.LabelUnknown, "unknown deletion phase %q", cs.Deleting.Phase)
}
