package ibpartition

import (
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/ibpartition/models"
)

const (
	// Kind is the controller kind of IB partitions.
	Kind = "ib_partition"
	// Table is the IB partition object table.
	Table = "ib_partitions"
)

// Adapter loads and persists IB partitions.
type Adapter struct {
	controller.TableAdapter[models.PartitionID, models.IBPartition, models.ControllerState]
}

// NewAdapter creates the IB partition adapter.
func NewAdapter() *Adapter {
	return &Adapter{TableAdapter: controller.TableAdapter[models.PartitionID, models.IBPartition, models.ControllerState]{
		Desc:  controller.NewDescriptor(Kind, Table),
		Parse: models.ParsePartitionID,
		Columns: func(p *models.IBPartition) *controller.ControllerColumns[models.ControllerState] {
			return &p.ControllerColumns
		},
	}}
}

func (a *Adapter) MetricStateNames(cs models.ControllerState) (string, string) {
	return cs.State, ""
}

func (a *Adapter) StateSLA(cs configversion.Versioned[models.ControllerState], now time.Time) controller.SLA {
	switch cs.Value.State {
	case models.StateProvisioning:
		return controller.SLAFor(10*time.Minute, cs.Version, now)
	case models.StateDeleting:
		return controller.SLAFor(15*time.Minute, cs.Version, now)
	}
	return controller.NoSLA()
}
