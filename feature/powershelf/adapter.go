package powershelf

import (
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/powershelf/models"
)

const (
	// Kind is the controller kind of power shelves.
	Kind = "power_shelf"
	// Table is the power shelf object table.
	Table = "power_shelves"
)

// Adapter loads and persists power shelves.
type Adapter struct {
	controller.TableAdapter[models.PowerShelfID, models.PowerShelf, models.ControllerState]
}

// NewAdapter creates the power shelf adapter.
func NewAdapter() *Adapter {
	return &Adapter{TableAdapter: controller.TableAdapter[models.PowerShelfID, models.PowerShelf, models.ControllerState]{
		Desc:  controller.NewDescriptor(Kind, Table),
		Parse: models.ParsePowerShelfID,
		Columns: func(p *models.PowerShelf) *controller.ControllerColumns[models.ControllerState] {
			return &p.ControllerColumns
		},
	}}
}

// MetricStateNames returns the state name.
func (a *Adapter) MetricStateNames(cs models.ControllerState) (string, string) {
	return cs.State, ""
}

// StateSLA applies the per-state limits.
func (a *Adapter) StateSLA(cs configversion.Versioned[models.ControllerState], now time.Time) controller.SLA {
	switch cs.Value.State {
	case models.StateInitializing, models.StateFetchingData:
		return controller.SLAFor(5*time.Minute, cs.Version, now)
	case models.StateConfiguring:
		return controller.SLAFor(30*time.Minute, cs.Version, now)
	case models.StateDeleting:
		return controller.SLAFor(15*time.Minute, cs.Version, now)
	default:
		return controller.NoSLA()
	}
}
