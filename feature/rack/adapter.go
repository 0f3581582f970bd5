package rack

import (
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/rack/models"
)

const (
	// Kind is the controller kind of racks.
	Kind = "rack"
	// Table is the rack object table.
	Table = "racks"
)

// Adapter loads and persists racks.
type Adapter struct {
	controller.TableAdapter[models.RackID, models.Rack, models.ControllerState]
}

// NewAdapter creates the rack adapter.
func NewAdapter() *Adapter {
	return &Adapter{TableAdapter: controller.TableAdapter[models.RackID, models.Rack, models.ControllerState]{
		Desc:  controller.NewDescriptor(Kind, Table),
		Parse: models.ParseRackID,
		Columns: func(r *models.Rack) *controller.ControllerColumns[models.ControllerState] {
			return &r.ControllerColumns
		},
	}}
}

// MetricStateNames returns the state name. Reasons are not exported as labels.
func (a *Adapter) MetricStateNames(cs models.ControllerState) (string, string) {
	return cs.State, ""
}

// StateSLA applies the per-state limits.
func (a *Adapter) StateSLA(cs configversion.Versioned[models.ControllerState], now time.Time) controller.SLA {
	var limit time.Duration
	switch cs.Value.State {
	case models.StateDiscovering:
		limit = 30 * time.Minute
	case models.StateDeleting:
		limit = 15 * time.Minute
	case models.StateMaintenance:
		limit = 24 * time.Hour
	}
	return controller.SLAFor(limit, cs.Version, now)
}
