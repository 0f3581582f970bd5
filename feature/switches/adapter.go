package switches

import (
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/switches/models"
)

const (
	// Kind is the controller kind of switches.
	Kind = "switch"
	// Table is the switch object table.
	Table = "switches"
)

var stateSLAs = map[string]time.Duration{
	models.StateInitializing: 5 * time.Minute,
	models.StateFetchingData: 5 * time.Minute,
	models.StateConfiguring:  30 * time.Minute,
	models.StateDeleting:     15 * time.Minute,
}

// Adapter loads and persists switches.
type Adapter struct {
	controller.TableAdapter[models.SwitchID, models.Switch, models.ControllerState]
}

// NewAdapter creates the switch adapter.
func NewAdapter() *Adapter {
	return &Adapter{TableAdapter: controller.TableAdapter[models.SwitchID, models.Switch, models.ControllerState]{
		Desc:  controller.NewDescriptor(Kind, Table),
		Parse: models.ParseSwitchID,
		Columns: func(s *models.Switch) *controller.ControllerColumns[models.ControllerState] {
			return &s.ControllerColumns
		},
	}}
}

// MetricStateNames returns the state name. Switch states have no substate.
func (a *Adapter) MetricStateNames(cs models.ControllerState) (string, string) {
	return cs.State, ""
}

// StateSLA applies the per-state limits. Ready and Error have none.
func (a *Adapter) StateSLA(cs configversion.Versioned[models.ControllerState], now time.Time) controller.SLA {
	return controller.SLAFor(stateSLAs[cs.Value.State], cs.Version, now)
}
