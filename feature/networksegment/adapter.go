package networksegment

import (
	"time"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/feature/networksegment/models"
)

const (
	// Kind is the controller kind of network segments.
	Kind = "network_segment"
	// Table is the network segment object table.
	Table = "network_segments"
)

// Adapter loads and persists network segments.
type Adapter struct {
	controller.TableAdapter[models.SegmentID, models.NetworkSegment, models.ControllerState]
}

// NewAdapter creates the network segment adapter.
func NewAdapter() *Adapter {
	return &Adapter{TableAdapter: controller.TableAdapter[models.SegmentID, models.NetworkSegment, models.ControllerState]{
		Desc:  controller.NewDescriptor(Kind, Table),
		Parse: models.ParseSegmentID,
		Columns: func(s *models.NetworkSegment) *controller.ControllerColumns[models.ControllerState] {
			return &s.ControllerColumns
		},
	}}
}

// MetricStateNames reports the deletion phase as substate.
func (a *Adapter) MetricStateNames(cs models.ControllerState) (string, string) {
	if cs.State == models.StateDeleting && cs.Deleting != nil {
		return cs.State, cs.Deleting.Phase
	}
	return cs.State, ""
}

// StateSLA returns NoSLA; a segment may wait on its prefix or on allocated
// addresses indefinitely.
func (a *Adapter) StateSLA(configversion.Versioned[models.ControllerState], time.Time) controller.SLA {
	return controller.NoSLA()
}
