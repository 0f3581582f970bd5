package models

import (
	"fmt"
	"time"

	"site-controller/core/controller"
	"site-controller/core/database"

	"github.com/google/uuid"
)

// RackID identifies a rack.
type RackID string

// NewRackID returns a random id.
func NewRackID() RackID {
	return RackID(uuid.NewString())
}

// ParseRackID validates raw and returns it in canonical form.
func ParseRackID(raw string) (RackID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid rack id %q: %w", raw, err)
	}
	return RackID(u.String()), nil
}

func (id RackID) String() string { return string(id) }

// Config is the expected content of a rack.
type Config struct {
	ExpectedComputeTrays int  `json:"expected_compute_trays"`
	ExpectedSwitches     int  `json:"expected_switches"`
	ExpectedPowerShelves int  `json:"expected_power_shelves"`
	MaintenanceRequested bool `json:"maintenance_requested"`
	// MaintenanceReason is copied into the maintenance state.
	MaintenanceReason string `json:"maintenance_reason,omitempty"`
}

// Status is the content of a rack found by discovery. It is written by the
// controller only.
type Status struct {
	DiscoveredSwitches     int        `json:"discovered_switches"`
	DiscoveredPowerShelves int        `json:"discovered_power_shelves"`
	LastDiscoveryAt        *time.Time `json:"last_discovery_at,omitempty"`
}

// Rack controller states.
const (
	StateExpected    = "expected"
	StateDiscovering = "discovering"
	StateReady       = "ready"
	StateMaintenance = "maintenance"
	StateError       = "error"
	StateDeleting    = "deleting"
	StateUnknown     = "unknown"
)

// ControllerState is the controller owned lifecycle state of a rack.
type ControllerState struct {
	State string `json:"state"`
	// Reason is set in the maintenance and error states.
	Reason string `json:"reason,omitempty"`
}

// Rack represents the 'racks' table. ComputeTrays is the compute tray count
// reported by operators.
type Rack struct {
	ID           string                `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name         string                `gorm:"column:name;size:255;not null" json:"name"`
	Config       database.JSON[Config] `gorm:"column:config" json:"config"`
	Status       database.JSON[Status] `gorm:"column:status" json:"status"`
	ComputeTrays int                   `gorm:"column:compute_trays;not null;default:0" json:"compute_trays"`
	Deleted      *time.Time            `gorm:"column:deleted" json:"deleted,omitempty"`
	CreatedAt    time.Time             `gorm:"column:created_at" json:"created_at"`
	controller.ControllerColumns[ControllerState]
}

// TableName overrides the table name used by Rack to `racks`.
func (Rack) TableName() string {
	return "racks"
}
