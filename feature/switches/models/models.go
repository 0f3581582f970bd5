package models

import (
	"fmt"
	"time"

	"site-controller/core/controller"
	"site-controller/core/database"

	"github.com/google/uuid"
)

// SwitchID identifies a switch.
type SwitchID string

// NewSwitchID returns a random id.
func NewSwitchID() SwitchID {
	return SwitchID(uuid.NewString())
}

// ParseSwitchID validates raw and returns it in canonical form.
func ParseSwitchID(raw string) (SwitchID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid switch id %q: %w", raw, err)
	}
	return SwitchID(u.String()), nil
}

func (id SwitchID) String() string { return string(id) }

// Config is the operator supplied configuration of a switch.
type Config struct {
	BMCMac       string `json:"bmc_mac"`
	ManagementIP string `json:"management_ip"`
	NVOSVersion  string `json:"nvos_version,omitempty"`
}

// Status is what the controller last observed on the switch.
type Status struct {
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	Reachable     bool       `json:"reachable"`
}

// Switch controller states.
const (
	StateInitializing = "initializing"
	StateFetchingData = "fetching_data"
	StateConfiguring  = "configuring"
	StateReady        = "ready"
	StateError        = "error"
	StateDeleting     = "deleting"
)

// ControllerState is the controller owned lifecycle state of a switch.
type ControllerState struct {
	State string `json:"state"`
	// Reason is set in the error state.
	Reason string `json:"reason,omitempty"`
}

// Switch represents the 'switches' table.
type Switch struct {
	ID        string                `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name      string                `gorm:"column:name;size:255;not null" json:"name"`
	RackID    *string               `gorm:"column:rack_id;size:36;index" json:"rack_id,omitempty"`
	Config    database.JSON[Config] `gorm:"column:config" json:"config"`
	Status    database.JSON[Status] `gorm:"column:status" json:"status"`
	Deleted   *time.Time            `gorm:"column:deleted" json:"deleted,omitempty"`
	CreatedAt time.Time             `gorm:"column:created_at" json:"created_at"`
	controller.ControllerColumns[ControllerState]
}

// TableName overrides the table name used by Switch to `switches`.
func (Switch) TableName() string {
	return "switches"
}

// IsMarkedDeleted reports whether an operator asked for the switch to be removed.
func (s *Switch) IsMarkedDeleted() bool {
	return s.Deleted != nil
}
