package models

import (
	"fmt"
	"time"

	"site-controller/core/controller"
	"site-controller/core/database"

	"github.com/google/uuid"
)

// PowerShelfID identifies a power shelf.
type PowerShelfID string

// NewPowerShelfID returns a random id.
func NewPowerShelfID() PowerShelfID {
	return PowerShelfID(uuid.NewString())
}

// ParsePowerShelfID validates raw and returns it in canonical form.
func ParsePowerShelfID(raw string) (PowerShelfID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid power shelf id %q: %w", raw, err)
	}
	return PowerShelfID(u.String()), nil
}

func (id PowerShelfID) String() string { return string(id) }

// Config is the expected layout of a power shelf.
type Config struct {
	PSUCount int    `json:"psu_count"`
	BMCMac   string `json:"bmc_mac"`
}

// Status is what the controller last observed on the shelf.
type Status struct {
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	PSUsOnline    int        `json:"psus_online"`
}

// Power shelf controller states.
const (
	StateInitializing = "initializing"
	StateFetchingData = "fetching_data"
	StateConfiguring  = "configuring"
	StateReady        = "ready"
	StateError        = "error"
	StateDeleting     = "deleting"
)

// ControllerState is the controller owned lifecycle state of a power shelf.
type ControllerState struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// PowerShelf represents the 'power_shelves' table.
type PowerShelf struct {
	ID        string                `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name      string                `gorm:"column:name;size:255;not null" json:"name"`
	RackID    *string               `gorm:"column:rack_id;size:36;index" json:"rack_id,omitempty"`
	Config    database.JSON[Config] `gorm:"column:config" json:"config"`
	Status    database.JSON[Status] `gorm:"column:status" json:"status"`
	Deleted   *time.Time            `gorm:"column:deleted" json:"deleted,omitempty"`
	CreatedAt time.Time             `gorm:"column:created_at" json:"created_at"`
	controller.ControllerColumns[ControllerState]
}

// TableName overrides the table name used by PowerShelf to `power_shelves`.
func (PowerShelf) TableName() string {
	return "power_shelves"
}
