package models

import (
	"fmt"
	"time"

	"site-controller/core/controller"

	"github.com/google/uuid"
)

// SegmentID identifies a network segment.
type SegmentID string

// NewSegmentID returns a random id.
func NewSegmentID() SegmentID {
	return SegmentID(uuid.NewString())
}

// ParseSegmentID validates raw and returns it in canonical form.
func ParseSegmentID(raw string) (SegmentID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid network segment id %q: %w", raw, err)
	}
	return SegmentID(u.String()), nil
}

func (id SegmentID) String() string { return string(id) }

// Network segment controller states.
const (
	StateProvisioning = "provisioning"
	StateReady        = "ready"
	StateDeleting     = "deleting"
)

// Deletion phases of a network segment.
const (
	DeletingDrainAllocatedIPs = "drain_allocated_ips"
	DeletingDBDelete          = "db_delete"
)

// DeletingState tracks the teardown of a segment.
type DeletingState struct {
	Phase string `json:"phase"`
	// DeleteAt is the end of the drain period.
	DeleteAt *time.Time `json:"delete_at,omitempty"`
}

// ControllerState is the controller owned lifecycle state of a segment.
type ControllerState struct {
	State    string         `json:"state"`
	Deleting *DeletingState `json:"deleting,omitempty"`
}

// Segment types.
const (
	TypeAdmin    = "admin"
	TypeTenant   = "tenant"
	TypeUnderlay = "underlay"
)

// NetworkSegment represents the 'network_segments' table.
type NetworkSegment struct {
	ID          string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name        string     `gorm:"column:name;size:255;not null" json:"name"`
	SegmentType string     `gorm:"column:segment_type;size:32;not null" json:"segment_type"`
	Prefix      string     `gorm:"column:prefix;size:64;not null" json:"prefix"`
	Gateway     string     `gorm:"column:gateway;size:64" json:"gateway,omitempty"`
	ReservedIPs int        `gorm:"column:reserved_ips;not null;default:0" json:"reserved_ips"`
	Deleted     *time.Time `gorm:"column:deleted" json:"deleted,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	controller.ControllerColumns[ControllerState]
}

// TableName overrides the table name used by NetworkSegment to `network_segments`.
func (NetworkSegment) TableName() string {
	return "network_segments"
}

// Address is an IP allocated from a segment.
type Address struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SegmentID   string    `gorm:"column:segment_id;size:36;not null;uniqueIndex:idx_segment_address" json:"segment_id"`
	Address     string    `gorm:"column:address;size:64;not null;uniqueIndex:idx_segment_address" json:"address"`
	AllocatedAt time.Time `gorm:"column:allocated_at" json:"allocated_at"`
}

// TableName overrides the table name used by Address to `network_segment_addresses`.
func (Address) TableName() string {
	return "network_segment_addresses"
}
