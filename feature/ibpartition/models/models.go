package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"site-controller/core/controller"

	"github.com/google/uuid"
)

// PartitionID identifies an InfiniBand partition.
type PartitionID string

// NewPartitionID returns a random id.
func NewPartitionID() PartitionID {
	return PartitionID(uuid.NewString())
}

// ParsePartitionID validates raw and returns it in canonical form.
func ParsePartitionID(raw string) (PartitionID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid ib partition id %q: %w", raw, err)
	}
	return PartitionID(u.String()), nil
}

func (id PartitionID) String() string { return string(id) }

// IB partition controller states.
const (
	StateProvisioning = "provisioning"
	StateReady        = "ready"
	StateError        = "error"
	StateDeleting     = "deleting"
)

// ControllerState is the controller owned lifecycle state of a partition.
type ControllerState struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// IBPartition represents the 'ib_partitions' table.
type IBPartition struct {
	ID           string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name         string     `gorm:"column:name;size:255;not null" json:"name"`
	PKey         *string    `gorm:"column:pkey;size:8" json:"pkey,omitempty"`
	MTU          int        `gorm:"column:mtu;not null;default:4096" json:"mtu"`
	ServiceLevel int        `gorm:"column:service_level;not null;default:0" json:"service_level"`
	Deleted      *time.Time `gorm:"column:deleted" json:"deleted,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	controller.ControllerColumns[ControllerState]
}

// TableName overrides the table name used by IBPartition to `ib_partitions`.
func (IBPartition) TableName() string {
	return "ib_partitions"
}

// ParsePKey parses a partition key such as "0x7fff". The default partition
// 0xffff and the invalid key 0 are rejected; the membership bit is ignored.
func ParsePKey(raw string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(raw), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid pkey %q", raw)
	}
	key := uint16(v) & 0x7fff
	if key == 0 || key == 0x7fff {
		return 0, fmt.Errorf("pkey %q is reserved", raw)
	}
	return key, nil
}
